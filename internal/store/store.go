package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"supplier-sync/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// InitSchema creates the tables this service owns.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		sku TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		short_description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		stock_qty INT NOT NULL DEFAULT 0,
		stock_status TEXT NOT NULL DEFAULT 'instock',
		regular_price NUMERIC(10,2) NOT NULL DEFAULT 0,
		sale_price NUMERIC(10,2) NOT NULL DEFAULT 0,
		weight NUMERIC(10,3) NOT NULL DEFAULT 0,
		length NUMERIC(10,3) NOT NULL DEFAULT 0,
		width NUMERIC(10,3) NOT NULL DEFAULT 0,
		height NUMERIC(10,3) NOT NULL DEFAULT 0,
		last_resynced_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS product_mappings (
		id BIGSERIAL PRIMARY KEY,
		local_id BIGINT UNIQUE NOT NULL,
		supplier_sku TEXT UNIQUE NOT NULL,
		supplier_name TEXT NOT NULL DEFAULT '',
		last_synced TIMESTAMPTZ,
		sync_enabled BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id BIGINT NOT NULL DEFAULT 0,
		UNIQUE (name, parent_id)
	);

	CREATE TABLE IF NOT EXISTS product_categories (
		product_id BIGINT NOT NULL,
		category_id BIGINT NOT NULL,
		PRIMARY KEY (product_id, category_id)
	);

	CREATE TABLE IF NOT EXISTS product_media (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL,
		url TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS order_submissions (
		order_id BIGINT PRIMARY KEY,
		serial_number TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS order_notes (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		note TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// FindByIdentifier resolves a local product id by its SKU-equivalent
// identifier. Returns 0 when no product carries it.
func (s *Store) FindByIdentifier(ctx context.Context, sku string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, "SELECT id FROM products WHERE sku = $1", sku)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// LoadProduct retrieves a product by ID
func (s *Store) LoadProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// SaveProduct inserts a new catalog entry.
func (s *Store) SaveProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (sku, name, description, short_description, status,
			stock_qty, stock_status, regular_price, sale_price, weight, length, width, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, p, query,
		p.SKU, p.Name, p.Description, p.ShortDescription, p.Status,
		p.StockQty, p.StockStatus, p.RegularPrice, p.SalePrice,
		p.Weight, p.Length, p.Width, p.Height)
}

// UpdateProduct writes the mutable fields of an existing entry back.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE products SET name = $1, description = $2, short_description = $3,
			status = $4, stock_qty = $5, stock_status = $6, regular_price = $7,
			sale_price = $8, weight = $9, length = $10, width = $11, height = $12,
			updated_at = NOW()
		WHERE id = $13`,
		p.Name, p.Description, p.ShortDescription, p.Status, p.StockQty,
		p.StockStatus, p.RegularPrice, p.SalePrice, p.Weight, p.Length,
		p.Width, p.Height, p.ID)
	return err
}

// UpdatePrice updates only the regular price.
func (s *Store) UpdatePrice(ctx context.Context, id int64, price float64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET regular_price = $1, updated_at = NOW() WHERE id = $2",
		price, id)
	return err
}

// UpdateStock updates quantity and, when status is non-empty, stock status.
func (s *Store) UpdateStock(ctx context.Context, id int64, qty int, status string) error {
	if status == "" {
		_, err := s.db.ExecContext(ctx,
			"UPDATE products SET stock_qty = $1, updated_at = NOW() WHERE id = $2", qty, id)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock_qty = $1, stock_status = $2, updated_at = NOW() WHERE id = $3",
		qty, status, id)
	return err
}

// SetStatus updates the publication status.
func (s *Store) SetStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
	return err
}

// Deactivate marks a product inactive with zero stock, the not-found policy.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET status = $1, stock_qty = 0, stock_status = $2, updated_at = NOW() WHERE id = $3`,
		models.ProductStatusInactive, models.StockStatusOutOfStock, id)
	return err
}

// TouchResynced stamps the full-data refresh timestamp.
func (s *Store) TouchResynced(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET last_resynced_at = NOW(), updated_at = NOW() WHERE id = $1", id)
	return err
}

// EnsureCategoryPath walks a delimited path like "Home > Kitchen > Kettles",
// creating missing nodes and reusing existing ones by name and parent.
// Returns the category ids along the path, root first.
func (s *Store) EnsureCategoryPath(ctx context.Context, path string) ([]int64, error) {
	var ids []int64
	var parentID int64

	for _, part := range strings.Split(path, ">") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}

		var id int64
		err := s.db.GetContext(ctx, &id,
			"SELECT id FROM categories WHERE name = $1 AND parent_id = $2", name, parentID)
		if err == sql.ErrNoRows {
			err = s.db.GetContext(ctx, &id,
				"INSERT INTO categories (name, parent_id) VALUES ($1, $2) RETURNING id",
				name, parentID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to ensure category %q: %w", name, err)
		}

		ids = append(ids, id)
		parentID = id
	}
	return ids, nil
}

// AssignCategories links a product to the given category nodes.
func (s *Store) AssignCategories(ctx context.Context, productID int64, categoryIDs []int64) error {
	for _, cid := range categoryIDs {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO product_categories (product_id, category_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, productID, cid)
		if err != nil {
			return err
		}
	}
	return nil
}

// AttachImage records an image against a product.
func (s *Store) AttachImage(ctx context.Context, productID int64, url string, isPrimary bool) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"INSERT INTO product_media (product_id, url, is_primary) VALUES ($1, $2, $3) RETURNING id",
		productID, url, isPrimary)
	return id, err
}

// DeleteProductMedia removes all media for a product; image resync is a full
// replace, not a merge.
func (s *Store) DeleteProductMedia(ctx context.Context, productID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM product_media WHERE product_id = $1", productID)
	return err
}

// ListProductMedia returns a product's attached media.
func (s *Store) ListProductMedia(ctx context.Context, productID int64) ([]models.Media, error) {
	var media []models.Media
	err := s.db.SelectContext(ctx, &media,
		"SELECT * FROM product_media WHERE product_id = $1 ORDER BY is_primary DESC, id", productID)
	return media, err
}
