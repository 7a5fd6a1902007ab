package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"supplier-sync/internal/models"
)

// CreateMapping inserts a new local-id/supplier-SKU join record.
func (s *Store) CreateMapping(ctx context.Context, m *models.Mapping) error {
	query := `
		INSERT INTO product_mappings (local_id, supplier_sku, supplier_name, sync_enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, m, query,
		m.LocalID, m.SupplierSKU, m.SupplierName, m.SyncEnabled)
}

// DeleteMapping removes a mapping (unmap).
func (s *Store) DeleteMapping(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM product_mappings WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mapping not found: %d", id)
	}
	return nil
}

// GetMappingByLocalID retrieves the mapping for a local product, nil when unmapped.
func (s *Store) GetMappingByLocalID(ctx context.Context, localID int64) (*models.Mapping, error) {
	var m models.Mapping
	err := s.db.GetContext(ctx, &m, "SELECT * FROM product_mappings WHERE local_id = $1", localID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMappingBySKU retrieves the mapping for a supplier SKU, nil when absent.
func (s *Store) GetMappingBySKU(ctx context.Context, sku string) (*models.Mapping, error) {
	var m models.Mapping
	err := s.db.GetContext(ctx, &m, "SELECT * FROM product_mappings WHERE supplier_sku = $1", sku)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetSyncEnabled toggles a mapping's participation in batch sync.
func (s *Store) SetSyncEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE product_mappings SET sync_enabled = $1, updated_at = NOW() WHERE id = $2",
		enabled, id)
	return err
}

// GetMappedForSync pages sync-enabled mappings ordered by the immutable
// mapping id. The stable ordering is what makes offset-based batch
// resumability deterministic.
func (s *Store) GetMappedForSync(ctx context.Context, limit, offset int) ([]models.MappingRef, error) {
	var refs []models.MappingRef
	err := s.db.SelectContext(ctx, &refs, `
		SELECT local_id, supplier_sku FROM product_mappings
		WHERE sync_enabled ORDER BY id ASC LIMIT $1 OFFSET $2`,
		limit, offset)
	return refs, err
}

// SyncableCount counts sync-enabled mappings.
func (s *Store) SyncableCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM product_mappings WHERE sync_enabled")
	return count, err
}

// UnmappedCount counts local products carrying an identifier but no mapping.
func (s *Store) UnmappedCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM products p
		WHERE p.sku <> '' AND NOT EXISTS (
			SELECT 1 FROM product_mappings m WHERE m.local_id = p.id)`)
	return count, err
}

// NeverSyncedCount counts mappings that have never completed a sync.
func (s *Store) NeverSyncedCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM product_mappings WHERE last_synced IS NULL")
	return count, err
}

// SyncedSinceCount counts mappings synced within the trailing window.
func (s *Store) SyncedSinceCount(ctx context.Context, window time.Duration) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM product_mappings WHERE last_synced >= $1",
		time.Now().Add(-window))
	return count, err
}

// TouchLastSynced stamps a mapping's last-synced time.
func (s *Store) TouchLastSynced(ctx context.Context, localID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE product_mappings SET last_synced = NOW(), updated_at = NOW() WHERE local_id = $1",
		localID)
	return err
}

// UnmappedWithIdentifier lists products that have an identifier but no
// mapping yet; input to the auto-map heuristic.
func (s *Store) UnmappedWithIdentifier(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, `
		SELECT p.* FROM products p
		WHERE p.sku <> '' AND NOT EXISTS (
			SELECT 1 FROM product_mappings m WHERE m.local_id = p.id)
		ORDER BY p.id`)
	return products, err
}
