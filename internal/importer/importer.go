package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supplier-sync/internal/models"
	"supplier-sync/internal/pricing"
	"supplier-sync/internal/stock"
	"supplier-sync/internal/supplier"
	"supplier-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyExists is returned when the supplier identifier already
	// resolves to a local catalog entry.
	ErrAlreadyExists = errors.New("product already exists")
	// ErrProductNotFound is returned when the supplier has no record for
	// the requested identifier.
	ErrProductNotFound = errors.New("supplier product not found")
)

// Catalog is the store boundary the importer builds local entries through.
type Catalog interface {
	FindByIdentifier(ctx context.Context, sku string) (int64, error)
	LoadProduct(ctx context.Context, id int64) (*models.Product, error)
	SaveProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	TouchResynced(ctx context.Context, id int64) error
	EnsureCategoryPath(ctx context.Context, path string) ([]int64, error)
	AssignCategories(ctx context.Context, productID int64, categoryIDs []int64) error
	AttachImage(ctx context.Context, productID int64, url string, isPrimary bool) (int64, error)
	DeleteProductMedia(ctx context.Context, productID int64) error
	ListProductMedia(ctx context.Context, productID int64) ([]models.Media, error)
}

// SupplierAPI is the slice of the API client the importer fetches with.
type SupplierAPI interface {
	GetProducts(ctx context.Context, params map[string]string) (*supplier.ProductsResponse, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (*supplier.ProductsResponse, error)
}

// MapperAPI creates and resolves mappings for imported products.
type MapperAPI interface {
	Map(ctx context.Context, localID int64, supplierSKU, supplierName string) (*models.Mapping, error)
	GetByLocalID(ctx context.Context, localID int64) (*models.Mapping, error)
}

// EventPublisher emits import lifecycle events. Nil-safe.
type EventPublisher interface {
	PublishProductImported(ctx context.Context, event *models.ProductImportedEvent) error
}

// Importer creates and refreshes local catalog entries from supplier records.
type Importer struct {
	catalog   Catalog
	client    SupplierAPI
	mapper    MapperAPI
	prices    *pricing.Engine
	stocks    *stock.Engine
	publisher EventPublisher
	logger    *zap.Logger
}

// New wires a product importer.
func New(catalog Catalog, client SupplierAPI, mapper MapperAPI, prices *pricing.Engine, stocks *stock.Engine, publisher EventPublisher) *Importer {
	return &Importer{
		catalog:   catalog,
		client:    client,
		mapper:    mapper,
		prices:    prices,
		stocks:    stocks,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// ImportBySKU fetches one record and imports it.
func (im *Importer) ImportBySKU(ctx context.Context, sku string) (int64, error) {
	resp, err := im.client.GetProductsBySKUs(ctx, []string{sku})
	if err != nil {
		return 0, err
	}
	for i := range resp.Result {
		if resp.Result[i].SKU == sku {
			return im.Import(ctx, &resp.Result[i])
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
}

// Import constructs a new local catalog entry from a supplier record and
// maps it. The existence check goes through the identifier lookup, not the
// mapping table, because import can run before any mapping exists. Partial
// failure after the main save (images, categories, mapping) is non-fatal.
func (im *Importer) Import(ctx context.Context, rec *supplier.ProductRecord) (int64, error) {
	ctx, span := util.StartSpan(ctx, "Importer.Import")
	defer span.End()

	existing, err := im.catalog.FindByIdentifier(ctx, rec.SKU)
	if err != nil {
		return 0, err
	}
	if existing != 0 {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyExists, rec.SKU)
	}

	qty := im.stocks.EffectiveQty(rec)
	product := &models.Product{
		SKU:              rec.SKU,
		Name:             supplier.DisplayName(rec),
		Description:      supplier.LongDescription(rec),
		ShortDescription: supplier.ShortDescription(rec),
		Status:           models.ProductStatusActive,
		StockQty:         qty,
		StockStatus:      stock.Status(qty),
		Weight:           rec.Weight,
		Length:           rec.Length,
		Width:            rec.Width,
		Height:           rec.Height,
	}
	if cost := rec.EffectiveCost(); cost > 0 {
		product.RegularPrice = im.prices.Calculate(cost)
	}

	if err := im.catalog.SaveProduct(ctx, product); err != nil {
		return 0, fmt.Errorf("failed to save product: %w", err)
	}

	im.applyCategories(ctx, product.ID, rec)
	im.attachImages(ctx, product.ID, rec)

	if _, err := im.mapper.Map(ctx, product.ID, rec.SKU, supplier.DisplayName(rec)); err != nil {
		im.logger.Error("Imported product could not be mapped",
			zap.Int64("local_id", product.ID),
			zap.String("sku", rec.SKU),
			zap.Error(err))
	}

	util.ProductsImportedTotal.Inc()
	im.logger.Info("Product imported",
		zap.Int64("local_id", product.ID),
		zap.String("sku", rec.SKU))
	if im.publisher != nil {
		_ = im.publisher.PublishProductImported(ctx, &models.ProductImportedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeProductImported,
				Timestamp: time.Now(),
			},
			LocalID:     product.ID,
			SupplierSKU: rec.SKU,
		})
	}

	return product.ID, nil
}

// ResyncOptions independently gate what a resync refreshes. Titles default
// off because merchants commonly rename imported products.
type ResyncOptions struct {
	Title       bool `json:"title"`
	Description bool `json:"description"`
	Price       bool `json:"price"`
	Stock       bool `json:"stock"`
	Categories  bool `json:"categories"`
	Images      bool `json:"images"`
}

// DefaultResyncOptions enables everything except title updates.
func DefaultResyncOptions() ResyncOptions {
	return ResyncOptions{
		Description: true,
		Price:       true,
		Stock:       true,
		Categories:  true,
		Images:      true,
	}
}

// Resync refreshes an existing local entry from supplier data. This is the
// full-data path, richer than the batch coordinator's price/stock pass, and
// stamps its own last-resynced timestamp.
func (im *Importer) Resync(ctx context.Context, localID int64, rec *supplier.ProductRecord, opts ResyncOptions) (int64, error) {
	ctx, span := util.StartSpan(ctx, "Importer.Resync")
	defer span.End()

	product, err := im.catalog.LoadProduct(ctx, localID)
	if err != nil {
		return 0, err
	}

	if rec == nil {
		sku := product.SKU
		if sku == "" {
			mapping, err := im.mapper.GetByLocalID(ctx, localID)
			if err != nil {
				return 0, err
			}
			if mapping == nil {
				return 0, fmt.Errorf("%w: product %d has no supplier identifier", ErrProductNotFound, localID)
			}
			sku = mapping.SupplierSKU
		}

		resp, err := im.client.GetProductsBySKUs(ctx, []string{sku})
		if err != nil {
			return 0, err
		}
		for i := range resp.Result {
			if resp.Result[i].SKU == sku {
				rec = &resp.Result[i]
				break
			}
		}
		if rec == nil {
			return 0, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
		}
	}

	if opts.Title {
		if name := supplier.DisplayName(rec); name != "" {
			product.Name = name
		}
	}
	if opts.Description {
		product.Description = supplier.LongDescription(rec)
		product.ShortDescription = supplier.ShortDescription(rec)
	}
	if opts.Price {
		if cost := rec.EffectiveCost(); cost > 0 {
			product.RegularPrice = im.prices.Calculate(cost)
		}
	}
	if opts.Stock {
		qty := im.stocks.EffectiveQty(rec)
		product.StockQty = qty
		product.StockStatus = stock.Status(qty)
	}
	if rec.Weight > 0 {
		product.Weight = rec.Weight
	}

	if err := im.catalog.UpdateProduct(ctx, product); err != nil {
		return 0, fmt.Errorf("failed to update product: %w", err)
	}

	if opts.Categories {
		im.applyCategories(ctx, localID, rec)
	}
	if opts.Images {
		// Full replace, not a merge. An unchanged image set is left alone so
		// a no-op resync never drops and re-inserts media rows.
		if im.mediaChanged(ctx, localID, rec.ImageURLs()) {
			if err := im.catalog.DeleteProductMedia(ctx, localID); err != nil {
				im.logger.Warn("Failed to clear media before resync",
					zap.Int64("local_id", localID),
					zap.Error(err))
			}
			im.attachImages(ctx, localID, rec)
		}
	}

	if err := im.catalog.TouchResynced(ctx, localID); err != nil {
		im.logger.Error("Failed to stamp last-resynced",
			zap.Int64("local_id", localID),
			zap.Error(err))
	}

	im.logger.Info("Product resynced",
		zap.Int64("local_id", localID),
		zap.String("sku", rec.SKU))
	return localID, nil
}

func (im *Importer) applyCategories(ctx context.Context, productID int64, rec *supplier.ProductRecord) {
	path := rec.CategoryPath()
	if path == "" {
		return
	}
	ids, err := im.catalog.EnsureCategoryPath(ctx, path)
	if err != nil {
		im.logger.Warn("Failed to ensure category path",
			zap.Int64("local_id", productID),
			zap.String("path", path),
			zap.Error(err))
		return
	}
	if err := im.catalog.AssignCategories(ctx, productID, ids); err != nil {
		im.logger.Warn("Failed to assign categories",
			zap.Int64("local_id", productID),
			zap.Error(err))
	}
}

// mediaChanged compares the attached media against the supplier's image
// URLs in order. A listing failure reports changed, falling back to the
// replace path.
func (im *Importer) mediaChanged(ctx context.Context, productID int64, urls []string) bool {
	existing, err := im.catalog.ListProductMedia(ctx, productID)
	if err != nil {
		im.logger.Warn("Failed to list media before resync",
			zap.Int64("local_id", productID),
			zap.Error(err))
		return true
	}
	if len(existing) != len(urls) {
		return true
	}
	for i, m := range existing {
		if m.URL != urls[i] {
			return true
		}
	}
	return false
}

// attachImages is best-effort: a failed attach logs a warning and is
// skipped, never aborting the import.
func (im *Importer) attachImages(ctx context.Context, productID int64, rec *supplier.ProductRecord) {
	for i, url := range rec.ImageURLs() {
		if _, err := im.catalog.AttachImage(ctx, productID, url, i == 0); err != nil {
			im.logger.Warn("Failed to attach image",
				zap.Int64("local_id", productID),
				zap.String("url", url),
				zap.Error(err))
		}
	}
}
