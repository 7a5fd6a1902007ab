package mapper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supplier-sync/internal/models"
	"supplier-sync/internal/util"

	"go.uber.org/zap"
)

// ErrAlreadyMapped is returned when either side of a requested mapping is
// already joined; the table is strictly one-to-one.
var ErrAlreadyMapped = errors.New("mapping already exists")

// Store is the persistence the mapper owns. The postgres store satisfies it.
type Store interface {
	CreateMapping(ctx context.Context, m *models.Mapping) error
	DeleteMapping(ctx context.Context, id int64) error
	GetMappingByLocalID(ctx context.Context, localID int64) (*models.Mapping, error)
	GetMappingBySKU(ctx context.Context, sku string) (*models.Mapping, error)
	SetSyncEnabled(ctx context.Context, id int64, enabled bool) error
	GetMappedForSync(ctx context.Context, limit, offset int) ([]models.MappingRef, error)
	SyncableCount(ctx context.Context) (int, error)
	UnmappedCount(ctx context.Context) (int, error)
	NeverSyncedCount(ctx context.Context) (int, error)
	SyncedSinceCount(ctx context.Context, window time.Duration) (int, error)
	TouchLastSynced(ctx context.Context, localID int64) error
	UnmappedWithIdentifier(ctx context.Context) ([]models.Product, error)
}

// Mapper owns the join table between local catalog ids and supplier SKUs.
// No other component writes mappings directly.
type Mapper struct {
	store  Store
	logger *zap.Logger
}

// New creates a mapper over the given store.
func New(store Store) *Mapper {
	return &Mapper{store: store, logger: util.GetLogger()}
}

// Map creates a manual one-to-one mapping.
func (m *Mapper) Map(ctx context.Context, localID int64, supplierSKU, supplierName string) (*models.Mapping, error) {
	existing, err := m.store.GetMappingByLocalID(ctx, localID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: local id %d", ErrAlreadyMapped, localID)
	}
	existing, err = m.store.GetMappingBySKU(ctx, supplierSKU)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: sku %s", ErrAlreadyMapped, supplierSKU)
	}

	mapping := &models.Mapping{
		LocalID:      localID,
		SupplierSKU:  supplierSKU,
		SupplierName: supplierName,
		SyncEnabled:  true,
	}
	if err := m.store.CreateMapping(ctx, mapping); err != nil {
		return nil, fmt.Errorf("failed to create mapping: %w", err)
	}

	m.logger.Info("Mapping created",
		zap.Int64("local_id", localID),
		zap.String("supplier_sku", supplierSKU))
	return mapping, nil
}

// Unmap deletes a mapping by its id.
func (m *Mapper) Unmap(ctx context.Context, id int64) error {
	return m.store.DeleteMapping(ctx, id)
}

// SetSyncEnabled toggles a mapping in or out of batch reconciliation.
func (m *Mapper) SetSyncEnabled(ctx context.Context, id int64, enabled bool) error {
	return m.store.SetSyncEnabled(ctx, id, enabled)
}

// GetByLocalID returns the mapping for a local product, nil when unmapped.
func (m *Mapper) GetByLocalID(ctx context.Context, localID int64) (*models.Mapping, error) {
	return m.store.GetMappingByLocalID(ctx, localID)
}

// GetBySKU returns the mapping for a supplier SKU, nil when absent.
func (m *Mapper) GetBySKU(ctx context.Context, sku string) (*models.Mapping, error) {
	return m.store.GetMappingBySKU(ctx, sku)
}

// AutoMapResult reports the outcome of one auto-map pass.
type AutoMapResult struct {
	Mapped  int `json:"mapped"`
	Skipped int `json:"skipped"`
}

// AutoMapByIdentifier links every unmapped local product whose identifier
// equals a supplier SKU, one to one. This is an equality heuristic with no
// remote verification; false positives are an accepted tradeoff for cheap
// bulk linking.
func (m *Mapper) AutoMapByIdentifier(ctx context.Context) (AutoMapResult, error) {
	var result AutoMapResult

	candidates, err := m.store.UnmappedWithIdentifier(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list unmapped products: %w", err)
	}

	for _, p := range candidates {
		taken, err := m.store.GetMappingBySKU(ctx, p.SKU)
		if err != nil {
			return result, err
		}
		if taken != nil {
			result.Skipped++
			m.logger.Warn("Auto-map skipped: supplier SKU already mapped",
				zap.String("sku", p.SKU),
				zap.Int64("local_id", p.ID))
			continue
		}

		mapping := &models.Mapping{
			LocalID:     p.ID,
			SupplierSKU: p.SKU,
			SyncEnabled: true,
		}
		if err := m.store.CreateMapping(ctx, mapping); err != nil {
			result.Skipped++
			m.logger.Warn("Auto-map failed for product",
				zap.Int64("local_id", p.ID),
				zap.Error(err))
			continue
		}
		result.Mapped++
	}

	m.logger.Info("Auto-map completed",
		zap.Int("mapped", result.Mapped),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// GetMappedForSync pages sync-enabled mappings in stable id order.
func (m *Mapper) GetMappedForSync(ctx context.Context, limit, offset int) ([]models.MappingRef, error) {
	return m.store.GetMappedForSync(ctx, limit, offset)
}

// SyncableCount counts mappings participating in batch sync.
func (m *Mapper) SyncableCount(ctx context.Context) (int, error) {
	return m.store.SyncableCount(ctx)
}

// TouchLastSynced stamps a mapping's last-synced time.
func (m *Mapper) TouchLastSynced(ctx context.Context, localID int64) error {
	return m.store.TouchLastSynced(ctx, localID)
}

// Stats is the mapping overview surfaced to the admin API.
type Stats struct {
	Syncable    int `json:"syncable"`
	Unmapped    int `json:"unmapped"`
	NeverSynced int `json:"never_synced"`
	SyncedToday int `json:"synced_today"`
}

// GetStats assembles mapping counts for progress reporting.
func (m *Mapper) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	var err error

	if stats.Syncable, err = m.store.SyncableCount(ctx); err != nil {
		return stats, err
	}
	if stats.Unmapped, err = m.store.UnmappedCount(ctx); err != nil {
		return stats, err
	}
	if stats.NeverSynced, err = m.store.NeverSyncedCount(ctx); err != nil {
		return stats, err
	}
	if stats.SyncedToday, err = m.store.SyncedSinceCount(ctx, 24*time.Hour); err != nil {
		return stats, err
	}
	return stats, nil
}
