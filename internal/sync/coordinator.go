package sync

import (
	"context"
	"math"
	"time"

	"supplier-sync/internal/models"
	"supplier-sync/internal/pricing"
	"supplier-sync/internal/stock"
	"supplier-sync/internal/supplier"
	"supplier-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MapperAPI is the slice of the mapper the coordinator pages with.
type MapperAPI interface {
	GetMappedForSync(ctx context.Context, limit, offset int) ([]models.MappingRef, error)
	SyncableCount(ctx context.Context) (int, error)
	TouchLastSynced(ctx context.Context, localID int64) error
}

// Catalog is the narrow product-store boundary the coordinator writes
// through.
type Catalog interface {
	LoadProduct(ctx context.Context, id int64) (*models.Product, error)
	UpdatePrice(ctx context.Context, id int64, price float64) error
	UpdateStock(ctx context.Context, id int64, qty int, status string) error
	SetStatus(ctx context.Context, id int64, status string) error
	Deactivate(ctx context.Context, id int64) error
}

// EventPublisher emits sync lifecycle events. Nil-safe in the coordinator.
type EventPublisher interface {
	PublishSyncBatchCompleted(ctx context.Context, event *models.SyncBatchCompletedEvent) error
	PublishSyncRunCompleted(ctx context.Context, event *models.SyncRunCompletedEvent) error
	PublishProductDeactivated(ctx context.Context, event *models.ProductDeactivatedEvent) error
}

// BatchResult is the outcome of one batch step.
type BatchResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Completed bool   `json:"completed"`
	Processed int    `json:"processed"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	NotFound  int    `json:"not_found"`
	Errors    int    `json:"errors"`
	Offset    int    `json:"offset"`
	Total     int    `json:"total"`
	Progress  int    `json:"progress"`
}

// Coordinator drives paginated reconciliation of mapped products against the
// supplier catalog. One batch step runs to completion per trigger; the
// persisted state makes the cycle resumable across process restarts.
type Coordinator struct {
	mapper    MapperAPI
	catalog   Catalog
	client    SupplierClient
	prices    *pricing.Engine
	stocks    *stock.Engine
	settings  Settings
	lease     Lease
	publisher EventPublisher
	batchSize int
	logger    *zap.Logger

	now      func() time.Time
	memguard func() bool
}

// NewCoordinator wires a batch sync coordinator.
func NewCoordinator(
	mapper MapperAPI,
	catalog Catalog,
	client SupplierClient,
	prices *pricing.Engine,
	stocks *stock.Engine,
	settings Settings,
	lease Lease,
	publisher EventPublisher,
	batchSize int,
	memoryLimitMB int,
) *Coordinator {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Coordinator{
		mapper:    mapper,
		catalog:   catalog,
		client:    client,
		prices:    prices,
		stocks:    stocks,
		settings:  settings,
		lease:     lease,
		publisher: publisher,
		batchSize: batchSize,
		logger:    util.GetLogger(),
		now:       time.Now,
		memguard:  memoryGuard(memoryLimitMB),
	}
}

// ManualSync runs one batch step on explicit request, subject to the same
// stale-lock guard as the scheduled trigger.
func (c *Coordinator) ManualSync(ctx context.Context) (*BatchResult, error) {
	c.logger.Info("Manual sync requested")
	return c.RunBatchStep(ctx)
}

// Status returns the persisted state with a derived progress percentage.
func (c *Coordinator) Status(ctx context.Context) (*State, int, error) {
	st, err := loadState(ctx, c.settings)
	if err != nil {
		return nil, 0, err
	}
	total, err := c.mapper.SyncableCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return st, progress(st.CurrentOffset, total), nil
}

// RunBatchStep executes one bounded unit of reconciliation: read a page of
// mappings, bulk-fetch the matching supplier records, apply the price and
// stock engines record by record, persist outcomes and advance the offset.
func (c *Coordinator) RunBatchStep(ctx context.Context) (*BatchResult, error) {
	started := c.now()
	defer func() {
		util.SyncBatchLatency.Observe(c.now().Sub(started).Seconds())
	}()
	ctx, span := util.StartSpan(ctx, "Coordinator.RunBatchStep")
	defer span.End()

	st, err := loadState(ctx, c.settings)
	if err != nil {
		return nil, err
	}

	if st.Stale(c.now()) {
		c.logger.Warn("Stale sync lock detected, forcing reset",
			zap.Time("last_batch_time", st.LastBatchTime))
		_ = c.lease.ReleaseLease(ctx, leaseName)
		st.Running = false
		if err := saveState(ctx, c.settings, st); err != nil {
			return nil, err
		}
	}

	if !st.Running {
		ok, err := c.lease.AcquireLease(ctx, leaseName, staleAfter)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &BatchResult{Success: false, Message: "sync already in progress"}, nil
		}
		st.Running = true
		st.BatchSize = c.batchSize
		st.LastBatchTime = c.now()
		// Persist before any fallible work. If a later read fails, the state
		// still says running, so the next trigger resumes instead of being
		// refused for the remainder of the lease TTL.
		if err := saveState(ctx, c.settings, st); err != nil {
			_ = c.lease.ReleaseLease(ctx, leaseName)
			return nil, err
		}
	} else {
		// Heartbeat for the in-flight run; a crashed owner's lease expires.
		_ = c.lease.RenewLease(ctx, leaseName, staleAfter)
	}

	util.SyncBatchesTotal.Inc()

	total, err := c.mapper.SyncableCount(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		c.logger.Info("No mapped products to sync")
		return c.complete(ctx, st, total, "no mapped products")
	}

	page, err := c.mapper.GetMappedForSync(ctx, c.batchSize, st.CurrentOffset)
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		return c.complete(ctx, st, total, "sync completed")
	}

	skus := make([]string, len(page))
	for i, ref := range page {
		skus[i] = ref.SupplierSKU
	}

	index, err := fetchIndex(ctx, c.client, skus)
	if err != nil {
		// Systemic failure: keep the run resumable, renew the heartbeat.
		st.LastBatchTime = c.now()
		_ = saveState(ctx, c.settings, st)
		return nil, err
	}

	result := &BatchResult{Success: true}
	for _, ref := range page {
		result.Processed++

		rec, found := index[ref.SupplierSKU]
		if !found {
			c.handleNotFound(ctx, ref, result, st)
		} else {
			c.applyRecord(ctx, ref, rec, result, st)
		}

		if c.memguard() {
			c.logger.Warn("Memory guard tripped, stopping batch early",
				zap.Int("processed", result.Processed),
				zap.Int("page_size", len(page)))
			break
		}
	}

	// Advance by mappings read, not by successful updates.
	st.CurrentOffset += len(page)
	st.LastBatchTime = c.now()
	if err := saveState(ctx, c.settings, st); err != nil {
		return nil, err
	}

	if st.CurrentOffset >= total {
		return c.complete(ctx, st, total, "sync completed")
	}

	result.Offset = st.CurrentOffset
	result.Total = total
	result.Progress = progress(st.CurrentOffset, total)
	result.Message = "batch completed"

	c.logger.Info("Batch step completed",
		zap.Int("offset", result.Offset),
		zap.Int("total", result.Total),
		zap.Int("updated", result.Updated),
		zap.Int("not_found", result.NotFound),
		zap.Int("errors", result.Errors),
		zap.Int("progress", result.Progress))
	c.publishBatch(ctx, result)

	return result, nil
}

// handleNotFound applies the vanished-SKU policy. The mapping is stamped
// either way so the record is not retried every cycle.
func (c *Coordinator) handleNotFound(ctx context.Context, ref models.MappingRef, result *BatchResult, st *State) {
	result.NotFound++
	st.NotFoundCount++

	if c.stocks.Rules().DeactivateIfNotFound {
		if err := c.catalog.Deactivate(ctx, ref.LocalID); err != nil {
			result.Errors++
			st.ErrorsCount++
			util.SyncErrorsTotal.WithLabelValues("deactivate").Inc()
			c.logger.Error("Failed to deactivate vanished product",
				zap.Int64("local_id", ref.LocalID),
				zap.String("sku", ref.SupplierSKU),
				zap.Error(err))
			return
		}
		util.SyncProductsDeactivatedTotal.Inc()
		c.logger.Warn("Product deactivated: SKU missing from supplier catalog",
			zap.Int64("local_id", ref.LocalID),
			zap.String("sku", ref.SupplierSKU))
		if c.publisher != nil {
			_ = c.publisher.PublishProductDeactivated(ctx, &models.ProductDeactivatedEvent{
				BaseEvent:   newBaseEvent(models.EventTypeProductDeactivated),
				LocalID:     ref.LocalID,
				SupplierSKU: ref.SupplierSKU,
			})
		}
	} else {
		c.logger.Warn("SKU missing from supplier catalog",
			zap.Int64("local_id", ref.LocalID),
			zap.String("sku", ref.SupplierSKU))
	}

	if err := c.mapper.TouchLastSynced(ctx, ref.LocalID); err != nil {
		c.logger.Error("Failed to stamp last-synced",
			zap.Int64("local_id", ref.LocalID),
			zap.Error(err))
	}
}

// applyRecord runs the price and stock engines against one mapping. Errors
// are counted and logged but never abort the batch; the last-synced stamp
// lands whether or not anything changed.
func (c *Coordinator) applyRecord(ctx context.Context, ref models.MappingRef, rec *supplier.ProductRecord, result *BatchResult, st *State) {
	product, err := c.catalog.LoadProduct(ctx, ref.LocalID)
	if err != nil {
		result.Errors++
		st.ErrorsCount++
		util.SyncErrorsTotal.WithLabelValues("load").Inc()
		c.logger.Error("Failed to load local product",
			zap.Int64("local_id", ref.LocalID),
			zap.String("sku", ref.SupplierSKU),
			zap.Error(err))
		return
	}

	updated := false
	failed := false

	// Non-positive costs are filtered here, not in the engine.
	if cost := rec.EffectiveCost(); cost > 0 {
		price := c.prices.Calculate(cost)
		if pricing.NeedsUpdate(product.RegularPrice, price) {
			if err := c.catalog.UpdatePrice(ctx, ref.LocalID, price); err != nil {
				failed = true
				util.SyncErrorsTotal.WithLabelValues("price").Inc()
				c.logger.Error("Failed to update price",
					zap.Int64("local_id", ref.LocalID),
					zap.String("sku", ref.SupplierSKU),
					zap.Error(err))
			} else {
				updated = true
			}
		}
	}

	rules := c.stocks.Rules()
	qty := c.stocks.EffectiveQty(rec)
	status := ""
	if rules.AutoOutOfStock {
		status = stock.Status(qty)
	}
	if qty != product.StockQty || (status != "" && status != product.StockStatus) {
		if err := c.catalog.UpdateStock(ctx, ref.LocalID, qty, status); err != nil {
			failed = true
			util.SyncErrorsTotal.WithLabelValues("stock").Inc()
			c.logger.Error("Failed to update stock",
				zap.Int64("local_id", ref.LocalID),
				zap.String("sku", ref.SupplierSKU),
				zap.Error(err))
		} else {
			updated = true
		}
	}

	if rules.RepublishOnRestock && product.Status == models.ProductStatusInactive && qty > 0 {
		if err := c.catalog.SetStatus(ctx, ref.LocalID, models.ProductStatusActive); err != nil {
			failed = true
			c.logger.Error("Failed to republish restocked product",
				zap.Int64("local_id", ref.LocalID),
				zap.Error(err))
		} else {
			updated = true
			c.logger.Info("Republished restocked product",
				zap.Int64("local_id", ref.LocalID),
				zap.String("sku", ref.SupplierSKU))
		}
	}

	switch {
	case failed:
		result.Errors++
		st.ErrorsCount++
	case updated:
		result.Updated++
		st.ProductsUpdated++
		util.SyncProductsUpdatedTotal.Inc()
	default:
		result.Skipped++
		st.ProductsSkipped++
	}

	if err := c.mapper.TouchLastSynced(ctx, ref.LocalID); err != nil {
		c.logger.Error("Failed to stamp last-synced",
			zap.Int64("local_id", ref.LocalID),
			zap.Error(err))
	}
}

// complete transitions the run back to idle, snapshotting counters.
func (c *Coordinator) complete(ctx context.Context, st *State, total int, message string) (*BatchResult, error) {
	result := &BatchResult{
		Success:   true,
		Completed: true,
		Message:   message,
		Updated:   st.ProductsUpdated,
		Skipped:   st.ProductsSkipped,
		NotFound:  st.NotFoundCount,
		Errors:    st.ErrorsCount,
		Offset:    st.CurrentOffset,
		Total:     total,
		Progress:  100,
	}
	if total == 0 {
		result.Progress = 0
	}

	finishedAt := c.now()
	st.resetRun(finishedAt)
	st.LastBatchTime = finishedAt
	if err := saveState(ctx, c.settings, st); err != nil {
		return nil, err
	}
	_ = c.lease.ReleaseLease(ctx, leaseName)

	util.SyncRunsCompletedTotal.Inc()
	c.logger.Info("Sync run completed",
		zap.String("message", message),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("not_found", result.NotFound),
		zap.Int("errors", result.Errors))

	c.publishBatch(ctx, result)
	if c.publisher != nil {
		_ = c.publisher.PublishSyncRunCompleted(ctx, &models.SyncRunCompletedEvent{
			BaseEvent:       newBaseEvent(models.EventTypeSyncRunCompleted),
			ProductsUpdated: result.Updated,
			ErrorsCount:     result.Errors,
			FinishedAt:      finishedAt,
		})
	}

	return result, nil
}

func (c *Coordinator) publishBatch(ctx context.Context, result *BatchResult) {
	if c.publisher == nil {
		return
	}
	err := c.publisher.PublishSyncBatchCompleted(ctx, &models.SyncBatchCompletedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSyncBatchCompleted),
		Offset:    result.Offset,
		Total:     result.Total,
		Updated:   result.Updated,
		Skipped:   result.Skipped,
		NotFound:  result.NotFound,
		Errors:    result.Errors,
		Progress:  result.Progress,
		Completed: result.Completed,
	})
	if err != nil {
		c.logger.Error("Failed to publish batch event", zap.Error(err))
	}
}

func progress(offset, total int) int {
	if total <= 0 {
		return 0
	}
	if offset >= total {
		return 100
	}
	return int(math.Round(float64(offset) / float64(total) * 100))
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
