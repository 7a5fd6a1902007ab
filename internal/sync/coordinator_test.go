package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"supplier-sync/internal/models"
	"supplier-sync/internal/pricing"
	"supplier-sync/internal/stock"
	"supplier-sync/internal/supplier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSettings struct {
	data map[string][]byte
}

func newMemSettings() *memSettings {
	return &memSettings{data: map[string][]byte{}}
}

func (m *memSettings) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memSettings) SetJSON(_ context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

type memLease struct {
	held map[string]bool
}

func newMemLease() *memLease { return &memLease{held: map[string]bool{}} }

func (l *memLease) AcquireLease(_ context.Context, name string, _ time.Duration) (bool, error) {
	if l.held[name] {
		return false, nil
	}
	l.held[name] = true
	return true, nil
}

func (l *memLease) RenewLease(_ context.Context, name string, _ time.Duration) error { return nil }

func (l *memLease) ReleaseLease(_ context.Context, name string) error {
	delete(l.held, name)
	return nil
}

type fakeMapper struct {
	refs       []models.MappingRef
	lastSynced map[int64]int
	countErrs  int
}

func newFakeMapper(n int) *fakeMapper {
	m := &fakeMapper{lastSynced: map[int64]int{}}
	for i := 1; i <= n; i++ {
		m.refs = append(m.refs, models.MappingRef{
			LocalID:     int64(i),
			SupplierSKU: fmt.Sprintf("SKU-%d", i),
		})
	}
	return m
}

func (m *fakeMapper) GetMappedForSync(_ context.Context, limit, offset int) ([]models.MappingRef, error) {
	if offset >= len(m.refs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.refs) {
		end = len(m.refs)
	}
	return m.refs[offset:end], nil
}

func (m *fakeMapper) SyncableCount(_ context.Context) (int, error) {
	if m.countErrs > 0 {
		m.countErrs--
		return 0, fmt.Errorf("connection reset")
	}
	return len(m.refs), nil
}

func (m *fakeMapper) TouchLastSynced(_ context.Context, localID int64) error {
	m.lastSynced[localID]++
	return nil
}

type fakeCatalog struct {
	products    map[int64]*models.Product
	priceWrites map[int64]float64
	stockWrites map[int64]int
	deactivated map[int64]bool
	statusSets  map[int64]string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products:    map[int64]*models.Product{},
		priceWrites: map[int64]float64{},
		stockWrites: map[int64]int{},
		deactivated: map[int64]bool{},
		statusSets:  map[int64]string{},
	}
}

func (c *fakeCatalog) add(id int64, price float64, qty int) {
	c.products[id] = &models.Product{
		ID:           id,
		Status:       models.ProductStatusActive,
		RegularPrice: price,
		StockQty:     qty,
		StockStatus:  models.StockStatusInStock,
	}
}

func (c *fakeCatalog) LoadProduct(_ context.Context, id int64) (*models.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d not found", id)
	}
	copied := *p
	return &copied, nil
}

func (c *fakeCatalog) UpdatePrice(_ context.Context, id int64, price float64) error {
	c.priceWrites[id] = price
	c.products[id].RegularPrice = price
	return nil
}

func (c *fakeCatalog) UpdateStock(_ context.Context, id int64, qty int, status string) error {
	c.stockWrites[id] = qty
	c.products[id].StockQty = qty
	if status != "" {
		c.products[id].StockStatus = status
	}
	return nil
}

func (c *fakeCatalog) SetStatus(_ context.Context, id int64, status string) error {
	c.statusSets[id] = status
	c.products[id].Status = status
	return nil
}

func (c *fakeCatalog) Deactivate(_ context.Context, id int64) error {
	c.deactivated[id] = true
	c.products[id].Status = models.ProductStatusInactive
	c.products[id].StockQty = 0
	c.products[id].StockStatus = models.StockStatusOutOfStock
	return nil
}

type fakeSupplier struct {
	records map[string]supplier.ProductRecord
	err     error
}

func (f *fakeSupplier) GetProductsBySKUs(_ context.Context, skus []string) (*supplier.ProductsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	var resp supplier.ProductsResponse
	for _, sku := range skus {
		if rec, ok := f.records[sku]; ok {
			resp.Result = append(resp.Result, rec)
		}
	}
	resp.Total = len(resp.Result)
	return &resp, nil
}

type eventRecorder struct {
	batches     []*models.SyncBatchCompletedEvent
	runs        []*models.SyncRunCompletedEvent
	deactivated []*models.ProductDeactivatedEvent
}

func (r *eventRecorder) PublishSyncBatchCompleted(_ context.Context, e *models.SyncBatchCompletedEvent) error {
	r.batches = append(r.batches, e)
	return nil
}

func (r *eventRecorder) PublishSyncRunCompleted(_ context.Context, e *models.SyncRunCompletedEvent) error {
	r.runs = append(r.runs, e)
	return nil
}

func (r *eventRecorder) PublishProductDeactivated(_ context.Context, e *models.ProductDeactivatedEvent) error {
	r.deactivated = append(r.deactivated, e)
	return nil
}

type fixture struct {
	coordinator *Coordinator
	mapper      *fakeMapper
	catalog     *fakeCatalog
	client      *fakeSupplier
	settings    *memSettings
	lease       *memLease
	events      *eventRecorder
}

func newFixture(mapped int, batchSize int, stockRules stock.Rules) *fixture {
	f := &fixture{
		mapper:   newFakeMapper(mapped),
		catalog:  newFakeCatalog(),
		client:   &fakeSupplier{records: map[string]supplier.ProductRecord{}},
		settings: newMemSettings(),
		lease:    newMemLease(),
		events:   &eventRecorder{},
	}

	for i := 1; i <= mapped; i++ {
		id := int64(i)
		sku := fmt.Sprintf("SKU-%d", i)
		f.catalog.add(id, 50, 10)
		f.client.records[sku] = supplier.ProductRecord{SKU: sku, Cost: 40, StockQty: 10, InStock: true}
	}

	f.coordinator = NewCoordinator(
		f.mapper, f.catalog, f.client,
		pricing.NewEngine(pricing.DefaultRules()),
		stock.NewEngine(stockRules),
		f.settings, f.lease, f.events,
		batchSize, 0,
	)
	return f
}

func TestRunBatchStepWalksOffsets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(250, 100, stock.DefaultRules())

	r1, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.False(t, r1.Completed)
	assert.Equal(t, 100, r1.Offset)
	assert.Equal(t, 40, r1.Progress)

	r2, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.False(t, r2.Completed)
	assert.Equal(t, 200, r2.Offset)
	assert.Equal(t, 80, r2.Progress)

	r3, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.True(t, r3.Completed)
	assert.Equal(t, 100, r3.Progress)
	// the completion result snapshots the whole run's counters
	assert.Equal(t, 250, r3.Updated+r3.Skipped+r3.NotFound+r3.Errors)

	// completion returns the state to idle and resets the offset
	st, err := loadState(ctx, f.settings)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, 0, st.CurrentOffset)
	assert.False(t, f.lease.held[leaseName])

	require.Len(t, f.events.runs, 1)
}

func TestRunBatchStepUpdatesChangedProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(2, 100, stock.DefaultRules())

	// SKU-1 changes stock; SKU-2 matches the computed values exactly
	f.client.records["SKU-1"] = supplier.ProductRecord{SKU: "SKU-1", Cost: 50, StockQty: 3, InStock: true}
	f.client.records["SKU-2"] = supplier.ProductRecord{SKU: "SKU-2", Cost: 50, StockQty: 10, InStock: true}

	result, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)

	assert.Equal(t, 3, f.catalog.stockWrites[1])
	assert.NotContains(t, f.catalog.stockWrites, int64(2))

	// both stamped regardless of outcome
	assert.Equal(t, 1, f.mapper.lastSynced[1])
	assert.Equal(t, 1, f.mapper.lastSynced[2])
}

func TestRunBatchStepPriceEpsilon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1, 100, stock.DefaultRules())

	// default rules pass cost through; 50 vs stored 50.005 is inside epsilon
	f.catalog.products[1].RegularPrice = 50.005
	f.client.records["SKU-1"] = supplier.ProductRecord{SKU: "SKU-1", Cost: 50, StockQty: 10, InStock: true}

	result, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)
	assert.NotContains(t, f.catalog.priceWrites, int64(1))
}

func TestRunBatchStepNotFoundDeactivates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(3, 100, stock.DefaultRules())
	delete(f.client.records, "SKU-2")

	result, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotFound)

	assert.True(t, f.catalog.deactivated[2])
	assert.Equal(t, models.ProductStatusInactive, f.catalog.products[2].Status)
	// stamped so it is not retried every cycle
	assert.Equal(t, 1, f.mapper.lastSynced[2])

	require.Len(t, f.events.deactivated, 1)
	assert.Equal(t, int64(2), f.events.deactivated[0].LocalID)
}

func TestRunBatchStepNotFoundKeepsActiveWhenDisabled(t *testing.T) {
	ctx := context.Background()
	rules := stock.DefaultRules()
	rules.DeactivateIfNotFound = false
	f := newFixture(1, 100, rules)
	delete(f.client.records, "SKU-1")

	result, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotFound)
	assert.False(t, f.catalog.deactivated[1])
	assert.Equal(t, 1, f.mapper.lastSynced[1])
}

func TestRunBatchStepRepublishOnRestock(t *testing.T) {
	ctx := context.Background()
	rules := stock.DefaultRules()
	rules.RepublishOnRestock = true
	f := newFixture(1, 100, rules)

	f.catalog.products[1].Status = models.ProductStatusInactive
	f.catalog.products[1].StockQty = 0
	f.client.records["SKU-1"] = supplier.ProductRecord{SKU: "SKU-1", Cost: 50, StockQty: 6, InStock: true}

	_, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusActive, f.catalog.statusSets[1])
}

func TestRunBatchStepRefusedWhileLeaseHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10, 100, stock.DefaultRules())

	_, err := f.lease.AcquireLease(ctx, leaseName, staleAfter)
	require.NoError(t, err)

	result, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "sync already in progress", result.Message)
}

func TestRunBatchStepRecoversFromTransientCountFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10, 100, stock.DefaultRules())
	f.mapper.countErrs = 1

	_, err := f.coordinator.RunBatchStep(ctx)
	require.Error(t, err)

	// the failed step persisted Running before reading, so the next trigger
	// resumes the run instead of being refused for the lease TTL
	st, err := loadState(ctx, f.settings)
	require.NoError(t, err)
	assert.True(t, st.Running)

	result, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Completed)
}

func TestRunBatchStepStaleRunReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10, 100, stock.DefaultRules())

	now := time.Now()
	require.NoError(t, saveState(ctx, f.settings, &State{
		Running:       true,
		CurrentOffset: 5,
		LastBatchTime: now.Add(-time.Hour),
	}))
	f.lease.held[leaseName] = true

	result, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Completed)
}

func TestRunBatchStepZeroMappings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(0, 100, stock.DefaultRules())

	result, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, 0, result.Progress)
	assert.Equal(t, "no mapped products", result.Message)
}

func TestRunBatchStepFetchFailureKeepsOffset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(250, 100, stock.DefaultRules())

	r1, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, r1.Offset)

	f.client.err = fmt.Errorf("supplier down")
	_, err = f.coordinator.RunBatchStep(ctx)
	require.Error(t, err)

	// the offset survives so the run resumes where it failed
	st, err := loadState(ctx, f.settings)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 100, st.CurrentOffset)

	f.client.err = nil
	r2, err := f.coordinator.RunBatchStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, r2.Offset)
}

func TestProgressRounding(t *testing.T) {
	assert.Equal(t, 0, progress(0, 0))
	assert.Equal(t, 0, progress(0, 250))
	assert.Equal(t, 40, progress(100, 250))
	assert.Equal(t, 80, progress(200, 250))
	assert.Equal(t, 100, progress(250, 250))
	assert.Equal(t, 100, progress(300, 250))
	assert.Equal(t, 33, progress(1, 3))
	assert.Equal(t, 67, progress(2, 3))
}

func TestStateStale(t *testing.T) {
	now := time.Now()

	st := &State{Running: true, LastBatchTime: now.Add(-29 * time.Minute)}
	assert.False(t, st.Stale(now))

	st.LastBatchTime = now.Add(-31 * time.Minute)
	assert.True(t, st.Stale(now))

	st.Running = false
	assert.False(t, st.Stale(now))
}

func TestStateResetRunSnapshots(t *testing.T) {
	st := &State{
		Running:         true,
		CurrentOffset:   200,
		ProductsUpdated: 12,
		ProductsSkipped: 80,
		NotFoundCount:   3,
		ErrorsCount:     1,
	}

	finished := time.Now()
	st.resetRun(finished)

	assert.False(t, st.Running)
	assert.Equal(t, 0, st.CurrentOffset)
	assert.Equal(t, 12, st.LastRunUpdated)
	assert.Equal(t, 80, st.LastRunSkipped)
	assert.Equal(t, 3, st.LastRunNotFound)
	assert.Equal(t, 1, st.LastRunErrors)
	assert.Equal(t, finished, st.LastSync)
	assert.Equal(t, 0, st.ProductsUpdated)
}
