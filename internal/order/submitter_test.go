package order

import (
	"context"
	"fmt"
	"testing"

	"supplier-sync/internal/models"
	"supplier-sync/internal/supplier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	orders      map[int64]*models.Order
	items       map[int64][]models.OrderItem
	submissions map[int64]*models.OrderSubmission
	notes       map[int64][]string
}

func newMemStore() *memStore {
	return &memStore{
		orders:      map[int64]*models.Order{},
		items:       map[int64][]models.OrderItem{},
		submissions: map[int64]*models.OrderSubmission{},
		notes:       map[int64][]string{},
	}
}

func (s *memStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d not found", id)
	}
	return o, nil
}

func (s *memStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return s.items[orderID], nil
}

func (s *memStore) GetSubmission(_ context.Context, orderID int64) (*models.OrderSubmission, error) {
	return s.submissions[orderID], nil
}

func (s *memStore) SaveSubmission(_ context.Context, sub *models.OrderSubmission) error {
	s.submissions[sub.OrderID] = sub
	return nil
}

func (s *memStore) AddOrderNote(_ context.Context, orderID int64, note string) error {
	s.notes[orderID] = append(s.notes[orderID], note)
	return nil
}

type stubMapper struct {
	skus map[int64]string
}

func (m *stubMapper) GetByLocalID(_ context.Context, localID int64) (*models.Mapping, error) {
	sku, ok := m.skus[localID]
	if !ok {
		return nil, nil
	}
	return &models.Mapping{LocalID: localID, SupplierSKU: sku}, nil
}

type stubPlacer struct {
	got    *supplier.OrderRequest
	serial string
	err    error
}

func (p *stubPlacer) PlaceOrder(_ context.Context, req supplier.OrderRequest) (*supplier.OrderResponse, error) {
	p.got = &req
	if p.err != nil {
		return nil, p.err
	}
	return &supplier.OrderResponse{SerialNumber: p.serial}, nil
}

func testOrder() *models.Order {
	return &models.Order{
		ID:           10,
		CustomerName: "Jo Smith",
		Email:        "jo@example.com",
		Phone:        "0400000000",
		ShipAddress1: "1 Test St",
		ShipCity:     "Sydney",
		ShipState:    "NSW",
		ShipPostcode: "2000",
		BillAddress1: "9 Billing Rd",
		BillCity:     "Melbourne",
		BillState:    "VIC",
		BillPostcode: "3000",
	}
}

func TestSubmitSuccess(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.orders[10] = testOrder()
	store.items[10] = []models.OrderItem{
		{OrderID: 10, ProductID: 1, Quantity: 2},
		{OrderID: 10, ProductID: 2, Quantity: 1},
	}
	mapper := &stubMapper{skus: map[int64]string{1: "SKU-A", 2: "SKU-B"}}
	placer := &stubPlacer{serial: "SN-555"}

	s := NewSubmitter(store, mapper, placer, nil)
	sub, err := s.Submit(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, "SN-555", sub.SerialNumber)
	assert.Equal(t, models.SubmissionStatusNotSubmitted, sub.Status)
	require.NotNil(t, sub.SubmittedAt)

	require.NotNil(t, placer.got)
	assert.Equal(t, "1 Test St", placer.got.Address1)
	assert.Equal(t, "New South Wales", placer.got.State)
	require.Len(t, placer.got.Items, 2)
	assert.Equal(t, supplier.OrderLine{SKU: "SKU-A", Qty: 2}, placer.got.Items[0])

	require.Len(t, store.notes[10], 1)
	assert.Contains(t, store.notes[10][0], "SN-555")
	assert.Contains(t, store.notes[10][0], "2 of 2 items mapped")
}

func TestSubmitAlreadySubmitted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.submissions[10] = &models.OrderSubmission{OrderID: 10, SerialNumber: "SN-1"}

	s := NewSubmitter(store, &stubMapper{}, &stubPlacer{}, nil)
	_, err := s.Submit(ctx, 10)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmitRetryAllowedAfterFailure(t *testing.T) {
	// a failed submission has no serial number, so a retry proceeds
	ctx := context.Background()
	store := newMemStore()
	store.orders[10] = testOrder()
	store.items[10] = []models.OrderItem{{OrderID: 10, ProductID: 1, Quantity: 1}}
	store.submissions[10] = &models.OrderSubmission{OrderID: 10, LastError: "supplier down"}
	mapper := &stubMapper{skus: map[int64]string{1: "SKU-A"}}

	s := NewSubmitter(store, mapper, &stubPlacer{serial: "SN-2"}, nil)
	sub, err := s.Submit(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "SN-2", sub.SerialNumber)
}

func TestSubmitNoMappedItems(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.orders[10] = testOrder()
	store.items[10] = []models.OrderItem{{OrderID: 10, ProductID: 1, Quantity: 1}}
	placer := &stubPlacer{serial: "SN-1"}

	s := NewSubmitter(store, &stubMapper{}, placer, nil)
	_, err := s.Submit(ctx, 10)
	assert.ErrorIs(t, err, ErrNoMappedItems)
	assert.Nil(t, placer.got)
}

func TestSubmitSkipsUnmappedLines(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.orders[10] = testOrder()
	store.items[10] = []models.OrderItem{
		{OrderID: 10, ProductID: 1, Quantity: 1},
		{OrderID: 10, ProductID: 99, Quantity: 4},
	}
	mapper := &stubMapper{skus: map[int64]string{1: "SKU-A"}}
	placer := &stubPlacer{serial: "SN-1"}

	s := NewSubmitter(store, mapper, placer, nil)
	_, err := s.Submit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, placer.got.Items, 1)
	assert.Contains(t, store.notes[10][0], "1 of 2 items mapped")
}

func TestSubmitFailurePersistsError(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.orders[10] = testOrder()
	store.items[10] = []models.OrderItem{{OrderID: 10, ProductID: 1, Quantity: 1}}
	mapper := &stubMapper{skus: map[int64]string{1: "SKU-A"}}
	placer := &stubPlacer{err: fmt.Errorf("supplier down")}

	s := NewSubmitter(store, mapper, placer, nil)
	_, err := s.Submit(ctx, 10)
	require.Error(t, err)

	sub := store.submissions[10]
	require.NotNil(t, sub)
	assert.Equal(t, "supplier down", sub.LastError)
	assert.Empty(t, sub.SerialNumber)
}

func TestBuildPayloadBillingFallback(t *testing.T) {
	ctx := context.Background()
	order := testOrder()
	order.ShipAddress1 = ""
	s := NewSubmitter(newMemStore(), &stubMapper{}, &stubPlacer{}, nil)

	payload, mapped := s.buildPayload(ctx, order, nil)
	assert.Equal(t, 0, mapped)
	assert.Equal(t, "9 Billing Rd", payload.Address1)
	assert.Equal(t, "Melbourne", payload.City)
	assert.Equal(t, "Victoria", payload.State)
	assert.Equal(t, "3000", payload.Postcode)
}

func TestStateName(t *testing.T) {
	assert.Equal(t, "Queensland", stateName("QLD"))
	assert.Equal(t, "Tasmania", stateName("TAS"))
	// unknown codes pass through
	assert.Equal(t, "Wellington", stateName("Wellington"))
	assert.Equal(t, "", stateName(""))
}
