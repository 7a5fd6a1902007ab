package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supplier-sync/internal/models"
	"supplier-sync/internal/supplier"
	"supplier-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlreadySubmitted is returned when the order already carries a
	// supplier serial number.
	ErrAlreadySubmitted = errors.New("order already submitted")
	// ErrNoMappedItems is returned when no line item resolves to a
	// supplier SKU through the mapper.
	ErrNoMappedItems = errors.New("order has no mapped items")
)

// Australian state codes to the full names the supplier schema expects.
var stateNames = map[string]string{
	"ACT": "Australian Capital Territory",
	"NSW": "New South Wales",
	"NT":  "Northern Territory",
	"QLD": "Queensland",
	"SA":  "South Australia",
	"TAS": "Tasmania",
	"VIC": "Victoria",
	"WA":  "Western Australia",
}

// Store is the host-order boundary: read orders, persist submission
// outcomes and audit notes.
type Store interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetSubmission(ctx context.Context, orderID int64) (*models.OrderSubmission, error)
	SaveSubmission(ctx context.Context, sub *models.OrderSubmission) error
	AddOrderNote(ctx context.Context, orderID int64, note string) error
}

// MapperAPI resolves line items to supplier SKUs.
type MapperAPI interface {
	GetByLocalID(ctx context.Context, localID int64) (*models.Mapping, error)
}

// SupplierAPI places orders with the supplier.
type SupplierAPI interface {
	PlaceOrder(ctx context.Context, order supplier.OrderRequest) (*supplier.OrderResponse, error)
}

// EventPublisher emits submission events. Nil-safe.
type EventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, event *models.OrderSubmittedEvent) error
}

// Submitter translates local orders into the supplier's order-placement
// schema. Delivery is at-least-once; failures persist for manual retry,
// never automatic.
type Submitter struct {
	store     Store
	mapper    MapperAPI
	client    SupplierAPI
	publisher EventPublisher
	logger    *zap.Logger
}

// NewSubmitter wires an order submitter.
func NewSubmitter(store Store, mapper MapperAPI, client SupplierAPI, publisher EventPublisher) *Submitter {
	return &Submitter{
		store:     store,
		mapper:    mapper,
		client:    client,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Submit posts a local order to the supplier and records the returned
// serial number.
func (s *Submitter) Submit(ctx context.Context, orderID int64) (*models.OrderSubmission, error) {
	ctx, span := util.StartSpan(ctx, "Submitter.Submit")
	defer span.End()

	existing, err := s.store.GetSubmission(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.SerialNumber != "" {
		return nil, fmt.Errorf("%w: serial %s", ErrAlreadySubmitted, existing.SerialNumber)
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	payload, mapped := s.buildPayload(ctx, order, items)
	if mapped == 0 {
		util.OrderSubmissionsFailed.WithLabelValues("no_mapped_items").Inc()
		return nil, ErrNoMappedItems
	}

	resp, err := s.client.PlaceOrder(ctx, payload)
	if err != nil {
		util.OrderSubmissionsFailed.WithLabelValues("api_error").Inc()
		s.logger.Error("Order submission failed",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		// Persist the message so the failure surfaces for later retry.
		_ = s.store.SaveSubmission(ctx, &models.OrderSubmission{
			OrderID:   orderID,
			LastError: err.Error(),
		})
		return nil, err
	}

	now := time.Now()
	sub := &models.OrderSubmission{
		OrderID:      orderID,
		SerialNumber: resp.SerialNumber,
		Status:       models.SubmissionStatusNotSubmitted,
		SubmittedAt:  &now,
	}
	if err := s.store.SaveSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}

	note := fmt.Sprintf("Order submitted to supplier. Serial number: %s (%d of %d items mapped)",
		resp.SerialNumber, mapped, len(items))
	if err := s.store.AddOrderNote(ctx, orderID, note); err != nil {
		s.logger.Warn("Failed to record order note",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}

	util.OrdersSubmittedTotal.Inc()
	s.logger.Info("Order submitted to supplier",
		zap.Int64("order_id", orderID),
		zap.String("serial_number", resp.SerialNumber))
	if s.publisher != nil {
		_ = s.publisher.PublishOrderSubmitted(ctx, &models.OrderSubmittedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderSubmitted,
				Timestamp: time.Now(),
			},
			OrderID:      orderID,
			SerialNumber: resp.SerialNumber,
		})
	}

	return sub, nil
}

// buildPayload assembles the supplier schema from the shipping-preferred
// address and the mapped line items. Unmapped lines are skipped with a
// warning; the count of mapped lines is returned.
func (s *Submitter) buildPayload(ctx context.Context, order *models.Order, items []models.OrderItem) (supplier.OrderRequest, int) {
	addr1, addr2, city, state, postcode := order.ShipAddress1, order.ShipAddress2, order.ShipCity, order.ShipState, order.ShipPostcode
	if addr1 == "" {
		addr1, addr2, city, state, postcode = order.BillAddress1, order.BillAddress2, order.BillCity, order.BillState, order.BillPostcode
	}

	payload := supplier.OrderRequest{
		Name:     order.CustomerName,
		Email:    order.Email,
		Phone:    order.Phone,
		Address1: addr1,
		Address2: addr2,
		City:     city,
		State:    stateName(state),
		Postcode: postcode,
	}

	mapped := 0
	for _, item := range items {
		mapping, err := s.mapper.GetByLocalID(ctx, item.ProductID)
		if err != nil {
			s.logger.Error("Mapping lookup failed for order line",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
			continue
		}
		if mapping == nil {
			s.logger.Warn("Order line has no supplier mapping, skipping",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", item.ProductID))
			continue
		}
		payload.Items = append(payload.Items, supplier.OrderLine{
			SKU: mapping.SupplierSKU,
			Qty: item.Quantity,
		})
		mapped++
	}
	return payload, mapped
}

func stateName(code string) string {
	if name, ok := stateNames[code]; ok {
		return name
	}
	return code
}
