package store

import (
	"context"
	"database/sql"
	"fmt"

	"supplier-sync/internal/models"
)

// GetOrderByID retrieves a host order by ID. Orders are owned by the host
// system; this service only reads them for submission.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all line items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// GetSubmission retrieves the supplier submission record for an order,
// nil when the order has never been submitted.
func (s *Store) GetSubmission(ctx context.Context, orderID int64) (*models.OrderSubmission, error) {
	var sub models.OrderSubmission
	err := s.db.GetContext(ctx, &sub,
		"SELECT * FROM order_submissions WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SaveSubmission upserts the submission outcome keyed by local order id.
func (s *Store) SaveSubmission(ctx context.Context, sub *models.OrderSubmission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_submissions (order_id, serial_number, status, last_error, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (order_id) DO UPDATE SET
			serial_number = EXCLUDED.serial_number,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = NOW()`,
		sub.OrderID, sub.SerialNumber, sub.Status, sub.LastError, sub.SubmittedAt)
	return err
}

// AddOrderNote appends a human-readable audit note to an order.
func (s *Store) AddOrderNote(ctx context.Context, orderID int64, note string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO order_notes (order_id, note) VALUES ($1, $2)", orderID, note)
	return err
}
