package models

import "time"

// Event types
const (
	EventTypeSyncBatchCompleted = "SYNC_BATCH_COMPLETED"
	EventTypeSyncRunCompleted   = "SYNC_RUN_COMPLETED"
	EventTypeSyncTrigger        = "SYNC_TRIGGER"
	EventTypeImportTrigger      = "IMPORT_TRIGGER"
	EventTypeProductImported    = "PRODUCT_IMPORTED"
	EventTypeProductDeactivated = "PRODUCT_DEACTIVATED"
	EventTypeOrderSubmitted     = "ORDER_SUBMITTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncBatchCompletedEvent published after each batch step advances
type SyncBatchCompletedEvent struct {
	BaseEvent
	Offset    int  `json:"offset"`
	Total     int  `json:"total"`
	Updated   int  `json:"updated"`
	Skipped   int  `json:"skipped"`
	NotFound  int  `json:"not_found"`
	Errors    int  `json:"errors"`
	Progress  int  `json:"progress"`
	Completed bool `json:"completed"`
}

// SyncRunCompletedEvent published when a full reconciliation cycle finishes
type SyncRunCompletedEvent struct {
	BaseEvent
	ProductsUpdated int       `json:"products_updated"`
	ErrorsCount     int       `json:"errors_count"`
	FinishedAt      time.Time `json:"finished_at"`
}

// SyncTriggerEvent requests the worker to run one batch step
type SyncTriggerEvent struct {
	BaseEvent
	Manual bool `json:"manual"`
}

// ImportTriggerEvent requests the worker to run an auto-import cycle
type ImportTriggerEvent struct {
	BaseEvent
}

// ProductImportedEvent published when the importer creates a local entry
type ProductImportedEvent struct {
	BaseEvent
	LocalID     int64  `json:"local_id"`
	SupplierSKU string `json:"supplier_sku"`
}

// ProductDeactivatedEvent published when a vanished SKU deactivates a product
type ProductDeactivatedEvent struct {
	BaseEvent
	LocalID     int64  `json:"local_id"`
	SupplierSKU string `json:"supplier_sku"`
}

// OrderSubmittedEvent published after a successful supplier order placement
type OrderSubmittedEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	SerialNumber string `json:"serial_number"`
}
