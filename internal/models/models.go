package models

import "time"

// Product is a local catalog entry. The sync engine only ever touches it
// through the catalog store interface.
type Product struct {
	ID               int64      `db:"id" json:"id"`
	SKU              string     `db:"sku" json:"sku"`
	Name             string     `db:"name" json:"name"`
	Description      string     `db:"description" json:"description"`
	ShortDescription string     `db:"short_description" json:"short_description"`
	Status           string     `db:"status" json:"status"`
	StockQty         int        `db:"stock_qty" json:"stock_qty"`
	StockStatus      string     `db:"stock_status" json:"stock_status"`
	RegularPrice     float64    `db:"regular_price" json:"regular_price"`
	SalePrice        float64    `db:"sale_price" json:"sale_price"`
	Weight           float64    `db:"weight" json:"weight"`
	Length           float64    `db:"length" json:"length"`
	Width            float64    `db:"width" json:"width"`
	Height           float64    `db:"height" json:"height"`
	LastResyncedAt   *time.Time `db:"last_resynced_at" json:"last_resynced_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Product statuses
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// Stock statuses
const (
	StockStatusInStock    = "instock"
	StockStatusOutOfStock = "outofstock"
)

// Mapping joins one local catalog entry to one supplier SKU. Owned
// exclusively by the mapper; local_id and supplier_sku are both unique.
type Mapping struct {
	ID           int64      `db:"id" json:"id"`
	LocalID      int64      `db:"local_id" json:"local_id"`
	SupplierSKU  string     `db:"supplier_sku" json:"supplier_sku"`
	SupplierName string     `db:"supplier_name" json:"supplier_name"`
	LastSynced   *time.Time `db:"last_synced" json:"last_synced,omitempty"`
	SyncEnabled  bool       `db:"sync_enabled" json:"sync_enabled"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// MappingRef is the slim projection the batch coordinator pages over.
type MappingRef struct {
	LocalID     int64  `db:"local_id" json:"local_id"`
	SupplierSKU string `db:"supplier_sku" json:"supplier_sku"`
}

// Category is a node in the local taxonomy tree.
type Category struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	ParentID int64  `db:"parent_id" json:"parent_id"`
}

// Media is an image attached to a local product.
type Media struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	URL       string    `db:"url" json:"url"`
	IsPrimary bool      `db:"is_primary" json:"is_primary"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order is the host-side order shape consumed by order submission.
type Order struct {
	ID            int64     `db:"id" json:"id"`
	CustomerName  string    `db:"customer_name" json:"customer_name"`
	Email         string    `db:"email" json:"email"`
	Phone         string    `db:"phone" json:"phone"`
	ShipAddress1  string    `db:"ship_address1" json:"ship_address1"`
	ShipAddress2  string    `db:"ship_address2" json:"ship_address2"`
	ShipCity      string    `db:"ship_city" json:"ship_city"`
	ShipState     string    `db:"ship_state" json:"ship_state"`
	ShipPostcode  string    `db:"ship_postcode" json:"ship_postcode"`
	BillAddress1  string    `db:"bill_address1" json:"bill_address1"`
	BillAddress2  string    `db:"bill_address2" json:"bill_address2"`
	BillCity      string    `db:"bill_city" json:"bill_city"`
	BillState     string    `db:"bill_state" json:"bill_state"`
	BillPostcode  string    `db:"bill_postcode" json:"bill_postcode"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// OrderItem is one line of a host order.
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// OrderSubmission tracks the forward path to the supplier order API,
// keyed by local order id.
type OrderSubmission struct {
	OrderID      int64      `db:"order_id" json:"order_id"`
	SerialNumber string     `db:"serial_number" json:"serial_number"`
	Status       string     `db:"status" json:"status"`
	LastError    string     `db:"last_error" json:"last_error,omitempty"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Supplier-side submission status right after placement ("awaiting payment").
const SubmissionStatusNotSubmitted = "not_submitted"

// AuthToken is the persisted supplier bearer token.
type AuthToken struct {
	Value  string    `json:"value"`
	Expiry time.Time `json:"expiry"`
}

// ImportRun is one entry of the auto importer's append-only run history.
type ImportRun struct {
	StartedAt time.Time `json:"started_at"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Errors    int       `json:"errors"`
	Status    string    `json:"status"`
}

// Import run statuses
const (
	ImportRunCompleted = "completed"
	ImportRunFailed    = "failed"
)
