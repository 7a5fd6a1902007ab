package supplier

import "encoding/json"

// ProductRecord is an immutable snapshot of one supplier catalog entry.
// Field names vary across supplier endpoints (title vs name, desc vs
// description, Category vs l1..l3 names), so the raw body is kept for
// precedence lookups alongside the typed fields.
type ProductRecord struct {
	SKU          string   `json:"sku"`
	Price        float64  `json:"price"`
	Cost         float64  `json:"cost"`
	SpecialPrice float64  `json:"special_price"`
	StockQty     int      `json:"stock_qty"`
	InStock      bool     `json:"in_stock"`
	Status       string   `json:"status"`
	NewArrival   bool     `json:"new_arrival"`
	FreeShipping bool     `json:"free_shipping"`
	Title        string   `json:"title"`
	Name         string   `json:"name"`
	Desc         string   `json:"desc"`
	Description  string   `json:"description"`
	Gallery      []string `json:"gallery"`
	Images       []string `json:"images"`
	Category     string   `json:"Category"`
	L1Category   string   `json:"l1_category_name"`
	L2Category   string   `json:"l2_category_name"`
	L3Category   string   `json:"l3_category_name"`
	Weight       float64  `json:"weight"`
	Length       float64  `json:"length"`
	Width        float64  `json:"width"`
	Height       float64  `json:"height"`

	raw map[string]json.RawMessage
}

func (r *ProductRecord) UnmarshalJSON(data []byte) error {
	type alias ProductRecord
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = ProductRecord(a)
	// Keep the raw view for ordered field-precedence lookups.
	_ = json.Unmarshal(data, &r.raw)
	return nil
}

// EffectiveCost prefers a non-zero special price over the regular cost,
// falling back to the list price when no cost is present.
func (r *ProductRecord) EffectiveCost() float64 {
	if r.SpecialPrice > 0 {
		return r.SpecialPrice
	}
	if r.Cost > 0 {
		return r.Cost
	}
	return r.Price
}

// ImageURLs merges the gallery and images fields, gallery first.
func (r *ProductRecord) ImageURLs() []string {
	urls := make([]string, 0, len(r.Gallery)+len(r.Images))
	seen := make(map[string]bool)
	for _, u := range append(append([]string{}, r.Gallery...), r.Images...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// CategoryPath returns the delimited category path, preferring the flat
// Category field and falling back to the l1..l3 level names.
func (r *ProductRecord) CategoryPath() string {
	if r.Category != "" {
		return r.Category
	}
	path := ""
	for _, level := range []string{r.L1Category, r.L2Category, r.L3Category} {
		if level == "" {
			break
		}
		if path != "" {
			path += " > "
		}
		path += level
	}
	return path
}

// ProductsResponse is the shared shape of the listing, search and SKU batch
// endpoints.
type ProductsResponse struct {
	Result []ProductRecord `json:"result"`
	Total  int             `json:"total"`
}

// AuthResponse is the shape of POST /auth.
type AuthResponse struct {
	Token string `json:"token"`
	Exp   int64  `json:"exp"`
}

// StockRequest is the body of POST /stock.
type StockRequest struct {
	SKUs      []string `json:"skus,omitempty"`
	StartTime string   `json:"start_time,omitempty"`
	EndTime   string   `json:"end_time,omitempty"`
	PageNo    int      `json:"page_no"`
	Limit     int      `json:"limit"`
}

// OrderRequest is the supplier order-placement schema.
type OrderRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Phone    string      `json:"phone"`
	Address1 string      `json:"address1"`
	Address2 string      `json:"address2,omitempty"`
	City     string      `json:"city"`
	State    string      `json:"state"`
	Postcode string      `json:"postcode"`
	Items    []OrderLine `json:"items"`
}

// OrderLine is one {sku, qty} pair of an order payload.
type OrderLine struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// OrderResponse is the shape of POST /order.
type OrderResponse struct {
	SerialNumber string `json:"serial_number"`
}
