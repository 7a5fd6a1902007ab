package stock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"supplier-sync/internal/models"
	"supplier-sync/internal/supplier"
)

// Rules is the global stock rule set.
type Rules struct {
	BufferEnabled        bool `json:"buffer_enabled"`
	BufferAmount         int  `json:"buffer_amount"`
	ZeroOnUnavailable    bool `json:"zero_on_unavailable"`
	AutoOutOfStock       bool `json:"auto_out_of_stock"`
	DeactivateIfNotFound bool `json:"deactivate_if_not_found"`
	RepublishOnRestock   bool `json:"republish_on_restock"`
}

// DefaultRules keeps supplier quantities untouched and enables the
// protective not-found and status behaviors.
func DefaultRules() Rules {
	return Rules{
		ZeroOnUnavailable:    true,
		AutoOutOfStock:       true,
		DeactivateIfNotFound: true,
	}
}

const rulesSettingsKey = "stock_rules"

// ErrInvalidRules is returned when a rule set fails validation.
var ErrInvalidRules = errors.New("invalid stock rules")

// Validate rejects rule sets the buffer arithmetic cannot honor.
func (r Rules) Validate() error {
	if r.BufferAmount < 0 {
		return fmt.Errorf("%w: buffer_amount must not be negative", ErrInvalidRules)
	}
	return nil
}

// Settings is the slice of the key-value store the engine loads rules from.
type Settings interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

// Engine turns supplier-reported stock into the local quantity. Pure given a
// rule set, same lifecycle pattern as the price engine.
type Engine struct {
	settings Settings

	mu    sync.RWMutex
	rules Rules
}

// NewEngine creates an engine with the given rules.
func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// NewEngineFromSettings loads the persisted rule set, falling back to
// defaults when none is stored.
func NewEngineFromSettings(ctx context.Context, settings Settings) (*Engine, error) {
	e := &Engine{settings: settings, rules: DefaultRules()}
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload re-reads the rule set from settings.
func (e *Engine) Reload(ctx context.Context) error {
	if e.settings == nil {
		return nil
	}
	var rules Rules
	ok, err := e.settings.GetJSON(ctx, rulesSettingsKey, &rules)
	if err != nil {
		return fmt.Errorf("failed to load stock rules: %w", err)
	}
	if !ok {
		return nil
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

// SaveRules validates, persists and applies a new rule set.
func (e *Engine) SaveRules(ctx context.Context, rules Rules) error {
	if err := rules.Validate(); err != nil {
		return err
	}
	if e.settings != nil {
		if err := e.settings.SetJSON(ctx, rulesSettingsKey, rules); err != nil {
			return fmt.Errorf("failed to save stock rules: %w", err)
		}
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

// Rules returns the active rule set.
func (e *Engine) Rules() Rules {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}

// Calculate applies the buffer to a supplier quantity. Never negative.
func (e *Engine) Calculate(supplierQty int) int {
	rules := e.Rules()
	if !rules.BufferEnabled {
		if supplierQty < 0 {
			return 0
		}
		return supplierQty
	}
	qty := supplierQty - rules.BufferAmount
	if qty < 0 {
		return 0
	}
	return qty
}

// EffectiveQty derives the engine input from a supplier record, forcing it
// to zero first when the record is flagged unavailable and the override is
// enabled.
func (e *Engine) EffectiveQty(record *supplier.ProductRecord) int {
	qty := record.StockQty
	if e.Rules().ZeroOnUnavailable && !record.InStock {
		qty = 0
	}
	return e.Calculate(qty)
}

// Status derives the local stock status for a final quantity. Callers only
// write it when auto_out_of_stock is enabled.
func Status(qty int) string {
	if qty > 0 {
		return models.StockStatusInStock
	}
	return models.StockStatusOutOfStock
}
