package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

// Markup types
const (
	MarkupPercentage = "percentage"
	MarkupFixed      = "fixed"
)

// Rounding types
const (
	Rounding99      = "99"
	Rounding95      = "95"
	RoundingNearest = "nearest"
)

// GST types
const (
	GSTInclude = "include"
	GSTExclude = "exclude"
)

const gstRate = "0.10"

// Rules is the global price rule set. markup_value must be >= 0.
type Rules struct {
	MarkupType      string  `json:"markup_type"`
	MarkupValue     float64 `json:"markup_value"`
	RoundingEnabled bool    `json:"rounding_enabled"`
	RoundingType    string  `json:"rounding_type"`
	GSTEnabled      bool    `json:"gst_enabled"`
	GSTType         string  `json:"gst_type"`
}

// DefaultRules applies no markup, includes GST, no rounding.
func DefaultRules() Rules {
	return Rules{
		MarkupType:   MarkupPercentage,
		RoundingType: RoundingNearest,
		GSTType:      GSTInclude,
	}
}

const rulesSettingsKey = "price_rules"

// ErrInvalidRules is returned when a rule set fails validation.
var ErrInvalidRules = errors.New("invalid price rules")

// Validate rejects rule sets that would corrupt the catalog on the next
// batch, most importantly a negative markup writing below-cost prices.
func (r Rules) Validate() error {
	if r.MarkupValue < 0 {
		return fmt.Errorf("%w: markup_value must not be negative", ErrInvalidRules)
	}
	switch r.MarkupType {
	case MarkupPercentage, MarkupFixed:
	default:
		return fmt.Errorf("%w: unknown markup_type %q", ErrInvalidRules, r.MarkupType)
	}
	if r.RoundingEnabled {
		switch r.RoundingType {
		case Rounding99, Rounding95, RoundingNearest:
		default:
			return fmt.Errorf("%w: unknown rounding_type %q", ErrInvalidRules, r.RoundingType)
		}
	}
	if r.GSTEnabled {
		switch r.GSTType {
		case GSTInclude, GSTExclude:
		default:
			return fmt.Errorf("%w: unknown gst_type %q", ErrInvalidRules, r.GSTType)
		}
	}
	return nil
}

// Settings is the slice of the key-value store the engine loads rules from.
type Settings interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

// Engine turns a supplier cost into a final price: markup, then GST, then
// rounding. Pure given a rule set; rules load once and reload explicitly.
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

// Reload re-reads the rule set from settings; used after rule edits mid-run.
func (e *Engine) Reload(ctx context.Context) error {
	if e.settings == nil {
		return nil
	}
	var rules Rules
	ok, err := e.settings.GetJSON(ctx, rulesSettingsKey, &rules)
	if err != nil {
		return fmt.Errorf("failed to load price rules: %w", err)
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
			return fmt.Errorf("failed to save price rules: %w", err)
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

// Calculate applies markup, GST and rounding to a supplier cost and returns
// the final price rounded to two decimal places. Non-positive costs are the
// caller's responsibility to filter before invoking.
func (e *Engine) Calculate(cost float64) float64 {
	rules := e.Rules()
	price := decimal.NewFromFloat(cost)

	markup := decimal.NewFromFloat(rules.MarkupValue)
	if rules.MarkupType == MarkupPercentage {
		price = price.Mul(decimal.NewFromInt(1).Add(markup.Div(decimal.NewFromInt(100))))
	} else {
		price = price.Add(markup)
	}

	// include means the cost is assumed already GST-inclusive.
	if rules.GSTEnabled && rules.GSTType == GSTExclude {
		price = price.Mul(decimal.NewFromInt(1).Add(decimal.RequireFromString(gstRate)))
	}

	if rules.RoundingEnabled {
		switch rules.RoundingType {
		case Rounding99:
			price = price.Floor().Add(decimal.RequireFromString("0.99"))
		case Rounding95:
			price = price.Floor().Add(decimal.RequireFromString("0.95"))
		case RoundingNearest:
			price = price.Round(0)
		}
	}

	final, _ := price.Round(2).Float64()
	return final
}

// Epsilon below which a price delta is treated as a no-op, so float noise
// never drives redundant catalog writes.
const priceEpsilon = 0.01

// NeedsUpdate reports whether the stored price differs enough from the
// computed one to warrant a write.
func NeedsUpdate(current, computed float64) bool {
	return math.Abs(current-computed) > priceEpsilon
}
