package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"supplier-sync/internal/supplier"
	"supplier-sync/internal/util"

	"go.uber.org/zap"
)

// ErrRunInProgress is returned when an auto-import run is already active
// and its heartbeat is fresh.
var ErrRunInProgress = errors.New("auto-import run already in progress")

const (
	filterSettingsKey   = "auto_import_filter"
	runStateSettingsKey = "auto_import_state"

	// A run whose heartbeat is older than this is considered stuck.
	runStaleAfter = 30 * time.Minute
)

// Filter is the settings-driven discovery filter. It is re-applied
// client-side after fetch because the remote filter proved unreliable.
type Filter struct {
	MinStock     int  `json:"min_stock"`
	NewArrival   bool `json:"new_arrival"`
	InStockOnly  bool `json:"in_stock_only"`
	FreeShipping bool `json:"free_shipping"`
}

// Settings is the key-value slice the auto importer persists through.
type Settings interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

type runState struct {
	InProgress bool      `json:"in_progress"`
	Heartbeat  time.Time `json:"heartbeat"`
}

// AutoImporter is the scheduled discovery-and-import variant: fetch a page
// of supplier products, filter, import up to the per-run cap, and log the
// run into the history.
type AutoImporter struct {
	importer *Importer
	client   SupplierAPI
	settings Settings
	maxItems int
	logger   *zap.Logger

	now func() time.Time
}

// NewAuto wires an auto importer with the given per-run cap.
func NewAuto(importer *Importer, client SupplierAPI, settings Settings, maxItems int) *AutoImporter {
	if maxItems <= 0 {
		maxItems = 50
	}
	return &AutoImporter{
		importer: importer,
		client:   client,
		settings: settings,
		maxItems: maxItems,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// GetFilter loads the persisted discovery filter.
func (a *AutoImporter) GetFilter(ctx context.Context) (Filter, error) {
	var f Filter
	if _, err := a.settings.GetJSON(ctx, filterSettingsKey, &f); err != nil {
		return f, err
	}
	return f, nil
}

// SetFilter persists a new discovery filter.
func (a *AutoImporter) SetFilter(ctx context.Context, f Filter) error {
	return a.settings.SetJSON(ctx, filterSettingsKey, f)
}

// RunReport is the outcome of one auto-import cycle.
type RunReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// Run executes one discovery-and-import cycle. A stuck previous run (stale
// heartbeat) is forcibly reset; a live one refuses the trigger.
func (a *AutoImporter) Run(ctx context.Context) (*RunReport, error) {
	var rs runState
	if _, err := a.settings.GetJSON(ctx, runStateSettingsKey, &rs); err != nil {
		return nil, err
	}
	if rs.InProgress {
		if a.now().Sub(rs.Heartbeat) <= runStaleAfter {
			return nil, ErrRunInProgress
		}
		a.logger.Warn("Stuck auto-import run detected, forcing reset",
			zap.Time("heartbeat", rs.Heartbeat))
	}

	started := a.now()
	rs = runState{InProgress: true, Heartbeat: started}
	if err := a.settings.SetJSON(ctx, runStateSettingsKey, rs); err != nil {
		return nil, err
	}
	defer func() {
		_ = a.settings.SetJSON(context.Background(), runStateSettingsKey, runState{})
	}()

	filter, err := a.GetFilter(ctx)
	if err != nil {
		return nil, err
	}

	params := map[string]string{}
	if filter.NewArrival {
		params["new_arrival"] = "1"
	}
	if filter.FreeShipping {
		params["free_shipping"] = "1"
	}
	if filter.MinStock > 0 {
		params["min_stock"] = strconv.Itoa(filter.MinStock)
	}

	resp, err := a.client.GetProducts(ctx, params)
	if err != nil {
		a.appendRun(ctx, started, &RunReport{}, false)
		return nil, fmt.Errorf("auto-import fetch failed: %w", err)
	}

	report := &RunReport{}
	for i := range resp.Result {
		if report.Imported >= a.maxItems {
			break
		}
		rec := &resp.Result[i]

		if !a.matches(rec, filter) {
			report.Skipped++
			util.ImportsSkippedTotal.WithLabelValues("filtered").Inc()
			continue
		}

		_, err := a.importer.Import(ctx, rec)
		switch {
		case errors.Is(err, ErrAlreadyExists):
			report.Skipped++
			util.ImportsSkippedTotal.WithLabelValues("exists").Inc()
		case err != nil:
			report.Errors++
			a.logger.Error("Auto-import failed for record",
				zap.String("sku", rec.SKU),
				zap.Error(err))
		default:
			report.Imported++
		}
	}

	a.appendRun(ctx, started, report, true)
	a.logger.Info("Auto-import run completed",
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors))
	return report, nil
}

// matches re-checks the filter against the fetched record. The remote
// filter is never trusted alone.
func (a *AutoImporter) matches(rec *supplier.ProductRecord, f Filter) bool {
	if rec.StockQty < f.MinStock {
		return false
	}
	if f.InStockOnly && !rec.InStock {
		return false
	}
	if f.NewArrival && !rec.NewArrival {
		return false
	}
	if f.FreeShipping && !rec.FreeShipping {
		return false
	}
	return true
}
