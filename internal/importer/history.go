package importer

import (
	"context"
	"time"

	"supplier-sync/internal/models"

	"go.uber.org/zap"
)

const (
	historySettingsKey = "auto_import_history"
	historyCap         = 30
)

// appendRun logs one run into the append-only history, capped at the most
// recent entries.
func (a *AutoImporter) appendRun(ctx context.Context, started time.Time, report *RunReport, ok bool) {
	status := models.ImportRunCompleted
	if !ok {
		status = models.ImportRunFailed
	}

	var history []models.ImportRun
	if _, err := a.settings.GetJSON(ctx, historySettingsKey, &history); err != nil {
		a.logger.Warn("Failed to load import history", zap.Error(err))
		return
	}

	history = append(history, models.ImportRun{
		StartedAt: started,
		Imported:  report.Imported,
		Skipped:   report.Skipped,
		Errors:    report.Errors,
		Status:    status,
	})
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}

	if err := a.settings.SetJSON(ctx, historySettingsKey, history); err != nil {
		a.logger.Warn("Failed to save import history", zap.Error(err))
	}
}

// History returns the retained run log, newest last.
func (a *AutoImporter) History(ctx context.Context) ([]models.ImportRun, error) {
	var history []models.ImportRun
	if _, err := a.settings.GetJSON(ctx, historySettingsKey, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// HistoryStats are rollups derived from the run log on read.
type HistoryStats struct {
	Runs7d      int `json:"runs_7d"`
	Imported7d  int `json:"imported_7d"`
	Errors7d    int `json:"errors_7d"`
	Runs30d     int `json:"runs_30d"`
	Imported30d int `json:"imported_30d"`
	Errors30d   int `json:"errors_30d"`
}

// Stats aggregates the trailing 7 and 30 day windows.
func (a *AutoImporter) Stats(ctx context.Context) (HistoryStats, error) {
	var stats HistoryStats
	history, err := a.History(ctx)
	if err != nil {
		return stats, err
	}

	now := a.now()
	for _, run := range history {
		age := now.Sub(run.StartedAt)
		if age <= 30*24*time.Hour {
			stats.Runs30d++
			stats.Imported30d += run.Imported
			stats.Errors30d += run.Errors
		}
		if age <= 7*24*time.Hour {
			stats.Runs7d++
			stats.Imported7d += run.Imported
			stats.Errors7d += run.Errors
		}
	}
	return stats, nil
}
