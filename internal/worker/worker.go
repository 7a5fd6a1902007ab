package worker

import (
	"context"
	"errors"

	"supplier-sync/internal/broker"
	"supplier-sync/internal/importer"
	"supplier-sync/internal/models"
	"supplier-sync/internal/sync"
	"supplier-sync/internal/util"

	"go.uber.org/zap"
)

// SyncWorker consumes trigger events and drives sync batch steps
// and auto-import runs in the background.
type SyncWorker struct {
	consumer     *broker.Consumer
	handler      *broker.TriggerHandler
	coordinator  *sync.Coordinator
	autoImporter *importer.AutoImporter
	logger       *zap.Logger
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	consumer *broker.Consumer,
	coordinator *sync.Coordinator,
	autoImporter *importer.AutoImporter,
) *SyncWorker {
	w := &SyncWorker{
		consumer:     consumer,
		coordinator:  coordinator,
		autoImporter: autoImporter,
		logger:       util.GetLogger(),
	}

	handler := broker.NewTriggerHandler()
	handler.OnSyncTrigger(w.handleSyncTrigger)
	handler.OnImportTrigger(w.handleImportTrigger)
	w.handler = handler

	return w
}

// Start starts the worker
func (w *SyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *SyncWorker) Stop() error {
	w.logger.Info("Stopping sync worker")
	return w.consumer.Close()
}

// handleSyncTrigger runs batch steps until the run completes or an
// error stops it. Each step syncs one page and advances the offset,
// so a crash between steps resumes where it left off.
func (w *SyncWorker) handleSyncTrigger(ctx context.Context, event *models.SyncTriggerEvent) error {
	w.logger.Info("Sync trigger received",
		zap.String("event_id", event.EventID),
		zap.Bool("manual", event.Manual))

	for {
		result, err := w.coordinator.RunBatchStep(ctx)
		if err != nil {
			w.logger.Error("Sync batch step failed", zap.Error(err))
			return err
		}
		if !result.Success {
			w.logger.Info("Sync step refused", zap.String("message", result.Message))
			return nil
		}
		if result.Completed {
			w.logger.Info("Sync run completed",
				zap.Int("processed", result.Processed),
				zap.Int("updated", result.Updated),
				zap.Int("errors", result.Errors))
			return nil
		}
		w.logger.Info("Sync batch completed",
			zap.Int("offset", result.Offset),
			zap.Int("total", result.Total),
			zap.Int("progress", result.Progress))
	}
}

func (w *SyncWorker) handleImportTrigger(ctx context.Context, event *models.ImportTriggerEvent) error {
	w.logger.Info("Import trigger received", zap.String("event_id", event.EventID))

	report, err := w.autoImporter.Run(ctx)
	if err != nil {
		if errors.Is(err, importer.ErrRunInProgress) {
			w.logger.Info("Auto-import already running, skipping trigger")
			return nil
		}
		w.logger.Error("Auto-import run failed", zap.Error(err))
		return err
	}

	w.logger.Info("Auto-import run completed",
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors))
	return nil
}
