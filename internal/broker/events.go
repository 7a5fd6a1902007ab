package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"supplier-sync/internal/models"
	"supplier-sync/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSyncBatchCompleted publishes SyncBatchCompleted event
func (ep *EventPublisher) PublishSyncBatchCompleted(ctx context.Context, event *models.SyncBatchCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, "sync", event)
}

// PublishSyncRunCompleted publishes SyncRunCompleted event
func (ep *EventPublisher) PublishSyncRunCompleted(ctx context.Context, event *models.SyncRunCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, "sync", event)
}

// PublishProductImported publishes ProductImported event
func (ep *EventPublisher) PublishProductImported(ctx context.Context, event *models.ProductImportedEvent) error {
	key := fmt.Sprintf("product-%d", event.LocalID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishProductDeactivated publishes ProductDeactivated event
func (ep *EventPublisher) PublishProductDeactivated(ctx context.Context, event *models.ProductDeactivatedEvent) error {
	key := fmt.Sprintf("product-%d", event.LocalID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderSubmitted publishes OrderSubmitted event
func (ep *EventPublisher) PublishOrderSubmitted(ctx context.Context, event *models.OrderSubmittedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSyncTrigger publishes a sync trigger onto the trigger topic
func (ep *EventPublisher) PublishSyncTrigger(ctx context.Context, event *models.SyncTriggerEvent) error {
	return ep.producer.PublishEvent(ctx, "trigger", event)
}

// PublishImportTrigger publishes an auto-import trigger
func (ep *EventPublisher) PublishImportTrigger(ctx context.Context, event *models.ImportTriggerEvent) error {
	return ep.producer.PublishEvent(ctx, "trigger", event)
}

// TriggerHandler routes trigger-topic messages to registered callbacks
type TriggerHandler struct {
	onSyncTrigger   func(context.Context, *models.SyncTriggerEvent) error
	onImportTrigger func(context.Context, *models.ImportTriggerEvent) error
	logger          *zap.Logger
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler() *TriggerHandler {
	return &TriggerHandler{logger: util.GetLogger()}
}

// OnSyncTrigger registers a handler for sync triggers
func (th *TriggerHandler) OnSyncTrigger(handler func(context.Context, *models.SyncTriggerEvent) error) {
	th.onSyncTrigger = handler
}

// OnImportTrigger registers a handler for import triggers
func (th *TriggerHandler) OnImportTrigger(handler func(context.Context, *models.ImportTriggerEvent) error) {
	th.onImportTrigger = handler
}

// HandleMessage routes messages to the appropriate handler
func (th *TriggerHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	th.logger.Debug("Handling trigger",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeSyncTrigger:
		if th.onSyncTrigger != nil {
			var event models.SyncTriggerEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SyncTrigger event: %w", err)
			}
			return th.onSyncTrigger(ctx, &event)
		}

	case models.EventTypeImportTrigger:
		if th.onImportTrigger != nil {
			var event models.ImportTriggerEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ImportTrigger event: %w", err)
			}
			return th.onImportTrigger(ctx, &event)
		}

	default:
		th.logger.Debug("Unhandled trigger type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
