package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supplier-sync/config"
	"supplier-sync/internal/api"
	"supplier-sync/internal/broker"
	"supplier-sync/internal/importer"
	"supplier-sync/internal/mapper"
	"supplier-sync/internal/models"
	"supplier-sync/internal/order"
	"supplier-sync/internal/pricing"
	"supplier-sync/internal/ratelimit"
	"supplier-sync/internal/redisclient"
	"supplier-sync/internal/scheduler"
	"supplier-sync/internal/stock"
	"supplier-sync/internal/store"
	"supplier-sync/internal/supplier"
	syncpkg "supplier-sync/internal/sync"
	"supplier-sync/internal/util"
	"supplier-sync/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting supplier sync service")

	tp, err := util.InitTracer("supplier-sync", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	ctx := context.Background()
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	eventsProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer eventsProducer.Close()
	triggersProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTriggers)
	defer triggersProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(eventsProducer)
	triggerPublisher := broker.NewEventPublisher(triggersProducer)

	limiter := ratelimit.New(redisClient, redisClient, cfg.Supplier.MaxPerMinute, cfg.Supplier.MaxPerHour)
	supplierClient := supplier.NewClient(cfg.Supplier, limiter, redisClient)

	priceEngine, err := pricing.NewEngineFromSettings(ctx, redisClient)
	if err != nil {
		log.Fatalf("Failed to load price rules: %v", err)
	}
	stockEngine, err := stock.NewEngineFromSettings(ctx, redisClient)
	if err != nil {
		log.Fatalf("Failed to load stock rules: %v", err)
	}

	productMapper := mapper.New(db)

	coordinator := syncpkg.NewCoordinator(
		productMapper,
		db,
		supplierClient,
		priceEngine,
		stockEngine,
		redisClient,
		redisClient,
		eventPublisher,
		cfg.Sync.BatchSize,
		cfg.Sync.MemoryLimitMB,
	)

	productImporter := importer.New(db, supplierClient, productMapper, priceEngine, stockEngine, eventPublisher)
	autoImporter := importer.NewAuto(productImporter, supplierClient, redisClient, cfg.Sync.AutoImportCap)

	submitter := order.NewSubmitter(db, productMapper, supplierClient, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	triggerConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTriggers, cfg.Kafka.ConsumerGroup)
	syncWorker := worker.NewSyncWorker(triggerConsumer, coordinator, autoImporter)
	go func() {
		if err := syncWorker.Start(workerCtx); err != nil {
			log.Printf("Sync worker error: %v", err)
		}
	}()

	sched := scheduler.New(time.Minute)
	sched.Register("batch-sync", cfg.Sync.Frequency, func(ctx context.Context) error {
		return triggerPublisher.PublishSyncTrigger(ctx, &models.SyncTriggerEvent{
			BaseEvent: newBaseEvent(models.EventTypeSyncTrigger),
			Manual:    false,
		})
	})
	sched.Register("auto-import", cfg.Sync.AutoImportEvery, func(ctx context.Context) error {
		return triggerPublisher.PublishImportTrigger(ctx, &models.ImportTriggerEvent{
			BaseEvent: newBaseEvent(models.EventTypeImportTrigger),
		})
	})
	go sched.Run(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(coordinator, productMapper, productImporter, autoImporter, submitter, priceEngine, stockEngine, limiter)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	syncWorker.Stop()

	log.Println("Server exited")
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
