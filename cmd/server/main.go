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

	"resale-sync-service/config"
	"resale-sync-service/internal/api"
	"resale-sync-service/internal/broker"
	"resale-sync-service/internal/provider"
	"resale-sync-service/internal/redisclient"
	"resale-sync-service/internal/service"
	"resale-sync-service/internal/store"
	"resale-sync-service/internal/util"
	"resale-sync-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting resale sync service")

	tp, err := util.InitTracer("resale-sync-service", cfg.Observ.JaegerEndpoint)
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

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSync)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	adapters := make(map[string]provider.Adapter, len(cfg.Providers))
	for _, p := range cfg.Providers {
		minInterval := time.Duration(p.MinIntervalMS) * time.Millisecond
		switch p.Name {
		case "exchange":
			adapters[p.Name] = provider.NewExchangeAdapter(p.BaseURL, p.APIKey, p.Currency, p.Region, minInterval)
		case "peer":
			adapters[p.Name] = provider.NewPeerAdapter(p.BaseURL, p.APIKey, p.Currency, p.Region, minInterval)
		case "auction":
			adapters[p.Name] = provider.NewAuctionAdapter(p.BaseURL, p.APIKey, p.Currency, p.Region, minInterval)
		default:
			log.Fatalf("No adapter for configured provider %q", p.Name)
		}
	}

	backoffBase := time.Duration(cfg.Sync.BackoffBaseSeconds) * time.Second
	staleTimeout := time.Duration(cfg.Sync.StaleJobTimeoutS) * time.Second
	cacheTTL := time.Duration(cfg.Sync.CacheTTLSeconds) * time.Second

	priority := make(map[string]int, len(cfg.Sync.ProviderPriority))
	for i, name := range cfg.Sync.ProviderPriority {
		priority[name] = len(cfg.Sync.ProviderPriority) - i
	}

	queue := service.NewQueue(db, cfg.Sync.MaxAttempts, backoffBase, staleTimeout)
	syncWorker := service.NewWorker(adapters, db, queue, db, redisClient, eventPublisher, backoffBase)
	scheduler := service.NewScheduler(db, syncWorker, cfg.Providers, cfg.Sync.MaxBatchPerProvider, cfg.Sync.PendingFetchLimit)
	unifier := service.NewUnifier(db, redisClient, cfg.Sync.ProviderPriority, cfg.Sync.FXRates, cfg.Sync.BaseCurrency, cacheTTL)
	inventoryService := service.NewInventoryService(db, eventPublisher)
	catalogService := service.NewCatalogService(db, queue, priority)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	syncConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSync, cfg.Kafka.ConsumerGroup)
	syncRequestWorker := worker.NewSyncRequestWorker(syncConsumer, queue, db)
	go func() {
		if err := syncRequestWorker.Start(workerCtx); err != nil {
			log.Printf("Sync request worker error: %v", err)
		}
	}()

	schedulerInterval := time.Duration(cfg.Sync.SchedulerIntervalS) * time.Second
	schedulerWorker := worker.NewSchedulerWorker(scheduler, queue, schedulerInterval)
	go func() {
		if err := schedulerWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Scheduler worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(catalogService, queue, scheduler, unifier, inventoryService, priority)
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
	syncRequestWorker.Stop()
	schedulerWorker.Stop()

	log.Println("Server exited")
}
