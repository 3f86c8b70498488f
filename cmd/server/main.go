package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/config"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/api"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/broker"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/bus"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/cache"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/identity"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/pricing"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/realtime"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/redisclient"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/service"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/store"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/worker"
)

const paymentSuccessRate = 0.9

// orderBackend is what the service and the sweeper need from persistence
type orderBackend interface {
	service.OrderStore
	service.CatalogOracle
	Ping(ctx context.Context) error
	Close() error
}

type memoryBackend struct {
	*store.MemoryStore
}

func (memoryBackend) Close() error { return nil }

func main() {
	cfg := config.Load()
	instanceID := uuid.New().String()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.ServiceName, instanceID); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting order lifecycle service")

	tp, err := util.InitTracer(cfg.Server.ServiceName, instanceID, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := openBackend(cfg)
	if err != nil {
		logger.Fatal("Failed to open order store", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Order store ready", zap.String("driver", cfg.Database.Driver))

	checks := map[string]api.Pinger{"store": db}

	local := cache.NewLocal(cfg.Business.LocalCacheTTL)
	var (
		shared   cache.Shared
		counter  cache.Counter = cache.NewMemoryCounter()
		tracking service.TrackingStore
		lock     worker.Locker
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		// cache versions stay process local, which is only coherent on a single instance
		logger.Warn("Redis unavailable, running with the local cache tier only", zap.Error(err))
	} else {
		defer redisClient.Close()
		shared, counter, tracking, lock = redisClient, redisClient, redisClient, redisClient
		checks["redis"] = redisClient
		logger.Info("Redis connected")
	}

	hub := realtime.NewHub()
	relay, relaySource, err := openRelay(cfg, instanceID)
	if err != nil {
		logger.Fatal("Failed to open realtime relay", zap.Error(err))
	}
	eventBus := bus.New(hub, relay, instanceID)

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	paymentProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment)
	defer paymentProducer.Close()
	logger.Info("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(orderProducer, paymentProducer)

	orderService := service.NewOrderService(service.Dependencies{
		Store:    db,
		Catalog:  db,
		Tabs:     store.NewTabFinder(cfg.Business.TabFinder, db, cfg.Business.TabScanWindow),
		Bus:      eventBus,
		Cache:    cache.New(local, shared),
		Versions: cache.NewVersioner(counter, local),
		Tracking: tracking,
		Payments: service.NewMockGateway(),
		Events:   eventPublisher,
		Fare:     pricing.Fare,
	}, service.Config{
		IdempotencyStaleAfter: cfg.Business.IdempotencyStaleAfter,
		IdempotencyWait:       cfg.Business.IdempotencyWait,
		FingerprintBucket:     cfg.Business.FingerprintBucket,
		Tolerances:            pricing.Tolerances{Subtotal: cfg.Business.PriceTolerance, Total: cfg.Business.TotalTolerance},
		SharedCacheTTL:        cfg.Business.SharedCacheTTL,
		TabScanWindow:         cfg.Business.TabScanWindow,
	})
	paymentService := service.NewPaymentService(eventPublisher, paymentSuccessRate)
	reconciler := service.NewPaymentReconciler(orderService)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	orderWorker := worker.NewOrderWorker(
		broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup),
		reconciler)
	paymentWorker := worker.NewPaymentWorker(
		broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, "payment-service-group"),
		paymentService)

	runWorker(workerCtx, "order", orderWorker.Start)
	runWorker(workerCtx, "payment", paymentWorker.Start)

	var relayWorker *worker.RelayWorker
	if relaySource != nil {
		relayWorker = worker.NewRelayWorker(relaySource, eventBus)
		runWorker(workerCtx, "relay", relayWorker.Start)
	}

	sweeper := worker.NewIdempotencySweeper(db, lock, cfg.Business.IdempotencyStaleAfter, cfg.Business.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start idempotency sweeper", zap.Error(err))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, identity.NewHeaderResolver(), hub, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if p := cfg.Observ.PrometheusPort; p != "" && p != cfg.Server.Port {
		metricsSrv = &http.Server{Addr: ":" + p, Handler: promhttp.Handler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	sweeper.Stop()
	workerCancel()
	_ = orderWorker.Stop()
	_ = paymentWorker.Stop()
	if relayWorker != nil {
		_ = relayWorker.Stop()
	}

	logger.Info("Server exited")
}

// openBackend connects the configured store. "memory" keeps everything in
// process and suits local runs only.
func openBackend(cfg *config.Config) (orderBackend, error) {
	if cfg.Database.Driver == "memory" {
		return memoryBackend{store.NewMemoryStore()}, nil
	}

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openRelay returns the bus relay and the source delivering the other
// instances' envelopes. Both are nil when the relay is disabled.
func openRelay(cfg *config.Config, instanceID string) (bus.Relay, worker.Source, error) {
	switch cfg.Relay.Transport {
	case "kafka":
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRealtime)
		consumer := broker.NewBroadcastConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRealtime, cfg.Kafka.ConsumerGroup+"-realtime", instanceID)
		return broker.NewKafkaRelay(producer), consumer, nil
	case "amqp":
		relay, err := broker.NewAMQPRelay(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return nil, nil, err
		}
		return relay, relay, nil
	case "none", "":
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown realtime relay %q", cfg.Relay.Transport)
}

func runWorker(ctx context.Context, name string, start func(context.Context) error) {
	go func() {
		if err := start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			util.GetLogger().Error("Worker stopped", zap.String("worker", name), zap.Error(err))
		}
	}()
}
