package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"time"

	"spotKeeper/config"
	"spotKeeper/internal/adapters/binanceclient"
	"spotKeeper/internal/adapters/events"
	"spotKeeper/internal/adapters/logger"
	"spotKeeper/internal/adapters/metrics"
	"spotKeeper/internal/adapters/sqlite"
	"spotKeeper/internal/app"
	"spotKeeper/internal/guard"
	"spotKeeper/internal/lifecycle"
	"spotKeeper/internal/ports"
	"spotKeeper/internal/reconcile"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer appLogger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Clients (Binance Adapter)
	clientCfg := binanceclient.Config{
		UseTestnet:        cfg.IsTestnet,
		Logger:            appLogger,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.RequestBurst,
		HTTPTimeout:       cfg.HTTPTimeout,
		SyncServerTime:    true,
	}
	gateways, err := binanceclient.NewFactory(repo, clientCfg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client factory")
		log.Fatalf("FATAL: Failed to initialize Binance client factory: %v", err)
	}

	marketCfg := clientCfg
	marketCfg.APIKey = cfg.APIKey
	marketCfg.SecretKey = cfg.SecretKey
	market, err := binanceclient.New(marketCfg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := market.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Binance REST API not reachable at startup", map[string]interface{}{"error": err.Error()})
	} else if err := market.SetServerTime(ctx); err != nil {
		appLogger.Warn(ctx, "Failed to sync clock with Binance", map[string]interface{}{"error": err.Error()})
	}
	appLogger.Info(ctx, "Binance clients initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	// 5. Initialize Metrics and Events
	var lifecycleMetrics ports.Metrics = ports.NopMetrics{}
	if cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus()
		lifecycleMetrics = prom
		server := startMetricsServer(cfg.MetricsAddr, prom.Handler(), appLogger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	sink := events.FanOut{events.NewLogSink(appLogger)}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Kafka event sink")
			log.Fatalf("FATAL: Failed to initialize Kafka event sink: %v", err)
		}
		defer kafkaSink.Close()
		sink = append(sink, kafkaSink)
		appLogger.Info(ctx, "Kafka event sink initialized", map[string]interface{}{"topic": cfg.KafkaTopic})
	}

	// 6. Initialize Lifecycle Engine and Reconciliation Loop
	engine, err := lifecycle.NewEngine(lifecycle.Config{
		Logger:             appLogger,
		Gateways:           gateways,
		Orders:             repo,
		Targets:            repo,
		Metrics:            lifecycleMetrics,
		Guard:              guard.New(true),
		StrictBalanceRetry: cfg.StrictBalanceRetry,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize lifecycle engine")
		log.Fatalf("FATAL: Failed to initialize lifecycle engine: %v", err)
	}

	loop, err := reconcile.NewLoop(reconcile.Config{
		Logger:                appLogger,
		Gateways:              gateways,
		Trades:                repo,
		Targets:               repo,
		Orders:                repo,
		Sink:                  sink,
		Metrics:               lifecycleMetrics,
		StopLossTrackInterval: cfg.StopLossTrackInterval,
		StopLossMaxTracks:     cfg.StopLossMaxTracks,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize reconciliation loop")
		log.Fatalf("FATAL: Failed to initialize reconciliation loop: %v", err)
	}

	// 7. Initialize Application Service
	keeper, err := app.NewKeeperService(app.Config{
		Logger:     appLogger,
		Trades:     repo,
		Reconciler: loop,
		Lifecycle:  engine,
		Prices:     market,
		Metrics:    lifecycleMetrics,
		Interval:   cfg.ReconcileInterval,
		Workers:    cfg.ReconcileWorkers,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize keeper service")
		log.Fatalf("FATAL: Failed to initialize keeper service: %v", err)
	}
	defer keeper.Close()

	// 8. Start the Service
	if err := keeper.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Keeper service exited with error")
		log.Fatalf("FATAL: Keeper service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

func startMetricsServer(addr string, handler http.Handler, logger ports.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info(context.Background(), "Serving metrics", map[string]interface{}{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), err, "Metrics server stopped")
		}
	}()
	return server
}
