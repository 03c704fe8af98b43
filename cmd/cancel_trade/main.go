package main

import (
	"context"
	"flag"
	"log"

	"spotKeeper/config"
	"spotKeeper/internal/adapters/binanceclient"
	"spotKeeper/internal/adapters/events"
	"spotKeeper/internal/adapters/logger"
	"spotKeeper/internal/adapters/sqlite"
	"spotKeeper/internal/app"
	"spotKeeper/internal/lifecycle"
	"spotKeeper/internal/reconcile"
)

func main() {
	tradeID := flag.Int64("trade", 0, "ID of the trade to cancel")
	stopLoss := flag.Float64("stop-loss", 0, "instead of canceling, move the stop-loss to this stop price")
	limit := flag.Float64("limit", 0, "limit price for -stop-loss (defaults to the stop price)")
	qty := flag.Float64("qty", 0, "quantity for -stop-loss (defaults to the trade amount)")
	trailing := flag.Bool("trailing", false, "with -stop-loss, replace the trailing stop instead of the origin stop")
	flag.Parse()
	ctx := context.Background()

	if *tradeID <= 0 {
		log.Fatalf("FATAL: -trade is required")
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger and Repository
	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer appLogger.Sync() //nolint:errcheck

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	// 3. Initialize Exchange Clients
	gateways, err := binanceclient.NewFactory(repo, binanceclient.Config{
		UseTestnet:        cfg.IsTestnet,
		Logger:            appLogger,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.RequestBurst,
		HTTPTimeout:       cfg.HTTPTimeout,
		SyncServerTime:    true,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client factory: %v", err)
	}

	// 4. Initialize Lifecycle
	engine, err := lifecycle.NewEngine(lifecycle.Config{
		Logger:             appLogger,
		Gateways:           gateways,
		Orders:             repo,
		Targets:            repo,
		StrictBalanceRetry: cfg.StrictBalanceRetry,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize lifecycle engine: %v", err)
	}
	loop, err := reconcile.NewLoop(reconcile.Config{
		Logger:   appLogger,
		Gateways: gateways,
		Trades:   repo,
		Targets:  repo,
		Orders:   repo,
		Sink:     events.NewLogSink(appLogger),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize reconciliation loop: %v", err)
	}
	keeper, err := app.NewKeeperService(app.Config{Logger: appLogger, Trades: repo, Reconciler: loop, Lifecycle: engine, Workers: 1})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize keeper service: %v", err)
	}
	defer keeper.Close()

	// 5. Run the requested action
	if *stopLoss > 0 {
		trade, err := repo.FindTradeByID(ctx, *tradeID)
		if err != nil || trade == nil {
			log.Fatalf("FATAL: trade %d not loaded: %v", *tradeID, err)
		}
		quantity := *qty
		if quantity <= 0 {
			quantity = trade.Amount
		}
		price := *limit
		if price <= 0 {
			price = *stopLoss
		}
		order, err := keeper.ReplaceStopLoss(ctx, *tradeID, quantity, price, *stopLoss, *trailing)
		if err != nil {
			appLogger.Error(ctx, err, "Stop-loss replacement failed", map[string]interface{}{"tradeId": *tradeID})
			log.Fatalf("Stop-loss replacement failed: %v", err)
		}
		log.Printf("trade %d: stop-loss moved, venue order %d", *tradeID, order.VenueOrderID)
		return
	}

	if err := keeper.CancelTrade(ctx, *tradeID); err != nil {
		appLogger.Error(ctx, err, "Trade cancel failed", map[string]interface{}{"tradeId": *tradeID})
		log.Fatalf("Trade cancel failed: %v", err)
	}
	log.Printf("trade %d canceled", *tradeID)
}
