package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"spotKeeper/config"
	"spotKeeper/internal/adapters/binanceclient"
	"spotKeeper/internal/adapters/logger"
	"spotKeeper/internal/adapters/sqlite"
	"spotKeeper/internal/app"
	"spotKeeper/internal/domain"
	"spotKeeper/internal/lifecycle"
)

func main() {
	userID := flag.Int64("user", 0, "owning user ID")
	symbol := flag.String("symbol", "", "trading pair, e.g. ETHUSDT")
	amount := flag.Float64("amount", 0, "position size in base asset")
	buyPrice := flag.Float64("buy-price", 0, "entry price")
	stopLossPct := flag.Float64("stop-loss-pct", 0, "origin stop-loss distance below the entry price, in percent")
	targets := flag.String("targets", "", "take-profit targets as bid:percent,bid:percent")
	trailingPct := flag.Float64("trailing-pct", 0, "trailing stop distance below the current target, in percent (0 disables trailing)")
	placeBuy := flag.Bool("place-buy", false, "place the limit buy order instead of recording an existing fill")
	flag.Parse()
	ctx := context.Background()

	if *userID <= 0 || *symbol == "" || *amount <= 0 || *buyPrice <= 0 {
		log.Fatalf("FATAL: -user, -symbol, -amount and -buy-price are required")
	}
	parsedTargets, err := app.ParseTargets(*targets)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer appLogger.Sync() //nolint:errcheck

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	pair := strings.ToUpper(*symbol)
	rule, err := repo.FindRule(ctx, pair)
	if err != nil || rule == nil {
		log.Fatalf("FATAL: no trading rule for %s, run sync_rules first (err: %v)", pair, err)
	}

	trade := &domain.Trade{
		UserID:          *userID,
		Symbol:          pair,
		Rule:            rule,
		Amount:          *amount,
		BuyPrice:        *buyPrice,
		StopLossPercent: *stopLossPct,
		TrailingActive:  *trailingPct > 0,
		TrailingPercent: *trailingPct,
		Active:          true,
		CreatedAt:       time.Now(),
		Targets:         parsedTargets,
	}
	id, err := repo.CreateTrade(ctx, trade)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to create trade")
		log.Fatalf("Failed to create trade: %v", err)
	}
	appLogger.Info(ctx, "Trade created", map[string]interface{}{"tradeId": id, "symbol": pair, "targets": len(parsedTargets)})

	if !*placeBuy {
		log.Printf("trade %d created; the keeper places its stop-loss on the next tick", id)
		return
	}

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
	order, err := engine.PlaceBuy(ctx, trade, *amount, *buyPrice)
	if err != nil {
		appLogger.Error(ctx, err, "Buy placement failed", map[string]interface{}{"tradeId": id})
		log.Fatalf("Buy placement failed: %v", err)
	}
	log.Printf("trade %d created, buy order %d placed", id, order.VenueOrderID)
}
