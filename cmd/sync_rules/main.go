package main

import (
	"context"
	"flag"
	"log"

	"spotKeeper/config"
	"spotKeeper/internal/adapters/binanceclient"
	"spotKeeper/internal/adapters/logger"
	"spotKeeper/internal/adapters/sqlite"
	"spotKeeper/internal/app"
	"spotKeeper/internal/utils"
)

func main() {
	csvPath := flag.String("csv", "", "also write the synchronized rules to this CSV file")
	flag.Parse()
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer appLogger.Sync() //nolint:errcheck

	// 3. Initialize Repository
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	// 4. Initialize Exchange Client (exchange info is a public endpoint)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		UseTestnet:        cfg.IsTestnet,
		Logger:            appLogger,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.RequestBurst,
		HTTPTimeout:       cfg.HTTPTimeout,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	res, rules, err := app.SyncRules(ctx, appLogger, binanceClient, repo)
	if err != nil {
		appLogger.Error(ctx, err, "Rule synchronization failed")
		log.Fatalf("Rule synchronization failed: %v", err)
	}

	if *csvPath != "" {
		if err := utils.WriteRulesToCSV(rules, *csvPath); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV")
			log.Fatalf("Error writing CSV: %v", err)
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": *csvPath})
	}

	log.Printf("rules synchronized: %d created, %d updated, %d unchanged, %d removed", res.Created, res.Updated, res.Unchanged, res.Removed)
}
