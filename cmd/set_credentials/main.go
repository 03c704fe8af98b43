package main

import (
	"context"
	"flag"
	"log"

	"spotKeeper/config"
	"spotKeeper/internal/adapters/logger"
	"spotKeeper/internal/adapters/sqlite"
	"spotKeeper/internal/domain"
)

func main() {
	userID := flag.Int64("user", 0, "user ID the key pair belongs to")
	apiKey := flag.String("key", "", "Binance API key (defaults to BINANCE_API_KEY)")
	apiSecret := flag.String("secret", "", "Binance API secret (defaults to BINANCE_API_SECRET)")
	flag.Parse()
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if *userID <= 0 {
		log.Fatalf("FATAL: -user is required")
	}
	creds := &domain.Credentials{UserID: *userID, APIKey: *apiKey, APISecret: *apiSecret}
	if creds.APIKey == "" {
		creds.APIKey = cfg.APIKey
	}
	if creds.APISecret == "" {
		creds.APISecret = cfg.SecretKey
	}
	if !creds.Valid() {
		log.Fatalf("FATAL: both an API key and secret are required")
	}

	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer appLogger.Sync() //nolint:errcheck

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	if err := repo.SaveCredentials(ctx, creds); err != nil {
		appLogger.Error(ctx, err, "Failed to save credentials", map[string]interface{}{"userId": *userID})
		log.Fatalf("Failed to save credentials: %v", err)
	}
	appLogger.Info(ctx, "Credentials saved", map[string]interface{}{"userId": *userID})
}
