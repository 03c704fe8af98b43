package binanceclient

import (
	"context"
	"fmt"
	"sync"

	"spotKeeper/internal/ports"
)

// Factory builds one authenticated Client per user from stored credentials.
type Factory struct {
	creds ports.CredentialRepository
	base  Config

	mu      sync.Mutex
	clients map[int64]*cachedClient
}

type cachedClient struct {
	apiKey string
	client *Client
}

// NewFactory creates a gateway factory. base supplies everything but the key pair.
func NewFactory(creds ports.CredentialRepository, base Config) (*Factory, error) {
	if creds == nil || base.Logger == nil {
		return nil, fmt.Errorf("credential repository and logger are required for Binance client factory")
	}
	return &Factory{creds: creds, base: base, clients: make(map[int64]*cachedClient)}, nil
}

// ForUser returns the user's client. Missing or incomplete credentials fail
// with ports.ErrMissingCredentials before any request reaches the venue. A new
// client syncs its clock offset first when the base config asks for it.
func (f *Factory) ForUser(ctx context.Context, userID int64) (ports.ExchangeGateway, error) {
	creds, err := f.creds.FindCredentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load credentials for user %d: %w", userID, err)
	}
	if !creds.Valid() {
		return nil, fmt.Errorf("user %d: %w", userID, ports.ErrMissingCredentials)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.clients[userID]; ok && cached.apiKey == creds.APIKey {
		return cached.client, nil
	}

	cfg := f.base
	cfg.APIKey = creds.APIKey
	cfg.SecretKey = creds.APISecret
	cfg.Logger = ports.WithFields(f.base.Logger, map[string]interface{}{"userId": userID})
	client, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create client for user %d: %w", userID, err)
	}
	if f.base.SyncServerTime {
		// Signed requests still go out with the local clock when this fails.
		if err := client.SetServerTime(ctx); err != nil {
			cfg.Logger.Warn(ctx, "Failed to sync clock with venue", map[string]interface{}{"error": err.Error()})
		}
	}
	f.clients[userID] = &cachedClient{apiKey: creds.APIKey, client: client}
	return client, nil
}
