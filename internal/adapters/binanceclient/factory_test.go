package binanceclient

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCredentials struct {
	byUser map[int64]*domain.Credentials
	err    error
}

func (m *memCredentials) FindCredentials(ctx context.Context, userID int64) (*domain.Credentials, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byUser[userID], nil
}

func (m *memCredentials) SaveCredentials(ctx context.Context, creds *domain.Credentials) error {
	m.byUser[creds.UserID] = creds
	return nil
}

func TestFactory_ForUser(t *testing.T) {
	creds := &memCredentials{byUser: map[int64]*domain.Credentials{
		1: {UserID: 1, APIKey: "k1", APISecret: "s1"},
		2: {UserID: 2, APIKey: "k2"},
	}}
	factory, err := NewFactory(creds, Config{Logger: &mockLogger{}, UseTestnet: true})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		gw, err := factory.ForUser(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, gw)

		again, err := factory.ForUser(ctx, 1)
		require.NoError(t, err)
		assert.Same(t, gw, again, "client is cached per user")
	})

	t.Run("rotated key builds a new client", func(t *testing.T) {
		before, err := factory.ForUser(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, creds.SaveCredentials(ctx, &domain.Credentials{UserID: 1, APIKey: "k1b", APISecret: "s1b"}))

		after, err := factory.ForUser(ctx, 1)
		require.NoError(t, err)
		assert.NotSame(t, before, after)
	})

	t.Run("incomplete credentials", func(t *testing.T) {
		_, err := factory.ForUser(ctx, 2)
		assert.ErrorIs(t, err, ports.ErrMissingCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := factory.ForUser(ctx, 99)
		assert.ErrorIs(t, err, ports.ErrMissingCredentials)
	})

	t.Run("repository failure", func(t *testing.T) {
		failing, err := NewFactory(&memCredentials{err: errors.New("db down")}, Config{Logger: &mockLogger{}})
		require.NoError(t, err)
		_, err = failing.ForUser(ctx, 1)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ports.ErrMissingCredentials)
	})
}

func TestNewFactory_RequiresDependencies(t *testing.T) {
	_, err := NewFactory(nil, Config{Logger: &mockLogger{}})
	assert.Error(t, err)

	_, err = NewFactory(&memCredentials{}, Config{})
	assert.Error(t, err)
}

func TestFactory_ForUserSyncsServerTime(t *testing.T) {
	var timeCalls atomic.Int32
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/time" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		timeCalls.Add(1)
		if fail.Load() {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"code": -1001, "msg": "Internal error; unable to process your request."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"serverTime": time.Now().Add(time.Minute).UnixMilli()})
	}))
	t.Cleanup(server.Close)

	creds := &memCredentials{byUser: map[int64]*domain.Credentials{
		1: {UserID: 1, APIKey: "k1", APISecret: "s1"},
		2: {UserID: 2, APIKey: "k2", APISecret: "s2"},
	}}
	base := Config{Logger: &mockLogger{}, BaseURL: server.URL, RequestsPerSecond: 1000, Burst: 10, SyncServerTime: true}
	factory, err := NewFactory(creds, base)
	require.NoError(t, err)
	ctx := context.Background()

	gw, err := factory.ForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), timeCalls.Load())
	client, ok := gw.(*Client)
	require.True(t, ok)
	assert.InDelta(t, float64(time.Minute.Milliseconds()), math.Abs(float64(client.spotClient.TimeOffset)), 5000, "offset follows the venue clock")

	_, err = factory.ForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), timeCalls.Load(), "cached client is not synced again")

	fail.Store(true)
	gw, err = factory.ForUser(ctx, 2)
	require.NoError(t, err, "a failed sync does not block the client")
	assert.NotNil(t, gw)
	assert.Equal(t, int32(2), timeCalls.Load())

	base.SyncServerTime = false
	unsynced, err := NewFactory(creds, base)
	require.NoError(t, err)
	_, err = unsynced.ForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), timeCalls.Load())
}
