package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramppay/ramppay-sync-go/internal/adapters/config"
	"github.com/ramppay/ramppay-sync-go/internal/domain"
	"github.com/ramppay/ramppay-sync-go/pkg/crypto"
	"github.com/ramppay/ramppay-sync-go/pkg/statekeys"
)

// persistedRecord is the stored shape of a session. The bearer is sealed with
// AES-GCM before it ever reaches the store.
type persistedRecord struct {
	BearerSealed string      `json:"bearer_sealed"`
	User         domain.User `json:"user"`
	SavedAt      time.Time   `json:"saved_at"`
}

// SessionStoreAdapter implements domain.SessionStore on Redis. It holds the
// bearer credential and last-known user record between runs, keyed per API
// environment.
type SessionStoreAdapter struct {
	redisClient    *redis.Client
	configProvider config.Provider
	logger         domain.Logger
}

// NewSessionStoreAdapter creates a new instance of SessionStoreAdapter.
func NewSessionStoreAdapter(redisClient *redis.Client, cfgProvider config.Provider, logger domain.Logger) *SessionStoreAdapter {
	if redisClient == nil {
		// Critical setup error; nothing sensible to do without a client.
		panic("redisClient cannot be nil in NewSessionStoreAdapter")
	}
	if logger == nil {
		panic("logger cannot be nil in NewSessionStoreAdapter")
	}
	return &SessionStoreAdapter{
		redisClient:    redisClient,
		configProvider: cfgProvider,
		logger:         logger,
	}
}

func (a *SessionStoreAdapter) key() string {
	return statekeys.SessionKey(a.configProvider.Get().API.BaseURL)
}

// Save seals the bearer and writes the session record. No TTL: the session
// is durable until Clear or a forced logout.
func (a *SessionStoreAdapter) Save(ctx context.Context, s *domain.PersistedSession) error {
	aesKey := a.configProvider.Get().State.AESKey
	sealed, err := crypto.SealAESGCM(aesKey, []byte(s.Bearer))
	if err != nil {
		a.logger.Error(ctx, "Failed to seal bearer credential for persistence", "error", err.Error())
		return fmt.Errorf("seal bearer: %w", err)
	}

	record := persistedRecord{
		BearerSealed: sealed,
		User:         s.User,
		SavedAt:      s.SavedAt,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	key := a.key()
	if err := a.redisClient.Set(ctx, key, payload, 0).Err(); err != nil {
		a.logger.Error(ctx, "Failed to persist session", "key", key, "error", err.Error())
		return fmt.Errorf("redis SET for session key '%s' failed: %w", key, err)
	}
	a.logger.Debug(ctx, "Session persisted", "key", key, "user_id", s.User.ID)
	return nil
}

// Load reads the persisted session and unseals the bearer. Returns
// domain.ErrNoSession when nothing is stored. An unseal failure (key rotated,
// value tampered) is reported as ErrNoSession after clearing the record: a
// fresh login is the only recovery.
func (a *SessionStoreAdapter) Load(ctx context.Context) (*domain.PersistedSession, error) {
	key := a.key()
	val, err := a.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		a.logger.Debug(ctx, "No persisted session found", "key", key)
		return nil, domain.ErrNoSession
	}
	if err != nil {
		a.logger.Error(ctx, "Failed to read persisted session", "key", key, "error", err.Error())
		return nil, fmt.Errorf("redis GET for session key '%s' failed: %w", key, err)
	}

	var record persistedRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		a.logger.Error(ctx, "Failed to unmarshal persisted session", "key", key, "error", err.Error())
		return nil, fmt.Errorf("unmarshal session record for key '%s': %w", key, err)
	}

	aesKey := a.configProvider.Get().State.AESKey
	bearer, err := crypto.OpenAESGCM(aesKey, record.BearerSealed)
	if err != nil {
		a.logger.Warn(ctx, "Persisted bearer could not be unsealed, discarding session", "key", key, "error", err.Error())
		_ = a.redisClient.Del(ctx, key).Err()
		return nil, domain.ErrNoSession
	}

	a.logger.Debug(ctx, "Persisted session restored", "key", key, "user_id", record.User.ID)
	return &domain.PersistedSession{
		Bearer:  string(bearer),
		User:    record.User,
		SavedAt: record.SavedAt,
	}, nil
}

// Clear removes the persisted session. Clearing an absent session is a no-op.
func (a *SessionStoreAdapter) Clear(ctx context.Context) error {
	key := a.key()
	if err := a.redisClient.Del(ctx, key).Err(); err != nil {
		a.logger.Error(ctx, "Failed to clear persisted session", "key", key, "error", err.Error())
		return fmt.Errorf("redis DEL for session key '%s' failed: %w", key, err)
	}
	return nil
}
