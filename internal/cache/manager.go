package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const keyNamespace = "shopify:analytics"

// Manager caches query results with a deterministic key scheme. Every
// operation is fail-soft: a backend fault during Get is a miss, a fault
// during Set is a logged no-op. The cache is a performance optimization,
// never a correctness dependency.
type Manager struct {
	backend Backend
	ttl     time.Duration
	logger  *zap.Logger
}

// New builds a Manager on the preferred backend: redis when redisURL is set
// and reachable, otherwise the in-process map.
func New(ctx context.Context, redisURL string, ttl time.Duration, logger *zap.Logger) *Manager {
	if redisURL != "" {
		backend, err := NewRedisBackend(ctx, redisURL)
		if err == nil {
			logger.Info("redis_connected", zap.String("url", redisURL))
			return &Manager{backend: backend, ttl: ttl, logger: logger}
		}
		logger.Warn("redis_connection_failed", zap.Error(err))
	}

	logger.Info("using_in_memory_cache")
	return &Manager{backend: NewMemoryBackend(), ttl: ttl, logger: logger}
}

// NewWithBackend builds a Manager on an explicit backend. Used in tests.
func NewWithBackend(backend Backend, ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{backend: backend, ttl: ttl, logger: logger}
}

// Key derives the cache key for a (store, query) pair. The query text is
// whitespace-normalized and case-folded first so generator formatting noise
// collapses to one key.
func (m *Manager) Key(storeID, query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := md5.Sum([]byte(normalized))
	return fmt.Sprintf("%s:%s:%s", keyNamespace, storeID, hex.EncodeToString(sum[:])[:12])
}

// Get unmarshals the cached value for key into dest. A backend fault or a
// decode failure is treated as a miss.
func (m *Manager) Get(ctx context.Context, key string, dest any) bool {
	value, found, err := m.backend.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache_get_error", zap.Error(err), zap.String("key", key))
		return false
	}
	if !found {
		m.logger.Debug("cache_miss", zap.String("key", key))
		return false
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		m.logger.Warn("cache_decode_error", zap.Error(err), zap.String("key", key))
		return false
	}

	m.logger.Debug("cache_hit", zap.String("key", key))
	return true
}

// Set stores value under key with the default TTL.
func (m *Manager) Set(ctx context.Context, key string, value any) bool {
	return m.SetWithTTL(ctx, key, value, m.ttl)
}

func (m *Manager) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) bool {
	serialized, err := json.Marshal(value)
	if err != nil {
		m.logger.Warn("cache_encode_error", zap.Error(err), zap.String("key", key))
		return false
	}

	if err := m.backend.Set(ctx, key, string(serialized), ttl); err != nil {
		m.logger.Warn("cache_set_error", zap.Error(err), zap.String("key", key))
		return false
	}

	m.logger.Debug("cache_set", zap.String("key", key), zap.Duration("ttl", ttl))
	return true
}

func (m *Manager) Delete(ctx context.Context, key string) bool {
	if err := m.backend.Delete(ctx, key); err != nil {
		m.logger.Warn("cache_delete_error", zap.Error(err), zap.String("key", key))
		return false
	}
	return true
}

// InvalidateStore removes every entry derived from storeID and returns the
// number of keys removed.
func (m *Manager) InvalidateStore(ctx context.Context, storeID string) int {
	prefix := fmt.Sprintf("%s:%s:", keyNamespace, storeID)
	count, err := m.backend.DeleteByPrefix(ctx, prefix)
	if err != nil {
		m.logger.Warn("cache_invalidate_error", zap.Error(err), zap.String("store_id", storeID))
		return 0
	}

	m.logger.Info("cache_invalidated", zap.String("store_id", storeID), zap.Int("keys_deleted", count))
	return count
}

func (m *Manager) Close() error {
	return m.backend.Close()
}
