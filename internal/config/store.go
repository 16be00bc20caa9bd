package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"parley/internal/logging"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 30 * time.Second
)

// Store fetches the session config document for a room id.
type Store interface {
	SessionConfig(ctx context.Context, roomID string) (*SessionConfig, error)
}

// RedisOptions configures the Redis-backed session config store.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	TLS      bool

	// CacheMaxSize and CacheTTL bound the in-process config cache. Zero
	// values fall back to defaults.
	CacheMaxSize int
	CacheTTL     time.Duration
}

type cacheEntry struct {
	cfg      *SessionConfig
	storedAt time.Time
}

// RedisStore reads session config documents from Redis with a small LRU in
// front so repeated lookups during one session do not hit the network.
type RedisStore struct {
	client *redis.Client
	cache  *lru.Cache[string, cacheEntry]
	ttl    time.Duration
	logger logging.Logger
}

// NewRedisStore connects to Redis and prepares the config cache.
func NewRedisStore(opts RedisOptions, logger logging.Logger) (*RedisStore, error) {
	if opts.CacheMaxSize <= 0 {
		opts.CacheMaxSize = defaultCacheMaxSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](opts.CacheMaxSize)
	if err != nil {
		return nil, fmt.Errorf("creating config cache: %w", err)
	}
	redisOpts := &redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}
	return &RedisStore{
		client: redis.NewClient(redisOpts),
		cache:  cache,
		ttl:    opts.CacheTTL,
		logger: logging.OrNop(logger),
	}, nil
}

// SessionConfig returns the parsed document for roomID.
func (s *RedisStore) SessionConfig(ctx context.Context, roomID string) (*SessionConfig, error) {
	if entry, ok := s.cache.Get(roomID); ok {
		if time.Since(entry.storedAt) < s.ttl {
			return entry.cfg, nil
		}
		s.cache.Remove(roomID)
	}

	raw, err := s.client.Get(ctx, roomID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("no session config for room %s", roomID)
		}
		return nil, fmt.Errorf("fetching session config for room %s: %w", roomID, err)
	}

	cfg, err := ParseSessionConfig(raw)
	if err != nil {
		return nil, err
	}
	s.cache.Add(roomID, cacheEntry{cfg: cfg, storedAt: time.Now()})
	return cfg, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// StaticStore serves fixed documents, used by tests and local development.
type StaticStore map[string]*SessionConfig

// SessionConfig implements Store.
func (s StaticStore) SessionConfig(_ context.Context, roomID string) (*SessionConfig, error) {
	cfg, ok := s[roomID]
	if !ok {
		return nil, fmt.Errorf("no session config for room %s", roomID)
	}
	return cfg, nil
}
