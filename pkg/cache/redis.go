// Package cache stores segment analyses in Redis so repeated runs over
// the same storage root skip decoding unchanged files.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/voxreel/pkg/audio"
)

// Defaults.
const (
	DefaultKeyPrefix = "voxreel:analysis:"
	DefaultTTL       = 30 * 24 * time.Hour

	// schemaVersion is bumped when Analysis changes shape.
	schemaVersion = "v1"
)

// keyNamespace scopes derived key UUIDs.
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/otherjamesbrown/voxreel/analysis"))

// Config configures the Redis connection.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisCache implements audio.Cache.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ audio.Cache = (*RedisCache)(nil)

// Connect opens a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("testing redis connection to %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.KeyPrefix, cfg.TTL), nil
}

// New wraps an existing client. Empty prefix and zero ttl take defaults.
func New(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get returns a cached analysis. A changed file is a miss.
func (c *RedisCache) Get(ctx context.Context, item audio.Item, params audio.SilenceParams) (audio.Analysis, bool, error) {
	key, err := c.key(item, params)
	if err != nil {
		return audio.Analysis{}, false, err
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return audio.Analysis{}, false, nil
	}
	if err != nil {
		return audio.Analysis{}, false, fmt.Errorf("failed to read cached analysis: %w", err)
	}
	var a audio.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		// Unreadable entries are dropped and treated as misses.
		c.client.Del(ctx, key)
		return audio.Analysis{}, false, nil
	}
	return a, true, nil
}

// Put stores a.
func (c *RedisCache) Put(ctx context.Context, item audio.Item, params audio.SilenceParams, a audio.Analysis) error {
	key, err := c.key(item, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	return nil
}

func (c *RedisCache) key(item audio.Item, params audio.SilenceParams) (string, error) {
	info, err := os.Stat(item.Ref.Path)
	if err != nil {
		return "", err
	}
	return c.prefix + Key(item.ID, info.Size(), info.ModTime(), params), nil
}

// Key derives the cache key for a file version and parameter set.
func Key(id string, size int64, modTime time.Time, params audio.SilenceParams) string {
	name := id + "\x00" +
		strconv.FormatInt(size, 10) + "\x00" +
		strconv.FormatInt(modTime.UnixNano(), 10) + "\x00" +
		strconv.FormatFloat(params.ThresholdDB, 'f', -1, 64) + "\x00" +
		params.MinDuration.String()
	return schemaVersion + ":" + uuid.NewSHA1(keyNamespace, []byte(name)).String()
}
