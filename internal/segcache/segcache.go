// Package segcache keeps downloaded stream segments in Redis so a track that
// was played recently does not have to come from the network again.
package segcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout = 5 * time.Second
	opTimeout      = 2 * time.Second
)

// Cache is a Redis-backed segment store. A nil *Cache is valid and never hits.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Key returns the Redis key of one segment.
func Key(trackID int64, index int) string {
	return fmt.Sprintf("segment:%d:%d", trackID, index)
}

// Connect opens the cache at addr and checks it answers. An empty addr
// disables caching and returns a nil Cache.
func Connect(ctx context.Context, addr string, ttl time.Duration) (*Cache, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Debug().Str("addr", addr).Dur("ttl", ttl).Msg("Segment cache connected")
	return &Cache{client: client, ttl: ttl}, nil
}

// Get returns the cached segment, or false on a miss or any Redis failure.
func (c *Cache) Get(ctx context.Context, trackID int64, index int) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, Key(trackID, index)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Int64("track", trackID).Int("segment", index).Msg("Segment cache read failed")
		}
		return nil, false
	}
	return data, true
}

// Set stores a segment. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, trackID int64, index int, data []byte) {
	if c == nil || len(data) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, Key(trackID, index), data, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Int64("track", trackID).Int("segment", index).Msg("Segment cache write failed")
	}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
