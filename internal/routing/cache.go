package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"taxi-dispatch/internal/domain"
)

type Provider interface {
	Route(ctx context.Context, start, end domain.Location) (domain.Route, error)
}

// CachedProvider memoises routes in redis keyed by coordinates rounded to
// four decimals (about 11m). Cache errors never fail a lookup; they fall
// through to the wrapped provider.
type CachedProvider struct {
	next   Provider
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewCachedProvider(next Provider, client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *CachedProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedProvider{next: next, client: client, ttl: ttl, log: log}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (c *CachedProvider) Route(ctx context.Context, start, end domain.Location) (domain.Route, error) {
	key := cacheKey(start, end)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var route domain.Route
		if err := json.Unmarshal(data, &route); err == nil {
			return route, nil
		}
		c.log.WithField("key", key).Warn("discarding malformed cached route")
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).Warn("route cache read failed")
	}

	route, err := c.next.Route(ctx, start, end)
	if err != nil {
		return domain.Route{}, err
	}
	if data, err := json.Marshal(route); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.WithError(err).Warn("route cache write failed")
		}
	}
	return route, nil
}

func cacheKey(start, end domain.Location) string {
	return fmt.Sprintf("route:%.4f,%.4f:%.4f,%.4f", start.Lat, start.Lng, end.Lat, end.Lng)
}
