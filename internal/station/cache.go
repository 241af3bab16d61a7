package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blackstrype/trainline/internal/domain"
)

// RedisCache stores resolved stations as JSON under "<service>:station:<id>".
type RedisCache struct {
	client      redis.UniversalClient
	serviceName string
	ttl         time.Duration
}

// NewRedisCache returns a cache backed by client. A zero ttl keeps entries forever.
func NewRedisCache(client redis.UniversalClient, serviceName string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, serviceName: serviceName, ttl: ttl}
}

// Get returns the cached station for id, or ok=false on a miss.
func (r *RedisCache) Get(ctx context.Context, id string) (domain.Station, bool, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Station{}, false, nil
	}
	if err != nil {
		return domain.Station{}, false, fmt.Errorf("station.RedisCache.Get: %w", err)
	}

	var st domain.Station
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.Station{}, false, fmt.Errorf("station.RedisCache.Get: decode: %w", err)
	}
	return st, true, nil
}

// Set stores st. The unavailable sentinel is never cached.
func (r *RedisCache) Set(ctx context.Context, st domain.Station) error {
	if st.Name == domain.StationUnavailable {
		return nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("station.RedisCache.Set: encode: %w", err)
	}
	if err := r.client.Set(ctx, r.key(st.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("station.RedisCache.Set: %w", err)
	}
	return nil
}

func (r *RedisCache) key(id string) string {
	return fmt.Sprintf("%s:station:%s", r.serviceName, id)
}
