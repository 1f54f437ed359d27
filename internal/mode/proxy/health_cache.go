package proxy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sv2d/sv2d/internal/domain"
)

// HealthCache persists upstream pool health across daemon restarts, so an
// unattended proxy does not re-probe every pool from scratch after every
// restart. Best-effort: a cache miss or Redis outage just means probing
// starts cold, it never blocks startup.
type HealthCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewHealthCache wraps an existing redis client.
func NewHealthCache(rdb *redis.Client, ttl time.Duration) *HealthCache {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &HealthCache{rdb: rdb, ttl: ttl}
}

type cachedHealth struct {
	Status          domain.UpstreamPoolStatus `json:"status"`
	ConsecutiveFail int                       `json:"consecutive_fail"`
}

func key(name string) string { return "sv2d:upstream_health:" + name }

// Save stores a pool's current health state.
func (h *HealthCache) Save(ctx context.Context, p *domain.UpstreamPool) error {
	b, err := json.Marshal(cachedHealth{Status: p.Status, ConsecutiveFail: p.ConsecutiveFail})
	if err != nil {
		return err
	}
	return h.rdb.Set(ctx, key(p.Name), b, h.ttl).Err()
}

// Restore loads a previously cached health state into set's matching pool,
// if present. Returns no error on a cache miss.
func (h *HealthCache) Restore(ctx context.Context, set *UpstreamSet) {
	set.mu.Lock()
	defer set.mu.Unlock()
	for _, p := range set.pools {
		b, err := h.rdb.Get(ctx, key(p.Name)).Bytes()
		if err != nil {
			continue
		}
		var c cachedHealth
		if json.Unmarshal(b, &c) != nil {
			continue
		}
		p.Status = c.Status
		p.ConsecutiveFail = c.ConsecutiveFail
	}
}
