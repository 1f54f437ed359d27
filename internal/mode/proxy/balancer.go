// Package proxy implements Proxy mode: SV1<->SV2 translation for legacy
// miners against a pool of SV2 upstream pools, with load balancing and
// failover.
package proxy

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/sv2d/sv2d/internal/domain"
)

// Strategy selects one upstream from a candidate set.
type Strategy string

const (
	StrategyRoundRobin         Strategy = "round_robin"
	StrategyWeightedRoundRobin Strategy = "weighted_round_robin"
	StrategyLeastConnections   Strategy = "least_connections"
	StrategyRandom             Strategy = "random"
)

// ErrNoUpstreams is returned when every configured upstream is unhealthy.
var ErrNoUpstreams = errors.New("proxy: no healthy upstream pools available")

// UpstreamSet manages a proxy's configured upstream pools: health state,
// failure-threshold disabling, and load-balanced selection. Safe for
// concurrent use.
type UpstreamSet struct {
	mu       sync.RWMutex
	pools    []*domain.UpstreamPool
	strategy Strategy
	rrIndex  int

	failThreshold int
}

// NewUpstreamSet builds a set from the configured pools.
func NewUpstreamSet(pools []*domain.UpstreamPool, strategy Strategy, failThreshold int) *UpstreamSet {
	for _, p := range pools {
		if p.Status == "" {
			p.Status = domain.UpstreamHealthy
		}
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	return &UpstreamSet{pools: pools, strategy: strategy, failThreshold: failThreshold}
}

func (u *UpstreamSet) healthy() []*domain.UpstreamPool {
	out := make([]*domain.UpstreamPool, 0, len(u.pools))
	for _, p := range u.pools {
		if p.Status != domain.UpstreamDisabled {
			out = append(out, p)
		}
	}
	return out
}

// Select picks the next upstream according to the configured strategy.
func (u *UpstreamSet) Select() (*domain.UpstreamPool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	candidates := u.healthy()
	if len(candidates) == 0 {
		return nil, ErrNoUpstreams
	}

	switch u.strategy {
	case StrategyWeightedRoundRobin:
		return u.selectWeighted(candidates), nil
	case StrategyLeastConnections:
		return u.selectLeastConnections(candidates), nil
	case StrategyRandom:
		return candidates[rand.Intn(len(candidates))], nil
	default:
		return u.selectRoundRobin(candidates), nil
	}
}

func (u *UpstreamSet) selectRoundRobin(candidates []*domain.UpstreamPool) *domain.UpstreamPool {
	p := candidates[u.rrIndex%len(candidates)]
	u.rrIndex++
	return p
}

func (u *UpstreamSet) selectWeighted(candidates []*domain.UpstreamPool) *domain.UpstreamPool {
	total := 0
	for _, p := range candidates {
		w := p.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	if total == 0 {
		return candidates[0]
	}
	target := rand.Intn(total)
	acc := 0
	for _, p := range candidates {
		w := p.Weight
		if w <= 0 {
			w = 1
		}
		acc += w
		if target < acc {
			return p
		}
	}
	return candidates[len(candidates)-1]
}

func (u *UpstreamSet) selectLeastConnections(candidates []*domain.UpstreamPool) *domain.UpstreamPool {
	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.ActiveConns < best.ActiveConns {
			best = p
		}
	}
	return best
}

// RecordFailure marks a consecutive failure against pool, disabling it once
// ConsecutiveFail reaches the configured threshold.
func (u *UpstreamSet) RecordFailure(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, p := range u.pools {
		if p.Name == name {
			p.ConsecutiveFail++
			if p.ConsecutiveFail >= u.failThreshold {
				p.Status = domain.UpstreamDisabled
			} else {
				p.Status = domain.UpstreamDegraded
			}
			return
		}
	}
}

// RecordSuccess clears a pool's failure count and marks it healthy again —
// used both after a normal successful round-trip and after a probe during
// re-test.
func (u *UpstreamSet) RecordSuccess(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, p := range u.pools {
		if p.Name == name {
			p.ConsecutiveFail = 0
			p.Status = domain.UpstreamHealthy
			return
		}
	}
}

// Snapshot returns a copy of all pools' current state, for status reporting.
func (u *UpstreamSet) Snapshot() []domain.UpstreamPool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]domain.UpstreamPool, len(u.pools))
	for i, p := range u.pools {
		out[i] = *p
	}
	return out
}
