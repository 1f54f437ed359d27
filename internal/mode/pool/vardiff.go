// Package pool implements Pool mode: SV1/SV2 downstream mining with
// server-managed variable difficulty.
package pool

import (
	"sync"
	"time"

	"github.com/sv2d/sv2d/internal/domain"
)

// VardiffConfig controls the difficulty adjustment engine.
type VardiffConfig struct {
	SharesPerMinuteTarget float64
	RetargetInterval      time.Duration
	MinShares             int
	MinDifficulty         float64
	MaxDifficulty         float64
	DampingFactor         float64 // 0.5: adjustment applies at half strength
}

// DefaultVardiffConfig matches the pool-mode defaults named in the spec:
// a target share rate, a damping factor of 0.5, and a wide difficulty
// range left to the operator's configuration.
func DefaultVardiffConfig() VardiffConfig {
	return VardiffConfig{
		SharesPerMinuteTarget: 15,
		RetargetInterval:      90 * time.Second,
		MinShares:             5,
		MinDifficulty:         1,
		MaxDifficulty:         1 << 20,
		DampingFactor:         0.5,
	}
}

// minerState tracks one connection's recent share history for vardiff.
type minerState struct {
	mu           sync.Mutex
	difficulty   float64
	shareCount   int
	windowStart  time.Time
	lastRetarget time.Time
}

// Engine manages per-connection difficulty state across a pool.
type Engine struct {
	cfg   VardiffConfig
	mu    sync.RWMutex
	state map[string]*minerState
}

// NewEngine builds a vardiff Engine.
func NewEngine(cfg VardiffConfig) *Engine {
	return &Engine{cfg: cfg, state: make(map[string]*minerState)}
}

// Register seeds a connection's initial difficulty from its hardware class
// guess, clamped to the configured bounds.
func (e *Engine) Register(connID string, hw domain.HardwareClass, now time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	diff := clamp(hw.BaseDifficulty(), e.cfg.MinDifficulty, e.cfg.MaxDifficulty)
	e.state[connID] = &minerState{difficulty: diff, windowStart: now, lastRetarget: now}
	return diff
}

// Unregister drops a connection's vardiff state on disconnect.
func (e *Engine) Unregister(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.state, connID)
}

// RecordShare records an accepted share and returns a new difficulty and
// true if a retarget occurred; otherwise the current difficulty and false.
func (e *Engine) RecordShare(connID string, now time.Time) (float64, bool) {
	e.mu.RLock()
	st, ok := e.state[connID]
	e.mu.RUnlock()
	if !ok {
		return 0, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.shareCount++
	elapsed := now.Sub(st.windowStart)
	if elapsed < e.cfg.RetargetInterval || st.shareCount < e.cfg.MinShares {
		return st.difficulty, false
	}

	actualRate := float64(st.shareCount) / elapsed.Minutes()
	ratio := actualRate / e.cfg.SharesPerMinuteTarget

	// Apply the adjustment at DampingFactor strength: a ratio of 2.0 (too
	// many shares, difficulty too low) only moves the target halfway to
	// doubling difficulty, smoothing out noisy bursts.
	dampedRatio := 1 + (ratio-1)*e.cfg.DampingFactor
	if dampedRatio <= 0 {
		dampedRatio = 0.1
	}

	newDiff := clamp(st.difficulty*dampedRatio, e.cfg.MinDifficulty, e.cfg.MaxDifficulty)
	changed := newDiff != st.difficulty
	st.difficulty = newDiff
	st.shareCount = 0
	st.windowStart = now
	st.lastRetarget = now
	return newDiff, changed
}

// Difficulty returns a connection's current difficulty, or 0 if unknown.
func (e *Engine) Difficulty(connID string) float64 {
	e.mu.RLock()
	st, ok := e.state[connID]
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.difficulty
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
