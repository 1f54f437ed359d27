package recovery

import (
	"sync"
)

// GracefulDegradation tracks per-feature failure counts and independently
// disables a feature once its failures cross a threshold, without taking
// down the rest of the daemon. A single success resets a feature's counter
// and re-enables it.
type GracefulDegradation struct {
	mu        sync.Mutex
	threshold int
	failures  map[string]int
	disabled  map[string]bool
}

// NewGracefulDegradation builds a registry with the given per-feature
// failure threshold (failures strictly less than threshold keep the feature
// enabled; reaching threshold disables it).
func NewGracefulDegradation(threshold int) *GracefulDegradation {
	return &GracefulDegradation{
		threshold: threshold,
		failures:  make(map[string]int),
		disabled:  make(map[string]bool),
	}
}

// IsFeatureEnabled reports whether feature is currently enabled. Unknown
// features default to enabled.
func (g *GracefulDegradation) IsFeatureEnabled(feature string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.disabled[feature]
}

// RecordFeatureFailure increments feature's failure count, disabling it once
// the count reaches the configured threshold.
func (g *GracefulDegradation) RecordFeatureFailure(feature string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[feature]++
	if g.failures[feature] >= g.threshold {
		g.disabled[feature] = true
	}
}

// RecordFeatureSuccess clears feature's failure count and re-enables it.
func (g *GracefulDegradation) RecordFeatureSuccess(feature string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[feature] = 0
	delete(g.disabled, feature)
}

// FeatureFailureCount returns feature's current consecutive-failure count.
func (g *GracefulDegradation) FeatureFailureCount(feature string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures[feature]
}

// DisabledFeatures returns the names of all currently-disabled features.
func (g *GracefulDegradation) DisabledFeatures() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.disabled))
	for f, d := range g.disabled {
		if d {
			out = append(out, f)
		}
	}
	return out
}
