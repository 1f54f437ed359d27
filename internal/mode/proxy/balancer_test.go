package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/domain"
)

func pools() []*domain.UpstreamPool {
	return []*domain.UpstreamPool{
		{Name: "a", Address: "a:3333", Weight: 1},
		{Name: "b", Address: "b:3333", Weight: 1},
	}
}

func TestNewUpstreamSetDefaultsHealthyStatus(t *testing.T) {
	set := NewUpstreamSet(pools(), StrategyRoundRobin, 0)
	snap := set.Snapshot()
	for _, p := range snap {
		assert.Equal(t, domain.UpstreamHealthy, p.Status)
	}
}

func TestSelectRoundRobinCycles(t *testing.T) {
	set := NewUpstreamSet(pools(), StrategyRoundRobin, 3)
	first, err := set.Select()
	require.NoError(t, err)
	second, err := set.Select()
	require.NoError(t, err)
	third, err := set.Select()
	require.NoError(t, err)

	assert.NotEqual(t, first.Name, second.Name)
	assert.Equal(t, first.Name, third.Name)
}

func TestSelectReturnsErrNoUpstreamsWhenAllDisabled(t *testing.T) {
	set := NewUpstreamSet(pools(), StrategyRoundRobin, 1)
	set.RecordFailure("a")
	set.RecordFailure("b")

	_, err := set.Select()
	assert.ErrorIs(t, err, ErrNoUpstreams)
}

func TestRecordFailureDisablesAfterThreshold(t *testing.T) {
	set := NewUpstreamSet(pools(), StrategyRoundRobin, 2)
	set.RecordFailure("a")
	snap := snapshotByName(set, "a")
	assert.Equal(t, domain.UpstreamDegraded, snap.Status)

	set.RecordFailure("a")
	snap = snapshotByName(set, "a")
	assert.Equal(t, domain.UpstreamDisabled, snap.Status)
}

func TestRecordSuccessClearsFailures(t *testing.T) {
	set := NewUpstreamSet(pools(), StrategyRoundRobin, 2)
	set.RecordFailure("a")
	set.RecordSuccess("a")

	snap := snapshotByName(set, "a")
	assert.Equal(t, domain.UpstreamHealthy, snap.Status)
	assert.Equal(t, 0, snap.ConsecutiveFail)
}

func TestSelectLeastConnections(t *testing.T) {
	ps := pools()
	ps[0].ActiveConns = 5
	ps[1].ActiveConns = 1
	set := NewUpstreamSet(ps, StrategyLeastConnections, 3)

	picked, err := set.Select()
	require.NoError(t, err)
	assert.Equal(t, "b", picked.Name)
}

func TestSelectWeightedRoundRobinFavorsHigherWeight(t *testing.T) {
	ps := []*domain.UpstreamPool{
		{Name: "heavy", Weight: 99},
		{Name: "light", Weight: 1},
	}
	set := NewUpstreamSet(ps, StrategyWeightedRoundRobin, 3)

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		p, err := set.Select()
		require.NoError(t, err)
		counts[p.Name]++
	}
	assert.Greater(t, counts["heavy"], counts["light"])
}

func snapshotByName(set *UpstreamSet, name string) domain.UpstreamPool {
	for _, p := range set.Snapshot() {
		if p.Name == name {
			return p
		}
	}
	return domain.UpstreamPool{}
}
