package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sv2d/sv2d/internal/domain"
)

func TestEngineRegisterSeedsFromHardwareClass(t *testing.T) {
	e := NewEngine(DefaultVardiffConfig())
	now := time.Now()

	diff := e.Register("conn-1", domain.HardwareASIC, now)
	assert.Equal(t, float64(8192), diff)
	assert.Equal(t, float64(8192), e.Difficulty("conn-1"))
}

func TestEngineRegisterClampsToBounds(t *testing.T) {
	cfg := DefaultVardiffConfig()
	cfg.MaxDifficulty = 100
	e := NewEngine(cfg)

	diff := e.Register("conn-1", domain.HardwareASIC, time.Now())
	assert.Equal(t, float64(100), diff)
}

func TestEngineUnregisterDropsState(t *testing.T) {
	e := NewEngine(DefaultVardiffConfig())
	e.Register("conn-1", domain.HardwareCPU, time.Now())
	e.Unregister("conn-1")
	assert.Equal(t, float64(0), e.Difficulty("conn-1"))
}

func TestRecordShareUnknownConnection(t *testing.T) {
	e := NewEngine(DefaultVardiffConfig())
	diff, changed := e.RecordShare("nope", time.Now())
	assert.Equal(t, float64(0), diff)
	assert.False(t, changed)
}

func TestRecordShareDoesNotRetargetBeforeInterval(t *testing.T) {
	cfg := DefaultVardiffConfig()
	cfg.RetargetInterval = time.Minute
	cfg.MinShares = 1
	e := NewEngine(cfg)

	start := time.Now()
	e.Register("conn-1", domain.HardwareCPU, start)
	_, changed := e.RecordShare("conn-1", start.Add(10*time.Second))
	assert.False(t, changed)
}

func TestRecordShareRetargetsUpAfterBurstOfShares(t *testing.T) {
	cfg := VardiffConfig{
		SharesPerMinuteTarget: 15,
		RetargetInterval:      10 * time.Second,
		MinShares:             5,
		MinDifficulty:         1,
		MaxDifficulty:         1 << 20,
		DampingFactor:         0.5,
	}
	e := NewEngine(cfg)
	start := time.Now()
	e.Register("conn-1", domain.HardwareCPU, start)

	// Five shares inside 11s is well above the 15-per-minute target rate.
	now := start.Add(11 * time.Second)
	var lastDiff float64
	var lastChanged bool
	for i := 0; i < 5; i++ {
		lastDiff, lastChanged = e.RecordShare("conn-1", now)
	}
	assert.True(t, lastChanged)
	assert.Greater(t, lastDiff, float64(1), "a burst well above target rate should raise difficulty")
}

func TestRecordShareResetsWindowAfterRetarget(t *testing.T) {
	cfg := DefaultVardiffConfig()
	cfg.RetargetInterval = time.Minute
	cfg.MinShares = 1
	e := NewEngine(cfg)
	start := time.Now()
	e.Register("conn-1", domain.HardwareGPU, start)

	_, changed := e.RecordShare("conn-1", start.Add(2*time.Minute))
	assert.True(t, changed, "a single share over a long idle window should retarget difficulty down")

	_, changedAgain := e.RecordShare("conn-1", start.Add(2*time.Minute+time.Second))
	assert.False(t, changedAgain, "the window just reset, so immediately after it should not retarget again")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, float64(1), clamp(0.5, 1, 10))
	assert.Equal(t, float64(10), clamp(20, 1, 10))
	assert.Equal(t, float64(5), clamp(5, 1, 10))
}
