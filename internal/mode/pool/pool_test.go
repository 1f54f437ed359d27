package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/bitcoinrpc"
	"github.com/sv2d/sv2d/internal/domain"
)

func newTestHandler() *Handler {
	cfg := Config{RefreshInterval: time.Hour, Vardiff: DefaultVardiffConfig()}
	return New(nil, nil, cfg)
}

func TestNewFillsDefaultRefreshInterval(t *testing.T) {
	h := New(nil, nil, Config{})
	assert.Equal(t, 30*time.Second, h.refreshInterval)
}

func TestHandlerMode(t *testing.T) {
	h := newTestHandler()
	assert.Equal(t, domain.ModePool, h.Mode())
}

func TestOnConnectSeedsVardiffDifficulty(t *testing.T) {
	h := newTestHandler()
	conn := &domain.Connection{ID: "c1", HardwareClass: domain.HardwareASIC}
	require.NoError(t, h.OnConnect(context.Background(), conn))
	assert.Equal(t, float64(8192), conn.Difficulty)
}

func TestOnDisconnectClearsVardiffState(t *testing.T) {
	h := newTestHandler()
	conn := &domain.Connection{ID: "c1", HardwareClass: domain.HardwareCPU}
	require.NoError(t, h.OnConnect(context.Background(), conn))
	h.OnDisconnect(context.Background(), conn)
	assert.Equal(t, float64(0), h.vardiff.Difficulty("c1"))
}

func TestOnShareRejectsWithoutTemplate(t *testing.T) {
	h := newTestHandler()
	conn := &domain.Connection{ID: "c1", Authorized: true, Difficulty: 1}
	require.NoError(t, h.OnConnect(context.Background(), conn))

	result, err := h.OnShare(context.Background(), conn, &domain.Share{JobID: "job", Extranonce2: "aabbccdd", NTime: 1})
	assert.Equal(t, domain.ShareInvalid, result)
	assert.Error(t, err)

	stats := h.Statistics()
	assert.Equal(t, int64(1), stats.SharesInvalid)
}

func TestOnShareTracksStatistics(t *testing.T) {
	h := newTestHandler()
	h.mu.Lock()
	h.template = &domain.WorkTemplate{JobID: "job-1", MinTime: 0, CurTime: 1_000_000}
	h.mu.Unlock()

	conn := &domain.Connection{ID: "c1", Authorized: true, Difficulty: 1}
	require.NoError(t, h.OnConnect(context.Background(), conn))

	_, err := h.OnShare(context.Background(), conn, &domain.Share{
		JobID: "job-999", Extranonce2: "aabbccdd", NTime: 500,
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), h.Statistics().SharesInvalid)
}

func TestJobIDFromTemplate(t *testing.T) {
	tmpl := &bitcoinrpc.BlockTemplate{PreviousBlockHash: "0123456789abcdef", Bits: "1d00ffff"}
	assert.Equal(t, "01234567-1d00ffff", jobIDFromTemplate(tmpl))
}
