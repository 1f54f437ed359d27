package mode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

type fakeHandler struct {
	mode     domain.Mode
	startErr error
	stopErr  error
	started  bool
	stopped  bool
	stats    domain.MiningStats
}

func (h *fakeHandler) Mode() domain.Mode { return h.mode }
func (h *fakeHandler) Start(ctx context.Context) error {
	h.started = true
	return h.startErr
}
func (h *fakeHandler) Stop(ctx context.Context) error {
	h.stopped = true
	return h.stopErr
}
func (h *fakeHandler) OnConnect(ctx context.Context, conn *domain.Connection) error { return nil }
func (h *fakeHandler) OnDisconnect(ctx context.Context, conn *domain.Connection)    {}
func (h *fakeHandler) OnShare(ctx context.Context, conn *domain.Connection, share *domain.Share) (domain.ShareResult, error) {
	return domain.ShareValid, nil
}
func (h *fakeHandler) GetWork(ctx context.Context, conn *domain.Connection) (*domain.WorkTemplate, error) {
	return nil, nil
}
func (h *fakeHandler) Statistics() domain.MiningStats { return h.stats }

func registerFake(t *testing.T, m domain.Mode, h *fakeHandler) {
	t.Helper()
	h.mode = m
	RegisterFactory(m, func(ctx context.Context) (Handler, error) {
		return h, nil
	})
	t.Cleanup(func() { delete(factories, m) })
}

func TestCanHotSwitch(t *testing.T) {
	assert.True(t, CanHotSwitch(domain.ModeSolo, domain.ModeSolo))
	assert.True(t, CanHotSwitch(domain.ModeSolo, domain.ModePool))
	assert.True(t, CanHotSwitch(domain.ModePool, domain.ModeSolo))
	assert.False(t, CanHotSwitch(domain.ModeSolo, domain.ModeProxy))
	assert.False(t, CanHotSwitch(domain.ModeProxy, domain.ModeClient))
}

func TestRouterSwitchNoFactory(t *testing.T) {
	r := NewRouter()
	err := r.Switch(context.Background(), domain.Mode("nonexistent"))
	require.Error(t, err)
	assert.Nil(t, r.Current())
}

func TestRouterSwitchStartsHandler(t *testing.T) {
	r := NewRouter()
	h := &fakeHandler{}
	registerFake(t, domain.ModeSolo, h)

	require.NoError(t, r.Switch(context.Background(), domain.ModeSolo))
	assert.True(t, h.started)
	assert.Equal(t, Handler(h), r.Current())
}

func TestRouterSwitchIncompatibleRefusesWithoutStoppingCurrent(t *testing.T) {
	r := NewRouter()
	solo := &fakeHandler{}
	proxy := &fakeHandler{}
	registerFake(t, domain.ModeSolo, solo)
	registerFake(t, domain.ModeProxy, proxy)

	require.NoError(t, r.Switch(context.Background(), domain.ModeSolo))
	err := r.Switch(context.Background(), domain.ModeProxy)

	require.Error(t, err)
	assert.ErrorIs(t, err, sv2derr.ErrModeIncompatible)
	assert.False(t, proxy.started, "the incompatible handler must never be started")
	assert.False(t, solo.stopped, "the current handler stays up when the switch is refused")
	assert.Equal(t, Handler(solo), r.Current())
}

func TestRouterSwitchCompatibleStopsPrevious(t *testing.T) {
	r := NewRouter()
	solo := &fakeHandler{}
	pool := &fakeHandler{}
	registerFake(t, domain.ModeSolo, solo)
	registerFake(t, domain.ModePool, pool)

	require.NoError(t, r.Switch(context.Background(), domain.ModeSolo))
	require.NoError(t, r.Switch(context.Background(), domain.ModePool))

	assert.True(t, solo.stopped)
	assert.True(t, pool.started)
	assert.Equal(t, Handler(pool), r.Current())
}

func TestRouterSwitchFactoryError(t *testing.T) {
	r := NewRouter()
	RegisterFactory(domain.ModeSolo, func(ctx context.Context) (Handler, error) {
		return nil, errors.New("boom")
	})
	t.Cleanup(func() { delete(factories, domain.ModeSolo) })

	err := r.Switch(context.Background(), domain.ModeSolo)
	require.Error(t, err)
	assert.Nil(t, r.Current())
}

func TestRouterDispatchWithNoActiveHandler(t *testing.T) {
	r := NewRouter()

	err := r.OnConnect(context.Background(), &domain.Connection{})
	assert.Error(t, err)

	_, err = r.OnShare(context.Background(), &domain.Connection{}, &domain.Share{})
	assert.Error(t, err)

	_, err = r.GetWork(context.Background(), &domain.Connection{})
	assert.Error(t, err)

	assert.Equal(t, domain.MiningStats{}, r.Statistics())

	// OnDisconnect is a no-op, never panics, with nothing active.
	r.OnDisconnect(context.Background(), &domain.Connection{})
}

func TestRouterDispatchDelegatesToActiveHandler(t *testing.T) {
	r := NewRouter()
	h := &fakeHandler{stats: domain.MiningStats{SharesValid: 7}}
	registerFake(t, domain.ModeSolo, h)
	require.NoError(t, r.Switch(context.Background(), domain.ModeSolo))

	require.NoError(t, r.OnConnect(context.Background(), &domain.Connection{}))
	result, err := r.OnShare(context.Background(), &domain.Connection{}, &domain.Share{})
	require.NoError(t, err)
	assert.Equal(t, domain.ShareValid, result)
	assert.Equal(t, domain.MiningStats{SharesValid: 7}, r.Statistics())
}
