package mode

import (
	"context"
	"fmt"
	"sync"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

// Router holds the single currently-active Handler and serializes mode
// switches against concurrent connection-event dispatch.
type Router struct {
	mu      sync.RWMutex
	current Handler
}

// NewRouter builds an empty router; call Switch to bring up the initial
// mode before accepting connections.
func NewRouter() *Router {
	return &Router{}
}

// Current returns the active handler, or nil if none has been started yet.
func (r *Router) Current() Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Switch transitions to mode m. If a handler is already active and the
// transition is not in the hot-switch compatibility matrix, Switch refuses
// with ErrModeIncompatible — the caller must restart the process instead.
func (r *Router) Switch(ctx context.Context, m domain.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		from := r.current.Mode()
		if !CanHotSwitch(from, m) {
			return sv2derr.New(sv2derr.KindConfig, "mode.Router.Switch", fmt.Errorf("%w: %s -> %s", sv2derr.ErrModeIncompatible, from, m))
		}
	}

	factory, ok := factories[m]
	if !ok {
		return sv2derr.New(sv2derr.KindConfig, "mode.Router.Switch", fmt.Errorf("no factory registered for mode %s", m))
	}

	next, err := factory(ctx)
	if err != nil {
		return sv2derr.New(sv2derr.KindConfig, "mode.Router.Switch", err)
	}

	if r.current != nil {
		if err := r.current.Stop(ctx); err != nil {
			return sv2derr.New(sv2derr.KindInternal, "mode.Router.Switch", err)
		}
	}
	if err := next.Start(ctx); err != nil {
		return sv2derr.New(sv2derr.KindInternal, "mode.Router.Switch", err)
	}
	r.current = next
	return nil
}

// Dispatch helpers delegate to the active handler, returning
// ErrModeIncompatible (reused as a generic "not ready") if none is active.

func (r *Router) OnConnect(ctx context.Context, conn *domain.Connection) error {
	h := r.Current()
	if h == nil {
		return sv2derr.New(sv2derr.KindInternal, "mode.Router.OnConnect", fmt.Errorf("no active mode handler"))
	}
	return h.OnConnect(ctx, conn)
}

func (r *Router) OnDisconnect(ctx context.Context, conn *domain.Connection) {
	if h := r.Current(); h != nil {
		h.OnDisconnect(ctx, conn)
	}
}

func (r *Router) OnShare(ctx context.Context, conn *domain.Connection, share *domain.Share) (domain.ShareResult, error) {
	h := r.Current()
	if h == nil {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindInternal, "mode.Router.OnShare", fmt.Errorf("no active mode handler"))
	}
	return h.OnShare(ctx, conn, share)
}

func (r *Router) GetWork(ctx context.Context, conn *domain.Connection) (*domain.WorkTemplate, error) {
	h := r.Current()
	if h == nil {
		return nil, sv2derr.New(sv2derr.KindInternal, "mode.Router.GetWork", fmt.Errorf("no active mode handler"))
	}
	return h.GetWork(ctx, conn)
}

// Statistics returns the active handler's mining statistics snapshot, or
// the zero value if no handler is active yet.
func (r *Router) Statistics() domain.MiningStats {
	h := r.Current()
	if h == nil {
		return domain.MiningStats{}
	}
	return h.Statistics()
}
