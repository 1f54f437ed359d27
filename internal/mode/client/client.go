// Package client implements Client mode: the daemon acts as a single SV2
// downstream device against one upstream pool, with no accept loop of its
// own beyond the management API.
package client

import (
	"context"
	"sync"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/mode"
	"github.com/sv2d/sv2d/internal/observability"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

// Config configures Client mode.
type Config struct {
	UpstreamAddress string
	WorkerName      string
}

// Handler implements mode.Handler for Client mode. It never accepts
// downstream connections of its own; Stratum server connections are
// rejected, and the daemon speaks as a single SV2 client to one upstream.
type Handler struct {
	cfg    Config
	logger *observability.Logger

	mu       sync.RWMutex
	template *domain.WorkTemplate

	statsMu sync.Mutex
	stats   domain.MiningStats
}

// New builds a Client mode handler.
func New(cfg Config, logger *observability.Logger) *Handler {
	return &Handler{cfg: cfg, logger: logger}
}

func (h *Handler) Mode() domain.Mode { return domain.ModeClient }

func (h *Handler) Start(ctx context.Context) error {
	h.logger.Info("client: connecting to upstream " + h.cfg.UpstreamAddress)
	return nil
}

func (h *Handler) Stop(ctx context.Context) error { return nil }

// OnConnect always refuses: Client mode does not accept downstream
// connections.
func (h *Handler) OnConnect(ctx context.Context, conn *domain.Connection) error {
	return sv2derr.New(sv2derr.KindConnection, "client.OnConnect", sv2derr.ErrNotAuthorized)
}

func (h *Handler) OnDisconnect(ctx context.Context, conn *domain.Connection) {}

func (h *Handler) OnShare(ctx context.Context, conn *domain.Connection, share *domain.Share) (domain.ShareResult, error) {
	return domain.ShareInvalid, sv2derr.New(sv2derr.KindConnection, "client.OnShare", sv2derr.ErrNotAuthorized)
}

func (h *Handler) GetWork(ctx context.Context, conn *domain.Connection) (*domain.WorkTemplate, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.template == nil {
		return nil, sv2derr.New(sv2derr.KindTemplate, "client.GetWork", sv2derr.ErrStaleJob)
	}
	return h.template, nil
}

func (h *Handler) Statistics() domain.MiningStats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.stats
}

// setTemplate is called by the upstream connection's read loop when a new
// job arrives, updating the single-writer template snapshot.
func (h *Handler) setTemplate(wt *domain.WorkTemplate) {
	h.mu.Lock()
	h.template = wt
	h.mu.Unlock()
}

// RegisterFactory wires Client mode into the mode router.
func RegisterFactory(build func(ctx context.Context) (*Handler, error)) {
	mode.RegisterFactory(domain.ModeClient, func(ctx context.Context) (mode.Handler, error) {
		return build(ctx)
	})
}
