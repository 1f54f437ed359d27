package pool

import (
	"context"
	"sync"
	"time"

	"github.com/sv2d/sv2d/internal/bitcoinrpc"
	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/mode"
	"github.com/sv2d/sv2d/internal/observability"
	"github.com/sv2d/sv2d/internal/validator"
)

// Handler implements mode.Handler for Pool mode: many downstream miners,
// server-assigned vardiff, shares accumulated per worker for an external
// payout engine.
type Handler struct {
	rpc     *bitcoinrpc.RetryingClient
	logger  *observability.Logger
	vardiff *Engine
	tracker *validator.DuplicateTracker

	mu       sync.RWMutex
	template *domain.WorkTemplate

	statsMu sync.Mutex
	stats   domain.MiningStats

	refreshInterval time.Duration
	stopCh          chan struct{}
}

// Config configures a Pool mode Handler.
type Config struct {
	RefreshInterval time.Duration
	Vardiff         VardiffConfig
}

// New builds a Pool mode handler.
func New(rpc *bitcoinrpc.RetryingClient, logger *observability.Logger, cfg Config) *Handler {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	return &Handler{
		rpc:             rpc,
		logger:          logger,
		vardiff:         NewEngine(cfg.Vardiff),
		tracker:         validator.NewDuplicateTracker(100_000),
		refreshInterval: cfg.RefreshInterval,
		stopCh:          make(chan struct{}),
	}
}

func (h *Handler) Mode() domain.Mode { return domain.ModePool }

func (h *Handler) Start(ctx context.Context) error {
	if err := h.refreshTemplate(ctx); err != nil {
		return err
	}
	go h.refreshLoop(ctx)
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	close(h.stopCh)
	return nil
}

func (h *Handler) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(h.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			if err := h.refreshTemplate(ctx); err != nil {
				h.logger.WithError(err).Warn("pool: template refresh failed")
			}
		}
	}
}

func (h *Handler) refreshTemplate(ctx context.Context) error {
	tmpl, err := h.rpc.GetBlockTemplate(ctx)
	if err != nil {
		return err
	}
	wt := &domain.WorkTemplate{
		JobID:     jobIDFromTemplate(tmpl),
		PrevHash:  tmpl.PreviousBlockHash,
		Height:    tmpl.Height,
		Version:   tmpl.Version,
		Bits:      tmpl.Bits,
		CurTime:   tmpl.CurTime,
		MinTime:   tmpl.MinTime,
		FetchedAt: time.Now(),
	}
	h.mu.Lock()
	h.template = wt
	h.mu.Unlock()
	return nil
}

func jobIDFromTemplate(t *bitcoinrpc.BlockTemplate) string {
	return t.PreviousBlockHash[:8] + "-" + t.Bits
}

func (h *Handler) OnConnect(ctx context.Context, conn *domain.Connection) error {
	diff := h.vardiff.Register(conn.ID, conn.HardwareClass, time.Now())
	conn.Difficulty = diff
	conn.Extranonce1 = extranonce1FromID(conn.ID)
	conn.Extranonce2Size = 4
	h.statsMu.Lock()
	h.stats.PoolHashrate += 0
	h.statsMu.Unlock()
	return nil
}

func (h *Handler) OnDisconnect(ctx context.Context, conn *domain.Connection) {
	h.vardiff.Unregister(conn.ID)
}

func (h *Handler) OnShare(ctx context.Context, conn *domain.Connection, share *domain.Share) (domain.ShareResult, error) {
	h.mu.RLock()
	tmpl := h.template
	h.mu.RUnlock()

	result, err := validator.Validate(validator.ValidateInput{
		Connection:     conn,
		Template:       tmpl,
		Share:          share,
		ExpectedEN2Len: 4,
		Tracker:        h.tracker,
	})

	h.statsMu.Lock()
	if result == domain.ShareValid || result == domain.ShareBlock {
		h.stats.SharesValid++
	} else {
		h.stats.SharesInvalid++
	}
	if result == domain.ShareBlock {
		h.stats.BlocksFound++
	}
	h.statsMu.Unlock()

	if result == domain.ShareValid || result == domain.ShareBlock {
		if newDiff, changed := h.vardiff.RecordShare(conn.ID, time.Now()); changed {
			conn.Difficulty = newDiff
		}
	}
	return result, err
}

func (h *Handler) GetWork(ctx context.Context, conn *domain.Connection) (*domain.WorkTemplate, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.template, nil
}

func (h *Handler) Statistics() domain.MiningStats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.stats
}

// extranonce1FromID derives a connection's 4-byte (8 hex char) extranonce1
// from the leading hex digits of its UUID, falling back to a fixed value
// when the ID is shorter than that (only possible in tests that construct a
// bare Connection directly).
func extranonce1FromID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return "00000000"
}

// RegisterFactory wires Pool mode into the mode router. Actual daemon
// wiring (rpc client, logger, config) happens in cmd/sv2d; mode packages
// only expose the factory hook point, kept here for import-driven
// registration the way the router package expects it.
func RegisterFactory(build func(ctx context.Context) (*Handler, error)) {
	mode.RegisterFactory(domain.ModePool, func(ctx context.Context) (mode.Handler, error) {
		return build(ctx)
	})
}
