package proxy

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/mode"
	"github.com/sv2d/sv2d/internal/observability"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

// downstreamState is the per-connection translation state a proxy keeps for
// each legacy SV1 miner it bridges to an SV2 upstream. The remaining
// per-downstream session fields (user agent, session id, authorization,
// extranonce1/2, difficulty) live on the shared domain.Connection that every
// mode handler receives, rather than being duplicated here.
type downstreamState struct {
	jobs     *JobMap
	upstream *domain.UpstreamPool
	client   *UpstreamClient
}

// Handler implements mode.Handler for Proxy mode.
type Handler struct {
	upstreams *UpstreamSet
	cache     *HealthCache
	logger    *observability.Logger
	probe     time.Duration

	mu    sync.Mutex
	conns map[string]*downstreamState

	statsMu sync.Mutex
	stats   domain.MiningStats

	stopCh chan struct{}
}

// Config configures Proxy mode.
type Config struct {
	Upstreams     []*domain.UpstreamPool
	Strategy      Strategy
	FailThreshold int
	ProbeInterval time.Duration
}

// New builds a Proxy mode handler. cache may be nil to disable cross-restart
// health persistence.
func New(cfg Config, cache *HealthCache, logger *observability.Logger) *Handler {
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	return &Handler{
		upstreams: NewUpstreamSet(cfg.Upstreams, cfg.Strategy, cfg.FailThreshold),
		cache:     cache,
		logger:    logger,
		probe:     cfg.ProbeInterval,
		conns:     make(map[string]*downstreamState),
		stopCh:    make(chan struct{}),
	}
}

func (h *Handler) Mode() domain.Mode { return domain.ModeProxy }

func (h *Handler) Start(ctx context.Context) error {
	if h.cache != nil {
		h.cache.Restore(ctx, h.upstreams)
	}
	go h.probeLoop(ctx)
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	close(h.stopCh)
	return nil
}

// probeLoop periodically re-tests disabled upstreams so a pool that
// recovers is brought back into rotation without an operator restart, then
// persists the resulting health snapshot.
func (h *Handler) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(h.probe)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.probeDisabled(ctx)
			if h.cache == nil {
				continue
			}
			for _, p := range h.upstreams.Snapshot() {
				p := p
				if err := h.cache.Save(ctx, &p); err != nil {
					h.logger.WithError(err).Warn("proxy: failed to persist upstream health")
				}
			}
		}
	}
}

// probeDisabled attempts a real handshake against every currently-disabled
// upstream; a pool that answers is marked healthy again so it rejoins
// selection without an operator restart.
func (h *Handler) probeDisabled(ctx context.Context) {
	for _, p := range h.upstreams.Snapshot() {
		if p.Status != domain.UpstreamDisabled {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := DialUpstream(probeCtx, p.Address, nil)
		cancel()
		if err != nil {
			continue
		}
		client.Close()
		h.upstreams.RecordSuccess(p.Name)
	}
}

// OnConnect selects an upstream pool for the new downstream connection and
// dials it, one SV2 standard mining channel per downstream miner. The
// channel's upstream-assigned extranonce1/extranonce2_size are copied onto
// conn so the generic mining.subscribe handler replies with them verbatim,
// per the subscribe-translation requirement: reply
// [subscriptions, extranonce1, extranonce2_size] using what the upstream
// actually assigned, not a locally invented value.
func (h *Handler) OnConnect(ctx context.Context, conn *domain.Connection) error {
	up, err := h.upstreams.Select()
	if err != nil {
		return sv2derr.New(sv2derr.KindConnection, "proxy.OnConnect", err)
	}

	client, err := DialUpstream(ctx, up.Address, nil)
	if err != nil {
		h.upstreams.RecordFailure(up.Name)
		return sv2derr.New(sv2derr.KindConnection, "proxy.OnConnect", err)
	}
	h.upstreams.RecordSuccess(up.Name)

	conn.Extranonce1 = hex.EncodeToString(client.Extranonce1())
	conn.Extranonce2Size = client.Extranonce2Size()
	conn.SessionID = conn.ID

	h.mu.Lock()
	h.conns[conn.ID] = &downstreamState{jobs: NewJobMap(), upstream: up, client: client}
	h.mu.Unlock()
	up.ActiveConns++
	return nil
}

func (h *Handler) OnDisconnect(ctx context.Context, conn *domain.Connection) {
	h.mu.Lock()
	st, ok := h.conns[conn.ID]
	delete(h.conns, conn.ID)
	h.mu.Unlock()
	if !ok {
		return
	}
	if st.upstream != nil {
		st.upstream.ActiveConns--
	}
	if st.client != nil {
		st.client.Close()
	}
}

// OnShare forwards a downstream share to the connection's upstream channel,
// carrying the channel's extranonce1 and the downstream-submitted
// extranonce2 verbatim, and maps the real upstream response back into a
// ShareResult. If the upstream connection drops mid-flight, the share is
// dropped rather than replayed against a different upstream (failover does
// not carry in-flight shares across pools).
func (h *Handler) OnShare(ctx context.Context, conn *domain.Connection, share *domain.Share) (domain.ShareResult, error) {
	h.mu.Lock()
	st, ok := h.conns[conn.ID]
	h.mu.Unlock()
	if !ok || st.client == nil {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindConnection, "proxy.OnShare", sv2derr.ErrConnectionClosed)
	}

	sv2JobID, ok := st.jobs.SV2JobID(share.JobID)
	if !ok {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindShareInvalid, "proxy.OnShare", sv2derr.ErrStaleJob)
	}

	extranonce2, err := hex.DecodeString(share.Extranonce2)
	if err != nil {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindShareInvalid, "proxy.OnShare", fmt.Errorf("invalid extranonce2: %w", err))
	}

	accepted, sv2Code, err := st.client.SubmitShare(ctx, sv2JobID, share.Nonce, share.NTime, extranonce2)
	if err != nil {
		h.upstreams.RecordFailure(st.upstream.Name)
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindNetwork, "proxy.OnShare", err)
	}
	if !accepted {
		sv1Code, _ := MapSV2ErrorToSV1(sv2Code)
		h.statsMu.Lock()
		h.stats.SharesInvalid++
		h.statsMu.Unlock()
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindShareInvalid, "proxy.OnShare", fmt.Errorf("upstream rejected share (sv1 code %d)", sv1Code))
	}

	h.upstreams.RecordSuccess(st.upstream.Name)
	h.statsMu.Lock()
	h.stats.SharesValid++
	h.statsMu.Unlock()
	return domain.ShareValid, nil
}

// GetWork translates the connection's upstream channel's current job into a
// WorkTemplate the stratum server can push to the downstream miner as a
// mining.notify, minting a new SV1-facing job ID the first time a given SV2
// job is seen and reusing it on subsequent calls.
func (h *Handler) GetWork(ctx context.Context, conn *domain.Connection) (*domain.WorkTemplate, error) {
	h.mu.Lock()
	st, ok := h.conns[conn.ID]
	h.mu.Unlock()
	if !ok || st.client == nil {
		return nil, sv2derr.New(sv2derr.KindInternal, "proxy.GetWork", sv2derr.ErrNoUpstreams)
	}

	job := st.client.CurrentJob()
	if job == nil {
		return nil, sv2derr.New(sv2derr.KindTemplate, "proxy.GetWork", sv2derr.ErrStaleJob)
	}

	sv1JobID, ok := st.jobs.SV1JobID(job.jobID)
	if !ok {
		sv1JobID = strconv.FormatUint(uint64(job.jobID), 16)
		st.jobs.Put(sv1JobID, job.jobID)
	}

	return &domain.WorkTemplate{
		JobID:          sv1JobID,
		PrevHash:       string(job.prevHash),
		Version:        job.version,
		Bits:           fmt.Sprintf("%08x", job.bits),
		CurTime:        job.ntime,
		CoinbasePrefix: job.coinbasePrefix,
		CoinbaseSuffix: job.coinbaseSuffix,
		MerkleBranch:   job.merkleBranch,
		FetchedAt:      time.Now(),
	}, nil
}

func (h *Handler) Statistics() domain.MiningStats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.stats
}

// RegisterFactory wires Proxy mode into the mode router.
func RegisterFactory(build func(ctx context.Context) (*Handler, error)) {
	mode.RegisterFactory(domain.ModeProxy, func(ctx context.Context) (mode.Handler, error) {
		return build(ctx)
	})
}
