package stratumserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sv2d/sv2d/internal/database"
	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/mode"
	"github.com/sv2d/sv2d/internal/observability"
	"github.com/sv2d/sv2d/internal/sv2derr"
	"github.com/sv2d/sv2d/internal/transport"
)

// Config controls the Stratum server's resource limits.
type Config struct {
	BindAddr        string
	MaxConnections  int
	SendQueueSize   int
	ShutdownGrace   time.Duration
	SendDropGrace   time.Duration
}

// DefaultConfig matches the external-interface defaults: a 256-message
// send queue, 30s shutdown grace, and a 5s grace before dropping a
// connection whose send queue stays full.
func DefaultConfig(bindAddr string) Config {
	return Config{
		BindAddr:       bindAddr,
		MaxConnections: 100_000,
		SendQueueSize:  256,
		ShutdownGrace:  30 * time.Second,
		SendDropGrace:  5 * time.Second,
	}
}

// Repository is what the stratum server needs from persistence: recording
// each connection's lifetime and each scored share transactionally.
type Repository interface {
	database.ShareWriter
	database.ConnectionWriter
}

// Server is the Stratum TCP accept loop and per-connection dispatcher.
type Server struct {
	cfg      Config
	router   *mode.Router
	registry *Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
	repo     Repository

	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.Mutex
	cancel  context.CancelFunc
	closers map[string]func()
}

// New builds a Server. repo persists each connection's lifetime and every
// scored share (with the owning connection's counters) transactionally; a
// nil repo is accepted for tests that don't exercise persistence.
func New(cfg Config, router *mode.Router, logger *observability.Logger, metrics *observability.Metrics, repo Repository) *Server {
	return &Server{cfg: cfg, router: router, registry: NewRegistry(), logger: logger, metrics: metrics, repo: repo, closers: make(map[string]func())}
}

// persistShare records a scored share against its connection, logging
// rather than failing the share response if persistence errors — a
// miner's accept/reject must not block on storage availability.
func (s *Server) persistShare(ctx context.Context, share *domain.Share, valid bool) {
	if s.repo == nil {
		return
	}
	row := &database.ShareRow{
		ConnectionID: share.ConnectionID,
		JobID:        share.JobID,
		Extranonce2:  share.Extranonce2,
		NTime:        int64(share.NTime),
		Nonce:        int64(share.Nonce),
		Difficulty:   share.Difficulty,
		Result:       string(share.Result),
		Hash:         share.Hash,
		SubmittedAt:  share.SubmittedAt,
	}
	if err := s.repo.RecordShare(ctx, row, valid); err != nil {
		s.logger.WithError(err).Warn("stratumserver: failed to persist share")
	}
}

// persistConnection records a newly accepted connection's opening metadata.
func (s *Server) persistConnection(ctx context.Context, conn *domain.Connection) {
	if s.repo == nil {
		return
	}
	row := &database.ConnectionRow{
		ID:          conn.ID,
		RemoteAddr:  conn.RemoteAddr,
		Protocol:    string(conn.Protocol),
		WorkerName:  conn.WorkerName,
		ConnectedAt: conn.ConnectedAt,
	}
	if err := s.repo.RecordConnection(ctx, row); err != nil {
		s.logger.WithError(err).Warn("stratumserver: failed to persist connection")
	}
}

// persistDisconnect stamps a tracked connection's close time.
func (s *Server) persistDisconnect(ctx context.Context, id string, at time.Time) {
	if s.repo == nil {
		return
	}
	if err := s.repo.RecordDisconnect(ctx, id, at); err != nil {
		s.logger.WithError(err).Warn("stratumserver: failed to persist disconnect")
	}
}

// Start begins listening and accepting connections. It blocks until Stop
// is called or the listener errors.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		return sv2derr.New(sv2derr.KindNetwork, "stratumserver.Start", err)
	}
	s.listener = ln

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.WithError(err).Warn("stratumserver: accept failed")
				continue
			}
		}

		if s.registry.Count() >= s.cfg.MaxConnections {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

// Stop cancels the accept loop and every active connection, waiting up to
// ShutdownGrace for in-flight work to drain before returning.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn("stratumserver: shutdown grace elapsed with connections still active")
	}
	return nil
}

func (s *Server) handle(ctx context.Context, netConn net.Conn) {
	defer s.wg.Done()
	defer netConn.Close()

	peek := transport.NewPeekConn(netConn)
	proto, err := transport.Detect(ctx, peek)
	if err != nil {
		s.logger.WithError(err).Debug("stratumserver: protocol detection failed")
		return
	}

	conn := domain.NewConnection(netConn.RemoteAddr().String(), time.Now())
	conn.Protocol = proto
	s.registry.Put(conn)
	s.metrics.Connections.Inc()
	s.persistConnection(ctx, conn)

	s.mu.Lock()
	s.closers[conn.ID] = func() { netConn.Close() }
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.closers, conn.ID)
		s.mu.Unlock()
		s.registry.Remove(conn.ID)
		s.metrics.Connections.Dec()
		s.router.OnDisconnect(ctx, conn)
		s.persistDisconnect(context.Background(), conn.ID, time.Now())
	}()

	if err := s.router.OnConnect(ctx, conn); err != nil {
		s.logger.WithError(err).Debug("stratumserver: connection rejected by mode handler")
		return
	}

	switch proto {
	case domain.ProtocolSV1:
		s.serveSV1(ctx, conn, peek)
	case domain.ProtocolSV2:
		s.serveSV2(ctx, conn, peek)
	}
}

// Connection returns the tracked Connection for id, used by the management
// API to answer GET /api/v1/connections/:id.
func (s *Server) Connection(id string) (*domain.Connection, bool) {
	return s.registry.Get(id)
}

// ConnectionCount returns the number of currently tracked connections.
func (s *Server) ConnectionCount() int { return s.registry.Count() }

// Connections returns a snapshot of every currently tracked connection, used
// by the management API's paginated listing endpoint.
func (s *Server) Connections() []*domain.Connection {
	var out []*domain.Connection
	s.registry.Range(func(c *domain.Connection) { out = append(out, c) })
	return out
}

// Disconnect force-closes the connection identified by id, if one is
// currently tracked. The underlying goroutine tears the rest of its state
// down (registry removal, mode handler OnDisconnect) once the close
// unblocks its read loop.
func (s *Server) Disconnect(id string) bool {
	s.mu.Lock()
	closeFn, ok := s.closers[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	closeFn()
	return true
}
