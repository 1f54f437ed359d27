package stratumserver

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/transport"
)

// jobPollInterval governs how often an SV1 connection's active mode handler
// is polled for a new job to push as mining.notify. Mode handlers that never
// change WorkTemplate.JobID (or that error, e.g. Client mode) simply never
// trigger a push.
const jobPollInterval = 1 * time.Second

// serveSV1 runs the request/response loop for a Stratum V1 downstream
// connection until it disconnects or the daemon shuts down. Handling is
// strictly sequential per connection: one goroutine, one message at a time,
// matching the way a single mining client actually talks.
func (s *Server) serveSV1(ctx context.Context, conn *domain.Connection, netConn net.Conn) {
	reader := transport.NewSV1Reader(netConn)
	sendCh := make(chan []byte, s.cfg.SendQueueSize)
	done := make(chan struct{})
	connDone := make(chan struct{})

	var pushWG sync.WaitGroup
	pushWG.Add(1)
	go func() {
		defer pushWG.Done()
		s.jobPushLoop(ctx, conn, sendCh, connDone)
	}()

	go s.sv1Writer(netConn, sendCh, done)
	defer func() {
		close(connDone)
		pushWG.Wait()
		close(sendCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := reader.Next()
		if err != nil {
			return
		}
		conn.LastActivity = time.Now()

		resp, err := s.handleSV1Message(ctx, conn, msg)
		if err != nil {
			s.logger.WithError(err).Debug("stratumserver: sv1 message handling failed")
			continue
		}
		if resp == nil {
			continue
		}
		encoded, err := transport.EncodeSV1(resp)
		if err != nil {
			s.logger.WithError(err).Warn("stratumserver: failed to encode sv1 response")
			continue
		}
		s.enqueue(sendCh, encoded, conn)
	}
}

func (s *Server) sv1Writer(netConn net.Conn, sendCh <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for b := range sendCh {
		if _, err := netConn.Write(b); err != nil {
			return
		}
	}
}

// enqueue attempts a non-blocking send; if the connection's send queue is
// already full the message is dropped rather than blocking the read loop,
// which would stall share submission for every other connection waiting on
// nothing but this one slow client.
func (s *Server) enqueue(sendCh chan<- []byte, b []byte, conn *domain.Connection) {
	select {
	case sendCh <- b:
	default:
		s.logger.WithField("connection_id", conn.ID).Warn("stratumserver: send queue full, dropping message")
	}
}

func (s *Server) handleSV1Message(ctx context.Context, conn *domain.Connection, msg *transport.SV1Message) (interface{}, error) {
	switch msg.Method {
	case "mining.subscribe":
		// conn.Extranonce1/Extranonce2Size are assigned by the mode
		// handler's OnConnect, which always runs before the first message
		// on a connection — Solo/Pool assign locally, Proxy forwards the
		// value acquired from its upstream channel.
		size := conn.Extranonce2Size
		if size == 0 {
			size = 4
		}
		return transport.NewSubscribeResult(msg.ID, conn.ID, conn.Extranonce1, size), nil

	case "mining.authorize":
		worker := paramString(msg.Params, 0)
		conn.WorkerName = worker
		conn.Authorized = true
		return transport.NewBoolResult(msg.ID, true), nil

	case "mining.submit":
		share := &domain.Share{
			ConnectionID: conn.ID,
			JobID:        paramString(msg.Params, 1),
			Extranonce2:  paramString(msg.Params, 2),
			NTime:        parseHexUint32(paramString(msg.Params, 3)),
			Nonce:        parseHexUint32(paramString(msg.Params, 4)),
			Difficulty:   conn.Difficulty,
			SubmittedAt:  time.Now(),
		}
		result, err := s.router.OnShare(ctx, conn, share)
		share.Result = result
		if err != nil {
			s.persistShare(ctx, share, false)
			return transport.NewErrorResult(msg.ID, 20, err.Error()), nil
		}
		if result == domain.ShareInvalid {
			s.metrics.SharesRejected.Inc()
			s.persistShare(ctx, share, false)
			return transport.NewErrorResult(msg.ID, 23, "low difficulty share"), nil
		}
		s.metrics.SharesAccepted.Inc()
		s.persistShare(ctx, share, true)
		return transport.NewBoolResult(msg.ID, true), nil

	default:
		return transport.NewErrorResult(msg.ID, 20, "unsupported method"), nil
	}
}

func paramString(params []interface{}, i int) string {
	if i >= len(params) {
		return ""
	}
	s, _ := params[i].(string)
	return s
}

func parseHexUint32(s string) uint32 {
	v, _ := strconv.ParseUint(s, 16, 32)
	return uint32(v)
}

// jobPushLoop polls the active mode handler's GetWork for conn and pushes a
// mining.notify whenever the returned template's job id changes. This is
// the one place the generic SV1 job translation (SV2 mining job -> SV1
// notify) happens, shared by every mode: Solo/Pool refresh WorkTemplate from
// the Bitcoin RPC client, Proxy refreshes it by translating its upstream
// channel's current job.
func (s *Server) jobPushLoop(ctx context.Context, conn *domain.Connection, sendCh chan<- []byte, connDone <-chan struct{}) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	var lastJobID string
	for {
		select {
		case <-ctx.Done():
			return
		case <-connDone:
			return
		case <-ticker.C:
		}

		tmpl, err := s.router.GetWork(ctx, conn)
		if err != nil || tmpl == nil || tmpl.JobID == "" || tmpl.JobID == lastJobID {
			continue
		}
		lastJobID = tmpl.JobID

		encoded, err := transport.EncodeSV1(buildNotify(tmpl))
		if err != nil {
			s.logger.WithError(err).Warn("stratumserver: failed to encode mining.notify")
			continue
		}
		s.enqueue(sendCh, encoded, conn)
	}
}

// buildNotify translates a WorkTemplate into an SV1 mining.notify, hex
// encoding every binary field.
func buildNotify(tmpl *domain.WorkTemplate) *transport.SV1Notification {
	branch := make([]string, len(tmpl.MerkleBranch))
	for i, h := range tmpl.MerkleBranch {
		branch[i] = hex.EncodeToString(h)
	}
	return transport.NewNotify(
		tmpl.JobID,
		hex.EncodeToString([]byte(tmpl.PrevHash)),
		hex.EncodeToString(tmpl.CoinbasePrefix),
		hex.EncodeToString(tmpl.CoinbaseSuffix),
		branch,
		fmt.Sprintf("%08x", tmpl.Version),
		tmpl.Bits,
		fmt.Sprintf("%08x", tmpl.CurTime),
		true,
	)
}
