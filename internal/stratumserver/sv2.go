package stratumserver

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/transport"
)

// serveSV2 runs the binary-framed Stratum V2 message loop for one
// downstream connection.
func (s *Server) serveSV2(ctx context.Context, conn *domain.Connection, netConn net.Conn) {
	sendCh := make(chan *transport.Frame, s.cfg.SendQueueSize)
	done := make(chan struct{})

	go s.sv2Writer(netConn, sendCh, done)
	defer close(sendCh)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := transport.ReadFrame(netConn)
		if err != nil {
			return
		}
		conn.LastActivity = time.Now()

		resp, err := s.handleSV2Frame(ctx, conn, frame)
		if err != nil {
			s.logger.WithError(err).Debug("stratumserver: sv2 frame handling failed")
			continue
		}
		if resp == nil {
			continue
		}
		s.enqueueSV2(sendCh, resp, conn)
	}
}

func (s *Server) sv2Writer(netConn net.Conn, sendCh <-chan *transport.Frame, done chan<- struct{}) {
	defer close(done)
	for f := range sendCh {
		if err := transport.WriteFrame(netConn, f.Header.ExtensionType, f.Header.MsgType, f.Payload); err != nil {
			return
		}
	}
}

func (s *Server) enqueueSV2(sendCh chan<- *transport.Frame, f *transport.Frame, conn *domain.Connection) {
	select {
	case sendCh <- f:
	default:
		s.logger.WithField("connection_id", conn.ID).Warn("stratumserver: send queue full, dropping message")
	}
}

func (s *Server) handleSV2Frame(ctx context.Context, conn *domain.Connection, frame *transport.Frame) (*transport.Frame, error) {
	switch frame.Header.MsgType {
	case transport.MsgSetupConnection:
		conn.Authorized = true
		payload := make([]byte, 6)
		binary.LittleEndian.PutUint16(payload[0:2], 1)
		return &transport.Frame{
			Header:  transport.FrameHeader{MsgType: transport.MsgSetupConnectionSuccess, MsgLength: uint32(len(payload))},
			Payload: payload,
		}, nil

	case transport.MsgSubmitSharesStandard:
		if len(frame.Payload) < 16 {
			return s.sv2ShareError(transport.ErrInvalidJobID), nil
		}
		jobID := binary.LittleEndian.Uint32(frame.Payload[4:8])
		nonce := binary.LittleEndian.Uint32(frame.Payload[8:12])
		ntime := binary.LittleEndian.Uint32(frame.Payload[12:16])

		share := &domain.Share{
			ConnectionID: conn.ID,
			JobID:        strconv.FormatUint(uint64(jobID), 10),
			NTime:        ntime,
			Nonce:        nonce,
			Difficulty:   conn.Difficulty,
			SubmittedAt:  time.Now(),
		}
		result, err := s.router.OnShare(ctx, conn, share)
		share.Result = result
		if err != nil || result == domain.ShareInvalid {
			s.metrics.SharesRejected.Inc()
			s.persistShare(ctx, share, false)
			return s.sv2ShareError(transport.ErrLowDifficultyShare), nil
		}
		s.metrics.SharesAccepted.Inc()
		s.persistShare(ctx, share, true)
		payload := make([]byte, 4)
		binary.LittleEndian.PutUint32(payload, jobID)
		return &transport.Frame{
			Header:  transport.FrameHeader{MsgType: transport.MsgSubmitSharesSuccess, MsgLength: uint32(len(payload))},
			Payload: payload,
		}, nil

	default:
		return nil, nil
	}
}

func (s *Server) sv2ShareError(code uint8) *transport.Frame {
	payload := []byte{code}
	return &transport.Frame{
		Header:  transport.FrameHeader{MsgType: transport.MsgSubmitSharesError, MsgLength: uint32(len(payload))},
		Payload: payload,
	}
}
