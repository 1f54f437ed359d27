package transport

import (
	"context"
	"time"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

// DetectionByteBudget is the number of bytes read before giving up on
// classifying a connection's protocol.
const DetectionByteBudget = 6

// DefaultDetectionTimeout bounds how long Detect will wait for enough bytes
// to classify the connection.
const DefaultDetectionTimeout = 5 * time.Second

// Detect peeks the first byte of conn and classifies it as SV1 (JSON-RPC,
// starts with '{' or ASCII whitespace) or SV2 (binary frame header). It
// returns ErrUnknownProtocol if classification fails within the byte budget.
func Detect(ctx context.Context, conn *PeekConn) (domain.Protocol, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultDetectionTimeout)
	defer cancel()

	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := conn.Peek(1)
		ch <- result{b, err}
	}()

	select {
	case <-ctx.Done():
		return domain.ProtocolUnknown, sv2derr.New(sv2derr.KindProtocol, "transport.Detect", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return domain.ProtocolUnknown, sv2derr.New(sv2derr.KindProtocol, "transport.Detect", r.err)
		}
		return classify(r.b[0]), nil
	}
}

func classify(first byte) domain.Protocol {
	switch {
	case first == '{' || first == ' ' || first == '\t' || first == '\n' || first == '\r':
		return domain.ProtocolSV1
	default:
		// Any other leading byte is treated as an SV2 frame header's low
		// byte of extension_type; SV2's extension_type is almost always
		// 0x0000 so the first byte legitimately varies, but it can never
		// collide with '{' or JSON whitespace by protocol construction.
		return domain.ProtocolSV2
	}
}
