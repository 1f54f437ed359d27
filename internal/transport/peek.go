// Package transport implements SV1/SV2 protocol auto-detection and framing
// over a net.Conn.
package transport

import (
	"io"
	"net"
	"sync"
)

// PeekConn wraps a net.Conn so the first bytes of a connection can be
// inspected without consuming them, letting the caller decide which
// protocol codec to hand the connection to.
type PeekConn struct {
	net.Conn
	mu     sync.Mutex
	peeked []byte
}

// NewPeekConn wraps conn for peeking.
func NewPeekConn(conn net.Conn) *PeekConn {
	return &PeekConn{Conn: conn}
}

// Peek returns the first n bytes of the stream without consuming them. A
// later call with a larger n extends the buffered peek.
func (p *PeekConn) Peek(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.peeked) >= n {
		return p.peeked[:n], nil
	}

	needed := n - len(p.peeked)
	buf := make([]byte, needed)
	read, err := io.ReadFull(p.Conn, buf)
	if read > 0 {
		p.peeked = append(p.peeked, buf[:read]...)
	}
	if err != nil {
		return p.peeked, err
	}
	return p.peeked[:n], nil
}

// Read implements io.Reader, draining any peeked bytes before reading from
// the underlying connection.
func (p *PeekConn) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.peeked) > 0 {
		n := copy(b, p.peeked)
		p.peeked = p.peeked[n:]
		return n, nil
	}
	return p.Conn.Read(b)
}
