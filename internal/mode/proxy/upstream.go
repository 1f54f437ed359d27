package proxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sv2d/sv2d/internal/sv2derr"
	"github.com/sv2d/sv2d/internal/transport"
)

// upstreamJob is one mining job received from an upstream pool over a
// standard mining channel, in the shape needed to translate it into an SV1
// mining.notify for the downstream miner this channel was opened for.
type upstreamJob struct {
	jobID          uint32
	version        uint32
	bits           uint32
	prevHash       []byte
	ntime          uint32
	coinbasePrefix []byte
	coinbaseSuffix []byte
	merkleBranch   [][]byte
}

// submitTimeout bounds how long SubmitShare waits for the upstream's
// accept/reject before giving up on a stalled upstream connection.
const submitTimeout = 15 * time.Second

// UpstreamClient owns one SV2 standard mining channel opened against an
// upstream pool on behalf of a single downstream connection. Proxy mode
// dials one of these per accepted downstream connection rather than sharing
// a single upstream channel across miners, so each downstream gets its own
// upstream-assigned extranonce1 (invariant: a forwarded share must carry
// the upstream extranonce1 + downstream extranonce2 verbatim).
type UpstreamClient struct {
	conn            net.Conn
	channelID       uint32
	extranonce1     []byte
	extranonce2Size int

	onJob func(*upstreamJob)

	writeMu sync.Mutex

	jobMu sync.RWMutex
	job   *upstreamJob

	submitRespCh chan *transport.Frame
	closeOnce    sync.Once
}

// DialUpstream opens a TCP connection to addr, performs the
// SetupConnection/OpenStandardMiningChannel handshake, and starts the
// background read loop that tracks new jobs. onJob is invoked (from the
// read loop goroutine) every time the upstream pushes a new job or prevhash;
// it may be nil.
func DialUpstream(ctx context.Context, addr string, onJob func(*upstreamJob)) (*UpstreamClient, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, sv2derr.New(sv2derr.KindNetwork, "proxy.DialUpstream", err)
	}

	c := &UpstreamClient{
		conn:         conn,
		onJob:        onJob,
		submitRespCh: make(chan *transport.Frame, 1),
	}
	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *UpstreamClient) handshake() error {
	setup := make([]byte, 6)
	binary.LittleEndian.PutUint16(setup[0:2], 1)
	if err := transport.WriteFrame(c.conn, 0, transport.MsgSetupConnection, setup); err != nil {
		return sv2derr.New(sv2derr.KindNetwork, "proxy.UpstreamClient.handshake", err)
	}
	frame, err := transport.ReadFrame(c.conn)
	if err != nil {
		return sv2derr.New(sv2derr.KindNetwork, "proxy.UpstreamClient.handshake", err)
	}
	if frame.Header.MsgType != transport.MsgSetupConnectionSuccess {
		return sv2derr.New(sv2derr.KindNetwork, "proxy.UpstreamClient.handshake", fmt.Errorf("upstream rejected setup_connection"))
	}

	if err := transport.WriteFrame(c.conn, 0, transport.MsgOpenStandardMiningChannel, nil); err != nil {
		return sv2derr.New(sv2derr.KindNetwork, "proxy.UpstreamClient.handshake", err)
	}
	frame, err = transport.ReadFrame(c.conn)
	if err != nil {
		return sv2derr.New(sv2derr.KindNetwork, "proxy.UpstreamClient.handshake", err)
	}
	if frame.Header.MsgType != transport.MsgOpenStandardMiningChannelSuccess || len(frame.Payload) < 6 {
		return sv2derr.New(sv2derr.KindNetwork, "proxy.UpstreamClient.handshake", fmt.Errorf("upstream rejected open_standard_mining_channel"))
	}
	c.channelID = binary.LittleEndian.Uint32(frame.Payload[0:4])
	c.extranonce2Size = int(binary.LittleEndian.Uint16(frame.Payload[4:6]))
	c.extranonce1 = append([]byte(nil), frame.Payload[6:]...)
	return nil
}

// readLoop is the sole reader of c.conn: every inbound frame, including
// submit_shares responses, passes through here so a concurrent SubmitShare
// caller never races the background loop over the same socket.
func (c *UpstreamClient) readLoop() {
	for {
		frame, err := transport.ReadFrame(c.conn)
		if err != nil {
			return
		}
		switch frame.Header.MsgType {
		case transport.MsgNewMiningJob, transport.MsgSetNewPrevHash:
			job, err := decodeUpstreamJob(frame.Payload)
			if err != nil {
				continue
			}
			c.jobMu.Lock()
			c.job = job
			c.jobMu.Unlock()
			if c.onJob != nil {
				c.onJob(job)
			}
		case transport.MsgSubmitSharesSuccess, transport.MsgSubmitSharesError:
			select {
			case c.submitRespCh <- frame:
			default:
			}
		}
	}
}

func decodeUpstreamJob(payload []byte) (*upstreamJob, error) {
	const fixed = 4 + 4 + 4 + 32 + 4 + 2 + 2 + 1
	if len(payload) < fixed {
		return nil, fmt.Errorf("proxy: short new_mining_job payload")
	}
	i := 0
	job := &upstreamJob{}
	job.jobID = binary.LittleEndian.Uint32(payload[i : i+4])
	i += 4
	job.version = binary.LittleEndian.Uint32(payload[i : i+4])
	i += 4
	job.bits = binary.LittleEndian.Uint32(payload[i : i+4])
	i += 4
	job.prevHash = append([]byte(nil), payload[i:i+32]...)
	i += 32
	job.ntime = binary.LittleEndian.Uint32(payload[i : i+4])
	i += 4

	prefixLen := int(binary.LittleEndian.Uint16(payload[i : i+2]))
	i += 2
	if len(payload) < i+prefixLen+2 {
		return nil, fmt.Errorf("proxy: short coinbase_prefix in new_mining_job")
	}
	job.coinbasePrefix = append([]byte(nil), payload[i:i+prefixLen]...)
	i += prefixLen

	suffixLen := int(binary.LittleEndian.Uint16(payload[i : i+2]))
	i += 2
	if len(payload) < i+suffixLen+1 {
		return nil, fmt.Errorf("proxy: short coinbase_suffix in new_mining_job")
	}
	job.coinbaseSuffix = append([]byte(nil), payload[i:i+suffixLen]...)
	i += suffixLen

	branchCount := int(payload[i])
	i++
	for n := 0; n < branchCount; n++ {
		if len(payload) < i+32 {
			return nil, fmt.Errorf("proxy: short merkle_branch in new_mining_job")
		}
		job.merkleBranch = append(job.merkleBranch, append([]byte(nil), payload[i:i+32]...))
		i += 32
	}
	return job, nil
}

// CurrentJob returns the most recently received job, or nil before the
// upstream has pushed one.
func (c *UpstreamClient) CurrentJob() *upstreamJob {
	c.jobMu.RLock()
	defer c.jobMu.RUnlock()
	return c.job
}

// Extranonce1 is the channel's upstream-assigned extranonce1.
func (c *UpstreamClient) Extranonce1() []byte { return c.extranonce1 }

// Extranonce2Size is the extranonce2 length the upstream expects appended
// to Extranonce1 in every submitted share.
func (c *UpstreamClient) Extranonce2Size() int { return c.extranonce2Size }

// SubmitShare forwards a downstream share to the upstream channel, carrying
// the channel's extranonce1 implicitly (the upstream already associates it
// with channelID) and the downstream-submitted extranonce2 explicitly. It
// blocks for the synchronous accept/reject.
func (c *UpstreamClient) SubmitShare(ctx context.Context, jobID, nonce, ntime uint32, extranonce2 []byte) (accepted bool, sv2Code uint8, err error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	payload := make([]byte, 16+len(extranonce2))
	binary.LittleEndian.PutUint32(payload[0:4], c.channelID)
	binary.LittleEndian.PutUint32(payload[4:8], jobID)
	binary.LittleEndian.PutUint32(payload[8:12], nonce)
	binary.LittleEndian.PutUint32(payload[12:16], ntime)
	copy(payload[16:], extranonce2)

	if err := transport.WriteFrame(c.conn, 0, transport.MsgSubmitSharesStandard, payload); err != nil {
		return false, 0, sv2derr.New(sv2derr.KindNetwork, "proxy.UpstreamClient.SubmitShare", err)
	}

	select {
	case frame := <-c.submitRespCh:
		if frame.Header.MsgType == transport.MsgSubmitSharesSuccess {
			return true, 0, nil
		}
		var code uint8
		if len(frame.Payload) > 0 {
			code = frame.Payload[0]
		}
		return false, code, nil
	case <-ctx.Done():
		return false, 0, ctx.Err()
	case <-time.After(submitTimeout):
		return false, 0, sv2derr.New(sv2derr.KindNetwork, "proxy.UpstreamClient.SubmitShare", fmt.Errorf("upstream submit_shares timed out"))
	}
}

// Close tears down the upstream connection. Safe to call more than once.
func (c *UpstreamClient) Close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}
