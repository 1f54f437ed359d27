// Package solo implements Solo mode: a single miner (or small set) mining
// directly against the daemon's own Bitcoin node, submitting found blocks
// immediately.
package solo

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/chaincfg"

	"github.com/sv2d/sv2d/internal/bitcoinrpc"
	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/mode"
	"github.com/sv2d/sv2d/internal/observability"
	"github.com/sv2d/sv2d/internal/sv2derr"
	"github.com/sv2d/sv2d/internal/validator"
)

// extranonceTotalLen is the combined byte length of the pool-assigned
// extranonce1 and the miner-chosen extranonce2 spliced into the coinbase
// scriptSig. Both halves are fixed at 4 bytes, matching ExpectedEN2Len.
const extranonceTotalLen = 8

// Config configures Solo mode.
type Config struct {
	CoinbaseAddress string
	Network         *chaincfg.Params
	RefreshInterval time.Duration
}

// Handler implements mode.Handler for Solo mode.
type Handler struct {
	cfg      Config
	rpc      *bitcoinrpc.RetryingClient
	logger   *observability.Logger
	tracker  *validator.DuplicateTracker
	pkHash   []byte

	mu       sync.RWMutex
	template *domain.WorkTemplate

	statsMu sync.Mutex
	stats   domain.MiningStats

	stopCh chan struct{}
}

// New validates cfg and builds a Solo mode handler. The coinbase address
// must decode to a P2PKH address valid for the configured network — an
// empty, malformed, or non-P2PKH address is a configuration error the
// daemon should refuse to start with, not discover at the first block.
func New(cfg Config, rpc *bitcoinrpc.RetryingClient, logger *observability.Logger) (*Handler, error) {
	if cfg.CoinbaseAddress == "" {
		return nil, sv2derr.New(sv2derr.KindConfig, "solo.New", fmt.Errorf("coinbase_address must not be empty"))
	}
	addr, err := btcutil.DecodeAddress(cfg.CoinbaseAddress, cfg.Network)
	if err != nil {
		return nil, sv2derr.New(sv2derr.KindConfig, "solo.New", fmt.Errorf("invalid coinbase_address for network: %w", err))
	}
	pkHashAddr, ok := addr.(*btcutil.AddressPubKeyHash)
	if !ok {
		return nil, sv2derr.New(sv2derr.KindConfig, "solo.New", fmt.Errorf("coinbase_address must be a P2PKH address"))
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 15 * time.Second
	}
	hash := pkHashAddr.Hash160()
	return &Handler{
		cfg:     cfg,
		rpc:     rpc,
		logger:  logger,
		tracker: validator.NewDuplicateTracker(10_000),
		pkHash:  hash[:],
		stopCh:  make(chan struct{}),
	}, nil
}

func (h *Handler) Mode() domain.Mode { return domain.ModeSolo }

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
	ticker := time.NewTicker(h.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			if err := h.refreshTemplate(ctx); err != nil {
				h.logger.WithError(err).Warn("solo: template refresh failed")
			}
		}
	}
}

func (h *Handler) refreshTemplate(ctx context.Context) error {
	tmpl, err := h.rpc.GetBlockTemplate(ctx)
	if err != nil {
		return err
	}

	prevHash, err := hex.DecodeString(tmpl.PreviousBlockHash)
	if err != nil {
		return sv2derr.New(sv2derr.KindBitcoinRPC, "solo.refreshTemplate", fmt.Errorf("invalid previousblockhash: %w", err))
	}
	validator.ReverseBytes(prevHash)

	var target *big.Int
	if tmpl.Target != "" {
		var ok bool
		target, ok = new(big.Int).SetString(tmpl.Target, 16)
		if !ok {
			return sv2derr.New(sv2derr.KindBitcoinRPC, "solo.refreshTemplate", fmt.Errorf("invalid target %q", tmpl.Target))
		}
	}

	rawTxs := make([][]byte, len(tmpl.Transactions))
	txHashes := make([][]byte, len(tmpl.Transactions))
	for i, tx := range tmpl.Transactions {
		data, err := hex.DecodeString(tx.Data)
		if err != nil {
			return sv2derr.New(sv2derr.KindBitcoinRPC, "solo.refreshTemplate", fmt.Errorf("invalid transaction %d data: %w", i, err))
		}
		rawTxs[i] = data

		txHash, err := hex.DecodeString(tx.TxID)
		if err != nil {
			return sv2derr.New(sv2derr.KindBitcoinRPC, "solo.refreshTemplate", fmt.Errorf("invalid transaction %d txid: %w", i, err))
		}
		validator.ReverseBytes(txHash)
		txHashes[i] = txHash
	}

	prefix, suffix := h.buildCoinbaseTemplate(tmpl.Height, tmpl.CoinbaseValue)

	h.mu.Lock()
	h.template = &domain.WorkTemplate{
		JobID:           tmpl.PreviousBlockHash[:8],
		PrevHash:        string(prevHash),
		Height:          tmpl.Height,
		Version:         tmpl.Version,
		Bits:            tmpl.Bits,
		CurTime:         tmpl.CurTime,
		MinTime:         tmpl.MinTime,
		CoinbasePrefix:  prefix,
		CoinbaseSuffix:  suffix,
		RawTransactions: rawTxs,
		MerkleBranch:    validator.BuildBranch(txHashes),
		Target:          target,
		FetchedAt:       time.Now(),
	}
	h.mu.Unlock()
	return nil
}

// buildCoinbaseTemplate assembles the coinbase transaction around a fixed
// extranonceTotalLen-byte gap for the pool-assigned extranonce1 and the
// miner-chosen extranonce2: the full coinbase is prefix + extranonce1 +
// extranonce2 + suffix.
func (h *Handler) buildCoinbaseTemplate(height, value int64) (prefix, suffix []byte) {
	heightBytes := encodeHeight(uint64(height))
	signature := []byte("/sv2d/")
	scriptLen := len(heightBytes) + len(signature) + extranonceTotalLen

	prefix = make([]byte, 0, 42+len(heightBytes)+len(signature))
	prefix = append(prefix, 0x01, 0x00, 0x00, 0x00) // version
	prefix = append(prefix, 0x01)                   // input count
	prefix = append(prefix, make([]byte, 32)...)    // null previous-output hash
	prefix = append(prefix, 0xFF, 0xFF, 0xFF, 0xFF)  // previous-output index
	prefix = append(prefix, byte(scriptLen))
	prefix = append(prefix, heightBytes...)
	prefix = append(prefix, signature...)

	suffix = make([]byte, 0, 42)
	suffix = append(suffix, 0xFF, 0xFF, 0xFF, 0xFF) // sequence
	suffix = append(suffix, 0x01)                   // output count
	v := uint64(value)
	suffix = append(suffix,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56),
	)
	suffix = append(suffix, 0x19)             // P2PKH script length: 25
	suffix = append(suffix, 0x76, 0xA9, 0x14) // OP_DUP OP_HASH160 PUSH20
	suffix = append(suffix, h.pkHash...)
	suffix = append(suffix, 0x88, 0xAC)             // OP_EQUALVERIFY OP_CHECKSIG
	suffix = append(suffix, 0x00, 0x00, 0x00, 0x00) // locktime
	return prefix, suffix
}

// encodeHeight renders height as a BIP34 scriptSig push.
func encodeHeight(height uint64) []byte {
	if height < 17 {
		return []byte{byte(0x50 + height)}
	}
	var b []byte
	h := height
	for h > 0 {
		b = append(b, byte(h&0xFF))
		h >>= 8
	}
	out := make([]byte, 1+len(b))
	out[0] = byte(len(b))
	copy(out[1:], b)
	return out
}

func (h *Handler) OnConnect(ctx context.Context, conn *domain.Connection) error {
	conn.Difficulty = 1
	conn.Extranonce1 = extranonce1FromID(conn.ID)
	conn.Extranonce2Size = 4
	return nil
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

func (h *Handler) OnDisconnect(ctx context.Context, conn *domain.Connection) {}

func (h *Handler) OnShare(ctx context.Context, conn *domain.Connection, share *domain.Share) (domain.ShareResult, error) {
	h.mu.RLock()
	tmpl := h.template
	h.mu.RUnlock()

	var coinbaseHash []byte
	var coinbase []byte
	if tmpl != nil {
		en2, err := hex.DecodeString(share.Extranonce2)
		if err == nil && len(conn.Extranonce1)/2+len(en2) == extranonceTotalLen {
			en1, _ := hex.DecodeString(conn.Extranonce1)
			coinbase = make([]byte, 0, len(tmpl.CoinbasePrefix)+extranonceTotalLen+len(tmpl.CoinbaseSuffix))
			coinbase = append(coinbase, tmpl.CoinbasePrefix...)
			coinbase = append(coinbase, en1...)
			coinbase = append(coinbase, en2...)
			coinbase = append(coinbase, tmpl.CoinbaseSuffix...)
			coinbaseHash = validator.DoubleSHA256(coinbase)
		}
	}

	result, err := validator.Validate(validator.ValidateInput{
		Connection:     conn,
		Template:       tmpl,
		Share:          share,
		CoinbaseHash:   coinbaseHash,
		MerkleBranch:   templateBranch(tmpl),
		ExpectedEN2Len: 4,
		BlockTarget:    templateTarget(tmpl),
		Tracker:        h.tracker,
	})

	h.statsMu.Lock()
	if result == domain.ShareValid || result == domain.ShareBlock {
		h.stats.SharesValid++
	} else {
		h.stats.SharesInvalid++
	}
	h.statsMu.Unlock()

	if result == domain.ShareBlock {
		h.statsMu.Lock()
		h.stats.BlocksFound++
		h.statsMu.Unlock()
		h.logger.Info("solo: block candidate found, submitting")
		if submitErr := h.submitBlock(ctx, tmpl, coinbase, share); submitErr != nil {
			h.logger.WithError(submitErr).Error("solo: submitblock failed")
		}
	}
	return result, err
}

func templateBranch(tmpl *domain.WorkTemplate) [][]byte {
	if tmpl == nil {
		return nil
	}
	return tmpl.MerkleBranch
}

func templateTarget(tmpl *domain.WorkTemplate) *big.Int {
	if tmpl == nil {
		return nil
	}
	return tmpl.Target
}

// submitBlock assembles the full block (header + transaction count +
// coinbase + the template's other transactions, all hex-encoded) and
// submits it via submitblock.
func (h *Handler) submitBlock(ctx context.Context, tmpl *domain.WorkTemplate, coinbase []byte, share *domain.Share) error {
	if tmpl == nil || coinbase == nil {
		return fmt.Errorf("solo: no template/coinbase available to assemble block")
	}

	nbits, err := hexToUint32(tmpl.Bits)
	if err != nil {
		return err
	}

	root := validator.ComputeRoot(validator.DoubleSHA256(coinbase), tmpl.MerkleBranch)
	header := validator.BuildHeader(tmpl.Version, []byte(tmpl.PrevHash), root, share.NTime, nbits, share.Nonce)

	block := make([]byte, 0, len(header)+9+len(coinbase)+estimateTxBytes(tmpl.RawTransactions))
	block = append(block, header[:]...)
	block = appendVarInt(block, uint64(1+len(tmpl.RawTransactions)))
	block = append(block, coinbase...)
	for _, tx := range tmpl.RawTransactions {
		block = append(block, tx...)
	}

	return h.rpc.SubmitBlock(ctx, hex.EncodeToString(block))
}

func estimateTxBytes(txs [][]byte) int {
	n := 0
	for _, tx := range txs {
		n += len(tx)
	}
	return n
}

func hexToUint32(s string) (uint32, error) {
	var v uint32
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
		return 0, sv2derr.New(sv2derr.KindInternal, "solo.hexToUint32", err)
	}
	return v, nil
}

// appendVarInt appends n encoded as a Bitcoin CompactSize integer.
func appendVarInt(b []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(b, byte(n))
	case n <= 0xffff:
		return append(b, 0xfd, byte(n), byte(n>>8))
	case n <= 0xffffffff:
		return append(b, 0xfe, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	default:
		return append(b, 0xff,
			byte(n), byte(n>>8), byte(n>>16), byte(n>>24),
			byte(n>>32), byte(n>>40), byte(n>>48), byte(n>>56))
	}
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

// RegisterFactory wires Solo mode into the mode router.
func RegisterFactory(build func(ctx context.Context) (*Handler, error)) {
	mode.RegisterFactory(domain.ModeSolo, func(ctx context.Context) (mode.Handler, error) {
		return build(ctx)
	})
}
