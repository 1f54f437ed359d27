package solo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/chaincfg"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/bitcoinrpc"
	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/observability"
	"github.com/sv2d/sv2d/internal/recovery"
)

const validMainnetAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

func testLogger() *observability.Logger {
	return observability.NewLogger(io.Discard, logrus.ErrorLevel, "test")
}

func testRPC(t *testing.T, handler http.HandlerFunc) *bitcoinrpc.RetryingClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := bitcoinrpc.DefaultConfig(srv.URL, "u", "p")
	cfg.BlockTemplateTimeout = time.Second
	client := bitcoinrpc.New(cfg)
	exec := recovery.NewExecutor(recovery.Config{MaxRetries: 0})
	return bitcoinrpc.NewRetrying(client, exec)
}

func templateHandler(height int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"version":1,"previousblockhash":"0123456789abcdef0123456789abcdef","height":` +
			jsonInt(height) + `,"bits":"1d00ffff","mintime":100,"curtime":200},"error":null,"id":"sv2d"}`))
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestNewRejectsEmptyCoinbaseAddress(t *testing.T) {
	_, err := New(Config{Network: &chaincfg.MainNetParams}, nil, testLogger())
	assert.Error(t, err)
}

func TestNewRejectsInvalidAddressForNetwork(t *testing.T) {
	_, err := New(Config{
		CoinbaseAddress: validMainnetAddress,
		Network:         &chaincfg.TestNet3Params,
	}, nil, testLogger())
	assert.Error(t, err)
}

func TestNewAcceptsValidMainnetAddress(t *testing.T) {
	h, err := New(Config{
		CoinbaseAddress: validMainnetAddress,
		Network:         &chaincfg.MainNetParams,
	}, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, h.cfg.RefreshInterval)
}

func TestHandlerMode(t *testing.T) {
	h, err := New(Config{CoinbaseAddress: validMainnetAddress, Network: &chaincfg.MainNetParams}, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, domain.ModeSolo, h.Mode())
}

func TestStartFetchesInitialTemplate(t *testing.T) {
	rpc := testRPC(t, templateHandler(700000))
	h, err := New(Config{
		CoinbaseAddress: validMainnetAddress,
		Network:         &chaincfg.MainNetParams,
		RefreshInterval: time.Hour,
	}, rpc, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.Stop(ctx))

	tmpl, err := h.GetWork(ctx, &domain.Connection{})
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Equal(t, int64(700000), tmpl.Height)
}

func TestOnConnectSeedsDifficultyOne(t *testing.T) {
	h, err := New(Config{CoinbaseAddress: validMainnetAddress, Network: &chaincfg.MainNetParams}, nil, testLogger())
	require.NoError(t, err)

	conn := &domain.Connection{}
	require.NoError(t, h.OnConnect(context.Background(), conn))
	assert.Equal(t, float64(1), conn.Difficulty)
}

func TestOnShareRejectsUnauthorized(t *testing.T) {
	h, err := New(Config{CoinbaseAddress: validMainnetAddress, Network: &chaincfg.MainNetParams}, nil, testLogger())
	require.NoError(t, err)

	result, err := h.OnShare(context.Background(), &domain.Connection{Authorized: false}, &domain.Share{})
	assert.Equal(t, domain.ShareInvalid, result)
	assert.Error(t, err)
	assert.Equal(t, int64(1), h.Statistics().SharesInvalid)
}
