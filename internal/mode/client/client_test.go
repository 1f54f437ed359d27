package client

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/observability"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

func newTestClientHandler() *Handler {
	logger := observability.NewLogger(io.Discard, logrus.ErrorLevel, "test")
	return New(Config{UpstreamAddress: "pool.example.com:3336", WorkerName: "rig1"}, logger)
}

func TestHandlerMode(t *testing.T) {
	h := newTestClientHandler()
	assert.Equal(t, domain.ModeClient, h.Mode())
}

func TestStartLogsUpstreamAddress(t *testing.T) {
	h := newTestClientHandler()
	require.NoError(t, h.Start(context.Background()))
}

func TestOnConnectAlwaysRefuses(t *testing.T) {
	h := newTestClientHandler()
	err := h.OnConnect(context.Background(), &domain.Connection{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sv2derr.ErrNotAuthorized)
}

func TestOnShareAlwaysRefuses(t *testing.T) {
	h := newTestClientHandler()
	result, err := h.OnShare(context.Background(), &domain.Connection{}, &domain.Share{})
	assert.Equal(t, domain.ShareInvalid, result)
	assert.ErrorIs(t, err, sv2derr.ErrNotAuthorized)
}

func TestGetWorkErrorsWithoutTemplate(t *testing.T) {
	h := newTestClientHandler()
	_, err := h.GetWork(context.Background(), &domain.Connection{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sv2derr.ErrStaleJob)
}

func TestGetWorkReturnsSetTemplate(t *testing.T) {
	h := newTestClientHandler()
	wt := &domain.WorkTemplate{JobID: "job-1"}
	h.setTemplate(wt)

	got, err := h.GetWork(context.Background(), &domain.Connection{})
	require.NoError(t, err)
	assert.Equal(t, wt, got)
}

func TestStatisticsStartsZero(t *testing.T) {
	h := newTestClientHandler()
	assert.Equal(t, domain.MiningStats{}, h.Statistics())
}
