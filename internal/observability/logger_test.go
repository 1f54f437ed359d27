package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestLoggerIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, logrus.InfoLevel, "stratum")
	logger.Info("listening")

	entry := decodeLastLine(t, &buf)
	assert.Equal(t, "stratum", entry["component"])
	assert.Equal(t, "listening", entry["msg"])
}

func TestLoggerWithContextAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, logrus.InfoLevel, "api")

	ctx := WithCorrelationID(context.Background(), "req-123")
	logger.WithContext(ctx).Info("handled")

	entry := decodeLastLine(t, &buf)
	assert.Equal(t, "req-123", entry["correlation_id"])
}

func TestLoggerWithContextNoopWithoutCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, logrus.InfoLevel, "api")
	logger.WithContext(context.Background()).Info("handled")

	entry := decodeLastLine(t, &buf)
	_, present := entry["correlation_id"]
	assert.False(t, present)
}

func TestLoggerRedactsSensitiveField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, logrus.InfoLevel, "api")
	logger.WithField("password", "hunter2").Info("login attempt")

	entry := decodeLastLine(t, &buf)
	assert.Equal(t, redactedPlaceholder, entry["password"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, logrus.ErrorLevel, "api")
	logger.Info("should not appear")
	assert.Empty(t, buf.String())

	logger.Error("should appear")
	assert.NotEmpty(t, buf.String())
}

func TestCorrelationIDDefaultsEmpty(t *testing.T) {
	assert.Equal(t, "", CorrelationID(context.Background()))
}
