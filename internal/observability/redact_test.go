package observability

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func fireHook(t *testing.T, fields logrus.Fields) logrus.Fields {
	t.Helper()
	entry := &logrus.Entry{Data: fields}
	hook := &RedactionHook{}
	assert.NoError(t, hook.Fire(entry))
	return entry.Data
}

func TestRedactionHookMatchesSensitiveFieldNames(t *testing.T) {
	out := fireHook(t, logrus.Fields{
		"password":    "x",
		"API_KEY":     "x",
		"private_key": "x",
		"unrelated":   "x",
	})
	assert.Equal(t, redactedPlaceholder, out["password"])
	assert.Equal(t, redactedPlaceholder, out["API_KEY"])
	assert.Equal(t, redactedPlaceholder, out["private_key"])
	assert.Equal(t, "x", out["unrelated"])
}

func TestRedactionHookMatchesHexPrivateKeyShape(t *testing.T) {
	out := fireHook(t, logrus.Fields{
		"note": "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd",
	})
	assert.Equal(t, redactedPlaceholder, out["note"])
}

func TestRedactionHookIgnoresOrdinaryStrings(t *testing.T) {
	out := fireHook(t, logrus.Fields{"note": "hello world"})
	assert.Equal(t, "hello world", out["note"])
}

func TestRedactionHookCoversAllLevels(t *testing.T) {
	assert.Equal(t, logrus.AllLevels, (&RedactionHook{}).Levels())
}

func TestLooksSensitiveRejectsShortStrings(t *testing.T) {
	assert.False(t, looksSensitive("short"))
}
