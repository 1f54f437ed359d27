package transport

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSV1ReaderParsesLine(t *testing.T) {
	r := NewSV1Reader(strings.NewReader(`{"id":1,"method":"mining.subscribe","params":[]}` + "\n"))
	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "mining.subscribe", msg.Method)
	assert.Equal(t, float64(1), msg.ID)
}

func TestSV1ReaderSkipsBlankLines(t *testing.T) {
	r := NewSV1Reader(strings.NewReader("\n\n" + `{"id":2,"method":"mining.submit","params":[]}` + "\n"))
	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "mining.submit", msg.Method)
}

func TestSV1ReaderRejectsInvalidJSON(t *testing.T) {
	r := NewSV1Reader(strings.NewReader("not json\n"))
	_, err := r.Next()
	assert.Error(t, err)
}

func TestSV1ReaderRejectsMissingMethod(t *testing.T) {
	r := NewSV1Reader(strings.NewReader(`{"id":1,"params":[]}` + "\n"))
	_, err := r.Next()
	assert.Error(t, err)
}

func TestSV1ReaderReturnsErrOnEOF(t *testing.T) {
	r := NewSV1Reader(strings.NewReader(""))
	_, err := r.Next()
	assert.Error(t, err)
}

func TestEncodeSV1AppendsNewline(t *testing.T) {
	b, err := EncodeSV1(NewBoolResult(1, true))
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(b, []byte("\n")))

	var resp SV1Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b), &resp))
	assert.Equal(t, true, resp.Result)
}

func TestNewNotify(t *testing.T) {
	n := NewNotify("job1", "prev", "cb1", "cb2", []string{"a", "b"}, "20000000", "1d00ffff", "5f000000", true)
	assert.Equal(t, "mining.notify", n.Method)
	require.Len(t, n.Params, 9)
	assert.Equal(t, "job1", n.Params[0])
	assert.Equal(t, true, n.Params[8])
}

func TestNewSetDifficulty(t *testing.T) {
	n := NewSetDifficulty(1024)
	assert.Equal(t, "mining.set_difficulty", n.Method)
	assert.Equal(t, []interface{}{float64(1024)}, n.Params)
}

func TestNewSubscribeResult(t *testing.T) {
	resp := NewSubscribeResult(5, "sub-1", "ab12", 4)
	assert.Equal(t, 5, resp.ID)
	result, ok := resp.Result.([]interface{})
	require.True(t, ok)
	require.Len(t, result, 3)
	assert.Equal(t, "ab12", result[1])
	assert.Equal(t, 4, result[2])
}

func TestNewErrorResult(t *testing.T) {
	resp := NewErrorResult(3, 20, "stale job")
	details, ok := resp.Error.([]interface{})
	require.True(t, ok)
	assert.Equal(t, 20, details[0])
	assert.Equal(t, "stale job", details[1])
}
