package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ginTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestRespondSuccessEnvelope(t *testing.T) {
	c, w := ginTestContext()
	RespondSuccess(c, map[string]string{"foo": "bar"})

	assert.Equal(t, 200, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Empty(t, env.Error)
}

func TestRespondErrorEnvelope(t *testing.T) {
	c, w := ginTestContext()
	RespondBadRequest(c, "bad input")

	assert.Equal(t, 400, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "bad input", env.Error)
}

func TestRespondInternalErrorDefaultsMessage(t *testing.T) {
	c, w := ginTestContext()
	RespondInternalError(c, "")

	assert.Equal(t, 500, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "an internal error occurred", env.Error)
}

func TestRespondNotFound(t *testing.T) {
	c, w := ginTestContext()
	RespondNotFound(c, "missing")
	assert.Equal(t, 404, w.Code)
}

func TestRespondCreated(t *testing.T) {
	c, w := ginTestContext()
	RespondCreated(c, nil)
	assert.Equal(t, 201, w.Code)
}
