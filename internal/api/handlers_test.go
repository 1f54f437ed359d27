package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/authn"
	"github.com/sv2d/sv2d/internal/database"
	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/mode"
	"github.com/sv2d/sv2d/internal/observability"
)

// fakeConns is a minimal ConnectionDirectory stand-in for the stratum
// server, just enough for the connections endpoints to exercise.
type fakeConns struct {
	conns map[string]*domain.Connection
}

func (f *fakeConns) Connection(id string) (*domain.Connection, bool) {
	c, ok := f.conns[id]
	return c, ok
}

func (f *fakeConns) Connections() []*domain.Connection {
	out := make([]*domain.Connection, 0, len(f.conns))
	for _, c := range f.conns {
		out = append(out, c)
	}
	return out
}

func (f *fakeConns) ConnectionCount() int { return len(f.conns) }

func (f *fakeConns) Disconnect(id string) bool {
	if _, ok := f.conns[id]; !ok {
		return false
	}
	delete(f.conns, id)
	return true
}

func newTestServer(t *testing.T) (*Server, *database.MemoryRepositories) {
	t.Helper()
	repos := database.NewMemoryRepositories()
	logger := observability.NewLogger(os.Stdout, logrus.ErrorLevel, "test")
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := mode.NewRouter()

	sessions := authn.NewSessionManager([]byte("test-secret"), time.Hour, 10, func(hash string) (*domain.ApiKey, bool) {
		row, err := repos.GetApiKeyByHash(context.Background(), hash)
		if err != nil {
			return nil, false
		}
		return authn.RowToApiKey(row), true
	})
	limiter := authn.NewRateLimiter(100000, 100000, time.Minute)

	srv := NewServer(DefaultServerConfig("127.0.0.1:0", "test"), Deps{
		Conns:     &fakeConns{conns: map[string]*domain.Connection{}},
		Router:    router,
		Shares:    repos,
		Conn:      repos,
		Alerts:    repos,
		ApiKeys:   repos,
		Configs:   repos,
		Templates: repos,
		Sessions:  sessions,
		Limiter:   limiter,
		Logger:    logger,
		Metrics:   metrics,
		Mode:      domain.ModeSolo,
	}, time.Now())
	return srv, repos
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleIssueSessionRequiresHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", nil)
	srv.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleIssueSessionUnknownKey(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", nil)
	req.Header.Set("X-Api-Key", "not-a-real-secret")
	srv.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleIssueSessionSucceeds(t *testing.T) {
	srv, repos := newTestServer(t)

	key, secret, err := authn.GenerateAPIKey("ci-runner", []domain.Permission{domain.PermViewMetrics}, time.Now())
	require.NoError(t, err)
	require.NoError(t, repos.CreateApiKey(context.Background(), &database.ApiKeyRow{
		ID:          key.ID,
		Name:        key.Name,
		SecretHash:  key.SecretHash,
		Permissions: authn.JoinPermissions(key.Permissions),
		CreatedAt:   key.CreatedAt,
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", nil)
	req.Header.Set("X-Api-Key", secret)
	srv.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Token            string `json:"token"`
			ExpiresInSeconds int64  `json:"expires_in_seconds"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.Token)
	assert.Equal(t, int64(3600), body.Data.ExpiresInSeconds)
}

func TestProtectedRouteRejectsMissingAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	srv.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRouteAcceptsApiKey(t *testing.T) {
	srv, repos := newTestServer(t)

	key, secret, err := authn.GenerateAPIKey("ops", []domain.Permission{domain.PermViewMetrics}, time.Now())
	require.NoError(t, err)
	require.NoError(t, repos.CreateApiKey(context.Background(), &database.ApiKeyRow{
		ID:          key.ID,
		Name:        key.Name,
		SecretHash:  key.SecretHash,
		Permissions: authn.JoinPermissions(key.Permissions),
		CreatedAt:   key.CreatedAt,
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("X-Api-Key", secret)
	srv.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleListConnectionsPagination(t *testing.T) {
	srv, repos := newTestServer(t)
	conns := srv.conns.(*fakeConns)
	for i := 0; i < 5; i++ {
		id := strings.Repeat("a", i+1)
		conns.conns[id] = &domain.Connection{ID: id}
	}

	key, secret, err := authn.GenerateAPIKey("ops", []domain.Permission{domain.PermAdminAccess}, time.Now())
	require.NoError(t, err)
	require.NoError(t, repos.CreateApiKey(context.Background(), &database.ApiKeyRow{
		ID: key.ID, Name: key.Name, SecretHash: key.SecretHash,
		Permissions: authn.JoinPermissions(key.Permissions), CreatedAt: key.CreatedAt,
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/connections?limit=2&offset=1", nil)
	req.Header.Set("X-Api-Key", secret)
	srv.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Data.Total)
	assert.Equal(t, 2, body.Data.Limit)
	assert.Equal(t, 1, body.Data.Offset)
}
