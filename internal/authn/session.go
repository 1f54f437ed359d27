package authn

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

// Claims is the JWT payload issued for a management-API session.
type Claims struct {
	SessionID   string              `json:"session_id"`
	ApiKeyID    string              `json:"key_id"`
	Permissions []domain.Permission `json:"permissions"`
	jwt.RegisteredClaims
}

// KeyLookup resolves a hashed API key secret to its record, used by
// RequireAuth to authenticate the X-Api-Key header against durable storage.
type KeyLookup func(secretHash string) (*domain.ApiKey, bool)

// SessionManager issues and validates JWT sessions, in memory only —
// sessions are not persisted across restart, so a restart simply requires
// management-API clients to re-authenticate.
type SessionManager struct {
	secret           []byte
	ttl              time.Duration
	maxPerKey        int
	lookupAPIKey     KeyLookup

	mu       sync.Mutex
	byKey    map[string][]*domain.Session
}

// NewSessionManager builds a SessionManager signing tokens with secret.
// lookup resolves the X-Api-Key header to a stored key; RequireAuth rejects
// the request if lookup is nil or returns ok=false.
func NewSessionManager(secret []byte, ttl time.Duration, maxPerKey int, lookup KeyLookup) *SessionManager {
	if maxPerKey <= 0 {
		maxPerKey = 10
	}
	return &SessionManager{secret: secret, ttl: ttl, maxPerKey: maxPerKey, lookupAPIKey: lookup, byKey: make(map[string][]*domain.Session)}
}

// TTL returns the lifetime assigned to newly issued sessions.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Issue creates a new session for key and returns its signed JWT.
func (m *SessionManager) Issue(key *domain.ApiKey, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := m.byKey[key.ID]
	if len(sessions) >= m.maxPerKey {
		sessions = sessions[1:]
	}

	sess := &domain.Session{
		ID:        uuid.NewString(),
		ApiKeyID:  key.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.byKey[key.ID] = append(sessions, sess)

	claims := Claims{
		SessionID:   sess.ID,
		ApiKeyID:    key.ID,
		Permissions: key.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", sv2derr.New(sv2derr.KindAuth, "authn.Issue", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT, returning its claims if the session
// it names is still tracked and unexpired.
func (m *SessionManager) Validate(tokenString string, now time.Time) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, sv2derr.New(sv2derr.KindAuth, "authn.Validate", sv2derr.ErrNotAuthorized)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, sv2derr.New(sv2derr.KindAuth, "authn.Validate", sv2derr.ErrNotAuthorized)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.byKey[claims.ApiKeyID] {
		if sess.ID == claims.SessionID && !sess.Expired(now) {
			return claims, nil
		}
	}
	return nil, sv2derr.New(sv2derr.KindAuth, "authn.Validate", sv2derr.ErrNotAuthorized)
}

// Revoke removes a key's sessions entirely (used when the key itself is
// revoked).
func (m *SessionManager) Revoke(keyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byKey, keyID)
}
