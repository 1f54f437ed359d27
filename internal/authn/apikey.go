// Package authn implements API key management, JWT sessions, permission
// checks and per-IP rate limiting for the management HTTP API.
package authn

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sv2d/sv2d/internal/database"
	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

// MinSecretBytes is the minimum entropy an API key secret must carry.
const MinSecretBytes = 32

// GenerateAPIKey creates a new ApiKey and returns both the stored record
// (only the secret's hash) and the raw secret, which the caller must
// surface to the operator exactly once — it cannot be recovered later.
func GenerateAPIKey(name string, perms []domain.Permission, now time.Time) (*domain.ApiKey, string, error) {
	raw := make([]byte, MinSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", sv2derr.New(sv2derr.KindInternal, "authn.GenerateAPIKey", err)
	}
	secret := hex.EncodeToString(raw)

	key := &domain.ApiKey{
		ID:          uuid.NewString(),
		Name:        name,
		SecretHash:  HashSecret(secret),
		Permissions: perms,
		CreatedAt:   now,
	}
	return key, secret, nil
}

// HashSecret returns the SHA-256 hash of a raw API key secret, hex-encoded.
// Only this hash is ever persisted.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecret reports whether secret matches key's stored hash.
func VerifySecret(key *domain.ApiKey, secret string) bool {
	return key.SecretHash == HashSecret(secret) && !key.Revoked
}

// RequirePermission returns an error unless key grants perm.
func RequirePermission(key *domain.ApiKey, perm domain.Permission) error {
	if key == nil || !key.HasPermission(perm) {
		return sv2derr.New(sv2derr.KindAuth, "authn.RequirePermission", fmt.Errorf("missing permission %s", perm))
	}
	return nil
}

// JoinPermissions renders perms as the comma-joined form ApiKeyRow persists.
func JoinPermissions(perms []domain.Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

// SplitPermissions parses ApiKeyRow's comma-joined permissions column.
func SplitPermissions(raw string) []domain.Permission {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	perms := make([]domain.Permission, len(parts))
	for i, p := range parts {
		perms[i] = domain.Permission(strings.TrimSpace(p))
	}
	return perms
}

// RowToApiKey adapts a persisted ApiKeyRow to the domain.ApiKey shape
// RequireAuth and SessionManager.Issue operate on.
func RowToApiKey(row *database.ApiKeyRow) *domain.ApiKey {
	return &domain.ApiKey{
		ID:          row.ID,
		Name:        row.Name,
		SecretHash:  row.SecretHash,
		Permissions: SplitPermissions(row.Permissions),
		CreatedAt:   row.CreatedAt,
		Revoked:     row.Revoked,
	}
}
