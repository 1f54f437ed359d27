package authn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/database"
	"github.com/sv2d/sv2d/internal/domain"
)

func TestGenerateAPIKey(t *testing.T) {
	key, secret, err := GenerateAPIKey("ops-dashboard", []domain.Permission{domain.PermViewMetrics}, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, key.ID)
	assert.Equal(t, HashSecret(secret), key.SecretHash)
	assert.True(t, VerifySecret(key, secret))
	assert.False(t, VerifySecret(key, secret+"x"))
}

func TestVerifySecretRejectsRevoked(t *testing.T) {
	key, secret, err := GenerateAPIKey("revoked-key", nil, time.Now())
	require.NoError(t, err)
	key.Revoked = true
	assert.False(t, VerifySecret(key, secret))
}

func TestRequirePermission(t *testing.T) {
	admin := &domain.ApiKey{Permissions: []domain.Permission{domain.PermAdminAccess}}
	limited := &domain.ApiKey{Permissions: []domain.Permission{domain.PermViewMetrics}}

	assert.NoError(t, RequirePermission(admin, domain.PermManageConfig))
	assert.NoError(t, RequirePermission(limited, domain.PermViewMetrics))
	assert.Error(t, RequirePermission(limited, domain.PermManageConfig))
	assert.Error(t, RequirePermission(nil, domain.PermViewMetrics))
}

func TestJoinSplitPermissionsRoundTrip(t *testing.T) {
	perms := []domain.Permission{domain.PermViewMetrics, domain.PermManageConfig, domain.PermAdminAccess}
	joined := JoinPermissions(perms)
	assert.Equal(t, "view_metrics,manage_config,admin_access", joined)
	assert.Equal(t, perms, SplitPermissions(joined))
}

func TestSplitPermissionsEmpty(t *testing.T) {
	assert.Nil(t, SplitPermissions(""))
}

func TestRowToApiKey(t *testing.T) {
	now := time.Now()
	row := &database.ApiKeyRow{
		ID:          "key-1",
		Name:        "ci",
		SecretHash:  "abc123",
		Permissions: "view_shares,view_connections",
		CreatedAt:   now,
		Revoked:     true,
	}
	key := RowToApiKey(row)
	assert.Equal(t, "key-1", key.ID)
	assert.Equal(t, []domain.Permission{domain.PermViewShares, domain.PermViewConnections}, key.Permissions)
	assert.True(t, key.Revoked)
}
