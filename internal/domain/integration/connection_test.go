package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGrant() TokenGrant {
	return TokenGrant{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 4 * time.Hour}
}

func TestNewConnection(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("creates active connection with absolute expiry", func(t *testing.T) {
		tenantID := uuid.New()

		conn, err := NewConnection(tenantID, 42, validGrant(), now)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, conn.ID)
		assert.Equal(t, tenantID, conn.TenantID)
		assert.Equal(t, int64(42), conn.ShopID)
		assert.Equal(t, ConnectionStatusActive, conn.Status)
		assert.Equal(t, now.Add(4*time.Hour), conn.AccessTokenExpiresAt)
		assert.True(t, conn.IsActive())
	})

	t.Run("rejects nil tenant", func(t *testing.T) {
		_, err := NewConnection(uuid.Nil, 42, validGrant(), now)
		assert.Equal(t, ErrInvalidTenantID, err)
	})

	t.Run("rejects non-positive shop", func(t *testing.T) {
		_, err := NewConnection(uuid.New(), 0, validGrant(), now)
		assert.Equal(t, ErrInvalidShopID, err)
	})

	t.Run("rejects incomplete grant", func(t *testing.T) {
		grant := validGrant()
		grant.RefreshToken = ""
		_, err := NewConnection(uuid.New(), 42, grant, now)
		assert.Equal(t, ErrInvalidTokenGrant, err)
	})
}

func TestConnection_ApplyGrant(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	conn, err := NewConnection(uuid.New(), 42, validGrant(), now)
	require.NoError(t, err)
	conn.LastError = "previous failure"

	later := now.Add(3 * time.Hour)
	conn.ApplyGrant(TokenGrant{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: time.Hour}, later)

	assert.Equal(t, "a2", conn.AccessToken)
	assert.Equal(t, "r2", conn.RefreshToken)
	assert.Equal(t, later.Add(time.Hour), conn.AccessTokenExpiresAt)
	assert.Empty(t, conn.LastError)
	assert.Equal(t, later, conn.UpdatedAt)
}

func TestConnection_TokenState(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		token     string
		expiresAt time.Time
		want      TokenState
	}{
		{"no token", "", now.Add(time.Hour), TokenStateNoToken},
		{"zero expiry", "tok", time.Time{}, TokenStateNoToken},
		{"4 minutes left is expiring", "tok", now.Add(4 * time.Minute), TokenStateExpiringSoon},
		{"already expired", "tok", now.Add(-time.Minute), TokenStateExpiringSoon},
		{"10 minutes left is valid", "tok", now.Add(10 * time.Minute), TokenStateValid},
		{"exactly at margin is valid", "tok", now.Add(DefaultRefreshMargin), TokenStateValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &Connection{AccessToken: tt.token, AccessTokenExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, conn.TokenState(now, DefaultRefreshMargin))
		})
	}
}

func TestConnectionKey(t *testing.T) {
	tenantID := uuid.MustParse("6f1c2a9e-0000-4000-8000-000000000001")
	conn := &Connection{TenantID: tenantID, ShopID: 77}

	assert.Equal(t, "6f1c2a9e-0000-4000-8000-000000000001:77", conn.Key())
	assert.Equal(t, conn.Key(), ConnectionKey(tenantID, 77))
}
