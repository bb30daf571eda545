package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultRefreshMargin is how long before expiry an access token is refreshed
const DefaultRefreshMargin = 5 * time.Minute

// ---------------------------------------------------------------------------
// ConnectionStatus
// ---------------------------------------------------------------------------

// ConnectionStatus is the soft-delete flag of a Connection
type ConnectionStatus string

const (
	ConnectionStatusActive   ConnectionStatus = "ACTIVE"
	ConnectionStatusDisabled ConnectionStatus = "DISABLED"
)

// IsValid returns true if the status is known
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case ConnectionStatusActive, ConnectionStatusDisabled:
		return true
	}
	return false
}

// String returns the string representation
func (s ConnectionStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// TokenState
// ---------------------------------------------------------------------------

// TokenState is the lifecycle state of a connection's access token.
// REFRESHING and FAILED are transient states owned by the token service;
// a stored connection is only ever observed as NO_TOKEN, VALID or EXPIRING_SOON.
type TokenState string

const (
	TokenStateNoToken      TokenState = "NO_TOKEN"
	TokenStateValid        TokenState = "VALID"
	TokenStateExpiringSoon TokenState = "EXPIRING_SOON"
	TokenStateRefreshing   TokenState = "REFRESHING"
	TokenStateFailed       TokenState = "FAILED"
)

// ---------------------------------------------------------------------------
// TokenGrant
// ---------------------------------------------------------------------------

// TokenGrant is the token pair returned by a code exchange or refresh
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Validate checks that the grant can be persisted
func (g TokenGrant) Validate() error {
	if g.AccessToken == "" || g.RefreshToken == "" || g.ExpiresIn <= 0 {
		return ErrInvalidTokenGrant
	}
	return nil
}

// ---------------------------------------------------------------------------
// Connection
// ---------------------------------------------------------------------------

// Connection links a tenant to one marketplace shop.
// There is at most one Connection per (TenantID, ShopID).
type Connection struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	ShopID               int64
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	LastSyncCursor       string
	LastIngestedAt       *time.Time
	LastError            string
	Status               ConnectionStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewConnection creates an active connection from the first token grant
func NewConnection(tenantID uuid.UUID, shopID int64, grant TokenGrant, now time.Time) (*Connection, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if shopID <= 0 {
		return nil, ErrInvalidShopID
	}
	if err := grant.Validate(); err != nil {
		return nil, err
	}

	c := &Connection{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ShopID:    shopID,
		Status:    ConnectionStatusActive,
		CreatedAt: now,
	}
	c.ApplyGrant(grant, now)
	return c, nil
}

// ApplyGrant replaces the token pair. The expiry is always derived from the
// grant that produced the access token.
func (c *Connection) ApplyGrant(grant TokenGrant, now time.Time) {
	c.AccessToken = grant.AccessToken
	c.RefreshToken = grant.RefreshToken
	c.AccessTokenExpiresAt = now.Add(grant.ExpiresIn)
	c.LastError = ""
	c.UpdatedAt = now
}

// TokenState reports the token state observed at now with the given refresh margin
func (c *Connection) TokenState(now time.Time, margin time.Duration) TokenState {
	if c.AccessToken == "" || c.AccessTokenExpiresAt.IsZero() {
		return TokenStateNoToken
	}
	if c.AccessTokenExpiresAt.Sub(now) < margin {
		return TokenStateExpiringSoon
	}
	return TokenStateValid
}

// IsActive returns true if the connection takes part in scheduled syncs
func (c *Connection) IsActive() bool {
	return c.Status == ConnectionStatusActive
}

// Key returns the per-connection serialization key
func (c *Connection) Key() string {
	return ConnectionKey(c.TenantID, c.ShopID)
}

// ConnectionKey builds the "tenant:shop" key used for single-flight and locking
func ConnectionKey(tenantID uuid.UUID, shopID int64) string {
	return fmt.Sprintf("%s:%d", tenantID, shopID)
}
