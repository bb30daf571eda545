package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConnectionRepository persists Connections. It is the token store.
type ConnectionRepository interface {
	// FindByTenantAndShop returns ErrConnectionNotFound when no row exists
	FindByTenantAndShop(ctx context.Context, tenantID uuid.UUID, shopID int64) (*Connection, error)

	// FindByTenant returns all connections of a tenant, including disabled ones
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]Connection, error)

	// FindActive returns every active connection across tenants
	FindActive(ctx context.Context) ([]Connection, error)

	// FindExpiringBefore returns active connections whose access token expires before cutoff
	FindExpiringBefore(ctx context.Context, cutoff time.Time) ([]Connection, error)

	// Save inserts the connection or, on (tenant_id, shop_id) conflict, replaces its
	// tokens and re-activates it
	Save(ctx context.Context, conn *Connection) error

	// UpdateTokens writes the access token, refresh token and expiry together
	UpdateTokens(ctx context.Context, conn *Connection) error

	// UpdateSyncState records the cursor and window end of a successful ingestion
	UpdateSyncState(ctx context.Context, tenantID uuid.UUID, shopID int64, cursor string, ingestedAt time.Time) error

	// RecordError stores the last failure without touching token fields
	RecordError(ctx context.Context, tenantID uuid.UUID, shopID int64, message string) error

	// UpdateStatus soft-enables or soft-disables a connection
	UpdateStatus(ctx context.Context, tenantID uuid.UUID, shopID int64, status ConnectionStatus) error
}

// RawOrderRepository persists RawOrders
type RawOrderRepository interface {
	// UpsertBatch stores orders keyed by (tenant_id, order_id) in one statement.
	// On conflict the payload, hash and received_at are overwritten and is_processed
	// is kept only if the content hash is unchanged.
	UpsertBatch(ctx context.Context, orders []RawOrder) (int, error)

	// FindUnprocessed returns up to limit unprocessed rows with ID greater than afterID, ordered by ID
	FindUnprocessed(ctx context.Context, tenantID uuid.UUID, afterID uuid.UUID, limit int) ([]RawOrder, error)

	// FindByOrderID returns the raw row for an order
	FindByOrderID(ctx context.Context, tenantID uuid.UUID, orderID string) (*RawOrder, error)

	// MarkProcessed flips is_processed for rows whose content hash still matches
	MarkProcessed(ctx context.Context, tenantID uuid.UUID, refs []ProcessedRef) (int64, error)

	// CountUnprocessed returns the number of rows awaiting normalization
	CountUnprocessed(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// NormalizedOrderRepository persists NormalizedOrders
type NormalizedOrderRepository interface {
	// UpsertBatch stores all orders keyed by (tenant_id, order_id) in one statement
	UpsertBatch(ctx context.Context, orders []NormalizedOrder) error

	// FindByOrderID returns the normalized row for an order
	FindByOrderID(ctx context.Context, tenantID uuid.UUID, orderID string) (*NormalizedOrder, error)
}
