package integration

import (
	"time"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Connection DTOs
// ---------------------------------------------------------------------------

// ConnectionResponse is a connection as shown to API clients. Tokens are never exposed.
type ConnectionResponse struct {
	ID                   uuid.UUID                    `json:"id"`
	TenantID             uuid.UUID                    `json:"tenant_id"`
	ShopID               int64                        `json:"shop_id"`
	Status               integration.ConnectionStatus `json:"status"`
	TokenState           integration.TokenState       `json:"token_state"`
	AccessTokenExpiresAt time.Time                    `json:"access_token_expires_at"`
	LastIngestedAt       *time.Time                   `json:"last_ingested_at,omitempty"`
	LastError            string                       `json:"last_error,omitempty"`
	CreatedAt            time.Time                    `json:"created_at"`
	UpdatedAt            time.Time                    `json:"updated_at"`
}

// ToConnectionResponse converts a domain Connection to its API shape
func ToConnectionResponse(conn *integration.Connection, now time.Time, margin time.Duration) ConnectionResponse {
	return ConnectionResponse{
		ID:                   conn.ID,
		TenantID:             conn.TenantID,
		ShopID:               conn.ShopID,
		Status:               conn.Status,
		TokenState:           conn.TokenState(now, margin),
		AccessTokenExpiresAt: conn.AccessTokenExpiresAt,
		LastIngestedAt:       conn.LastIngestedAt,
		LastError:            conn.LastError,
		CreatedAt:            conn.CreatedAt,
		UpdatedAt:            conn.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Run DTOs
// ---------------------------------------------------------------------------

// IngestionRunResult aggregates the ingestion reports of one trigger
type IngestionRunResult struct {
	TenantID uuid.UUID                     `json:"tenant_id"`
	Status   integration.RunStatus         `json:"status"`
	Shops    int                           `json:"shops"`
	Listed   int                           `json:"listed"`
	Fetched  int                           `json:"fetched"`
	Stored   int                           `json:"stored"`
	Failed   int                           `json:"failed"`
	Reports  []integration.IngestionReport `json:"reports"`
	// InProgress lists shops skipped because another run held them
	InProgress []int64 `json:"in_progress,omitempty"`
}

// NewIngestionRunResult sums the shop reports into one result
func NewIngestionRunResult(tenantID uuid.UUID, reports []integration.IngestionReport) *IngestionRunResult {
	result := &IngestionRunResult{
		TenantID: tenantID,
		Shops:    len(reports),
		Reports:  reports,
	}
	if result.Reports == nil {
		result.Reports = []integration.IngestionReport{}
	}

	succeeded, failed := 0, 0
	for i := range reports {
		r := &reports[i]
		result.Listed += r.Listed
		result.Fetched += r.Fetched
		result.Stored += r.Stored
		result.Failed += r.Failed
		switch r.Status() {
		case integration.RunStatusSuccess:
			succeeded++
		case integration.RunStatusFailed:
			failed++
		}
	}

	switch {
	case succeeded == len(reports):
		result.Status = integration.RunStatusSuccess
	case failed == len(reports):
		result.Status = integration.RunStatusFailed
	default:
		result.Status = integration.RunStatusPartial
	}
	return result
}
