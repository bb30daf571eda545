package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormConnectionRepository implements integration.ConnectionRepository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GormConnectionRepository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// FindByTenantAndShop finds the connection of a shop
func (r *GormConnectionRepository) FindByTenantAndShop(ctx context.Context, tenantID uuid.UUID, shopID int64) (*integration.Connection, error) {
	var model models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND shop_id = ?", tenantID, shopID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrConnectionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTenant finds all connections of a tenant
func (r *GormConnectionRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]integration.Connection, error) {
	var connModels []models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("shop_id ASC").
		Find(&connModels).Error; err != nil {
		return nil, err
	}
	return toDomainConnections(connModels), nil
}

// FindActive finds every active connection
func (r *GormConnectionRepository) FindActive(ctx context.Context) ([]integration.Connection, error) {
	var connModels []models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", integration.ConnectionStatusActive).
		Order("tenant_id ASC, shop_id ASC").
		Find(&connModels).Error; err != nil {
		return nil, err
	}
	return toDomainConnections(connModels), nil
}

// FindExpiringBefore finds active connections whose access token expires before cutoff
func (r *GormConnectionRepository) FindExpiringBefore(ctx context.Context, cutoff time.Time) ([]integration.Connection, error) {
	var connModels []models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND access_token_expires_at < ?", integration.ConnectionStatusActive, cutoff).
		Order("access_token_expires_at ASC").
		Find(&connModels).Error; err != nil {
		return nil, err
	}
	return toDomainConnections(connModels), nil
}

func toDomainConnections(connModels []models.ConnectionModel) []integration.Connection {
	conns := make([]integration.Connection, len(connModels))
	for i, model := range connModels {
		conns[i] = *model.ToDomain()
	}
	return conns
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Save inserts the connection, or on (tenant_id, shop_id) conflict replaces its
// tokens and re-activates it. The stored ID and CreatedAt are copied back to conn.
func (r *GormConnectionRepository) Save(ctx context.Context, conn *integration.Connection) error {
	model := models.ConnectionModelFromDomain(conn)
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "shop_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "access_token_expires_at",
			"status", "last_error", "updated_at",
		}),
	}).Create(model).Error
	if err != nil {
		return err
	}

	var stored models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Select("id", "created_at").
		Where("tenant_id = ? AND shop_id = ?", conn.TenantID, conn.ShopID).
		First(&stored).Error; err != nil {
		return err
	}
	conn.ID = stored.ID
	conn.CreatedAt = stored.CreatedAt
	return nil
}

// UpdateTokens writes the token pair and its expiry in one statement
func (r *GormConnectionRepository) UpdateTokens(ctx context.Context, conn *integration.Connection) error {
	return r.update(ctx, conn.TenantID, conn.ShopID, map[string]any{
		"access_token":            conn.AccessToken,
		"refresh_token":           conn.RefreshToken,
		"access_token_expires_at": conn.AccessTokenExpiresAt,
		"last_error":              "",
		"updated_at":              conn.UpdatedAt,
	})
}

// UpdateSyncState records the cursor and end of the last successful ingestion window
func (r *GormConnectionRepository) UpdateSyncState(ctx context.Context, tenantID uuid.UUID, shopID int64, cursor string, ingestedAt time.Time) error {
	return r.update(ctx, tenantID, shopID, map[string]any{
		"last_sync_cursor": cursor,
		"last_ingested_at": ingestedAt,
		"last_error":       "",
		"updated_at":       time.Now(),
	})
}

// RecordError stores the last failure. Token columns are never touched.
func (r *GormConnectionRepository) RecordError(ctx context.Context, tenantID uuid.UUID, shopID int64, message string) error {
	return r.update(ctx, tenantID, shopID, map[string]any{
		"last_error": message,
		"updated_at": time.Now(),
	})
}

// UpdateStatus soft-enables or soft-disables a connection
func (r *GormConnectionRepository) UpdateStatus(ctx context.Context, tenantID uuid.UUID, shopID int64, status integration.ConnectionStatus) error {
	return r.update(ctx, tenantID, shopID, map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	})
}

func (r *GormConnectionRepository) update(ctx context.Context, tenantID uuid.UUID, shopID int64, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.ConnectionModel{}).
		Where("tenant_id = ? AND shop_id = ?", tenantID, shopID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrConnectionNotFound
	}
	return nil
}

// Ensure GormConnectionRepository implements ConnectionRepository interface
var _ integration.ConnectionRepository = (*GormConnectionRepository)(nil)
