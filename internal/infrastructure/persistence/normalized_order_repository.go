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

// GormNormalizedOrderRepository implements integration.NormalizedOrderRepository using GORM
type GormNormalizedOrderRepository struct {
	db *gorm.DB
}

// NewGormNormalizedOrderRepository creates a new GormNormalizedOrderRepository
func NewGormNormalizedOrderRepository(db *gorm.DB) *GormNormalizedOrderRepository {
	return &GormNormalizedOrderRepository{db: db}
}

// UpsertBatch writes all orders in one statement keyed by (tenant_id, order_id)
func (r *GormNormalizedOrderRepository) UpsertBatch(ctx context.Context, orders []integration.NormalizedOrder) error {
	if len(orders) == 0 {
		return nil
	}

	now := time.Now()
	orderModels := make([]*models.NormalizedOrderModel, len(orders))
	for i := range orders {
		m := &models.NormalizedOrderModel{}
		m.FromDomain(&orders[i], now)
		orderModels[i] = m
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns(models.NormalizedOrderUpdateColumns),
	}).Create(&orderModels).Error
}

// FindByOrderID finds the normalized row of an order
func (r *GormNormalizedOrderRepository) FindByOrderID(ctx context.Context, tenantID uuid.UUID, orderID string) (*integration.NormalizedOrder, error) {
	var model models.NormalizedOrderModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormNormalizedOrderRepository implements NormalizedOrderRepository interface
var _ integration.NormalizedOrderRepository = (*GormNormalizedOrderRepository)(nil)
