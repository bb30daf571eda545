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

// GormRawOrderRepository implements integration.RawOrderRepository using GORM
type GormRawOrderRepository struct {
	db *gorm.DB
}

// NewGormRawOrderRepository creates a new GormRawOrderRepository
func NewGormRawOrderRepository(db *gorm.DB) *GormRawOrderRepository {
	return &GormRawOrderRepository{db: db}
}

// UpsertBatch stores the batch in one INSERT ... ON CONFLICT statement.
// The stored processed flag survives only when the content hash is unchanged.
func (r *GormRawOrderRepository) UpsertBatch(ctx context.Context, orders []integration.RawOrder) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	now := time.Now()
	rows := dedupeRawOrders(orders)
	orderModels := make([]*models.RawOrderModel, len(rows))
	for i := range rows {
		m := models.RawOrderModelFromDomain(&rows[i])
		m.Stamp(now)
		orderModels[i] = m
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "order_id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "shop_id"}, Value: gorm.Expr("excluded.shop_id")},
			{Column: clause.Column{Name: "raw_payload"}, Value: gorm.Expr("excluded.raw_payload")},
			{Column: clause.Column{Name: "received_at"}, Value: gorm.Expr("excluded.received_at")},
			{Column: clause.Column{Name: "content_hash"}, Value: gorm.Expr("excluded.content_hash")},
			{Column: clause.Column{Name: "is_processed"}, Value: gorm.Expr("raw_orders.is_processed AND raw_orders.content_hash = excluded.content_hash")},
			{Column: clause.Column{Name: "ingest_count"}, Value: gorm.Expr("raw_orders.ingest_count + 1")},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}).Create(&orderModels).Error
	if err != nil {
		return 0, err
	}
	return len(orderModels), nil
}

// dedupeRawOrders keeps the last occurrence of each order so a single statement
// never touches the same row twice
func dedupeRawOrders(orders []integration.RawOrder) []integration.RawOrder {
	index := make(map[string]int, len(orders))
	out := make([]integration.RawOrder, 0, len(orders))
	for _, o := range orders {
		key := o.TenantID.String() + "|" + o.OrderID
		if i, ok := index[key]; ok {
			out[i] = o
			continue
		}
		index[key] = len(out)
		out = append(out, o)
	}
	return out
}

// FindUnprocessed returns a keyset page of unprocessed rows ordered by ID
func (r *GormRawOrderRepository) FindUnprocessed(ctx context.Context, tenantID uuid.UUID, afterID uuid.UUID, limit int) ([]integration.RawOrder, error) {
	if limit <= 0 {
		limit = 500
	}

	var orderModels []models.RawOrderModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_processed = ? AND id > ?", tenantID, false, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&orderModels).Error; err != nil {
		return nil, err
	}

	orders := make([]integration.RawOrder, len(orderModels))
	for i, model := range orderModels {
		orders[i] = *model.ToDomain()
	}
	return orders, nil
}

// FindByOrderID finds the raw row of an order
func (r *GormRawOrderRepository) FindByOrderID(ctx context.Context, tenantID uuid.UUID, orderID string) (*integration.RawOrder, error) {
	var model models.RawOrderModel
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

// MarkProcessed flips is_processed for each ref whose stored hash still matches.
// A row re-ingested with new content after it was read stays unprocessed.
func (r *GormRawOrderRepository) MarkProcessed(ctx context.Context, tenantID uuid.UUID, refs []integration.ProcessedRef) (int64, error) {
	if len(refs) == 0 {
		return 0, nil
	}

	var marked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, ref := range refs {
			result := tx.Model(&models.RawOrderModel{}).
				Where("tenant_id = ? AND id = ? AND content_hash = ?", tenantID, ref.ID, ref.ContentHash).
				Updates(map[string]any{"is_processed": true, "updated_at": now})
			if result.Error != nil {
				return result.Error
			}
			marked += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// CountUnprocessed counts rows awaiting normalization
func (r *GormRawOrderRepository) CountUnprocessed(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RawOrderModel{}).
		Where("tenant_id = ? AND is_processed = ?", tenantID, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormRawOrderRepository implements RawOrderRepository interface
var _ integration.RawOrderRepository = (*GormRawOrderRepository)(nil)
