package models

import (
	"encoding/json"
	"time"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ---------------------------------------------------------------------------
// ConnectionModel
// ---------------------------------------------------------------------------

// ConnectionModel is the persistence model for the Connection domain entity.
type ConnectionModel struct {
	BaseModel
	TenantID             uuid.UUID                    `gorm:"type:uuid;not null;uniqueIndex:idx_marketplace_connections_tenant_shop,priority:1"`
	ShopID               int64                        `gorm:"not null;uniqueIndex:idx_marketplace_connections_tenant_shop,priority:2"`
	AccessToken          string                       `gorm:"type:text;not null"`
	RefreshToken         string                       `gorm:"type:text;not null"`
	AccessTokenExpiresAt time.Time                    `gorm:"not null;index"`
	LastSyncCursor       string                       `gorm:"type:text;not null;default:''"`
	LastIngestedAt       *time.Time                   `gorm:""`
	LastError            string                       `gorm:"type:text;not null;default:''"`
	Status               integration.ConnectionStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
}

// TableName returns the table name for GORM
func (ConnectionModel) TableName() string {
	return "marketplace_connections"
}

// ToDomain converts the persistence model to a domain Connection entity.
func (m *ConnectionModel) ToDomain() *integration.Connection {
	return &integration.Connection{
		ID:                   m.ID,
		TenantID:             m.TenantID,
		ShopID:               m.ShopID,
		AccessToken:          m.AccessToken,
		RefreshToken:         m.RefreshToken,
		AccessTokenExpiresAt: m.AccessTokenExpiresAt.UTC(),
		LastSyncCursor:       m.LastSyncCursor,
		LastIngestedAt:       m.LastIngestedAt,
		LastError:            m.LastError,
		Status:               m.Status,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Connection entity.
func (m *ConnectionModel) FromDomain(c *integration.Connection) {
	m.ID = c.ID
	m.TenantID = c.TenantID
	m.ShopID = c.ShopID
	m.AccessToken = c.AccessToken
	m.RefreshToken = c.RefreshToken
	m.AccessTokenExpiresAt = c.AccessTokenExpiresAt
	m.LastSyncCursor = c.LastSyncCursor
	m.LastIngestedAt = c.LastIngestedAt
	m.LastError = c.LastError
	m.Status = c.Status
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

// ConnectionModelFromDomain creates a new persistence model from a domain Connection entity.
func ConnectionModelFromDomain(c *integration.Connection) *ConnectionModel {
	m := &ConnectionModel{}
	m.FromDomain(c)
	return m
}

// ---------------------------------------------------------------------------
// RawOrderModel
// ---------------------------------------------------------------------------

// RawOrderModel is the persistence model for the RawOrder domain entity.
// The payload is stored as jsonb; the content hash is computed over its canonical form.
type RawOrderModel struct {
	BaseModel
	TenantID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_raw_orders_tenant_order,priority:1;index:idx_raw_orders_tenant_processed,priority:1"`
	ShopID      int64          `gorm:"not null;index"`
	OrderID     string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_raw_orders_tenant_order,priority:2"`
	RawPayload  datatypes.JSON `gorm:"type:jsonb;not null"`
	ContentHash string         `gorm:"type:char(64);not null"`
	IsProcessed bool           `gorm:"not null;default:false;index:idx_raw_orders_tenant_processed,priority:2"`
	IngestCount int            `gorm:"not null;default:1"`
	ReceivedAt  time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RawOrderModel) TableName() string {
	return "raw_orders"
}

// ToDomain converts the persistence model to a domain RawOrder entity.
func (m *RawOrderModel) ToDomain() *integration.RawOrder {
	return &integration.RawOrder{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ShopID:      m.ShopID,
		OrderID:     m.OrderID,
		RawPayload:  json.RawMessage(m.RawPayload),
		ContentHash: m.ContentHash,
		IsProcessed: m.IsProcessed,
		IngestCount: m.IngestCount,
		ReceivedAt:  m.ReceivedAt,
	}
}

// FromDomain populates the persistence model from a domain RawOrder entity.
func (m *RawOrderModel) FromDomain(o *integration.RawOrder) {
	m.ID = o.ID
	m.TenantID = o.TenantID
	m.ShopID = o.ShopID
	m.OrderID = o.OrderID
	m.RawPayload = datatypes.JSON(o.RawPayload)
	m.ContentHash = o.ContentHash
	m.IsProcessed = o.IsProcessed
	m.IngestCount = o.IngestCount
	m.ReceivedAt = o.ReceivedAt
}

// RawOrderModelFromDomain creates a new persistence model from a domain RawOrder entity.
func RawOrderModelFromDomain(o *integration.RawOrder) *RawOrderModel {
	m := &RawOrderModel{}
	m.FromDomain(o)
	return m
}

// ---------------------------------------------------------------------------
// NormalizedOrderModel
// ---------------------------------------------------------------------------

// NormalizedOrderModel is the persistence model for the NormalizedOrder domain entity.
type NormalizedOrderModel struct {
	BaseModel
	TenantID             uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_normalized_orders_tenant_order,priority:1"`
	ShopID               int64                   `gorm:"not null;index"`
	OrderID              string                  `gorm:"type:varchar(64);not null;uniqueIndex:idx_normalized_orders_tenant_order,priority:2"`
	Status               integration.OrderStatus `gorm:"type:varchar(30);not null;index"`
	SourceStatus         string                  `gorm:"type:varchar(50);not null;default:''"`
	Currency             string                  `gorm:"type:varchar(10);not null;default:''"`
	TotalAmount          decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	ShippingFee          decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	NetAmount            decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	CreatedAtSource      *time.Time              `gorm:"index"`
	UpdatedAtSource      *time.Time              `gorm:""`
	PaidAt               *time.Time              `gorm:""`
	BuyerUsername        *string                 `gorm:"type:varchar(255)"`
	PaymentMethod        *string                 `gorm:"type:varchar(100)"`
	ShippingCarrier      *string                 `gorm:"type:varchar(100)"`
	RecipientName        *string                 `gorm:"type:varchar(255)"`
	RecipientPhone       *string                 `gorm:"type:varchar(50)"`
	RecipientFullAddress *string                 `gorm:"type:text"`
	RecipientCity        *string                 `gorm:"type:varchar(100)"`
	RecipientState       *string                 `gorm:"type:varchar(100)"`
	RecipientRegion      *string                 `gorm:"type:varchar(10)"`
	RecipientZipcode     *string                 `gorm:"type:varchar(20)"`
	RawOrderID           uuid.UUID               `gorm:"type:uuid;not null"`
	SourceHash           string                  `gorm:"type:char(64);not null"`
}

// TableName returns the table name for GORM
func (NormalizedOrderModel) TableName() string {
	return "normalized_orders"
}

// NormalizedOrderUpdateColumns are overwritten when an order is normalized again
var NormalizedOrderUpdateColumns = []string{
	"shop_id", "status", "source_status", "currency",
	"total_amount", "shipping_fee", "net_amount",
	"created_at_source", "updated_at_source", "paid_at",
	"buyer_username", "payment_method", "shipping_carrier",
	"recipient_name", "recipient_phone", "recipient_full_address",
	"recipient_city", "recipient_state", "recipient_region", "recipient_zipcode",
	"raw_order_id", "source_hash", "updated_at",
}

// ToDomain converts the persistence model to a domain NormalizedOrder.
func (m *NormalizedOrderModel) ToDomain() *integration.NormalizedOrder {
	return &integration.NormalizedOrder{
		TenantID:             m.TenantID,
		ShopID:               m.ShopID,
		OrderID:              m.OrderID,
		Status:               m.Status,
		SourceStatus:         m.SourceStatus,
		Currency:             m.Currency,
		TotalAmount:          m.TotalAmount,
		ShippingFee:          m.ShippingFee,
		NetAmount:            m.NetAmount,
		CreatedAtSource:      utcPtr(m.CreatedAtSource),
		UpdatedAtSource:      utcPtr(m.UpdatedAtSource),
		PaidAt:               utcPtr(m.PaidAt),
		BuyerUsername:        m.BuyerUsername,
		PaymentMethod:        m.PaymentMethod,
		ShippingCarrier:      m.ShippingCarrier,
		RecipientName:        m.RecipientName,
		RecipientPhone:       m.RecipientPhone,
		RecipientFullAddress: m.RecipientFullAddress,
		RecipientCity:        m.RecipientCity,
		RecipientState:       m.RecipientState,
		RecipientRegion:      m.RecipientRegion,
		RecipientZipcode:     m.RecipientZipcode,
		RawOrderID:           m.RawOrderID,
		SourceHash:           m.SourceHash,
	}
}

// FromDomain populates the persistence model from a domain NormalizedOrder.
// A fresh ID is assigned; on conflict the stored ID is kept.
func (m *NormalizedOrderModel) FromDomain(o *integration.NormalizedOrder, now time.Time) {
	m.BaseModel = BaseModel{}
	m.Stamp(now)
	m.TenantID = o.TenantID
	m.ShopID = o.ShopID
	m.OrderID = o.OrderID
	m.Status = o.Status
	m.SourceStatus = o.SourceStatus
	m.Currency = o.Currency
	m.TotalAmount = o.TotalAmount
	m.ShippingFee = o.ShippingFee
	m.NetAmount = o.NetAmount
	m.CreatedAtSource = o.CreatedAtSource
	m.UpdatedAtSource = o.UpdatedAtSource
	m.PaidAt = o.PaidAt
	m.BuyerUsername = o.BuyerUsername
	m.PaymentMethod = o.PaymentMethod
	m.ShippingCarrier = o.ShippingCarrier
	m.RecipientName = o.RecipientName
	m.RecipientPhone = o.RecipientPhone
	m.RecipientFullAddress = o.RecipientFullAddress
	m.RecipientCity = o.RecipientCity
	m.RecipientState = o.RecipientState
	m.RecipientRegion = o.RecipientRegion
	m.RecipientZipcode = o.RecipientZipcode
	m.RawOrderID = o.RawOrderID
	m.SourceHash = o.SourceHash
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
