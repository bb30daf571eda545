package integration

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// OrderStatus
// ---------------------------------------------------------------------------

// OrderStatus is the normalized order status
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusReadyToShip    OrderStatus = "READY_TO_SHIP"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusCompleted      OrderStatus = "COMPLETED"
	OrderStatusCancelling     OrderStatus = "CANCELLING"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusReturning      OrderStatus = "RETURNING"
	OrderStatusUnknown        OrderStatus = "UNKNOWN"
)

// IsValid returns true if the status is a known normalized status
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusReadyToShip, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusCancelling, OrderStatusCancelled,
		OrderStatusReturning, OrderStatusUnknown:
		return true
	}
	return false
}

// String returns the string representation
func (s OrderStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// NormalizedOrder
// ---------------------------------------------------------------------------

// NormalizedOrder is the reporting shape of an order. It is a pure function of
// the RawOrder payload it was derived from.
type NormalizedOrder struct {
	TenantID uuid.UUID
	ShopID   int64
	OrderID  string
	Status   OrderStatus
	// SourceStatus is the marketplace status string, kept verbatim
	SourceStatus string
	Currency     string

	TotalAmount decimal.Decimal
	ShippingFee decimal.Decimal
	// NetAmount is TotalAmount minus ShippingFee
	NetAmount decimal.Decimal

	CreatedAtSource *time.Time
	UpdatedAtSource *time.Time
	PaidAt          *time.Time

	BuyerUsername   *string
	PaymentMethod   *string
	ShippingCarrier *string

	RecipientName        *string
	RecipientPhone       *string
	RecipientFullAddress *string
	RecipientCity        *string
	RecipientState       *string
	RecipientRegion      *string
	RecipientZipcode     *string

	RawOrderID uuid.UUID
	SourceHash string
}

// ---------------------------------------------------------------------------
// Column bounds
// ---------------------------------------------------------------------------

// Money columns are DECIMAL(18,2): at most 16 integer digits.
var maxMoney = decimal.New(1, 16)

// Widths of the normalized_orders varchar columns, in characters.
const (
	maxOrderIDLen      = 64
	maxSourceStatusLen = 50
	maxCurrencyLen     = 10
	maxBuyerLen        = 255
	maxPaymentLen      = 100
	maxCarrierLen      = 100
	maxNameLen         = 255
	maxPhoneLen        = 50
	maxCityLen         = 100
	maxStateLen        = 100
	maxRegionLen       = 10
	maxZipcodeLen      = 20
)

// fitColumns makes the order storable. Identifying fields and amounts that
// do not fit are rejected with ErrFieldOutOfRange. Free-text fields are cut
// to their column width.
func (o *NormalizedOrder) fitColumns() error {
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"order_id", o.OrderID, maxOrderIDLen},
		{"source_status", o.SourceStatus, maxSourceStatusLen},
		{"currency", o.Currency, maxCurrencyLen},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			return fmt.Errorf("%w: %s is longer than %d characters", ErrFieldOutOfRange, f.name, f.max)
		}
	}

	for _, m := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"total_amount", o.TotalAmount},
		{"shipping_fee", o.ShippingFee},
		{"net_amount", o.NetAmount},
	} {
		if m.value.Round(2).Abs().GreaterThanOrEqual(maxMoney) {
			return fmt.Errorf("%w: %s %s exceeds 16 integer digits", ErrFieldOutOfRange, m.name, m.value.String())
		}
	}

	o.BuyerUsername = clip(o.BuyerUsername, maxBuyerLen)
	o.PaymentMethod = clip(o.PaymentMethod, maxPaymentLen)
	o.ShippingCarrier = clip(o.ShippingCarrier, maxCarrierLen)
	o.RecipientName = clip(o.RecipientName, maxNameLen)
	o.RecipientPhone = clip(o.RecipientPhone, maxPhoneLen)
	o.RecipientCity = clip(o.RecipientCity, maxCityLen)
	o.RecipientState = clip(o.RecipientState, maxStateLen)
	o.RecipientRegion = clip(o.RecipientRegion, maxRegionLen)
	o.RecipientZipcode = clip(o.RecipientZipcode, maxZipcodeLen)
	return nil
}

func clip(s *string, max int) *string {
	if s == nil || utf8.RuneCountInString(*s) <= max {
		return s
	}
	cut := string([]rune(*s)[:max])
	return &cut
}
