package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// orderPayload is the subset of the marketplace order detail used for normalization.
// Scalar fields that the marketplace has been seen to send as either strings or
// numbers are kept as json.RawMessage and coerced explicitly.
type orderPayload struct {
	OrderSN           string          `json:"order_sn"`
	OrderStatus       string          `json:"order_status"`
	Currency          string          `json:"currency"`
	TotalAmount       json.RawMessage `json:"total_amount"`
	ShippingFee       json.RawMessage `json:"shipping_fee"`
	CreateTime        json.RawMessage `json:"create_time"`
	UpdateTime        json.RawMessage `json:"update_time"`
	PayTime           json.RawMessage `json:"pay_time"`
	BuyerUsername     string          `json:"buyer_username"`
	PaymentMethod     string          `json:"payment_method"`
	ShippingCarrier   string          `json:"shipping_carrier"`
	RecipientAddress  *addressPayload `json:"recipient_address"`
}

type addressPayload struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	FullAddress string `json:"full_address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Region      string `json:"region"`
	Zipcode     string `json:"zipcode"`
}

// NormalizeRawOrder maps a raw marketplace payload onto the normalized schema.
// It has no side effects: the same RawOrder always yields the same NormalizedOrder.
//
// Coercion rules:
//   - epoch-second timestamps become UTC instants; 0 or absent becomes nil
//   - money accepts strings or numbers; missing, null, empty or non-numeric becomes zero
//   - a missing recipient_address yields nil for every recipient field
//   - amounts beyond DECIMAL(18,2) and over-long identifiers are rejected
//     with ErrFieldOutOfRange; over-long free text is truncated
func NormalizeRawOrder(raw *RawOrder) (*NormalizedOrder, error) {
	var p orderPayload
	if err := json.Unmarshal(raw.RawPayload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	orderID := raw.OrderID
	if orderID == "" {
		orderID = p.OrderSN
	}
	if orderID == "" {
		return nil, ErrMissingOrderID
	}

	total := parseMoney(p.TotalAmount)
	shipping := parseMoney(p.ShippingFee)

	order := &NormalizedOrder{
		TenantID:        raw.TenantID,
		ShopID:          raw.ShopID,
		OrderID:         orderID,
		Status:          MapOrderStatus(p.OrderStatus),
		SourceStatus:    p.OrderStatus,
		Currency:        p.Currency,
		TotalAmount:     total,
		ShippingFee:     shipping,
		NetAmount:       total.Sub(shipping),
		CreatedAtSource: parseEpochSeconds(p.CreateTime),
		UpdatedAtSource: parseEpochSeconds(p.UpdateTime),
		PaidAt:          parseEpochSeconds(p.PayTime),
		BuyerUsername:   optionalString(p.BuyerUsername),
		PaymentMethod:   optionalString(p.PaymentMethod),
		ShippingCarrier: optionalString(p.ShippingCarrier),
		RawOrderID:      raw.ID,
		SourceHash:      raw.ContentHash,
	}

	if addr := p.RecipientAddress; addr != nil {
		order.RecipientName = optionalString(addr.Name)
		order.RecipientPhone = optionalString(addr.Phone)
		order.RecipientFullAddress = optionalString(addr.FullAddress)
		order.RecipientCity = optionalString(addr.City)
		order.RecipientState = optionalString(addr.State)
		order.RecipientRegion = optionalString(addr.Region)
		order.RecipientZipcode = optionalString(addr.Zipcode)
	}

	if err := order.fitColumns(); err != nil {
		return nil, err
	}
	return order, nil
}

// MapOrderStatus maps a marketplace order status onto OrderStatus
func MapOrderStatus(status string) OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "UNPAID", "INVOICE_PENDING":
		return OrderStatusPendingPayment
	case "READY_TO_SHIP", "PROCESSED", "RETRY_SHIP":
		return OrderStatusReadyToShip
	case "SHIPPED", "TO_CONFIRM_RECEIVE":
		return OrderStatusShipped
	case "COMPLETED":
		return OrderStatusCompleted
	case "IN_CANCEL":
		return OrderStatusCancelling
	case "CANCELLED":
		return OrderStatusCancelled
	case "TO_RETURN":
		return OrderStatusReturning
	default:
		return OrderStatusUnknown
	}
}

// ---------------------------------------------------------------------------
// Coercion helpers
// ---------------------------------------------------------------------------

func isJSONNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseMoney never fails: anything that is not a finite decimal becomes zero
func parseMoney(raw json.RawMessage) decimal.Decimal {
	if isJSONNull(raw) {
		return decimal.Zero
	}

	var s string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero
		}
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return decimal.Zero
		}
		s = n.String()
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseEpochSeconds returns nil for absent, zero, negative or unparseable values
func parseEpochSeconds(raw json.RawMessage) *time.Time {
	if isJSONNull(raw) {
		return nil
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil
		}
		s = n.String()
	}

	secs, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || secs <= 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
