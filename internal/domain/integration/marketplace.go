package integration

import (
	"context"
	"encoding/json"
	"time"
)

// MaxListWindow is the longest time range the marketplace accepts in one listing query
const MaxListWindow = 15 * 24 * time.Hour

// ---------------------------------------------------------------------------
// MarketplaceClient Port
// ---------------------------------------------------------------------------

// MarketplaceClient is the port for the marketplace's signed REST API.
// Implementations return *MarketplaceAPIError for business rejections and
// *TransportError for network failures.
type MarketplaceClient interface {
	// ExchangeCode trades an authorization code for the shop's first token pair
	ExchangeCode(ctx context.Context, shopID int64, code string) (*TokenGrant, error)

	// RefreshAccessToken trades a refresh token for a new token pair
	RefreshAccessToken(ctx context.Context, shopID int64, refreshToken string) (*TokenGrant, error)

	// ListOrders returns one page of order identifiers
	ListOrders(ctx context.Context, creds ShopCredentials, query OrderListQuery) (*OrderListPage, error)

	// GetOrderDetails fetches the full detail of a batch of orders
	GetOrderDetails(ctx context.Context, creds ShopCredentials, orderIDs []string) ([]OrderDetail, error)
}

// ShopCredentials is what a shop-scoped call needs to be signed
type ShopCredentials struct {
	ShopID      int64
	AccessToken string
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// TimeWindow is a half-open time range [From, To)
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// LookbackWindow returns the window ending at now and starting lookback earlier
func LookbackWindow(now time.Time, lookback time.Duration) TimeWindow {
	return TimeWindow{From: now.Add(-lookback), To: now}
}

// Validate checks that the window is non-empty
func (w TimeWindow) Validate() error {
	if w.From.IsZero() || w.To.IsZero() || !w.From.Before(w.To) {
		return ErrInvalidWindow
	}
	return nil
}

// Split cuts the window into consecutive sub-windows no longer than max
func (w TimeWindow) Split(max time.Duration) []TimeWindow {
	if max <= 0 || w.To.Sub(w.From) <= max {
		return []TimeWindow{w}
	}

	var windows []TimeWindow
	for from := w.From; from.Before(w.To); from = from.Add(max) {
		to := from.Add(max)
		if to.After(w.To) {
			to = w.To
		}
		windows = append(windows, TimeWindow{From: from, To: to})
	}
	return windows
}

// OrderListQuery is one listing call
type OrderListQuery struct {
	Window TimeWindow
	// TimeRangeField selects which order timestamp the window filters on (create_time or update_time)
	TimeRangeField string
	// StatusFilter is the marketplace order status; empty means all statuses
	StatusFilter string
	Cursor       string
	PageSize     int
}

// OrderListPage is one page of listing results
type OrderListPage struct {
	OrderIDs   []string
	More       bool
	NextCursor string
}

// OrderDetail is one order detail document
type OrderDetail struct {
	OrderID string
	Payload json.RawMessage
}
