package ecommerce

import (
	"encoding/json"
)

// ---------------------------------------------------------------------------
// Common Shopee API Response Types
// ---------------------------------------------------------------------------

// ShopeeResponse is the envelope shared by every Shopee v2 response
type ShopeeResponse struct {
	// Error is the machine-readable error code, empty on success
	Error string `json:"error"`
	// Message is the human-readable error message
	Message string `json:"message"`
	// RequestID identifies the call for support tickets
	RequestID string `json:"request_id"`
}

// IsSuccess returns true if the response indicates success
func (r *ShopeeResponse) IsSuccess() bool {
	return r.Error == ""
}

// ---------------------------------------------------------------------------
// Auth Types
// ---------------------------------------------------------------------------

// ShopeeTokenRequest is the body of token/get and access_token/get
type ShopeeTokenRequest struct {
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ShopID       int64  `json:"shop_id"`
	PartnerID    int64  `json:"partner_id"`
}

// ShopeeTokenResponse is returned flat, without the response wrapper
type ShopeeTokenResponse struct {
	ShopeeResponse
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpireIn is the access token lifetime in seconds
	ExpireIn int64 `json:"expire_in"`
}

// ---------------------------------------------------------------------------
// Order Types
// ---------------------------------------------------------------------------

// ShopeeOrderListResponse is the response of get_order_list
type ShopeeOrderListResponse struct {
	ShopeeResponse
	Response *ShopeeOrderListData `json:"response,omitempty"`
}

// ShopeeOrderListData contains one page of order identifiers
type ShopeeOrderListData struct {
	More       bool                  `json:"more"`
	NextCursor string                `json:"next_cursor"`
	OrderList  []ShopeeOrderListItem `json:"order_list"`
}

// ShopeeOrderListItem is one listed order
type ShopeeOrderListItem struct {
	OrderSN     string `json:"order_sn"`
	OrderStatus string `json:"order_status,omitempty"`
}

// ShopeeOrderDetailResponse is the response of get_order_detail.
// Orders are kept undecoded so the raw payload is stored exactly as received.
type ShopeeOrderDetailResponse struct {
	ShopeeResponse
	Response *ShopeeOrderDetailData `json:"response,omitempty"`
}

// ShopeeOrderDetailData contains the detail documents
type ShopeeOrderDetailData struct {
	OrderList []json.RawMessage `json:"order_list"`
}

// shopeeOrderKey extracts the identifier of a detail document
type shopeeOrderKey struct {
	OrderSN string `json:"order_sn"`
}
