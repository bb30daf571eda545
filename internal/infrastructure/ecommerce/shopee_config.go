package ecommerce

import (
	"strings"

	"github.com/erp/ordersync/internal/domain/integration"
)

const (
	// ShopeeProductionAPIURL is the production API endpoint
	ShopeeProductionAPIURL = "https://partner.shopeemobile.com"
	// ShopeeSandboxAPIURL is the sandbox API endpoint
	ShopeeSandboxAPIURL = "https://partner.test-stable.shopeemobile.com"
)

// Shopee Open Platform v2 paths
const (
	shopeePathTokenGet       = "/api/v2/auth/token/get"
	shopeePathAccessTokenGet = "/api/v2/auth/access_token/get"
	shopeePathOrderList      = "/api/v2/order/get_order_list"
	shopeePathOrderDetail    = "/api/v2/order/get_order_detail"
)

const (
	// ShopeeMaxDetailBatchSize is the maximum number of order_sn per get_order_detail call
	ShopeeMaxDetailBatchSize = 50
	// ShopeeMaxPageSize is the maximum page_size of get_order_list
	ShopeeMaxPageSize = 100
)

// DefaultShopeeOptionalFields are requested from get_order_detail so the raw
// payload carries everything normalization reads
var DefaultShopeeOptionalFields = []string{
	"buyer_username",
	"recipient_address",
	"total_amount",
	"shipping_carrier",
	"payment_method",
	"actual_shipping_fee",
	"estimated_shipping_fee",
	"pay_time",
	"item_list",
	"note",
}

// ShopeeConfig holds configuration for the Shopee Open Platform API
type ShopeeConfig struct {
	// PartnerID is the application identifier issued by the open platform
	PartnerID int64
	// PartnerKey is the HMAC secret. It never appears in a request.
	PartnerKey string
	// APIBaseURL is the base URL (production or sandbox)
	APIBaseURL string
	// IsSandbox selects the sandbox endpoint when APIBaseURL is empty
	IsSandbox bool
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// OptionalFields is sent as response_optional_fields on detail calls
	OptionalFields []string
}

// NewShopeeConfig creates a production configuration with defaults
func NewShopeeConfig(partnerID int64, partnerKey string) *ShopeeConfig {
	return &ShopeeConfig{
		PartnerID:      partnerID,
		PartnerKey:     partnerKey,
		APIBaseURL:     ShopeeProductionAPIURL,
		TimeoutSeconds: 30,
		OptionalFields: DefaultShopeeOptionalFields,
	}
}

// Validate validates the configuration and fills defaults
func (c *ShopeeConfig) Validate() error {
	if c.PartnerID <= 0 {
		return integration.NewConfigurationError("marketplace.partner_id", "must be a positive integer")
	}
	if c.PartnerKey == "" {
		return integration.NewConfigurationError("marketplace.partner_key", "is required")
	}
	if c.APIBaseURL == "" {
		if c.IsSandbox {
			c.APIBaseURL = ShopeeSandboxAPIURL
		} else {
			c.APIBaseURL = ShopeeProductionAPIURL
		}
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if len(c.OptionalFields) == 0 {
		c.OptionalFields = DefaultShopeeOptionalFields
	}
	return nil
}
