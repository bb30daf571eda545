package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// maxShopeeResponseSize limits the response body size to prevent memory exhaustion
const maxShopeeResponseSize = 10 * 1024 * 1024 // 10MB max response

// ShopeeClient implements integration.MarketplaceClient for the Shopee Open Platform v2 API
type ShopeeClient struct {
	config     *ShopeeConfig
	signer     *ShopeeSigner
	httpClient *http.Client
	now        func() time.Time
}

// ShopeeClientOption configures a ShopeeClient
type ShopeeClientOption func(*ShopeeClient)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) ShopeeClientOption {
	return func(c *ShopeeClient) {
		c.httpClient = client
	}
}

// WithClock replaces the clock used for request timestamps
func WithClock(now func() time.Time) ShopeeClientOption {
	return func(c *ShopeeClient) {
		c.now = now
	}
}

// NewShopeeClient creates a new Shopee client with the given configuration
func NewShopeeClient(config *ShopeeConfig, opts ...ShopeeClientOption) (*ShopeeClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	signer, err := NewShopeeSigner(config.PartnerID, config.PartnerKey)
	if err != nil {
		return nil, err
	}

	c := &ShopeeClient{
		config: config,
		signer: signer,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Auth Operations
// ---------------------------------------------------------------------------

// ExchangeCode trades an authorization code for the first token pair
func (c *ShopeeClient) ExchangeCode(ctx context.Context, shopID int64, code string) (*integration.TokenGrant, error) {
	if code == "" {
		return nil, integration.ErrInvalidAuthCode
	}
	body := ShopeeTokenRequest{Code: code, ShopID: shopID, PartnerID: c.config.PartnerID}
	return c.requestToken(ctx, shopeePathTokenGet, code, body)
}

// RefreshAccessToken trades a refresh token for a new token pair.
// Shopee rotates the refresh token on every call.
func (c *ShopeeClient) RefreshAccessToken(ctx context.Context, shopID int64, refreshToken string) (*integration.TokenGrant, error) {
	body := ShopeeTokenRequest{RefreshToken: refreshToken, ShopID: shopID, PartnerID: c.config.PartnerID}
	return c.requestToken(ctx, shopeePathAccessTokenGet, refreshToken, body)
}

func (c *ShopeeClient) requestToken(ctx context.Context, path, credential string, body ShopeeTokenRequest) (*integration.TokenGrant, error) {
	ctx, span := telemetry.StartSpan(ctx, "shopee.token",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("shopee.path", path),
		telemetry.WithAttribute(telemetry.SpanAttrShopID, body.ShopID),
	)
	defer span.End()

	query, err := c.signedQuery(SignRequest{Class: SignClassAuth, Path: path, Credential: credential})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("shopee: failed to marshal token request: %w", err)
	}

	var resp ShopeeTokenResponse
	if err := c.do(ctx, http.MethodPost, path, query, payload, &resp, &resp.ShopeeResponse); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	grant := &integration.TokenGrant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpireIn) * time.Second,
	}
	if err := grant.Validate(); err != nil {
		err = &integration.MarketplaceAPIError{
			Code:      "error_invalid_token_response",
			Message:   "token response is missing access_token, refresh_token or expire_in",
			RequestID: resp.RequestID,
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	return grant, nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// ListOrders returns one page of order_sn for the query window
func (c *ShopeeClient) ListOrders(ctx context.Context, creds integration.ShopCredentials, q integration.OrderListQuery) (*integration.OrderListPage, error) {
	if err := q.Window.Validate(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "shopee.get_order_list",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrShopID, creds.ShopID),
	)
	defer span.End()

	query, err := c.signedQuery(SignRequest{
		Class:       SignClassShop,
		Path:        shopeePathOrderList,
		AccessToken: creds.AccessToken,
		ShopID:      creds.ShopID,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	timeField := q.TimeRangeField
	if timeField == "" {
		timeField = "create_time"
	}
	pageSize := q.PageSize
	if pageSize <= 0 || pageSize > ShopeeMaxPageSize {
		pageSize = ShopeeMaxPageSize
	}

	query.Set("time_range_field", timeField)
	query.Set("time_from", strconv.FormatInt(q.Window.From.Unix(), 10))
	query.Set("time_to", strconv.FormatInt(q.Window.To.Unix(), 10))
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("cursor", q.Cursor)
	if q.StatusFilter != "" {
		query.Set("order_status", q.StatusFilter)
	}

	var resp ShopeeOrderListResponse
	if err := c.do(ctx, http.MethodGet, shopeePathOrderList, query, nil, &resp, &resp.ShopeeResponse); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	page := &integration.OrderListPage{OrderIDs: make([]string, 0)}
	if resp.Response == nil {
		return page, nil
	}
	for _, item := range resp.Response.OrderList {
		if item.OrderSN != "" {
			page.OrderIDs = append(page.OrderIDs, item.OrderSN)
		}
	}
	page.More = resp.Response.More
	page.NextCursor = resp.Response.NextCursor

	telemetry.SetAttribute(span, "shopee.page_size", len(page.OrderIDs))
	return page, nil
}

// GetOrderDetails fetches up to ShopeeMaxDetailBatchSize orders in one call.
// Each returned document is kept byte-for-byte as the marketplace sent it.
func (c *ShopeeClient) GetOrderDetails(ctx context.Context, creds integration.ShopCredentials, orderIDs []string) ([]integration.OrderDetail, error) {
	if len(orderIDs) == 0 {
		return []integration.OrderDetail{}, nil
	}
	if len(orderIDs) > ShopeeMaxDetailBatchSize {
		return nil, integration.ErrBatchTooLarge
	}

	ctx, span := telemetry.StartSpan(ctx, "shopee.get_order_detail",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrShopID, creds.ShopID),
		telemetry.WithAttribute("shopee.batch_size", len(orderIDs)),
	)
	defer span.End()

	query, err := c.signedQuery(SignRequest{
		Class:       SignClassShop,
		Path:        shopeePathOrderDetail,
		AccessToken: creds.AccessToken,
		ShopID:      creds.ShopID,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	query.Set("order_sn_list", strings.Join(orderIDs, ","))
	query.Set("response_optional_fields", strings.Join(c.config.OptionalFields, ","))

	var resp ShopeeOrderDetailResponse
	if err := c.do(ctx, http.MethodGet, shopeePathOrderDetail, query, nil, &resp, &resp.ShopeeResponse); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if resp.Response == nil {
		return []integration.OrderDetail{}, nil
	}

	details := make([]integration.OrderDetail, 0, len(resp.Response.OrderList))
	for _, doc := range resp.Response.OrderList {
		var key shopeeOrderKey
		if err := json.Unmarshal(doc, &key); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrMalformedPayload, err)
		}
		details = append(details, integration.OrderDetail{
			OrderID: key.OrderSN,
			Payload: append(json.RawMessage(nil), doc...),
		})
	}
	return details, nil
}

// ---------------------------------------------------------------------------
// Request plumbing
// ---------------------------------------------------------------------------

// signedQuery returns the common query parameters for req, signed at the current time
func (c *ShopeeClient) signedQuery(req SignRequest) (url.Values, error) {
	req.Timestamp = c.now().Unix()
	sign, err := c.signer.Sign(req)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("partner_id", strconv.FormatInt(c.config.PartnerID, 10))
	query.Set("timestamp", strconv.FormatInt(req.Timestamp, 10))
	query.Set("sign", sign)
	if req.Class == SignClassShop {
		query.Set("access_token", req.AccessToken)
		query.Set("shop_id", strconv.FormatInt(req.ShopID, 10))
	}
	return query, nil
}

// do executes the request and decodes the body into out. envelope must point at
// the ShopeeResponse embedded in out so business errors can be detected.
func (c *ShopeeClient) do(ctx context.Context, method, path string, query url.Values, body []byte, out any, envelope *ShopeeResponse) error {
	endpoint := c.config.APIBaseURL + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("shopee: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &integration.TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxShopeeResponseSize))
	if err != nil {
		return &integration.TransportError{Op: path, Err: err}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &integration.MarketplaceAPIError{
				Code:       "http_" + strconv.Itoa(resp.StatusCode),
				Message:    http.StatusText(resp.StatusCode),
				HTTPStatus: resp.StatusCode,
			}
		}
		return fmt.Errorf("shopee: failed to parse response: %w", err)
	}

	if !envelope.IsSuccess() {
		return &integration.MarketplaceAPIError{
			Code:       envelope.Error,
			Message:    envelope.Message,
			RequestID:  envelope.RequestID,
			HTTPStatus: resp.StatusCode,
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &integration.MarketplaceAPIError{
			Code:       "http_" + strconv.Itoa(resp.StatusCode),
			Message:    http.StatusText(resp.StatusCode),
			RequestID:  envelope.RequestID,
			HTTPStatus: resp.StatusCode,
		}
	}
	return nil
}

// Ensure ShopeeClient implements MarketplaceClient interface
var _ integration.MarketplaceClient = (*ShopeeClient)(nil)
