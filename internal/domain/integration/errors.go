package integration

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel Errors
// ---------------------------------------------------------------------------

var (
	ErrConnectionNotFound = errors.New("integration: marketplace connection not found")
	ErrConnectionDisabled = errors.New("integration: marketplace connection is disabled")
	ErrInvalidTenantID    = errors.New("integration: invalid tenant ID")
	ErrInvalidShopID      = errors.New("integration: invalid shop ID")
	ErrInvalidAuthCode    = errors.New("integration: authorization code is required")
	ErrInvalidTokenGrant  = errors.New("integration: token grant is incomplete")
	ErrInvalidWindow      = errors.New("integration: invalid time window")
	ErrIngestionAborted   = errors.New("integration: ingestion aborted")
	ErrMalformedPayload   = errors.New("integration: malformed order payload")
	ErrMissingOrderID     = errors.New("integration: order payload has no order ID")
	ErrBatchTooLarge      = errors.New("integration: detail batch exceeds marketplace limit")
	ErrOrderNotFound      = errors.New("integration: order not found")
	ErrFieldOutOfRange    = errors.New("integration: order field does not fit the normalized schema")
	ErrSyncInProgress     = errors.New("integration: sync already running")
)

// ---------------------------------------------------------------------------
// Typed Errors
// ---------------------------------------------------------------------------

// ConfigurationError reports a missing or invalid secret or setting.
// It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("integration: invalid configuration %s: %s", e.Field, e.Reason)
}

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// SignatureError reports malformed signing input.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "integration: cannot sign request: " + e.Reason
}

// TokenRefreshError is returned when the marketplace rejected or could not serve
// a refresh. The stored connection is left untouched.
type TokenRefreshError struct {
	TenantID uuid.UUID
	ShopID   int64
	Err      error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("integration: token refresh failed for tenant %s shop %d: %v", e.TenantID, e.ShopID, e.Err)
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Err
}

// MarketplaceAPIError is a business-level rejection reported in the marketplace
// response envelope.
type MarketplaceAPIError struct {
	Code       string
	Message    string
	RequestID  string
	HTTPStatus int
}

func (e *MarketplaceAPIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("marketplace: %s - %s (request_id=%s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("marketplace: %s - %s", e.Code, e.Message)
}

// transientCodes are marketplace error codes worth retrying with backoff
var transientCodes = map[string]bool{
	"error_busy":             true,
	"error_server":           true,
	"error_inner":            true,
	"error_network":          true,
	"error_too_many_request": true,
	"error_rate_limit":       true,
}

// authCodes indicate the access token is no longer accepted
var authCodes = map[string]bool{
	"error_auth":           true,
	"invalid_access_token": true,
	"error_token_expired":  true,
}

// Transient reports whether the request may succeed if retried later.
func (e *MarketplaceAPIError) Transient() bool {
	if transientCodes[e.Code] {
		return true
	}
	return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= http.StatusInternalServerError
}

// IsAuthError reports whether the marketplace rejected the credentials.
func (e *MarketplaceAPIError) IsAuthError() bool {
	return authCodes[e.Code]
}

// TransportError wraps network and timeout failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("marketplace: transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps store failures.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("integration: persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var apiErr *MarketplaceAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return false
}

// ErrorCode returns a stable machine-readable code for err, used in run reports.
func ErrorCode(err error) string {
	var (
		apiErr       *MarketplaceAPIError
		refreshErr   *TokenRefreshError
		transportErr *TransportError
		persistErr   *PersistenceError
		configErr    *ConfigurationError
		signErr      *SignatureError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &refreshErr):
		return "TOKEN_REFRESH_FAILED"
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &transportErr):
		return "TRANSPORT_ERROR"
	case errors.As(err, &persistErr):
		return "PERSISTENCE_ERROR"
	case errors.As(err, &configErr):
		return "CONFIGURATION_ERROR"
	case errors.As(err, &signErr):
		return "SIGNATURE_ERROR"
	case errors.Is(err, ErrConnectionNotFound):
		return "CONNECTION_NOT_FOUND"
	case errors.Is(err, ErrConnectionDisabled):
		return "CONNECTION_DISABLED"
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrMissingOrderID):
		return "MALFORMED_PAYLOAD"
	case errors.Is(err, ErrFieldOutOfRange):
		return "FIELD_OUT_OF_RANGE"
	case errors.Is(err, ErrSyncInProgress):
		return "SYNC_IN_PROGRESS"
	default:
		return "UNKNOWN_ERROR"
	}
}
