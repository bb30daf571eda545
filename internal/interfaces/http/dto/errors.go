package dto

import (
	"context"
	"errors"
	"net/http"

	"github.com/erp/ordersync/internal/domain/integration"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown       = "ERR_UNKNOWN"
	ErrCodeInternal      = "ERR_INTERNAL"
	ErrCodeConfiguration = "ERR_CONFIGURATION"
	ErrCodeTimeout       = "ERR_TIMEOUT"
)

// Input error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeTooLarge     = "ERR_REQUEST_TOO_LARGE"
	ErrCodeRateLimited  = "ERR_RATE_LIMITED"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Connection error codes
const (
	ErrCodeNotFound           = "ERR_NOT_FOUND"
	ErrCodeConnectionDisabled = "ERR_CONNECTION_DISABLED"
	ErrCodeSyncInProgress     = "ERR_SYNC_IN_PROGRESS"
)

// Marketplace error codes. The upstream failed, not the caller.
const (
	ErrCodeMarketplace        = "ERR_MARKETPLACE"
	ErrCodeMarketplaceAuth    = "ERR_MARKETPLACE_AUTH"
	ErrCodeMarketplaceTimeout = "ERR_MARKETPLACE_UNAVAILABLE"
	ErrCodeTokenRefresh       = "ERR_TOKEN_REFRESH_FAILED"
	ErrCodeIngestionAborted   = "ERR_INGESTION_ABORTED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:       http.StatusInternalServerError,
	ErrCodeInternal:      http.StatusInternalServerError,
	ErrCodeConfiguration: http.StatusInternalServerError,
	ErrCodeTimeout:       http.StatusGatewayTimeout,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:  http.StatusTooManyRequests,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConnectionDisabled: http.StatusConflict,
	ErrCodeSyncInProgress:     http.StatusConflict,

	ErrCodeMarketplace:        http.StatusBadGateway,
	ErrCodeMarketplaceAuth:    http.StatusBadGateway,
	ErrCodeMarketplaceTimeout: http.StatusBadGateway,
	ErrCodeTokenRefresh:       http.StatusBadGateway,
	ErrCodeIngestionAborted:   http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorCodeFor classifies a service error. Typed errors are checked before
// sentinels since an aborted ingestion wraps its cause.
func ErrorCodeFor(err error) string {
	var (
		refreshErr   *integration.TokenRefreshError
		apiErr       *integration.MarketplaceAPIError
		transportErr *integration.TransportError
		configErr    *integration.ConfigurationError
		signErr      *integration.SignatureError
		persistErr   *integration.PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &refreshErr):
		return ErrCodeTokenRefresh
	case errors.As(err, &apiErr):
		if apiErr.IsAuthError() {
			return ErrCodeMarketplaceAuth
		}
		return ErrCodeMarketplace
	case errors.As(err, &transportErr):
		return ErrCodeMarketplaceTimeout
	case errors.As(err, &configErr), errors.As(err, &signErr):
		return ErrCodeConfiguration
	case errors.As(err, &persistErr):
		return ErrCodeInternal
	case errors.Is(err, integration.ErrConnectionNotFound),
		errors.Is(err, integration.ErrOrderNotFound):
		return ErrCodeNotFound
	case errors.Is(err, integration.ErrConnectionDisabled):
		return ErrCodeConnectionDisabled
	case errors.Is(err, integration.ErrSyncInProgress):
		return ErrCodeSyncInProgress
	case errors.Is(err, integration.ErrInvalidTenantID),
		errors.Is(err, integration.ErrInvalidShopID),
		errors.Is(err, integration.ErrInvalidAuthCode),
		errors.Is(err, integration.ErrInvalidWindow):
		return ErrCodeInvalidInput
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, integration.ErrIngestionAborted):
		return ErrCodeIngestionAborted
	default:
		return ErrCodeUnknown
	}
}

// ErrorMessageFor returns the client-facing message for code. Internal
// failures never leak their cause.
func ErrorMessageFor(code string, err error) string {
	switch code {
	case ErrCodeInternal, ErrCodeUnknown:
		return "An unexpected error occurred"
	case ErrCodeConfiguration:
		return "Marketplace integration is misconfigured"
	case ErrCodeTimeout:
		return "The operation timed out"
	}
	return err.Error()
}
