package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/infrastructure/auth"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/interfaces/http/dto"
)

// JWT context keys
const (
	JWTClaimsKey   = "jwt_claims"
	JWTTenantIDKey = "jwt_tenant_id"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

// errMissingBearer wraps auth.ErrInvalidToken so OnError callbacks can treat
// every rejection alike, but it is reported as ERR_UNAUTHORIZED.
var errMissingBearer = fmt.Errorf("%w: missing bearer token", auth.ErrInvalidToken)

// authFailures maps validation errors to response codes. Order matters:
// the first match wins.
var authFailures = []struct {
	err     error
	code    string
	message string
}{
	{errMissingBearer, dto.ErrCodeUnauthorized, "Authentication required"},
	{auth.ErrExpiredToken, dto.ErrCodeTokenExpired, "Token has expired"},
	{auth.ErrTokenNotYetValid, dto.ErrCodeTokenInvalid, "Token is not yet valid"},
	{auth.ErrMissingTenantID, dto.ErrCodeTokenInvalid, "Token carries no tenant"},
	{auth.ErrInvalidClaims, dto.ErrCodeTokenInvalid, "Invalid token"},
	{auth.ErrInvalidToken, dto.ErrCodeTokenInvalid, "Invalid token"},
}

// TokenValidator validates bearer tokens. *auth.JWTService implements it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// JWTMiddlewareConfig configures JWTAuthMiddlewareWithConfig. Routes that
// must stay public are mounted outside the middleware, see router.Protect.
type JWTMiddlewareConfig struct {
	Validator TokenValidator
	// OnError replaces the default 401 response
	OnError func(c *gin.Context, err error)
	Logger  *zap.Logger
}

// JWTAuthMiddleware authenticates every request with validator
func JWTAuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{Validator: validator})
}

// JWTAuthMiddlewareWithConfig requires a valid bearer token carrying a
// tenant. The tenant is stored in the gin context for handlers and in the
// request's logging scope for services.
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(c, cfg.Validator)
		if err != nil {
			rejectRequest(c, cfg, err)
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTTenantIDKey, claims.TenantID)
		ctx, _ := logger.WithScope(c.Request.Context(), logger.Scope{TenantID: claims.TenantID})
		c.Request = c.Request.WithContext(ctx)

		if cfg.Logger != nil {
			cfg.Logger.Debug("JWT authentication successful",
				zap.String("tenant_id", claims.TenantID),
				zap.String("subject", claims.Subject),
			)
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, validator TokenValidator) (*auth.Claims, error) {
	token, found := strings.CutPrefix(c.GetHeader(AuthHeaderKey), BearerPrefix)
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return nil, errMissingBearer
	}
	return validator.ValidateToken(token)
}

func rejectRequest(c *gin.Context, cfg JWTMiddlewareConfig, err error) {
	if cfg.OnError != nil {
		cfg.OnError(c, err)
		c.Abort()
		return
	}

	code, msg := dto.ErrCodeUnauthorized, "Authentication required"
	for _, f := range authFailures {
		if errors.Is(err, f.err) {
			code, msg = f.code, f.message
			break
		}
	}

	if cfg.Logger != nil {
		cfg.Logger.Warn("JWT authentication failed",
			zap.Error(err),
			zap.String("code", code),
			zap.String("path", c.Request.URL.Path),
		)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, msg, GetRequestID(c)))
}

// GetJWTClaims returns the claims of an authenticated request, or nil
func GetJWTClaims(c *gin.Context) *auth.Claims {
	claims, _ := c.Value(JWTClaimsKey).(*auth.Claims)
	return claims
}

// GetJWTTenantID returns the tenant of an authenticated request
func GetJWTTenantID(c *gin.Context) string {
	return c.GetString(JWTTenantIDKey)
}
