package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/erp/ordersync/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingSecret    = errors.New("jwt secret is not configured")
)

// Claims are the bearer token claims. tenant_id scopes every sync call.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// GetTenantUUID parses the tenant claim
func (c *Claims) GetTenantUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.TenantID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrMissingTenantID
	}
	return id, nil
}

// JWTService issues and validates HS256 bearer tokens
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// GenerateToken issues a token for tenantID. subject names the caller
// (an operator or a service) and is informational only.
func (s *JWTService) GenerateToken(tenantID uuid.UUID, subject string, ttl time.Duration) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	if tenantID == uuid.Nil {
		return "", time.Time{}, ErrMissingTenantID
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID: tenantID.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a bearer token and returns its claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if _, err := claims.GetTenantUUID(); err != nil {
		return nil, err
	}
	return claims, nil
}
