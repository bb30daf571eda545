package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/interfaces/http/dto"
	"github.com/erp/ordersync/internal/interfaces/http/middleware"
)

var errMissingTenant = errors.New("tenant not found in token")

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getTenantID extracts the tenant ID from the JWT claims. There is no
// header fallback: every sync call is scoped by the token.
func getTenantID(c *gin.Context) (uuid.UUID, error) {
	raw := middleware.GetJWTTenantID(c)
	if raw == "" {
		return uuid.Nil, errMissingTenant
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil || tenantID == uuid.Nil {
		return uuid.Nil, errMissingTenant
	}
	return tenantID, nil
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// HandleError maps a service error to its status and error code. Server
// side failures are logged with their cause, which the client never sees.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.HandleErrorWithData(c, err, nil)
}

// HandleErrorWithData is HandleError for failures that still produced a
// result worth returning, such as the report of an aborted ingestion.
func (h *BaseHandler) HandleErrorWithData(c *gin.Context, err error, data any) {
	if err == nil {
		return
	}

	code := dto.ErrorCodeFor(err)
	status := dto.GetHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		logger.WithLogger(c.Request.Context(), logger.GetGinLogger(c)).Error("Request failed",
			zap.String("code", code),
			zap.Error(err),
		)
	}

	resp := dto.NewErrorResponseWithRequestID(code, dto.ErrorMessageFor(code, err), middleware.GetRequestID(c))
	resp.Data = data
	c.JSON(status, resp)
}
