package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	integrationapp "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/interfaces/http/dto"
	"github.com/erp/ordersync/internal/interfaces/http/middleware"
)

// SyncOperations is the trigger interface. *integrationapp.SyncService implements it.
type SyncOperations interface {
	TriggerIngestion(ctx context.Context, tenantID uuid.UUID, shopID *int64) (*integrationapp.IngestionRunResult, error)
	TriggerNormalization(ctx context.Context, tenantID uuid.UUID) (*integration.NormalizationReport, error)
	CompleteAuthorization(ctx context.Context, tenantID uuid.UUID, shopID int64, code string) (*integrationapp.ConnectionResponse, error)
	ListConnections(ctx context.Context, tenantID uuid.UUID) ([]integrationapp.ConnectionResponse, error)
	DisableConnection(ctx context.Context, tenantID uuid.UUID, shopID int64) error
}

// SyncHandler handles the sync trigger and connection endpoints
type SyncHandler struct {
	BaseHandler
	sync SyncOperations
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sync SyncOperations) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// TriggerIngestion godoc
// @ID           triggerSyncIngestion
// @Summary      Trigger order ingestion
// @Description  Ingests one shop when shop_id is given, else every active shop of the tenant
// @Tags         sync
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.TriggerIngestionRequest false "Optional shop"
// @Success      200 {object} APIResponse[integrationapp.IngestionRunResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      502 {object} APIResponse[integrationapp.IngestionRunResult]
// @Router       /sync/ingestion [post]
func (h *SyncHandler) TriggerIngestion(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	var req dto.TriggerIngestionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.sync.TriggerIngestion(c.Request.Context(), tenantID, req.ShopID)
	if err != nil {
		var data any
		if result != nil {
			data = result
		}
		h.HandleErrorWithData(c, err, data)
		return
	}
	h.Success(c, result)
}

// TriggerNormalization godoc
// @ID           triggerSyncNormalization
// @Summary      Trigger order normalization
// @Description  Projects every pending raw order of the tenant into normalized orders
// @Tags         sync
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} APIResponse[NormalizationRunResponse]
// @Failure      500 {object} ErrorResponse
// @Router       /sync/normalization [post]
func (h *SyncHandler) TriggerNormalization(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	report, err := h.sync.TriggerNormalization(c.Request.Context(), tenantID)
	if err != nil {
		var data any
		if report != nil {
			data = newNormalizationRunResponse(report)
		}
		h.HandleErrorWithData(c, err, data)
		return
	}
	h.Success(c, newNormalizationRunResponse(report))
}

// ListConnections godoc
// @ID           listConnections
// @Summary      List marketplace connections
// @Description  Lists every shop connection of the tenant, disabled ones included. Tokens are never returned.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} APIResponse[[]integrationapp.ConnectionResponse]
// @Router       /connections [get]
func (h *SyncHandler) ListConnections(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	conns, err := h.sync.ListConnections(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, conns)
}

// DisableConnection godoc
// @ID           disableConnection
// @Summary      Disable a marketplace connection
// @Description  Soft-disables a shop. Its raw and normalized orders are kept; authorizing the shop again re-enables it.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Param        shop_id path int true "Marketplace shop ID"
// @Success      200 {object} APIResponse[DisableConnectionResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /connections/{shop_id}/disable [post]
func (h *SyncHandler) DisableConnection(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	var param dto.ShopIDParam
	if err := c.ShouldBindUri(&param); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.sync.DisableConnection(c.Request.Context(), tenantID, param.ShopID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, DisableConnectionResponse{ShopID: param.ShopID, Status: integration.ConnectionStatusDisabled})
}

// AuthorizationCallback godoc
// @ID           marketplaceAuthorizationCallback
// @Summary      Marketplace OAuth redirect target
// @Description  Exchanges the authorization code for the shop's first token pair. state carries the tenant ID.
// @Tags         marketplace
// @Produce      json
// @Param        code    query string true "Authorization code"
// @Param        shop_id query int    true "Marketplace shop ID"
// @Param        state   query string true "Tenant ID"
// @Success      200 {object} APIResponse[integrationapp.ConnectionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /marketplace/callback [get]
func (h *SyncHandler) AuthorizationCallback(c *gin.Context) {
	var q dto.AuthorizationCallbackQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	tenantID, err := uuid.Parse(q.State)
	if err != nil || tenantID == uuid.Nil {
		h.BadRequest(c, "state is not a tenant ID")
		return
	}

	conn, err := h.sync.CompleteAuthorization(c.Request.Context(), tenantID, q.ShopID, q.Code)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, conn)
}
