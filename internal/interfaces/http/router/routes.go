package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/erp/ordersync/internal/interfaces/http/handler"
	"github.com/erp/ordersync/internal/interfaces/http/middleware"
)

// Limiters holds the optional rate limiters of the API. A nil limiter
// leaves its routes unlimited.
type Limiters struct {
	// Trigger limits sync triggers per tenant
	Trigger *middleware.RateLimiter
	// Callback limits the OAuth redirect per client IP
	Callback *middleware.RateLimiter
}

// SyncRoutes builds /sync. Tenant limiting relies on the JWT middleware
// having run first.
func SyncRoutes(h *handler.SyncHandler, limiter *middleware.RateLimiter) *DomainGroup {
	g := NewDomainGroup("sync", "/sync")
	if limiter != nil {
		g.Use(middleware.RateLimitByTenant(limiter))
	}
	g.POST("/ingestion", h.TriggerIngestion)
	g.POST("/normalization", h.TriggerNormalization)
	return g
}

// ConnectionRoutes builds /connections
func ConnectionRoutes(h *handler.SyncHandler) *DomainGroup {
	g := NewDomainGroup("connections", "/connections")
	g.GET("", h.ListConnections)
	g.POST("/:shop_id/disable", h.DisableConnection)
	return g
}

// MarketplaceRoutes builds /marketplace. The OAuth redirect arrives from the
// seller's browser without a token, so the group is public.
func MarketplaceRoutes(h *handler.SyncHandler, limiter *middleware.RateLimiter) *DomainGroup {
	g := NewDomainGroup("marketplace", "/marketplace").Public()
	if limiter != nil {
		g.Use(middleware.RateLimit(limiter))
	}
	g.GET("/callback", h.AuthorizationCallback)
	return g
}

// HealthRoutes builds the public versioned health check
func HealthRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("health", "").Public().GET("/health", h.Health)
}

// SystemRoutes builds /system
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").GET("/info", h.GetSystemInfo)
}

// RegisterAPI mounts every API route group on r, plus the unversioned
// /health check and the Swagger UI on the engine. Middleware added with
// r.Protect guards every group except health and the OAuth callback.
// The Swagger UI serves whatever spec the docs package registered.
func RegisterAPI(engine *gin.Engine, r *Router, sync *handler.SyncHandler, system *handler.SystemHandler, limits Limiters) {
	engine.GET("/health", system.Health)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.Register(HealthRoutes(system)).
		Register(SystemRoutes(system)).
		Register(MarketplaceRoutes(sync, limits.Callback)).
		Register(SyncRoutes(sync, limits.Trigger)).
		Register(ConnectionRoutes(sync))
	r.Setup()
}
