package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/persistence"
	"github.com/erp/ordersync/internal/infrastructure/scheduler"
	"github.com/erp/ordersync/internal/interfaces/http/dto"
)

// healthCheckTimeout bounds the database ping of GET /health
const healthCheckTimeout = 2 * time.Second

// HealthChecker reports whether a dependency is reachable.
// *persistence.Database implements it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// PoolStatsReporter exposes connection pool statistics.
// *persistence.Database implements it.
type PoolStatsReporter interface {
	Stats() (persistence.ConnectionStats, error)
}

// SyncRunReporter exposes the last scheduled runs. *scheduler.SyncScheduler implements it.
type SyncRunReporter interface {
	LastRuns() map[scheduler.JobType]scheduler.RunSummary
}

// SystemHandler handles health and system information endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	db        HealthChecker
	pool      PoolStatsReporter
	runs      SyncRunReporter
}

// NewSystemHandler creates a new SystemHandler. db may be nil. Pool
// statistics are reported when db also implements PoolStatsReporter.
func NewSystemHandler(name, version string, db HealthChecker) *SystemHandler {
	h := &SystemHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		db:        db,
	}
	if pool, ok := db.(PoolStatsReporter); ok {
		h.pool = pool
	}
	return h
}

// SetSyncRunReporter wires the scheduler when it is enabled
func (h *SystemHandler) SetSyncRunReporter(r SyncRunReporter) {
	h.runs = r
}

// Health godoc
// @ID           getHealth
// @Summary      Health check
// @Description  Reports whether the service and its database are reachable
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[HealthResponse]
// @Failure      503 {object} APIResponse[HealthResponse]
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		resp.Database = "up"
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "down"
			c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
			return
		}
	}

	h.Success(c, resp)
}

// GetSystemInfo godoc
// @ID           getSystemSystemInfo
// @Summary      Get system information
// @Description  Returns version, uptime, database pool and the last scheduled sync runs
// @Tags         system
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.runs != nil {
		info.Scheduler = true
		info.LastRuns = h.runs.LastRuns()
	}
	if h.pool != nil {
		if stats, err := h.pool.Stats(); err == nil {
			info.DatabasePool = newDatabasePoolResponse(stats)
		} else {
			logger.WithLogger(c.Request.Context(), logger.GetGinLogger(c)).Warn("Failed to read database pool stats", zap.Error(err))
		}
	}

	h.Success(c, info)
}
