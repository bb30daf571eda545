package handler

import (
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/persistence"
	"github.com/erp/ordersync/internal/infrastructure/scheduler"
	"github.com/erp/ordersync/internal/interfaces/http/dto"
)

// APIResponse is the dto.Response envelope with a typed data field.
// Handlers write dto.Response; clients and tests decode into APIResponse.
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// ErrorResponse is the envelope of a failed request without data
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// NormalizationRunResponse is a normalization report with its derived status
// @name HandlerNormalizationRunResponse
type NormalizationRunResponse struct {
	Status integration.RunStatus `json:"status" example:"SUCCESS"`
	*integration.NormalizationReport
}

func newNormalizationRunResponse(report *integration.NormalizationReport) NormalizationRunResponse {
	return NormalizationRunResponse{Status: report.Status(), NormalizationReport: report}
}

// DisableConnectionResponse confirms a disabled connection
// @name HandlerDisableConnectionResponse
type DisableConnectionResponse struct {
	ShopID int64                        `json:"shop_id" example:"220011"`
	Status integration.ConnectionStatus `json:"status" example:"DISABLED"`
}

// HealthResponse represents the health check response
// @name HandlerHealthResponse
type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Database string `json:"database,omitempty" example:"up"`
	Uptime   string `json:"uptime" example:"1h30m45s"`
}

// SystemInfoResponse represents the system information response
// @name HandlerSystemInfoResponse
type SystemInfoResponse struct {
	Name         string                                     `json:"name" example:"ordersync"`
	Version      string                                     `json:"version" example:"1.0.0"`
	GoVersion    string                                     `json:"go_version" example:"go1.25.5"`
	Uptime       string                                     `json:"uptime" example:"1h30m45s"`
	Scheduler    bool                                       `json:"scheduler_enabled"`
	DatabasePool *DatabasePoolResponse                      `json:"database_pool,omitempty"`
	LastRuns     map[scheduler.JobType]scheduler.RunSummary `json:"last_runs,omitempty"`
}

// DatabasePoolResponse reports the database connection pool
// @name HandlerDatabasePoolResponse
type DatabasePoolResponse struct {
	MaxOpen      int    `json:"max_open" example:"25"`
	Open         int    `json:"open" example:"3"`
	InUse        int    `json:"in_use" example:"1"`
	Idle         int    `json:"idle" example:"2"`
	WaitCount    int64  `json:"wait_count" example:"0"`
	WaitDuration string `json:"wait_duration" example:"0s"`
}

func newDatabasePoolResponse(s persistence.ConnectionStats) *DatabasePoolResponse {
	return &DatabasePoolResponse{
		MaxOpen:      s.MaxOpenConnections,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration.String(),
	}
}
