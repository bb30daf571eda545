package integration

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus summarizes the outcome of a sync run
type RunStatus string

const (
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusPartial RunStatus = "PARTIAL"
	RunStatusFailed  RunStatus = "FAILED"
)

// FailureScope tells what a RunFailure refers to
type FailureScope string

const (
	FailureScopeShop  FailureScope = "shop"
	FailureScopeBatch FailureScope = "batch"
	FailureScopeRow   FailureScope = "row"
)

// RunFailure is one entry in a run's error summary
type RunFailure struct {
	Scope   FailureScope `json:"scope"`
	Key     string       `json:"key"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
}

// NewRunFailure builds a RunFailure from an error
func NewRunFailure(scope FailureScope, key string, err error) RunFailure {
	return RunFailure{
		Scope:   scope,
		Key:     key,
		Code:    ErrorCode(err),
		Message: err.Error(),
	}
}

// ---------------------------------------------------------------------------
// IngestionReport
// ---------------------------------------------------------------------------

// IngestionReport is the result of ingesting one shop
type IngestionReport struct {
	TenantID   uuid.UUID    `json:"tenant_id"`
	ShopID     int64        `json:"shop_id"`
	WindowFrom time.Time    `json:"window_from"`
	WindowTo   time.Time    `json:"window_to"`
	Listed     int          `json:"listed"`
	Fetched    int          `json:"fetched"`
	Stored     int          `json:"stored"`
	Failed     int          `json:"failed"`
	Failures   []RunFailure `json:"failures,omitempty"`
	Aborted    bool         `json:"aborted"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// AddFailure records a failure covering count orders
func (r *IngestionReport) AddFailure(f RunFailure, count int) {
	r.Failures = append(r.Failures, f)
	r.Failed += count
}

// Status derives the run status from the counters
func (r *IngestionReport) Status() RunStatus {
	switch {
	case r.Aborted:
		return RunStatusFailed
	case len(r.Failures) == 0:
		return RunStatusSuccess
	case r.Stored > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

// ---------------------------------------------------------------------------
// NormalizationReport
// ---------------------------------------------------------------------------

// NormalizationReport is the result of normalizing one tenant
type NormalizationReport struct {
	TenantID   uuid.UUID    `json:"tenant_id"`
	Selected   int          `json:"selected"`
	Normalized int          `json:"normalized"`
	Failed     int          `json:"failed"`
	Failures   []RunFailure `json:"failures,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// AddFailure records a row-level failure
func (r *NormalizationReport) AddFailure(f RunFailure) {
	r.AddBatchFailure(f, 1)
}

// AddBatchFailure records one failure covering count rows
func (r *NormalizationReport) AddBatchFailure(f RunFailure, count int) {
	r.Failures = append(r.Failures, f)
	r.Failed += count
}

// Status derives the run status from the counters
func (r *NormalizationReport) Status() RunStatus {
	switch {
	case r.Failed == 0:
		return RunStatusSuccess
	case r.Normalized > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}
