package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erp/ordersync/internal/domain/integration"
)

func newRawOrder(t *testing.T, orderID, payload string) integration.RawOrder {
	t.Helper()
	raw, err := integration.NewRawOrder(testTenantID, testShopID, integration.OrderDetail{
		OrderID: orderID,
		Payload: json.RawMessage(payload),
	}, testNow)
	require.NoError(t, err)
	return *raw
}

func newTestNormalizationService(t *testing.T, rawRepo *MockRawOrderRepository, normRepo *MockNormalizedOrderRepository, batchSize int) *NormalizationService {
	svc := NewNormalizationService(rawRepo, normRepo, batchSize, zaptest.NewLogger(t))
	svc.SetClock(fixedClock)
	return svc
}

func TestNormalizationService_MapsAndMarksProcessed(t *testing.T) {
	rawRepo := new(MockRawOrderRepository)
	normRepo := new(MockNormalizedOrderRepository)
	raw := newRawOrder(t, "2403090001", `{
		"order_sn": "2403090001",
		"order_status": "COMPLETED",
		"currency": "MYR",
		"total_amount": "12.50",
		"shipping_fee": null,
		"create_time": 1710000000
	}`)

	rawRepo.On("FindUnprocessed", mock.Anything, testTenantID, uuid.Nil, 500).Return([]integration.RawOrder{raw}, nil).Once()

	var upserted []integration.NormalizedOrder
	normRepo.On("UpsertBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { upserted = args.Get(1).([]integration.NormalizedOrder) }).
		Return(nil).Once()
	rawRepo.On("MarkProcessed", mock.Anything, testTenantID, []integration.ProcessedRef{{ID: raw.ID, ContentHash: raw.ContentHash}}).
		Return(int64(1), nil).Once()

	metrics := &recordingMetrics{}
	svc := newTestNormalizationService(t, rawRepo, normRepo, 0)
	svc.SetMetrics(metrics)

	report, err := svc.Normalize(context.Background(), testTenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Selected)
	assert.Equal(t, 1, report.Normalized)
	assert.Equal(t, integration.RunStatusSuccess, report.Status())

	require.Len(t, upserted, 1)
	order := upserted[0]
	assert.Equal(t, integration.OrderStatusCompleted, order.Status)
	assert.True(t, decimal.RequireFromString("12.50").Equal(order.TotalAmount))
	assert.True(t, order.ShippingFee.IsZero())
	assert.True(t, decimal.RequireFromString("12.50").Equal(order.NetAmount))
	require.NotNil(t, order.CreatedAtSource)
	assert.Equal(t, time.Date(2024, 3, 9, 16, 0, 0, 0, time.UTC), *order.CreatedAtSource)
	assert.Nil(t, order.PaidAt)
	assert.Nil(t, order.RecipientName)
	assert.Equal(t, raw.ContentHash, order.SourceHash)

	require.Len(t, metrics.normalizations, 1)
	rawRepo.AssertExpectations(t)
	normRepo.AssertExpectations(t)
}

func TestNormalizationService_UpsertFailureLeavesRowsUnprocessed(t *testing.T) {
	rawRepo := new(MockRawOrderRepository)
	normRepo := new(MockNormalizedOrderRepository)
	rows := []integration.RawOrder{
		newRawOrder(t, "H1", `{"order_sn":"H1","order_status":"UNPAID"}`),
		newRawOrder(t, "H2", `{"order_sn":"H2","order_status":"SHIPPED"}`),
	}
	rawRepo.On("FindUnprocessed", mock.Anything, testTenantID, uuid.Nil, 500).Return(rows, nil).Once()
	normRepo.On("UpsertBatch", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	svc := newTestNormalizationService(t, rawRepo, normRepo, 0)
	report, err := svc.Normalize(context.Background(), testTenantID)

	var persistErr *integration.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "upsert normalized orders", persistErr.Op)
	assert.Equal(t, 2, report.Selected)
	assert.Zero(t, report.Normalized)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, integration.RunStatusFailed, report.Status())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, integration.FailureScopeBatch, report.Failures[0].Scope)
	rawRepo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestNormalizationService_OutOfRangeRowDoesNotBlockPage(t *testing.T) {
	rawRepo := new(MockRawOrderRepository)
	normRepo := new(MockNormalizedOrderRepository)
	good := newRawOrder(t, "K1", `{"order_sn":"K1","order_status":"COMPLETED","total_amount":"10.00"}`)
	huge := newRawOrder(t, "K2", `{"order_sn":"K2","order_status":"COMPLETED","total_amount":"1e30"}`)

	rawRepo.On("FindUnprocessed", mock.Anything, testTenantID, uuid.Nil, 500).Return([]integration.RawOrder{good, huge}, nil).Once()
	normRepo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(orders []integration.NormalizedOrder) bool {
		return len(orders) == 1 && orders[0].OrderID == "K1"
	})).Return(nil).Once()
	rawRepo.On("MarkProcessed", mock.Anything, testTenantID, []integration.ProcessedRef{{ID: good.ID, ContentHash: good.ContentHash}}).
		Return(int64(1), nil).Once()

	svc := newTestNormalizationService(t, rawRepo, normRepo, 0)
	report, err := svc.Normalize(context.Background(), testTenantID)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Normalized)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, integration.RunStatusPartial, report.Status())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "K2", report.Failures[0].Key)
	assert.Equal(t, "FIELD_OUT_OF_RANGE", report.Failures[0].Code)
	rawRepo.AssertExpectations(t)
	normRepo.AssertExpectations(t)
}

func TestNormalizationService_ReportsUnparseableRows(t *testing.T) {
	rawRepo := new(MockRawOrderRepository)
	normRepo := new(MockNormalizedOrderRepository)
	good := newRawOrder(t, "J1", `{"order_sn":"J1","order_status":"READY_TO_SHIP"}`)
	bad := good
	bad.ID = uuid.New()
	bad.OrderID = "J2"
	bad.RawPayload = json.RawMessage(`{"order_sn":`)

	rawRepo.On("FindUnprocessed", mock.Anything, testTenantID, uuid.Nil, 500).Return([]integration.RawOrder{good, bad}, nil).Once()
	normRepo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(orders []integration.NormalizedOrder) bool {
		return len(orders) == 1 && orders[0].OrderID == "J1"
	})).Return(nil).Once()
	rawRepo.On("MarkProcessed", mock.Anything, testTenantID, []integration.ProcessedRef{{ID: good.ID, ContentHash: good.ContentHash}}).
		Return(int64(1), nil).Once()

	svc := newTestNormalizationService(t, rawRepo, normRepo, 0)
	report, err := svc.Normalize(context.Background(), testTenantID)
	require.NoError(t, err)

	assert.Equal(t, integration.RunStatusPartial, report.Status())
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, integration.FailureScopeRow, report.Failures[0].Scope)
	assert.Equal(t, "J2", report.Failures[0].Key)
	assert.Equal(t, "MALFORMED_PAYLOAD", report.Failures[0].Code)
	rawRepo.AssertExpectations(t)
}

func TestNormalizationService_KeysetPaging(t *testing.T) {
	rawRepo := new(MockRawOrderRepository)
	normRepo := new(MockNormalizedOrderRepository)
	first := []integration.RawOrder{
		newRawOrder(t, "K1", `{"order_sn":"K1"}`),
		newRawOrder(t, "K2", `{"order_sn":"K2"}`),
	}
	second := []integration.RawOrder{newRawOrder(t, "K3", `{"order_sn":"K3"}`)}

	rawRepo.On("FindUnprocessed", mock.Anything, testTenantID, uuid.Nil, 2).Return(first, nil).Once()
	rawRepo.On("FindUnprocessed", mock.Anything, testTenantID, first[1].ID, 2).Return(second, nil).Once()
	normRepo.On("UpsertBatch", mock.Anything, mock.Anything).Return(nil).Twice()
	rawRepo.On("MarkProcessed", mock.Anything, testTenantID, mock.Anything).Return(int64(2), nil).Once()
	rawRepo.On("MarkProcessed", mock.Anything, testTenantID, mock.Anything).Return(int64(1), nil).Once()

	svc := newTestNormalizationService(t, rawRepo, normRepo, 2)
	report, err := svc.Normalize(context.Background(), testTenantID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Selected)
	assert.Equal(t, 3, report.Normalized)
	rawRepo.AssertExpectations(t)
	normRepo.AssertExpectations(t)
}

func TestNormalizationService_NothingPending(t *testing.T) {
	rawRepo := new(MockRawOrderRepository)
	normRepo := new(MockNormalizedOrderRepository)
	rawRepo.On("FindUnprocessed", mock.Anything, testTenantID, uuid.Nil, 500).Return([]integration.RawOrder{}, nil).Once()

	svc := newTestNormalizationService(t, rawRepo, normRepo, 0)
	report, err := svc.Normalize(context.Background(), testTenantID)
	require.NoError(t, err)
	assert.Zero(t, report.Selected)
	assert.Equal(t, integration.RunStatusSuccess, report.Status())
	normRepo.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestNormalizationService_InvalidTenant(t *testing.T) {
	svc := newTestNormalizationService(t, new(MockRawOrderRepository), new(MockNormalizedOrderRepository), 0)
	_, err := svc.Normalize(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, integration.ErrInvalidTenantID)
}

func TestNormalizationService_RejectsConcurrentRunForSameTenant(t *testing.T) {
	rawRepo := new(MockRawOrderRepository)
	normRepo := new(MockNormalizedOrderRepository)
	started := make(chan struct{})
	release := make(chan struct{})
	rawRepo.On("FindUnprocessed", mock.Anything, testTenantID, uuid.Nil, 500).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]integration.RawOrder{}, nil).Once()

	svc := newTestNormalizationService(t, rawRepo, normRepo, 0)
	done := make(chan error, 1)
	go func() {
		_, err := svc.Normalize(context.Background(), testTenantID)
		done <- err
	}()
	<-started

	report, err := svc.Normalize(context.Background(), testTenantID)
	assert.ErrorIs(t, err, integration.ErrSyncInProgress)
	assert.Nil(t, report)

	close(release)
	require.NoError(t, <-done)

	rawRepo.On("FindUnprocessed", mock.Anything, testTenantID, uuid.Nil, 500).Return([]integration.RawOrder{}, nil).Once()
	_, err = svc.Normalize(context.Background(), testTenantID)
	require.NoError(t, err)
	rawRepo.AssertExpectations(t)
}
