package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	integrationapp "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/cache"
	"github.com/erp/ordersync/internal/infrastructure/ecommerce"
	"github.com/erp/ordersync/internal/infrastructure/persistence"
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

// fakeShopee serves the three v2 endpoints the pipeline calls
type fakeShopee struct {
	mu           sync.Mutex
	orders       map[string]string
	failDetailOf string
}

func (f *fakeShopee) setOrder(orderSN, doc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[orderSN] = doc
}

func newFakeShopee(orders map[string]string) *fakeShopee {
	return &fakeShopee{orders: orders}
}

func (f *fakeShopee) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/api/v2/auth/token/get":
		_, _ = io.WriteString(w, `{"access_token":"at-1","refresh_token":"rt-1","expire_in":14400,"request_id":"tok","error":"","message":""}`)

	case "/api/v2/order/get_order_list":
		ids := make([]string, 0, len(f.orders))
		for id := range f.orders {
			ids = append(ids, fmt.Sprintf(`{"order_sn":%q}`, id))
		}
		_, _ = fmt.Fprintf(w, `{"error":"","message":"","request_id":"list","response":{"more":false,"next_cursor":"","order_list":[%s]}}`,
			strings.Join(ids, ","))

	case "/api/v2/order/get_order_detail":
		requested := strings.Split(r.URL.Query().Get("order_sn_list"), ",")
		if f.failDetailOf != "" && contains(requested, f.failDetailOf) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"error_param","message":"bad order","request_id":"detail"}`)
			return
		}
		docs := make([]string, 0, len(requested))
		for _, id := range requested {
			if doc, ok := f.orders[id]; ok {
				docs = append(docs, doc)
			}
		}
		_, _ = fmt.Fprintf(w, `{"error":"","message":"","request_id":"detail","response":{"order_list":[%s]}}`,
			strings.Join(docs, ","))

	default:
		http.NotFound(w, r)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type pipeline struct {
	sync     *integrationapp.SyncService
	connRepo *persistence.GormConnectionRepository
	rawRepo  *persistence.GormRawOrderRepository
	normRepo *persistence.GormNormalizedOrderRepository
	shopee   *fakeShopee
}

func newPipeline(t *testing.T, testDB *TestDB, shopee *fakeShopee) *pipeline {
	t.Helper()

	server := httptest.NewServer(shopee)
	t.Cleanup(server.Close)

	client, err := ecommerce.NewShopeeClient(&ecommerce.ShopeeConfig{
		PartnerID:  2001,
		PartnerKey: "integration-secret",
		APIBaseURL: server.URL,
	})
	require.NoError(t, err)

	locker := cache.NewInMemoryRefreshLocker()
	t.Cleanup(func() { _ = locker.Close() })

	log := zap.NewNop()
	connRepo := persistence.NewGormConnectionRepository(testDB.DB)
	rawRepo := persistence.NewGormRawOrderRepository(testDB.DB)
	normRepo := persistence.NewGormNormalizedOrderRepository(testDB.DB)

	tokens := integrationapp.NewTokenService(connRepo, client, integrationapp.DefaultTokenServiceConfig(), log,
		integrationapp.WithRefreshLocker(locker))

	ingestCfg := integrationapp.DefaultIngestionConfig()
	ingestCfg.DetailRetryAttempts = 1
	ingestCfg.DetailRetryBaseDelay = time.Millisecond
	ingester := integrationapp.NewIngestionService(tokens, client, connRepo, rawRepo, ingestCfg, log)
	normalizer := integrationapp.NewNormalizationService(rawRepo, normRepo, 100, log)

	return &pipeline{
		sync:     integrationapp.NewSyncService(connRepo, tokens, ingester, normalizer, 2, log),
		connRepo: connRepo,
		rawRepo:  rawRepo,
		normRepo: normRepo,
		shopee:   shopee,
	}
}

func orderDoc(orderSN, status, total string, updateTime int64) string {
	return fmt.Sprintf(`{"order_sn":%q,"order_status":%q,"currency":"MYR","total_amount":%s,"shipping_fee":"4.50",`+
		`"create_time":1710000000,"update_time":%d,"buyer_username":"buyer01",`+
		`"recipient_address":{"name":"Ali","city":"Kuala Lumpur","zipcode":"50000"}}`,
		orderSN, status, total, updateTime)
}

func TestSyncFlow_AuthorizeIngestNormalize(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	ctx := context.Background()
	tenantID := uuid.New()
	const shopID int64 = 220011

	p := newPipeline(t, testDB, newFakeShopee(map[string]string{
		"2403090001": orderDoc("2403090001", "READY_TO_SHIP", `"120.00"`, 1710003600),
		"2403090002": orderDoc("2403090002", "COMPLETED", "35.5", 1710003700),
	}))

	t.Run("authorization stores an active connection", func(t *testing.T) {
		resp, err := p.sync.CompleteAuthorization(ctx, tenantID, shopID, "auth-code")
		require.NoError(t, err)
		assert.Equal(t, integration.ConnectionStatusActive, resp.Status)

		conn, err := p.connRepo.FindByTenantAndShop(ctx, tenantID, shopID)
		require.NoError(t, err)
		assert.Equal(t, "at-1", conn.AccessToken)
		assert.Equal(t, "rt-1", conn.RefreshToken)
	})

	t.Run("ingestion stores raw rows and advances sync state", func(t *testing.T) {
		result, err := p.sync.TriggerIngestion(ctx, tenantID, nil)
		require.NoError(t, err)
		assert.Equal(t, integration.RunStatusSuccess, result.Status)
		assert.Equal(t, 2, result.Listed)
		assert.Equal(t, 2, result.Stored)

		count, err := p.rawRepo.CountUnprocessed(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		conn, err := p.connRepo.FindByTenantAndShop(ctx, tenantID, shopID)
		require.NoError(t, err)
		assert.NotNil(t, conn.LastIngestedAt)
		assert.Empty(t, conn.LastError)
	})

	t.Run("re-ingesting unchanged orders stores nothing new", func(t *testing.T) {
		_, err := p.sync.TriggerIngestion(ctx, tenantID, nil)
		require.NoError(t, err)

		count, err := p.rawRepo.CountUnprocessed(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("normalization derives reporting rows", func(t *testing.T) {
		report, err := p.sync.TriggerNormalization(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, integration.RunStatusSuccess, report.Status())
		assert.Equal(t, 2, report.Normalized)

		order, err := p.normRepo.FindByOrderID(ctx, tenantID, "2403090001")
		require.NoError(t, err)
		assert.Equal(t, integration.OrderStatusReadyToShip, order.Status)
		assert.True(t, decimal.RequireFromString("120").Equal(order.TotalAmount))
		assert.True(t, decimal.RequireFromString("4.5").Equal(order.ShippingFee))
		assert.True(t, decimal.RequireFromString("115.5").Equal(order.NetAmount))
		require.NotNil(t, order.RecipientCity)
		assert.Equal(t, "Kuala Lumpur", *order.RecipientCity)

		completed, err := p.normRepo.FindByOrderID(ctx, tenantID, "2403090002")
		require.NoError(t, err)
		assert.Equal(t, integration.OrderStatusCompleted, completed.Status)

		count, err := p.rawRepo.CountUnprocessed(ctx, tenantID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("changed order is re-normalized", func(t *testing.T) {
		p.shopee.setOrder("2403090001", orderDoc("2403090001", "SHIPPED", `"120.00"`, 1710090000))

		_, err := p.sync.TriggerIngestion(ctx, tenantID, nil)
		require.NoError(t, err)
		_, err = p.sync.TriggerNormalization(ctx, tenantID)
		require.NoError(t, err)

		order, err := p.normRepo.FindByOrderID(ctx, tenantID, "2403090001")
		require.NoError(t, err)
		assert.Equal(t, integration.OrderStatusShipped, order.Status)
	})

	t.Run("other tenants see nothing", func(t *testing.T) {
		_, err := p.normRepo.FindByOrderID(ctx, uuid.New(), "2403090001")
		assert.ErrorIs(t, err, integration.ErrOrderNotFound)
	})
}

func TestSyncFlow_FailedDetailBatchKeepsSyncState(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	ctx := context.Background()
	tenantID := uuid.New()
	const shopID int64 = 330022

	shopee := newFakeShopee(map[string]string{
		"2403100001": orderDoc("2403100001", "UNPAID", "10", 1710003600),
	})
	shopee.failDetailOf = "2403100001"
	p := newPipeline(t, testDB, shopee)

	_, err := p.sync.CompleteAuthorization(ctx, tenantID, shopID, "auth-code")
	require.NoError(t, err)

	one := shopID
	result, err := p.sync.TriggerIngestion(ctx, tenantID, &one)
	require.NoError(t, err)
	assert.Equal(t, integration.RunStatusFailed, result.Status)
	assert.Equal(t, 1, result.Listed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Reports, 1)
	assert.False(t, result.Reports[0].Aborted)

	conn, err := p.connRepo.FindByTenantAndShop(ctx, tenantID, shopID)
	require.NoError(t, err)
	assert.Nil(t, conn.LastIngestedAt)
	assert.Empty(t, conn.LastSyncCursor)

	count, err := p.rawRepo.CountUnprocessed(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRawOrderRepository_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	repo := persistence.NewGormRawOrderRepository(testDB.DB)
	ctx := context.Background()
	tenantID := uuid.New()

	newRaw := func(orderID, status string) integration.RawOrder {
		raw, err := integration.NewRawOrder(tenantID, 100, integration.OrderDetail{
			OrderID: orderID,
			Payload: json.RawMessage(orderDoc(orderID, status, "1", 1710000000)),
		}, time.Now())
		require.NoError(t, err)
		return *raw
	}

	t.Run("upsert keeps one row per order", func(t *testing.T) {
		stored, err := repo.UpsertBatch(ctx, []integration.RawOrder{newRaw("P1", "UNPAID"), newRaw("P2", "UNPAID")})
		require.NoError(t, err)
		assert.Equal(t, 2, stored)

		_, err = repo.UpsertBatch(ctx, []integration.RawOrder{newRaw("P1", "UNPAID")})
		require.NoError(t, err)

		count, err := repo.CountUnprocessed(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("only a payload change resets processing", func(t *testing.T) {
		rows, err := repo.FindUnprocessed(ctx, tenantID, uuid.Nil, 10)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		refs := make([]integration.ProcessedRef, 0, len(rows))
		for _, row := range rows {
			refs = append(refs, integration.ProcessedRef{ID: row.ID, ContentHash: row.ContentHash})
		}
		marked, err := repo.MarkProcessed(ctx, tenantID, refs)
		require.NoError(t, err)
		assert.Equal(t, int64(2), marked)

		_, err = repo.UpsertBatch(ctx, []integration.RawOrder{newRaw("P2", "UNPAID")})
		require.NoError(t, err)
		_, err = repo.UpsertBatch(ctx, []integration.RawOrder{newRaw("P1", "READY_TO_SHIP")})
		require.NoError(t, err)

		count, err := repo.CountUnprocessed(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		found, err := repo.FindByOrderID(ctx, tenantID, "P1")
		require.NoError(t, err)
		assert.False(t, found.IsProcessed)
	})
}
