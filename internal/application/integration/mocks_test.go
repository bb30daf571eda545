package integration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/erp/ordersync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// MockMarketplaceClient
// ---------------------------------------------------------------------------

type MockMarketplaceClient struct {
	mock.Mock
}

func (m *MockMarketplaceClient) ExchangeCode(ctx context.Context, shopID int64, code string) (*integration.TokenGrant, error) {
	args := m.Called(ctx, shopID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenGrant), args.Error(1)
}

func (m *MockMarketplaceClient) RefreshAccessToken(ctx context.Context, shopID int64, refreshToken string) (*integration.TokenGrant, error) {
	args := m.Called(ctx, shopID, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenGrant), args.Error(1)
}

func (m *MockMarketplaceClient) ListOrders(ctx context.Context, creds integration.ShopCredentials, query integration.OrderListQuery) (*integration.OrderListPage, error) {
	args := m.Called(ctx, creds, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderListPage), args.Error(1)
}

func (m *MockMarketplaceClient) GetOrderDetails(ctx context.Context, creds integration.ShopCredentials, orderIDs []string) ([]integration.OrderDetail, error) {
	args := m.Called(ctx, creds, orderIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.OrderDetail), args.Error(1)
}

// ---------------------------------------------------------------------------
// MockRawOrderRepository
// ---------------------------------------------------------------------------

type MockRawOrderRepository struct {
	mock.Mock
}

func (m *MockRawOrderRepository) UpsertBatch(ctx context.Context, orders []integration.RawOrder) (int, error) {
	args := m.Called(ctx, orders)
	return args.Int(0), args.Error(1)
}

func (m *MockRawOrderRepository) FindUnprocessed(ctx context.Context, tenantID uuid.UUID, afterID uuid.UUID, limit int) ([]integration.RawOrder, error) {
	args := m.Called(ctx, tenantID, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.RawOrder), args.Error(1)
}

func (m *MockRawOrderRepository) FindByOrderID(ctx context.Context, tenantID uuid.UUID, orderID string) (*integration.RawOrder, error) {
	args := m.Called(ctx, tenantID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RawOrder), args.Error(1)
}

func (m *MockRawOrderRepository) MarkProcessed(ctx context.Context, tenantID uuid.UUID, refs []integration.ProcessedRef) (int64, error) {
	args := m.Called(ctx, tenantID, refs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRawOrderRepository) CountUnprocessed(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

// ---------------------------------------------------------------------------
// MockNormalizedOrderRepository
// ---------------------------------------------------------------------------

type MockNormalizedOrderRepository struct {
	mock.Mock
}

func (m *MockNormalizedOrderRepository) UpsertBatch(ctx context.Context, orders []integration.NormalizedOrder) error {
	args := m.Called(ctx, orders)
	return args.Error(0)
}

func (m *MockNormalizedOrderRepository) FindByOrderID(ctx context.Context, tenantID uuid.UUID, orderID string) (*integration.NormalizedOrder, error) {
	args := m.Called(ctx, tenantID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.NormalizedOrder), args.Error(1)
}

// ---------------------------------------------------------------------------
// fakeConnectionRepository
// ---------------------------------------------------------------------------

// fakeConnectionRepository is a stateful in-memory ConnectionRepository
type fakeConnectionRepository struct {
	mu          sync.Mutex
	conns       map[string]integration.Connection
	tokenWrites int
	errors      []string
	findErr     error
}

func newFakeConnectionRepository(conns ...integration.Connection) *fakeConnectionRepository {
	r := &fakeConnectionRepository{conns: make(map[string]integration.Connection)}
	for _, c := range conns {
		r.conns[c.Key()] = c
	}
	return r
}

func (r *fakeConnectionRepository) get(tenantID uuid.UUID, shopID int64) integration.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[integration.ConnectionKey(tenantID, shopID)]
}

func (r *fakeConnectionRepository) FindByTenantAndShop(_ context.Context, tenantID uuid.UUID, shopID int64) (*integration.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	c, ok := r.conns[integration.ConnectionKey(tenantID, shopID)]
	if !ok {
		return nil, integration.ErrConnectionNotFound
	}
	return &c, nil
}

func (r *fakeConnectionRepository) FindByTenant(_ context.Context, tenantID uuid.UUID) ([]integration.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []integration.Connection
	for _, c := range r.conns {
		if c.TenantID == tenantID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (r *fakeConnectionRepository) FindActive(_ context.Context) ([]integration.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []integration.Connection
	for _, c := range r.conns {
		if c.IsActive() {
			result = append(result, c)
		}
	}
	return result, nil
}

func (r *fakeConnectionRepository) FindExpiringBefore(_ context.Context, cutoff time.Time) ([]integration.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []integration.Connection
	for _, c := range r.conns {
		if c.IsActive() && c.AccessTokenExpiresAt.Before(cutoff) {
			result = append(result, c)
		}
	}
	return result, nil
}

func (r *fakeConnectionRepository) Save(_ context.Context, conn *integration.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.conns[conn.Key()]; ok {
		conn.ID = existing.ID
		conn.CreatedAt = existing.CreatedAt
		conn.LastSyncCursor = existing.LastSyncCursor
		conn.LastIngestedAt = existing.LastIngestedAt
	}
	r.conns[conn.Key()] = *conn
	return nil
}

func (r *fakeConnectionRepository) UpdateTokens(_ context.Context, conn *integration.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[conn.Key()]
	if !ok {
		return integration.ErrConnectionNotFound
	}
	c.AccessToken = conn.AccessToken
	c.RefreshToken = conn.RefreshToken
	c.AccessTokenExpiresAt = conn.AccessTokenExpiresAt
	c.LastError = ""
	r.conns[conn.Key()] = c
	r.tokenWrites++
	return nil
}

func (r *fakeConnectionRepository) UpdateSyncState(_ context.Context, tenantID uuid.UUID, shopID int64, cursor string, ingestedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := integration.ConnectionKey(tenantID, shopID)
	c, ok := r.conns[key]
	if !ok {
		return integration.ErrConnectionNotFound
	}
	c.LastSyncCursor = cursor
	c.LastIngestedAt = &ingestedAt
	r.conns[key] = c
	return nil
}

func (r *fakeConnectionRepository) RecordError(_ context.Context, tenantID uuid.UUID, shopID int64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := integration.ConnectionKey(tenantID, shopID)
	c, ok := r.conns[key]
	if !ok {
		return integration.ErrConnectionNotFound
	}
	c.LastError = message
	r.conns[key] = c
	r.errors = append(r.errors, message)
	return nil
}

func (r *fakeConnectionRepository) UpdateStatus(_ context.Context, tenantID uuid.UUID, shopID int64, status integration.ConnectionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := integration.ConnectionKey(tenantID, shopID)
	c, ok := r.conns[key]
	if !ok {
		return integration.ErrConnectionNotFound
	}
	c.Status = status
	r.conns[key] = c
	return nil
}

var _ integration.ConnectionRepository = (*fakeConnectionRepository)(nil)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var (
	testTenantID = uuid.MustParse("5f0c6f0e-9c1b-4b51-a2f7-2d2b0c7a1f10")
	testNow      = time.Date(2024, 3, 9, 16, 0, 0, 0, time.UTC)
)

const testShopID int64 = 220011

func fixedClock() time.Time { return testNow }

func newTestConnection(expiresIn time.Duration) integration.Connection {
	return integration.Connection{
		ID:                   uuid.New(),
		TenantID:             testTenantID,
		ShopID:               testShopID,
		AccessToken:          "access-old",
		RefreshToken:         "refresh-old",
		AccessTokenExpiresAt: testNow.Add(expiresIn),
		Status:               integration.ConnectionStatusActive,
		CreatedAt:            testNow.Add(-24 * time.Hour),
		UpdatedAt:            testNow.Add(-time.Hour),
	}
}

// fakeTokens is an AccessTokenProvider returning a fixed connection or error
type fakeTokens struct {
	conn *integration.Connection
	err  error
}

func (f *fakeTokens) AccessToken(_ context.Context, _ uuid.UUID, _ int64) (*integration.Connection, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := *f.conn
	return &c, nil
}

// recordingMetrics captures what services report
type recordingMetrics struct {
	mu             sync.Mutex
	ingestions     []integration.IngestionReport
	normalizations []integration.NormalizationReport
	refreshes      []error
}

func (m *recordingMetrics) RecordIngestion(_ context.Context, r *integration.IngestionReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingestions = append(m.ingestions, *r)
}

func (m *recordingMetrics) RecordNormalization(_ context.Context, r *integration.NormalizationReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normalizations = append(m.normalizations, *r)
}

func (m *recordingMetrics) RecordTokenRefresh(_ context.Context, _ uuid.UUID, _ int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes = append(m.refreshes, err)
}
