package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/config"
)

var (
	archiveTenant = uuid.MustParse("5f0c6f0e-9c1b-4b51-a2f7-2d2b0c7a1f10")
	archiveTime   = time.Date(2024, 3, 9, 16, 0, 0, 0, time.UTC)
)

// ============================================================================
// Unit Tests (no external dependencies)
// ============================================================================

func TestNewS3RawArchive_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3RawArchive(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3RawArchive(&config.StorageConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		_, err := NewS3RawArchive(&config.StorageConfig{Bucket: "b", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		_, err := NewS3RawArchive(&config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("valid config uses default prefix", func(t *testing.T) {
		archive, err := NewS3RawArchive(&config.StorageConfig{
			Bucket:    "raw",
			AccessKey: "k",
			SecretKey: "s",
			Endpoint:  "localhost:9000",
		})
		require.NoError(t, err)
		assert.Equal(t, "raw", archive.GetBucket())
		assert.Equal(t, defaultArchivePrefix, archive.prefix)
	})
}

func TestS3RawArchive_ObjectKey(t *testing.T) {
	archive, err := NewS3RawArchive(&config.StorageConfig{
		Bucket:    "raw",
		AccessKey: "k",
		SecretKey: "s",
		Prefix:    "/shopee/",
	})
	require.NoError(t, err)

	key := archive.ObjectKey(archiveTenant, 220011, archiveTime)
	assert.Equal(t, "shopee/5f0c6f0e-9c1b-4b51-a2f7-2d2b0c7a1f10/220011/2024/03/09/1710000000000000000.json", key)
}

// fakeS3 records PUT requests
type fakeS3 struct {
	mu     sync.Mutex
	puts   map[string][]byte
	status int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	if r.Method == http.MethodPut {
		f.mu.Lock()
		f.puts[r.URL.Path] = body
		f.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

func newFakeS3Archive(t *testing.T, fake *fakeS3) *S3RawArchive {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	archive, err := NewS3RawArchive(&config.StorageConfig{
		Bucket:       "raw",
		AccessKey:    "k",
		SecretKey:    "s",
		Endpoint:     server.URL,
		UsePathStyle: true,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return archive
}

func TestS3RawArchive_Archive(t *testing.T) {
	fake := &fakeS3{puts: map[string][]byte{}}
	archive := newFakeS3Archive(t, fake)

	details := []integration.OrderDetail{
		{OrderID: "240309ABC", Payload: json.RawMessage(`{"order_sn":"240309ABC","total_amount":12.5}`)},
		{OrderID: "240309ABD", Payload: json.RawMessage(`{"order_sn":"240309ABD"}`)},
	}
	err := archive.Archive(context.Background(), archiveTenant, 220011, details, archiveTime)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.puts, 1)
	expectedPath := "/raw/" + archive.ObjectKey(archiveTenant, 220011, archiveTime)
	body, ok := fake.puts[expectedPath]
	require.True(t, ok, "object written under %s", expectedPath)
	assert.Contains(t, string(body), `"order_sn":"240309ABC"`)
	assert.Contains(t, string(body), `"total_amount":12.5`)
	assert.Contains(t, string(body), `"shop_id":220011`)
}

func TestS3RawArchive_Archive_Empty(t *testing.T) {
	fake := &fakeS3{puts: map[string][]byte{}}
	archive := newFakeS3Archive(t, fake)

	require.NoError(t, archive.Archive(context.Background(), archiveTenant, 220011, nil, archiveTime))
	assert.Empty(t, fake.puts)
}

func TestS3RawArchive_Archive_ServerError(t *testing.T) {
	fake := &fakeS3{puts: map[string][]byte{}, status: http.StatusForbidden}
	archive := newFakeS3Archive(t, fake)

	details := []integration.OrderDetail{{OrderID: "A", Payload: json.RawMessage(`{}`)}}
	err := archive.Archive(context.Background(), archiveTenant, 220011, details, archiveTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upload raw batch")
}
