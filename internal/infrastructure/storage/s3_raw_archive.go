// Package storage archives raw marketplace payloads in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	integrationapp "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	infraconfig "github.com/erp/ordersync/internal/infrastructure/config"
)

var _ integrationapp.RawArchive = (*S3RawArchive)(nil)

const defaultArchivePrefix = "raw-orders"

// S3RawArchive writes every fetched order detail batch as one JSON object.
// It works with any S3-compatible backend (AWS S3, MinIO, RustFS).
//
// Objects are keyed as <prefix>/<tenant>/<shop>/<yyyy>/<mm>/<dd>/<fetched unix nanos>.json
type S3RawArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3RawArchiveOption is a functional option for configuring S3RawArchive
type S3RawArchiveOption func(*S3RawArchive)

// WithLogger sets a custom logger for S3RawArchive
func WithLogger(logger *zap.Logger) S3RawArchiveOption {
	return func(a *S3RawArchive) {
		a.logger = logger
	}
}

// archivedBatch is the object body
type archivedBatch struct {
	TenantID  string          `json:"tenant_id"`
	ShopID    int64           `json:"shop_id"`
	FetchedAt time.Time       `json:"fetched_at"`
	Orders    []archivedOrder `json:"orders"`
}

type archivedOrder struct {
	OrderSN string          `json:"order_sn"`
	Payload json.RawMessage `json:"payload"`
}

// NewS3RawArchive creates a new S3RawArchive from configuration
func NewS3RawArchive(cfg *infraconfig.StorageConfig, opts ...S3RawArchiveOption) (*S3RawArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = defaultArchivePrefix
	}

	archive := &S3RawArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	return archive, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup.
func (a *S3RawArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("Creating raw archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		// Another replica may have created it in the meantime
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads one detail batch
func (a *S3RawArchive) Archive(
	ctx context.Context,
	tenantID uuid.UUID,
	shopID int64,
	details []integration.OrderDetail,
	fetchedAt time.Time,
) error {
	if len(details) == 0 {
		return nil
	}

	batch := archivedBatch{
		TenantID:  tenantID.String(),
		ShopID:    shopID,
		FetchedAt: fetchedAt.UTC(),
		Orders:    make([]archivedOrder, 0, len(details)),
	}
	for _, d := range details {
		batch.Orders = append(batch.Orders, archivedOrder{OrderSN: d.OrderID, Payload: d.Payload})
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode raw batch: %w", err)
	}

	key := a.ObjectKey(tenantID, shopID, fetchedAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload raw batch %s: %w", key, err)
	}

	a.logger.Debug("Archived raw order batch",
		zap.String("key", key),
		zap.Int("orders", len(details)),
	)
	return nil
}

// ObjectKey returns the object key for a batch fetched at fetchedAt
func (a *S3RawArchive) ObjectKey(tenantID uuid.UUID, shopID int64, fetchedAt time.Time) string {
	at := fetchedAt.UTC()
	return path.Join(
		a.prefix,
		tenantID.String(),
		strconv.FormatInt(shopID, 10),
		at.Format("2006/01/02"),
		strconv.FormatInt(at.UnixNano(), 10)+".json",
	)
}

// GetBucket returns the bucket name
func (a *S3RawArchive) GetBucket() string {
	return a.bucket
}
