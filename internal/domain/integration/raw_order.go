package integration

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawOrder is the order detail document exactly as the marketplace returned it.
// There is one RawOrder per (TenantID, OrderID) regardless of how often it was fetched.
type RawOrder struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ShopID      int64
	OrderID     string
	RawPayload  json.RawMessage
	ContentHash string
	IsProcessed bool
	IngestCount int
	ReceivedAt  time.Time
}

// NewRawOrder creates an unprocessed RawOrder for a fetched order detail
func NewRawOrder(tenantID uuid.UUID, shopID int64, detail OrderDetail, receivedAt time.Time) (*RawOrder, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if detail.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	hash, err := ContentHash(detail.Payload)
	if err != nil {
		return nil, err
	}

	return &RawOrder{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ShopID:      shopID,
		OrderID:     detail.OrderID,
		RawPayload:  detail.Payload,
		ContentHash: hash,
		IsProcessed: false,
		IngestCount: 1,
		ReceivedAt:  receivedAt,
	}, nil
}

// ContentHash returns the hex sha256 of the canonical form of payload.
// Canonical form is the payload re-encoded with sorted object keys and no
// insignificant whitespace, so key order and formatting never count as a change.
func ContentHash(payload json.RawMessage) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(payload json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}
	// encoding/json writes map keys in sorted order
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return out, nil
}

// ProcessedRef identifies a raw row together with the payload version that was normalized
type ProcessedRef struct {
	ID          uuid.UUID
	ContentHash string
}
