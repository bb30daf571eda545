package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	t.Run("ignores key order and whitespace", func(t *testing.T) {
		a, err := ContentHash(json.RawMessage(`{"a":1,"b":{"y":"2","x":3}}`))
		require.NoError(t, err)
		b, err := ContentHash(json.RawMessage("{ \"b\": {\"x\": 3, \"y\": \"2\"},\n \"a\": 1 }"))
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("changes when a value changes", func(t *testing.T) {
		a, err := ContentHash(json.RawMessage(`{"order_status":"READY_TO_SHIP"}`))
		require.NoError(t, err)
		b, err := ContentHash(json.RawMessage(`{"order_status":"SHIPPED"}`))
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("keeps number precision", func(t *testing.T) {
		a, err := ContentHash(json.RawMessage(`{"total_amount":12345678901234567890}`))
		require.NoError(t, err)
		b, err := ContentHash(json.RawMessage(`{"total_amount":12345678901234567891}`))
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("rejects non-object payloads", func(t *testing.T) {
		_, err := ContentHash(json.RawMessage(`"just a string"`))
		assert.ErrorIs(t, err, ErrMalformedPayload)

		_, err = ContentHash(json.RawMessage(`{broken`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestNewRawOrder(t *testing.T) {
	tenantID := uuid.New()
	receivedAt := time.Now()

	t.Run("creates unprocessed order", func(t *testing.T) {
		raw, err := NewRawOrder(tenantID, 9, OrderDetail{OrderID: "SN1", Payload: json.RawMessage(`{"order_sn":"SN1"}`)}, receivedAt)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, raw.ID)
		assert.Equal(t, "SN1", raw.OrderID)
		assert.False(t, raw.IsProcessed)
		assert.Equal(t, 1, raw.IngestCount)
		assert.NotEmpty(t, raw.ContentHash)
		assert.Equal(t, receivedAt, raw.ReceivedAt)
	})

	t.Run("requires order ID", func(t *testing.T) {
		_, err := NewRawOrder(tenantID, 9, OrderDetail{Payload: json.RawMessage(`{}`)}, receivedAt)
		assert.Equal(t, ErrMissingOrderID, err)
	})

	t.Run("requires tenant", func(t *testing.T) {
		_, err := NewRawOrder(uuid.Nil, 9, OrderDetail{OrderID: "SN1", Payload: json.RawMessage(`{}`)}, receivedAt)
		assert.Equal(t, ErrInvalidTenantID, err)
	})
}
