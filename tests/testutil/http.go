package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// JSONBody parses a recorded response body as a JSON object.
func JSONBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var result map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err, "Failed to parse JSON response")
	return result
}

// JSONBodyAs parses a recorded response body into T.
func JSONBodyAs[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var result T
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err, "Failed to parse JSON response")
	return result
}

// AssertSuccessResponse asserts the body is a successful API envelope.
func AssertSuccessResponse(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()

	resp := JSONBody(t, w)
	assert.Equal(t, true, resp["success"], "Expected success to be true")
	assert.Nil(t, resp["error"], "Expected no error")
}

// AssertErrorResponse asserts the body is a failed API envelope with expectedCode.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()

	resp := JSONBody(t, w)
	assert.Equal(t, false, resp["success"], "Expected success to be false")

	errMap, ok := resp["error"].(map[string]interface{})
	require.True(t, ok, "Expected error object in response")
	assert.Equal(t, expectedCode, errMap["code"], "Unexpected error code")
}

// ToJSONReader converts a value to a JSON io.Reader.
func ToJSONReader(t *testing.T, v interface{}) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err, "Failed to marshal to JSON")
	return bytes.NewReader(data)
}
