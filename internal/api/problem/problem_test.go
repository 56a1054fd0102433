package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_Defaults(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Trace-ID", "trace-1")
	Write(w, httptest.NewRequest(http.MethodGet, "/v1/symbols/XYZ", nil), http.StatusNotFound, "", "", "no such symbol")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "about:blank", body["type"])
	assert.Equal(t, "Not Found", body["title"])
	assert.Equal(t, "/v1/symbols/XYZ", body["instance"])
	assert.Equal(t, "trace-1", body["request_id"])
	assert.NotContains(t, body, "code")
	assert.NotContains(t, body, "remaining_days")
}

func TestDetails_Extensions(t *testing.T) {
	w := httptest.NewRecorder()
	New(nil, http.StatusConflict, Type("ledger/too-early"), "", "cannot charge yet").
		WithCode("too_early").
		WithRemainingDays(0).
		Send(w)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "https://errors.token-ledger.dev/ledger/too-early", body["type"])
	assert.Equal(t, "too_early", body["code"])
	assert.Equal(t, float64(0), body["remaining_days"], "zero days is still reported")
}
