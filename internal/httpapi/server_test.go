package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serebryakov7/telematics-gateway/internal/store"
	"github.com/serebryakov7/telematics-gateway/internal/telemetry"
)

func testServer() *Server {
	return &Server{
		Store:   store.NewMemoryStore(),
		Metrics: telemetry.NewMetrics(),
		Log:     telemetry.NewLogger(nil, "test ", telemetry.LevelError),
		APIKey:  "secret",
	}
}

func TestHandleHealth_NoAuthRequired(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleDevices_RequiresAPIKey(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCreateDevice_RejectsBadIMEI(t *testing.T) {
	s := testServer()
	body, _ := json.Marshal(createDeviceRequest{IMEI: "123"})
	req := httptest.NewRequest(http.MethodPost, "/devices", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateDevice_ThenConflictOnRetry(t *testing.T) {
	s := testServer()
	body, _ := json.Marshal(createDeviceRequest{IMEI: "123456789012345"})

	req := httptest.NewRequest(http.MethodPost, "/devices", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/devices", bytes.NewReader(body))
	req2.Header.Set("X-API-Key", "secret")
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusConflict, rec2.Code)
}

func TestHandleGetDevice_404WhenAbsent(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/devices/123456789012345", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleApprove_DefaultsTrue(t *testing.T) {
	s := testServer()
	body, _ := json.Marshal(createDeviceRequest{IMEI: "123456789012345"})
	req := httptest.NewRequest(http.MethodPost, "/devices", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "secret")
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	approveReq := httptest.NewRequest(http.MethodPatch, "/devices/123456789012345/approve", bytes.NewReader(nil))
	approveReq.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, approveReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var dev map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dev))
	require.Equal(t, true, dev["approved"])
}

func TestHandleRecordsRange_RequiresFromTo(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/devices/123456789012345/records/range", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
