// Package httpapi implements the gateway's read surface: one
// net/http.ServeMux using Go 1.22's method+wildcard routing, with
// hand-rolled JSON helpers rather than a router framework — the route
// table is small and static enough that a framework would add a
// dependency without buying any real routing power.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/serebryakov7/telematics-gateway/internal/store"
	"github.com/serebryakov7/telematics-gateway/internal/telemetry"
)

// Server wires the store, metrics, and API key into an *http.ServeMux.
type Server struct {
	Store   store.Store
	Metrics *telemetry.Metrics
	Log     *telemetry.Logger
	APIKey  string // empty disables auth entirely, for local development
}

// Handler builds the route table. /metrics is exempt from the
// X-API-Key check alongside /health; every other route requires it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.Metrics.Handler())

	mux.HandleFunc("GET /devices", s.withAuth(s.handleListDevices))
	mux.HandleFunc("POST /devices", s.withAuth(s.handleCreateDevice))
	mux.HandleFunc("GET /devices/{imei}", s.withAuth(s.handleGetDevice))
	mux.HandleFunc("PUT /devices/{imei}", s.withAuth(s.handleUpdateDevice))
	mux.HandleFunc("DELETE /devices/{imei}", s.withAuth(s.handleDeleteDevice))
	mux.HandleFunc("PATCH /devices/{imei}/approve", s.withAuth(s.handleApprove))

	mux.HandleFunc("GET /devices/{imei}/records", s.withAuth(s.handleRecords))
	mux.HandleFunc("GET /devices/{imei}/latest", s.withAuth(s.handleLatest))
	mux.HandleFunc("GET /devices/{imei}/records/range", s.withAuth(s.handleRecordsRange))
	mux.HandleFunc("GET /devices/{imei}/raw", s.withAuth(s.handleRaw))
	mux.HandleFunc("GET /devices/{imei}/stats", s.withAuth(s.handleStats))
	mux.HandleFunc("GET /devices/{imei}/trips", s.withAuth(s.handleTrips))
	mux.HandleFunc("GET /devices/{imei}/daily/{date}", s.withAuth(s.handleDaily))
	mux.HandleFunc("GET /devices/{imei}/daily", s.withAuth(s.handleDaily))
	mux.HandleFunc("GET /devices/{imei}/daily-range", s.withAuth(s.handleDailyRange))

	return mux
}

// withAuth enforces X-API-Key on every route but /health and /metrics.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey != "" && r.Header.Get("X-API-Key") != s.APIKey {
			writeError(w, http.StatusUnauthorized, "missing or invalid X-API-Key")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// mapStoreErr translates the store's sentinel errors to HTTP status
// codes; anything else is a 500.
func mapStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func parseSkip(r *http.Request) int {
	raw := r.URL.Query().Get("skip")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func validIMEI(imei string) bool {
	if len(imei) != 15 {
		return false
	}
	for i := 0; i < len(imei); i++ {
		if imei[i] < '0' || imei[i] > '9' {
			return false
		}
	}
	return true
}
