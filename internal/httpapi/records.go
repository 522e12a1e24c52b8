package httpapi

import (
	"net/http"
	"time"
)

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	imei := r.PathValue("imei")
	limit := parseLimit(r, 100, 1000)
	skip := parseSkip(r)

	records, err := s.Store.FindRecords(r.Context(), imei, limit, skip)
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Store.FindLatest(r.Context(), r.PathValue("imei"))
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecordsRange(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseFromTo(w, r)
	if !ok {
		return
	}
	records, err := s.Store.FindRange(r.Context(), r.PathValue("imei"), from, to)
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)
	frames, err := s.Store.FindRaw(r.Context(), r.PathValue("imei"), limit)
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frames)
}

func parseFromTo(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	fromRaw := r.URL.Query().Get("from")
	toRaw := r.URL.Query().Get("to")
	if fromRaw == "" || toRaw == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be ISO-8601")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be ISO-8601")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
