package httpapi

import (
	"net/http"
	"time"

	"github.com/serebryakov7/telematics-gateway/internal/analyzer"
)

const dailyDateLayout = "2006-01-02"

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	imei := r.PathValue("imei")
	date := r.PathValue("date")
	if date == "" {
		date = time.Now().UTC().Format(dailyDateLayout)
	}

	day, err := time.Parse(dailyDateLayout, date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	records, err := s.Store.FindRange(r.Context(), imei, from, to)
	if err != nil {
		mapStoreErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzer.DailySummary(imei, date, records))
}

func (s *Server) handleDailyRange(w http.ResponseWriter, r *http.Request) {
	imei := r.PathValue("imei")
	fromRaw := r.URL.Query().Get("from")
	toRaw := r.URL.Query().Get("to")
	if fromRaw == "" || toRaw == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	from, err := time.Parse(dailyDateLayout, fromRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse(dailyDateLayout, toRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not precede from")
		return
	}

	var summaries []any
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dayStart := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd := dayStart.Add(24 * time.Hour)

		records, err := s.Store.FindRange(r.Context(), imei, dayStart, dayEnd)
		if err != nil {
			mapStoreErr(w, err)
			return
		}
		summaries = append(summaries, analyzer.DailySummary(imei, d.Format(dailyDateLayout), records))
	}

	writeJSON(w, http.StatusOK, summaries)
}
