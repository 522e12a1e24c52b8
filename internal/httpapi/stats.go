package httpapi

import (
	"net/http"
	"time"

	"github.com/serebryakov7/telematics-gateway/internal/analyzer"
	"github.com/serebryakov7/telematics-gateway/internal/store"
)

type deviceStats struct {
	TotalRecords int64         `json:"totalRecords"`
	TodayRecords int64         `json:"todayRecords"`
	LastPosition *lastPosition `json:"lastPosition,omitempty"`
	LastIgnition *uint8        `json:"lastIgnition,omitempty"`
	LastSpeed    *float64      `json:"lastSpeed,omitempty"`
	LastSeen     *time.Time    `json:"lastSeen,omitempty"`
}

type lastPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	imei := r.PathValue("imei")
	ctx := r.Context()

	epoch := time.Unix(0, 0).UTC()
	now := time.Now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	total, err := s.Store.CountRange(ctx, imei, epoch, now)
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	today, err := s.Store.CountRange(ctx, imei, todayStart, now)
	if err != nil {
		mapStoreErr(w, err)
		return
	}

	stats := deviceStats{TotalRecords: total, TodayRecords: today}

	latest, err := s.Store.FindLatest(ctx, imei)
	if err == nil && latest != nil {
		stats.LastPosition = &lastPosition{Latitude: latest.GPS.Latitude, Longitude: latest.GPS.Longitude}
		stats.LastIgnition = latest.Ignition
		speed := float64(latest.GPS.Speed)
		if latest.OBDVehicleSpeed != nil {
			speed = float64(*latest.OBDVehicleSpeed)
		}
		stats.LastSpeed = &speed
		ts := latest.Timestamp
		stats.LastSeen = &ts
	} else if err != nil && err != store.ErrNotFound {
		mapStoreErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	imei := r.PathValue("imei")
	limit := parseLimit(r, 20, 100)

	records, err := s.Store.FindRange(r.Context(), imei, time.Unix(0, 0).UTC(), time.Now().UTC())
	if err != nil {
		mapStoreErr(w, err)
		return
	}

	trips := analyzer.BuildTrips(records)
	if len(trips) > limit {
		trips = trips[len(trips)-limit:]
	}
	writeJSON(w, http.StatusOK, trips)
}
