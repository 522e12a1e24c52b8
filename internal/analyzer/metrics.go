package analyzer

import (
	"fmt"
	"math"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

// effectiveSpeed prefers OBD road speed over GPS speed, the same
// fallback convention used for distance estimation, reused here for
// maxSpeed/avgSpeed too.
func effectiveSpeed(r model.Record) float64 {
	if r.OBDVehicleSpeed != nil {
		return float64(*r.OBDVehicleSpeed)
	}
	return float64(r.GPS.Speed)
}

func computeMetrics(records []model.Record) model.Trip {
	first, last := records[0], records[len(records)-1]

	trip := model.Trip{
		StartTime: first.Timestamp,
		EndTime:   last.Timestamp,
	}

	trip.StartOdometer = first.TotalOdometer
	trip.EndOdometer = last.TotalOdometer

	if trip.StartOdometer != nil && trip.EndOdometer != nil && *trip.EndOdometer > *trip.StartOdometer {
		trip.DistanceMeters = float64(*trip.EndOdometer - *trip.StartOdometer)
	} else {
		trip.DistanceMeters = integrateSpeedDistance(records)
		trip.DistanceEstimated = true
	}
	trip.DistanceKm = math.Round(trip.DistanceMeters/100) / 10

	durationSeconds := trip.EndTime.Sub(trip.StartTime).Seconds()
	trip.DurationMinutes = int(math.Round(durationSeconds / 60))
	trip.Duration = formatDuration(trip.DurationMinutes)

	var speedSum float64
	var speedCount int
	for _, r := range records {
		s := effectiveSpeed(r)
		if s > trip.MaxSpeed {
			trip.MaxSpeed = s
		}
		if s > 0 {
			speedSum += s
			speedCount++
		}
	}
	if speedCount > 0 {
		avg := speedSum / float64(speedCount)
		trip.AvgSpeedMoving = &avg
	}
	if durationSeconds > 0 {
		avgTotal := trip.DistanceKm / (durationSeconds / 3600)
		trip.AvgSpeedTotal = &avgTotal
	}

	computeFuel(&trip, first, last)

	trip.StartPosition = firstPositionWithSatellites(records)
	trip.EndPosition = lastPositionWithSatellites(records)

	return trip
}

// integrateSpeedDistance sums effectiveSpeed(r) × Δt across successive
// records when odometer data is absent or flat, as a fallback distance
// estimator.
func integrateSpeedDistance(records []model.Record) float64 {
	var meters float64
	for i := 1; i < len(records); i++ {
		dt := records[i].Timestamp.Sub(records[i-1].Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		kmh := effectiveSpeed(records[i])
		meters += kmh * dt * (1000.0 / 3600.0)
	}
	return meters
}

func formatDuration(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// computeFuel fills FuelUsedLiters/FuelPer100km/FuelFromGps when the
// trip clears the minimum thresholds for fuel accounting: ≥2km, ≥5min,
// and a positive consumption delta from IO 12 (GPS-estimated fuel).
func computeFuel(trip *model.Trip, first, last model.Record) {
	if first.FuelGPS == nil || last.FuelGPS == nil {
		return
	}
	if trip.DistanceKm < 2 || trip.DurationMinutes < 5 {
		return
	}
	if *last.FuelGPS <= *first.FuelGPS {
		return
	}
	usedMl := float64(*last.FuelGPS - *first.FuelGPS)
	liters := usedMl / 1000
	trip.FuelUsedLiters = &liters
	trip.FuelFromGps = true

	per100 := liters / trip.DistanceKm * 100
	trip.FuelPer100km = &per100
}

func firstPositionWithSatellites(records []model.Record) model.Position {
	for _, r := range records {
		if r.GPS.Satellites > 0 {
			return model.Position{Latitude: r.GPS.Latitude, Longitude: r.GPS.Longitude}
		}
	}
	first := records[0]
	return model.Position{Latitude: first.GPS.Latitude, Longitude: first.GPS.Longitude}
}

func lastPositionWithSatellites(records []model.Record) model.Position {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].GPS.Satellites > 0 {
			return model.Position{Latitude: records[i].GPS.Latitude, Longitude: records[i].GPS.Longitude}
		}
	}
	last := records[len(records)-1]
	return model.Position{Latitude: last.GPS.Latitude, Longitude: last.GPS.Longitude}
}
