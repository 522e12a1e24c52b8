// Package analyzer implements the stateful pass over a chronologically
// ordered window of records for one device: trip segmentation, trip
// metrics, and accelerometer-derived driver-behavior scoring.
package analyzer

import (
	"time"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

// QuietPeriod is the engine-off gap that closes an open trip.
const QuietPeriod = 60 * time.Second

// MinTripDuration and MinTripDistance are the emission thresholds: a
// segmented run must clear at least one of them to be reported.
const (
	MinTripDuration = 2 * time.Minute
	MinTripDistance = 100.0 // meters
)

func engineOn(r model.Record) bool {
	if r.Ignition != nil && *r.Ignition == 1 {
		return true
	}
	return r.OBDEngineRpm != nil && *r.OBDEngineRpm > 0
}

// BuildTrips segments records (must already be sorted ascending by
// Timestamp, for a single IMEI) into trips using an engine-on/off
// quiet-period rule, computing metrics and behavior for each emitted
// trip.
func BuildTrips(records []model.Record) []model.Trip {
	var trips []model.Trip

	var current []model.Record
	lastOnIdx := -1
	var lastOnTime time.Time

	flush := func() {
		if lastOnIdx < 0 {
			current = nil
			return
		}
		segment := current[:lastOnIdx+1]
		if trip := buildTrip(segment); trip != nil {
			trips = append(trips, *trip)
		}
		current = nil
		lastOnIdx = -1
	}

	for _, r := range records {
		on := engineOn(r)
		if lastOnIdx < 0 {
			if !on {
				continue
			}
			current = []model.Record{r}
			lastOnIdx = 0
			lastOnTime = r.Timestamp
			continue
		}

		if on {
			current = append(current, r)
			lastOnIdx = len(current) - 1
			lastOnTime = r.Timestamp
			continue
		}

		if r.Timestamp.Sub(lastOnTime) > QuietPeriod {
			flush()
			continue
		}
		current = append(current, r)
	}
	flush()

	return trips
}

// buildTrip computes a full Trip from one segmented, engine-on-bounded
// record run, or returns nil if it fails the emission thresholds.
func buildTrip(records []model.Record) *model.Trip {
	if len(records) == 0 {
		return nil
	}

	trip := computeMetrics(records)
	trip.DriverBehavior = computeBehavior(records, trip.DurationMinutes, trip.DistanceEstimated)

	if time.Duration(trip.DurationMinutes)*time.Minute < MinTripDuration && trip.DistanceMeters <= MinTripDistance {
		return nil
	}
	return &trip
}
