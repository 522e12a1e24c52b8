package analyzer

import (
	"github.com/serebryakov7/telematics-gateway/internal/model"
)

// DailySummary aggregates one IMEI's trips and raw activity over a
// calendar day, backing the /devices/:imei/daily and /daily-range
// routes. records must already be restricted to the day's window.
func DailySummary(imei, date string, records []model.Record) model.DailySummary {
	summary := model.DailySummary{Date: date, IMEI: imei, RecordCount: len(records)}
	if len(records) == 0 {
		return summary
	}

	trips := BuildTrips(records)
	summary.TripCount = len(trips)

	var scoreSum, scoreCount int
	for _, t := range trips {
		summary.DistanceKm += t.DistanceKm
		summary.DrivingMinutes += t.DurationMinutes
		if t.MaxSpeed > summary.MaxSpeed {
			summary.MaxSpeed = t.MaxSpeed
		}
		if t.DriverBehavior != nil {
			summary.IdleMinutes += t.DriverBehavior.IdleMinutes
			scoreSum += t.DriverBehavior.DriverScore
			scoreCount++
		}
	}
	if scoreCount > 0 {
		avg := scoreSum / scoreCount
		summary.AvgDriverScore = &avg
	}

	return summary
}
