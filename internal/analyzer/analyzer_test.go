package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

func u64(v uint64) *uint64 { return &v }
func u8(v uint8) *uint8    { return &v }
func u16(v uint16) *uint16 { return &v }
func i16(v int16) *int16   { return &v }

func baseRecord(ts time.Time) model.Record {
	return model.Record{
		IMEI:      "123456789012345",
		Timestamp: ts,
		GPS:       model.GPS{Satellites: 6},
	}
}

func TestBuildTrips_SegmentsSingleTripFromQuietGap(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var records []model.Record

	odoStep := uint64(5000) / 19
	for i := 0; i < 20; i++ {
		r := baseRecord(start.Add(time.Duration(i*10) * time.Second))
		r.Ignition = u8(1)
		odo := 100000 + odoStep*uint64(i)
		r.TotalOdometer = u64(odo)
		speed := uint16(40)
		if i == 10 {
			speed = 80
		}
		r.GPS.Speed = speed
		records = append(records, r)
	}
	// fix the final odometer exactly, since integer step rounding may undershoot
	records[19].TotalOdometer = u64(105000)

	offStart := start.Add(200 * time.Second)
	for i := 0; i < 15; i++ {
		r := baseRecord(offStart.Add(time.Duration(i*10) * time.Second))
		r.Ignition = u8(0)
		rpm := uint32(0)
		r.OBDEngineRpm = &rpm
		records = append(records, r)
	}

	trips := BuildTrips(records)
	require.Len(t, trips, 1)
	trip := trips[0]
	require.Equal(t, 5.0, trip.DistanceKm)
	require.Equal(t, 3, trip.DurationMinutes)
	require.GreaterOrEqual(t, trip.MaxSpeed, 80.0)
	require.False(t, trip.DistanceEstimated)
	require.NotNil(t, trip.AvgSpeedTotal)
	require.InDelta(t, 100, *trip.AvgSpeedTotal, 15)
}

func TestBuildTrips_DiscardsTripBelowDurationAndDistanceThresholds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var records []model.Record
	for i := 0; i < 3; i++ {
		r := baseRecord(start.Add(time.Duration(i*30) * time.Second))
		r.Ignition = u8(1)
		r.TotalOdometer = u64(100000)
		records = append(records, r)
	}

	trips := BuildTrips(records)
	require.Empty(t, trips)
}

func TestBuildTrips_DetectsHardBrakingWithCooldownSuppression(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var records []model.Record
	for i := 0; i < 60; i++ {
		r := baseRecord(start.Add(time.Duration(i) * time.Second))
		r.Ignition = u8(1)
		r.OBDVehicleSpeed = u16(40)

		x := int16(0)
		if i == 30 || i == 31 || i == 32 {
			x = -400
		}
		r.AccelerometerX = i16(x)
		r.AccelerometerY = i16(0)
		records = append(records, r)
	}
	records[0].TotalOdometer = u64(0)
	records[59].TotalOdometer = u64(700)

	trips := BuildTrips(records)
	require.Len(t, trips, 1)
	trip := trips[0]
	require.NotNil(t, trip.DriverBehavior)
	require.Equal(t, 1, trip.DriverBehavior.HardBraking)
	require.LessOrEqual(t, trip.DriverBehavior.DriverScore, 96)
	require.Equal(t, "high", trip.DriverBehavior.Confidence)
}

// Trip boundaries include every engine-on record within [start,end].
func TestBuildTrips_CoversEveryEngineOnRecordWithinTripBounds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var records []model.Record
	for i := 0; i < 15; i++ {
		r := baseRecord(start.Add(time.Duration(i*10) * time.Second))
		r.Ignition = u8(1)
		r.TotalOdometer = u64(100000 + uint64(i)*50)
		records = append(records, r)
	}

	trips := BuildTrips(records)
	require.Len(t, trips, 1)
	trip := trips[0]
	for _, r := range records {
		require.False(t, r.Timestamp.Before(trip.StartTime))
		require.False(t, r.Timestamp.After(trip.EndTime))
	}
}

// Two adjacent trips are always separated by >60s of engine-off.
func TestBuildTrips_SeparatesAdjacentTripsByQuietPeriod(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var records []model.Record

	appendOn := func(from time.Time, n int) time.Time {
		var last time.Time
		for i := 0; i < n; i++ {
			ts := from.Add(time.Duration(i*10) * time.Second)
			r := baseRecord(ts)
			r.Ignition = u8(1)
			r.TotalOdometer = u64(100000 + uint64(i)*100)
			records = append(records, r)
			last = ts
		}
		return last
	}

	lastOn1 := appendOn(start, 15)
	gapStart := lastOn1.Add(90 * time.Second)
	off := baseRecord(gapStart)
	off.Ignition = u8(0)
	records = append(records, off)
	appendOn(gapStart.Add(10*time.Second), 15)

	trips := BuildTrips(records)
	require.Len(t, trips, 2)
	require.Greater(t, trips[1].StartTime.Sub(trips[0].EndTime), 60*time.Second)
}

// Adding a higher-speed record cannot lower maxSpeed.
func TestBuildTrips_MaxSpeedIsMonotoneInInputSpeeds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	build := func(extraSpeed uint16) float64 {
		var records []model.Record
		for i := 0; i < 15; i++ {
			r := baseRecord(start.Add(time.Duration(i*10) * time.Second))
			r.Ignition = u8(1)
			r.TotalOdometer = u64(100000 + uint64(i)*100)
			r.GPS.Speed = 30
			records = append(records, r)
		}
		records[7].GPS.Speed = extraSpeed
		trips := BuildTrips(records)
		require.Len(t, trips, 1)
		return trips[0].MaxSpeed
	}

	low := build(30)
	high := build(90)
	require.GreaterOrEqual(t, high, low)
}

// Score bounds hold even under a heavily penalized trip.
func TestBuildTrips_ScoresStayWithinBounds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var records []model.Record
	for i := 0; i < 120; i++ {
		r := baseRecord(start.Add(time.Duration(i) * time.Second))
		r.Ignition = u8(1)
		r.OBDVehicleSpeed = u16(50)
		r.GPS.Satellites = 1

		x := int16(0)
		if i%3 == 0 {
			x = -400
		}
		r.AccelerometerX = i16(x)
		r.AccelerometerY = i16(0)
		records = append(records, r)
	}
	records[0].TotalOdometer = u64(0)
	records[119].TotalOdometer = u64(1500)

	trips := BuildTrips(records)
	require.Len(t, trips, 1)
	b := trips[0].DriverBehavior
	require.NotNil(t, b)
	require.GreaterOrEqual(t, b.DriverScore, 0)
	require.LessOrEqual(t, b.DriverScore, 100)
	require.GreaterOrEqual(t, b.EfficiencyScore, 0)
	require.LessOrEqual(t, b.EfficiencyScore, 100)
}

func TestDailySummary_AggregatesTrips(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	var records []model.Record
	for i := 0; i < 20; i++ {
		r := baseRecord(start.Add(time.Duration(i*10) * time.Second))
		r.Ignition = u8(1)
		r.TotalOdometer = u64(100000 + uint64(i)*250)
		r.GPS.Speed = 60
		records = append(records, r)
	}

	summary := DailySummary("123456789012345", "2026-01-01", records)
	require.Equal(t, "2026-01-01", summary.Date)
	require.Equal(t, len(records), summary.RecordCount)
	require.Equal(t, 1, summary.TripCount)
	require.Greater(t, summary.DistanceKm, 0.0)
}

func TestDailySummary_NoRecords(t *testing.T) {
	summary := DailySummary("123456789012345", "2026-01-01", nil)
	require.Equal(t, 0, summary.RecordCount)
	require.Equal(t, 0, summary.TripCount)
}
