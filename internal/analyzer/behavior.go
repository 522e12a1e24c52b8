package analyzer

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

const (
	minAccelSamples = 5

	brakeThreshold      = -150.0
	accelThreshold      = 200.0
	corneringThreshold  = 150.0
	corneringMinSpeed   = 20.0
	eventMinSpeed       = 10.0
	eventCooldownMillis = 2000

	stationarySpeed = 3.0
)

// accelSample pairs one accel-bearing record with its raw X/Y readings;
// keeping the record lets event cooldowns compare real timestamps.
type accelSample struct {
	rec  model.Record
	x, y float64
}

func hasAccel(r model.Record) bool {
	return r.AccelerometerX != nil && r.AccelerometerY != nil
}

// computeBehavior implements spec §4.4.3 end to end, returning nil when
// fewer than minAccelSamples accelerometer-bearing records exist.
func computeBehavior(records []model.Record, durationMinutes int, distanceEstimated bool) *model.DriverBehavior {
	var samples []accelSample
	for _, r := range records {
		if hasAccel(r) {
			samples = append(samples, accelSample{rec: r, x: float64(*r.AccelerometerX), y: float64(*r.AccelerometerY)})
		}
	}
	if len(samples) < minAccelSamples {
		return nil
	}

	baseX, baseY := baseline(samples)
	filteredX, filteredY := slidingMedian(samples, baseX, baseY)

	behavior := &model.DriverBehavior{}
	var lastBrake, lastAccel, lastCorner int64
	var hasLastBrake, hasLastAccel, hasLastCorner bool

	for i, s := range samples {
		speed := effectiveSpeed(s.rec)
		if speed < eventMinSpeed {
			continue
		}
		ts := s.rec.Timestamp.UnixMilli()

		if filteredX[i] < brakeThreshold {
			if !hasLastBrake || ts-lastBrake > eventCooldownMillis {
				behavior.HardBraking++
				lastBrake = ts
				hasLastBrake = true
			}
		}
		if filteredX[i] > accelThreshold {
			if !hasLastAccel || ts-lastAccel > eventCooldownMillis {
				behavior.HardAcceleration++
				lastAccel = ts
				hasLastAccel = true
			}
		}
		if math.Abs(filteredY[i]) > corneringThreshold && speed >= corneringMinSpeed {
			if !hasLastCorner || ts-lastCorner > eventCooldownMillis {
				behavior.HarshCornering++
				lastCorner = ts
				hasLastCorner = true
			}
		}
	}

	behavior.IdleMinutes = idleMinutes(records)
	score(behavior, durationMinutes)
	confidence(behavior, records, samples, durationMinutes, distanceEstimated)

	behavior.PerfectTrip = behavior.HardBraking == 0 && behavior.HardAcceleration == 0 &&
		behavior.HarshCornering == 0 && behavior.Confidence == "high" && durationMinutes >= 5

	return behavior
}

// baseline selects stationary accel-bearing samples (speed < 3 km/h); if
// at least 3 exist, the baseline is their median X/Y, else it is the
// mean of the first five accel-bearing samples.
func baseline(samples []accelSample) (float64, float64) {
	var stationaryX, stationaryY []float64
	for _, s := range samples {
		if effectiveSpeed(s.rec) < stationarySpeed {
			stationaryX = append(stationaryX, s.x)
			stationaryY = append(stationaryY, s.y)
		}
	}
	if len(stationaryX) >= 3 {
		mx, _ := stats.Median(stats.Float64Data(stationaryX))
		my, _ := stats.Median(stats.Float64Data(stationaryY))
		return mx, my
	}

	n := minAccelSamples
	if len(samples) < n {
		n = len(samples)
	}
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += samples[i].x
		sumY += samples[i].y
	}
	return sumX / float64(n), sumY / float64(n)
}

// slidingMedian applies a 3-sample sliding median to the
// baseline-subtracted X and Y series; the first and last samples pass
// through unfiltered.
func slidingMedian(samples []accelSample, baseX, baseY float64) ([]float64, []float64) {
	n := len(samples)
	devX := make([]float64, n)
	devY := make([]float64, n)
	for i, s := range samples {
		devX[i] = s.x - baseX
		devY[i] = s.y - baseY
	}

	filteredX := make([]float64, n)
	filteredY := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 || i == n-1 {
			filteredX[i] = devX[i]
			filteredY[i] = devY[i]
			continue
		}
		mx, _ := stats.Median(stats.Float64Data{devX[i-1], devX[i], devX[i+1]})
		my, _ := stats.Median(stats.Float64Data{devY[i-1], devY[i], devY[i+1]})
		filteredX[i] = mx
		filteredY[i] = my
	}
	return filteredX, filteredY
}

// idleMinutes accumulates, for every record after the first that
// satisfies the idle predicate (ignition on, speed < 3, movement == 0),
// the Δt since the record before it, whatever that record's state,
// each step clamped to [1s, 60s] against clock drift.
func idleMinutes(records []model.Record) float64 {
	isIdle := func(r model.Record) bool {
		return r.Ignition != nil && *r.Ignition == 1 &&
			effectiveSpeed(r) < stationarySpeed &&
			r.Movement != nil && *r.Movement == 0
	}

	var seconds float64
	for i := 1; i < len(records); i++ {
		if !isIdle(records[i]) {
			continue
		}
		dt := records[i].Timestamp.Sub(records[i-1].Timestamp).Seconds()
		if dt < 1 {
			dt = 1
		}
		if dt > 60 {
			dt = 60
		}
		seconds += dt
	}
	return seconds / 60
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func score(b *model.DriverBehavior, durationMinutes int) {
	brakePenalty := clamp(float64(b.HardBraking)*4, 0, 25)
	accelPenalty := clamp(float64(b.HardAcceleration)*2, 0, 20)
	cornerPenalty := clamp(float64(b.HarshCornering)*3, 0, 15)
	totalRaw := brakePenalty + accelPenalty + cornerPenalty

	durationFactor := clamp(float64(durationMinutes)/10, 1, 6)
	severeEvents := b.HardBraking + b.HarshCornering

	normalized := totalRaw / durationFactor
	if severeEvents > 0 && normalized < 3 {
		normalized = 3
	}
	b.DriverScore = int(clamp(math.Round(100-normalized), 0, 100))

	idlePenalty := math.Min(30, math.Floor(b.IdleMinutes/5)*2)
	b.EfficiencyScore = int(100 - idlePenalty)
}

func confidence(b *model.DriverBehavior, records []model.Record, samples []accelSample, durationMinutes int, distanceEstimated bool) {
	var satSum int
	for _, r := range records {
		satSum += int(r.GPS.Satellites)
	}
	meanSat := float64(satSum) / float64(len(records))

	accelFraction := float64(len(samples)) / float64(len(records))

	var reasons []string
	affecting := 0
	if meanSat < 3 {
		reasons = append(reasons, "poor_gnss")
		affecting++
	}
	if accelFraction < 0.3 {
		reasons = append(reasons, "low_accel_coverage")
		affecting++
	}
	if distanceEstimated {
		reasons = append(reasons, "distance_estimated")
		affecting++
	}
	if durationMinutes < 5 {
		reasons = append(reasons, "short_trip")
	}

	switch {
	case affecting == 0:
		b.Confidence = "high"
	case affecting == 1:
		b.Confidence = "medium"
	default:
		b.Confidence = "low"
		b.DriverScore = int(math.Min(float64(b.DriverScore), 95))
	}

	sort.Strings(reasons)
	b.ConfidenceReasons = reasons
}
