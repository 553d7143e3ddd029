package track

import (
	"errors"
	"math"
	"time"
)

// DefaultMovingSpeedThreshold is the speed in m/s above which a sample counts as moving.
const DefaultMovingSpeedThreshold = 0.5

const earthRadiusMeters = 6371008.8

var (
	// ErrEmptyTrack is returned when the decoder produced no points at all.
	ErrEmptyTrack = errors.New("track contains no points")
	// ErrNoValidTimestamps is returned when no point carries a timestamp.
	ErrNoValidTimestamps = errors.New("track contains no valid timestamps")
)

// Options tunes the aggregator.
type Options struct {
	MovingSpeedThreshold float64
}

// Aggregate is the result of a single pass over a point stream, with any
// decoder summary already merged in.
type Aggregate struct {
	Bounds    Bounds
	StartTime time.Time
	EndTime   time.Time

	TotalElapsedTime *float64
	TotalTimerTime   *float64
	MovingTime       *float64
	TotalDistance    *float64
	MaxSpeed         *float64
	Ascent           *float64
	Descent          *float64
	Calories         *int
	AvgHeartRate     *float64
	AvgCadence       *float64
	Sport            string
	Name             string

	Geometry FeatureCollection

	PointCount      int
	PositionedCount int
	TimestampCount  int
}

// runningStats accumulates everything in one forward pass.
type runningStats struct {
	bounds Bounds
	first  *time.Time
	last   *time.Time

	timestamped int
	positioned  int

	movingSamples int
	speedSamples  int
	maxSpeed      float64

	ascent, descent float64
	altitudePairs   int
	prevAltitude    *float64

	hrSum, hrCount   float64
	cadSum, cadCount float64

	lastDistance  *float64
	haversine     float64
	prevLat       float64
	prevLon       float64
	havePrevCoord bool

	geometry *geometryBuilder
}

// Run aggregates points in emission order. The summary, when non-nil, takes
// precedence over derived values field by field.
func Run(points []RawPoint, summary *SessionSummary, opts Options) (*Aggregate, error) {
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}
	threshold := opts.MovingSpeedThreshold
	if threshold <= 0 {
		threshold = DefaultMovingSpeedThreshold
	}

	rs := &runningStats{
		bounds:   NewBounds(),
		geometry: newGeometryBuilder(),
	}
	for i := range points {
		rs.add(points[i], threshold)
	}
	if rs.timestamped == 0 {
		return nil, ErrNoValidTimestamps
	}

	agg := rs.derive()
	agg.PointCount = len(points)
	if summary != nil {
		agg.applySummary(summary)
	}
	return agg, nil
}

func (rs *runningStats) add(p RawPoint, threshold float64) {
	if p.Timestamp != nil {
		ts := *p.Timestamp
		if rs.first == nil {
			rs.first = &ts
		}
		rs.last = &ts
		rs.timestamped++
	}

	if p.HasPosition() {
		lat, lon := *p.Latitude, *p.Longitude
		rs.bounds.Extend(lat, lon)
		rs.positioned++
		if rs.havePrevCoord {
			rs.haversine += haversineMeters(rs.prevLat, rs.prevLon, lat, lon)
		}
		rs.prevLat, rs.prevLon = lat, lon
		rs.havePrevCoord = true
	}
	rs.geometry.add(p)

	if p.Speed != nil && isFinite(*p.Speed) {
		rs.speedSamples++
		if *p.Speed > threshold {
			rs.movingSamples++
		}
		if rs.speedSamples == 1 || *p.Speed > rs.maxSpeed {
			rs.maxSpeed = *p.Speed
		}
	}

	// A missing altitude breaks the chain for this transition only.
	if p.Altitude != nil && isFinite(*p.Altitude) {
		if rs.prevAltitude != nil {
			delta := *p.Altitude - *rs.prevAltitude
			if delta > 0 {
				rs.ascent += delta
			} else {
				rs.descent -= delta
			}
			rs.altitudePairs++
		}
		alt := *p.Altitude
		rs.prevAltitude = &alt
	} else {
		rs.prevAltitude = nil
	}

	if p.HeartRate != nil {
		rs.hrSum += float64(*p.HeartRate)
		rs.hrCount++
	}
	if p.Cadence != nil {
		rs.cadSum += float64(*p.Cadence)
		rs.cadCount++
	}
	if p.Distance != nil && isFinite(*p.Distance) {
		d := *p.Distance
		rs.lastDistance = &d
	}
}

func (rs *runningStats) derive() *Aggregate {
	agg := &Aggregate{
		Bounds:          rs.bounds,
		StartTime:       *rs.first,
		EndTime:         *rs.last,
		Geometry:        rs.geometry.finish(),
		PositionedCount: rs.positioned,
		TimestampCount:  rs.timestamped,
	}

	agg.TotalElapsedTime = floatPtr(safePositive(rs.last.Sub(*rs.first).Seconds()))

	if rs.speedSamples > 0 {
		agg.MovingTime = floatPtr(float64(rs.movingSamples))
		agg.MaxSpeed = floatPtr(rs.maxSpeed)
	}
	if rs.altitudePairs > 0 {
		agg.Ascent = floatPtr(rs.ascent)
		agg.Descent = floatPtr(rs.descent)
	}
	if rs.hrCount > 0 {
		agg.AvgHeartRate = floatPtr(rs.hrSum / rs.hrCount)
	}
	if rs.cadCount > 0 {
		agg.AvgCadence = floatPtr(rs.cadSum / rs.cadCount)
	}

	switch {
	case rs.lastDistance != nil:
		agg.TotalDistance = floatPtr(*rs.lastDistance)
	case rs.positioned > 1:
		agg.TotalDistance = floatPtr(rs.haversine)
	}
	return agg
}

func (agg *Aggregate) applySummary(s *SessionSummary) {
	switch {
	case s.TotalElapsedTime != nil:
		agg.TotalElapsedTime = floatPtr(*s.TotalElapsedTime)
	case s.TotalTimerTime != nil:
		agg.TotalElapsedTime = floatPtr(*s.TotalTimerTime)
	}
	agg.TotalTimerTime = override(agg.TotalTimerTime, s.TotalTimerTime)
	agg.TotalDistance = override(agg.TotalDistance, s.TotalDistance)
	agg.MovingTime = override(agg.MovingTime, s.MovingTime)
	agg.MaxSpeed = override(agg.MaxSpeed, s.MaxSpeed)
	agg.Ascent = override(agg.Ascent, s.Ascent)
	agg.Descent = override(agg.Descent, s.Descent)
	agg.AvgHeartRate = override(agg.AvgHeartRate, s.AvgHeartRate)
	agg.AvgCadence = override(agg.AvgCadence, s.AvgCadence)
	if s.Calories != nil {
		c := *s.Calories
		agg.Calories = &c
	}
	if s.Sport != "" {
		agg.Sport = s.Sport
	}
	if s.Name != "" {
		agg.Name = s.Name
	}
}

func override(derived, stated *float64) *float64 {
	if stated == nil {
		return derived
	}
	return floatPtr(*stated)
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const rad = math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

func floatPtr(v float64) *float64 {
	return &v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func safePositive(v float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return v
}
