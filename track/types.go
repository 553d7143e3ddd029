// Package track holds the decoder-neutral point model and the single-pass
// aggregator that turns a point stream into activity statistics and geometry.
package track

import (
	"math"
	"time"
)

// RawPoint is one sample emitted by a decoder. Every sensor value is optional.
type RawPoint struct {
	Timestamp   *time.Time
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	HeartRate   *int
	Cadence     *int
	Speed       *float64
	Distance    *float64
	Temperature *int

	// Segment is the index of the contiguous run the point belongs to.
	Segment int
}

// HasPosition reports whether the point is usable for geometry and bounds.
func (p RawPoint) HasPosition() bool {
	return p.Latitude != nil && p.Longitude != nil && isFinite(*p.Latitude) && isFinite(*p.Longitude)
}

// HasData reports whether the point carries anything worth recording.
func (p RawPoint) HasData() bool {
	return p.Timestamp != nil || p.HasPosition() || p.Altitude != nil || p.HeartRate != nil ||
		p.Cadence != nil || p.Speed != nil || p.Distance != nil || p.Temperature != nil
}

// SessionSummary carries totals a decoder read directly from the file.
// A nil field means the file did not state it.
type SessionSummary struct {
	TotalDistance    *float64
	TotalElapsedTime *float64
	TotalTimerTime   *float64
	MovingTime       *float64
	MaxSpeed         *float64
	Ascent           *float64
	Descent          *float64
	Calories         *int
	AvgHeartRate     *float64
	AvgCadence       *float64
	Sport            string
	Name             string
}

// Decoded is what every decoder hands to the aggregator.
type Decoded struct {
	Points  []RawPoint
	Summary *SessionSummary

	// Name and Sport are the decoder's best metadata, already resolved through
	// the decoder's own precedence rules. Either may be empty.
	Name  string
	Sport string

	// Warnings lists per-field anomalies that were recovered locally.
	Warnings []string
}

// Bounds is the lat/lon envelope of all positioned points. A fresh value
// holds +Inf/-Inf sentinels until Extend is called.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// NewBounds returns bounds initialized to sentinels.
func NewBounds() Bounds {
	return Bounds{
		MinLat: math.Inf(1),
		MaxLat: math.Inf(-1),
		MinLon: math.Inf(1),
		MaxLon: math.Inf(-1),
	}
}

// Extend grows the envelope to include lat/lon.
func (b *Bounds) Extend(lat, lon float64) {
	b.MinLat = math.Min(b.MinLat, lat)
	b.MaxLat = math.Max(b.MaxLat, lat)
	b.MinLon = math.Min(b.MinLon, lon)
	b.MaxLon = math.Max(b.MaxLon, lon)
}

// IsSet reports whether at least one point contributed.
func (b Bounds) IsSet() bool {
	return isFinite(b.MinLat) && isFinite(b.MaxLat) && isFinite(b.MinLon) && isFinite(b.MaxLon)
}

// LatLngBounds renders the envelope as [[min_lat, min_lon], [max_lat, max_lon]].
// It returns nil while the bounds still hold sentinels.
func (b Bounds) LatLngBounds() [][2]float64 {
	if !b.IsSet() {
		return nil
	}
	return [][2]float64{{b.MinLat, b.MinLon}, {b.MaxLat, b.MaxLon}}
}

// Contains reports whether lat/lon lies inside the envelope.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}
