package track

import (
	"time"

	"github.com/goccy/go-json"
)

// FeatureCollection is the map-renderable geometry of an activity: one
// LineString feature per contiguous segment.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single segment.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   LineString        `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// LineString coordinates are [lat, lon] pairs.
type LineString struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// FeatureProperties carries the per-coordinate timestamps. Times[i] belongs to
// Coordinates[i]; a nil entry marks a point without a time.
type FeatureProperties struct {
	Times []*string `json:"times"`
}

// NewFeatureCollection returns an empty collection.
func NewFeatureCollection() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// BuildFeatureCollection groups positioned points by segment, preserving
// emission order. Points without coordinates are skipped for both the
// coordinate list and the times list.
func BuildFeatureCollection(points []RawPoint) FeatureCollection {
	b := newGeometryBuilder()
	for _, p := range points {
		b.add(p)
	}
	return b.finish()
}

// Marshal serializes the collection.
func (fc FeatureCollection) Marshal() ([]byte, error) {
	if fc.Features == nil {
		fc.Features = []Feature{}
	}
	return json.Marshal(fc)
}

// UnmarshalFeatureCollection parses a stored collection.
func UnmarshalFeatureCollection(data []byte) (FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return FeatureCollection{}, err
	}
	return fc, nil
}

type geometryBuilder struct {
	features   []Feature
	current    *Feature
	curSegment int
}

func newGeometryBuilder() *geometryBuilder {
	return &geometryBuilder{curSegment: -1}
}

func (b *geometryBuilder) add(p RawPoint) {
	if !p.HasPosition() {
		return
	}
	if b.current == nil || p.Segment != b.curSegment {
		b.flush()
		b.current = &Feature{
			Type:     "Feature",
			Geometry: LineString{Type: "LineString", Coordinates: [][2]float64{}},
			Properties: FeatureProperties{
				Times: []*string{},
			},
		}
		b.curSegment = p.Segment
	}
	b.current.Geometry.Coordinates = append(b.current.Geometry.Coordinates, [2]float64{*p.Latitude, *p.Longitude})
	b.current.Properties.Times = append(b.current.Properties.Times, formatTime(p.Timestamp))
}

func (b *geometryBuilder) flush() {
	if b.current != nil && len(b.current.Geometry.Coordinates) > 0 {
		b.features = append(b.features, *b.current)
	}
	b.current = nil
}

func (b *geometryBuilder) finish() FeatureCollection {
	b.flush()
	fc := NewFeatureCollection()
	if len(b.features) > 0 {
		fc.Features = b.features
	}
	return fc
}

func formatTime(ts *time.Time) *string {
	if ts == nil {
		return nil
	}
	s := ts.UTC().Format(time.RFC3339)
	return &s
}
