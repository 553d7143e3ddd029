package ingest

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucasjlepore/trackingest/store"
	"github.com/lucasjlepore/trackingest/track"
)

// DefaultActivityName is used when neither the file nor its name yields one.
const DefaultActivityName = "Unnamed Activity"

// Assemble maps a decoded file and its aggregate onto the rows to persist.
// Name falls back from the decoder summary, to decoder metadata, to the
// filename stem, to DefaultActivityName. Averages are rounded to whole units.
func Assemble(decoded *track.Decoded, agg *track.Aggregate, u Upload, uploadedAt time.Time) (*store.Activity, []store.Record, error) {
	geojson, err := agg.Geometry.Marshal()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encoding geometry: %w", ErrPersistenceFailure, err)
	}

	activity := &store.Activity{
		ID:             uuid.NewString(),
		UserID:         u.UserID,
		Name:           activityName(decoded, agg, u.Filename),
		Sport:          firstNonEmpty(agg.Sport, decoded.Sport),
		Bounds:         agg.Bounds.LatLngBounds(),
		StartTime:      agg.StartTime,
		TotalTimerTime: agg.TotalTimerTime,
		MovingTime:     agg.MovingTime,
		TotalDistance:  agg.TotalDistance,
		MaxSpeed:       agg.MaxSpeed,
		TotalCalories:  agg.Calories,
		TotalAscent:    agg.Ascent,
		TotalDescent:   agg.Descent,
		AvgHeartRate:   roundPtr(agg.AvgHeartRate),
		AvgCadence:     roundPtr(agg.AvgCadence),
		GeoJSON:        geojson,
		UploadedAt:     uploadedAt,
	}
	if agg.TotalElapsedTime != nil {
		activity.TotalElapsedTime = *agg.TotalElapsedTime
	}

	records := make([]store.Record, len(decoded.Points))
	for i, p := range decoded.Points {
		records[i] = store.Record{
			ActivityID:  activity.ID,
			Seq:         i,
			Timestamp:   p.Timestamp,
			Altitude:    p.Altitude,
			HeartRate:   p.HeartRate,
			Cadence:     p.Cadence,
			Speed:       p.Speed,
			Distance:    p.Distance,
			Temperature: p.Temperature,
		}
		// A half or non-finite position is stored as no position.
		if p.HasPosition() {
			records[i].Latitude = p.Latitude
			records[i].Longitude = p.Longitude
		}
	}
	return activity, records, nil
}

func activityName(decoded *track.Decoded, agg *track.Aggregate, filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return firstNonEmpty(agg.Name, decoded.Name, strings.TrimSpace(stem), DefaultActivityName)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func roundPtr(v *float64) *int {
	if v == nil {
		return nil
	}
	r := int(math.Round(*v))
	return &r
}
