package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/tormoder/fit"

	"github.com/lucasjlepore/trackingest/store"
)

var t0 = time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

const scenarioGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Ridge Loop</name>
    <type>hiking</type>
    <trkseg>
      <trkpt lat="44.0" lon="-110.0"><ele>2000</ele><time>2024-06-01T14:00:00Z</time></trkpt>
      <trkpt lat="44.1" lon="-110.1"><ele>2010</ele><time>2024-06-01T14:01:00Z</time></trkpt>
      <trkpt lat="44.2" lon="-110.2"><ele>2005</ele><time>2024-06-01T14:02:00Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

const untimedGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="44.0" lon="-110.0"><ele>2000</ele></trkpt>
    <trkpt lat="44.1" lon="-110.1"><ele>2010</ele></trkpt>
  </trkseg></trk>
</gpx>`

// buildFIT encodes a short running activity whose session declares 812 kcal.
func buildFIT(t *testing.T) []byte {
	t.Helper()

	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}
	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	for i, pos := range [][2]float64{{44.0, -110.0}, {44.001, -110.001}, {44.002, -110.002}} {
		record := fit.NewRecordMsg()
		record.Timestamp = t0.Add(time.Duration(i) * 10 * time.Second)
		record.PositionLat = fit.NewLatitudeDegrees(pos[0])
		record.PositionLong = fit.NewLongitudeDegrees(pos[1])
		record.Altitude = uint16((1500 + 500) * 5)
		record.Speed = 2500
		record.Distance = uint32(i * 2500)
		record.HeartRate = uint8(130 + i)
		activity.Records = append(activity.Records, record)
	}

	session := fit.NewSessionMsg()
	session.Timestamp = t0.Add(30 * time.Second)
	session.StartTime = t0
	session.Sport = fit.SportRunning
	session.TotalCalories = 812
	session.TotalDistance = 500000
	activity.Sessions = append(activity.Sessions, session)

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// countingStore wraps a real store, counts writer calls and can fail
// CreateRecords to exercise rollback.
type countingStore struct {
	*store.Store
	failRecords   error
	beforeRecords func()

	activities int
	records    int
	uploads    int
}

func (c *countingStore) Atomic(ctx context.Context, fn func(store.Writer) error) error {
	return c.Store.Atomic(ctx, func(w store.Writer) error {
		return fn(&countingWriter{Writer: w, owner: c})
	})
}

type countingWriter struct {
	store.Writer
	owner *countingStore
}

func (w *countingWriter) CreateUpload(ctx context.Context, u *store.UploadedFile) error {
	w.owner.uploads++
	return w.Writer.CreateUpload(ctx, u)
}

func (w *countingWriter) CreateActivity(ctx context.Context, a *store.Activity) error {
	w.owner.activities++
	return w.Writer.CreateActivity(ctx, a)
}

func (w *countingWriter) CreateRecords(ctx context.Context, activityID string, records []store.Record) error {
	w.owner.records++
	if w.owner.beforeRecords != nil {
		w.owner.beforeRecords()
	}
	if w.owner.failRecords != nil {
		return w.owner.failRecords
	}
	return w.Writer.CreateRecords(ctx, activityID, records)
}

// racingStore reports no existing upload from the pre-check but loses the
// insert to a concurrent writer.
type racingStore struct{}

func (racingStore) UploadExists(context.Context, string, string) (bool, error) {
	return false, nil
}

func (racingStore) Atomic(ctx context.Context, fn func(store.Writer) error) error {
	return fn(racingWriter{})
}

type racingWriter struct{ store.Writer }

func (racingWriter) UploadExists(context.Context, string, string) (bool, error) {
	return false, nil
}

func (racingWriter) CreateUpload(context.Context, *store.UploadedFile) error {
	return store.ErrDuplicateUpload
}

var errDiskFull = errors.New("disk full")
