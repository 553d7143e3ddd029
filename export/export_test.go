package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/lucasjlepore/trackingest/store"
)

var start = time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, ":memory:", store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	activity := &store.Activity{
		ID:               "a1",
		UserID:           "alice",
		Name:             "Ridge Loop",
		Sport:            "hiking",
		Bounds:           [][2]float64{{44.0, -110.2}, {44.2, -110.0}},
		StartTime:        start,
		TotalElapsedTime: 120,
		TotalCalories:    ptr(812),
		UploadedAt:       start,
	}
	records := []store.Record{
		{Seq: 0, Timestamp: ptr(start), Latitude: ptr(44.0), Longitude: ptr(-110.0), Altitude: ptr(2000.0), HeartRate: ptr(120)},
		{Seq: 1, Timestamp: ptr(start.Add(time.Minute)), HeartRate: ptr(125), Temperature: ptr(18)},
		{Seq: 2, Timestamp: ptr(start.Add(2 * time.Minute)), Latitude: ptr(44.2), Longitude: ptr(-110.2), Speed: ptr(1.25)},
	}
	err = s.Atomic(ctx, func(w store.Writer) error {
		if err := w.CreateActivity(ctx, activity); err != nil {
			return err
		}
		return w.CreateRecords(ctx, activity.ID, records)
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return s
}

func TestActivityCSV(t *testing.T) {
	s := seedStore(t)
	data, err := Activity(context.Background(), s, "a1", "CSV")
	if err != nil {
		t.Fatalf("Activity error: %v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	for i, col := range csvHeader {
		if rows[0][i] != col {
			t.Fatalf("unexpected header column %d: got %q want %q", i, rows[0][i], col)
		}
	}
	second := rows[2]
	if second[1] != "2024-06-01T14:01:00Z" || second[2] != "60.000000" {
		t.Fatalf("unexpected timing columns: %v", second)
	}
	if second[3] != "" || second[10] != "18.000000" || second[11] != "false" {
		t.Fatalf("unexpected value columns: %v", second)
	}
}

func TestActivityParquet(t *testing.T) {
	s := seedStore(t)
	data, err := Activity(context.Background(), s, "a1", "")
	if err != nil {
		t.Fatalf("Activity error: %v", err)
	}

	pr, err := reader.NewParquetReader(parquetbuffer.NewBufferFileFromBytes(data), new(sampleParquetRow), 1)
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	rows := make([]sampleParquetRow, n)
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if rows[0].LatDeg != 44.0 || !rows[0].HasPosition || rows[0].HRBPM != 120 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if !math.IsNaN(rows[1].LatDeg) || rows[1].ElapsedS != 60 {
		t.Fatalf("missing values should be NaN: %+v", rows[1])
	}
	if rows[2].SpeedMPS != 1.25 || rows[2].Seq != 2 {
		t.Fatalf("unexpected last row: %+v", rows[2])
	}
}

func TestRunWritesFiles(t *testing.T) {
	s := seedStore(t)
	outDir := filepath.Join(t.TempDir(), "out")

	res, err := Run(context.Background(), s, Options{ActivityID: "a1", OutDir: outDir, Format: "parquet"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Samples != 3 {
		t.Fatalf("expected 3 samples, got %d", res.Samples)
	}
	if _, err := os.Stat(res.SamplesPath); err != nil {
		t.Fatalf("samples file missing: %v", err)
	}

	data, err := os.ReadFile(res.ActivitySummaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var summary ActivitySummaryFile
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Name != "Ridge Loop" || *summary.TotalCalories != 812 || summary.PositionedSamples != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if _, err := Run(context.Background(), s, Options{ActivityID: "a1", OutDir: outDir}); err == nil {
		t.Fatal("expected error when outputs exist without overwrite")
	}
	if _, err := Run(context.Background(), s, Options{ActivityID: "a1", OutDir: outDir, Overwrite: true}); err != nil {
		t.Fatalf("overwrite run failed: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	if _, err := Run(ctx, s, Options{ActivityID: "missing", OutDir: t.TempDir()}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := Run(ctx, s, Options{ActivityID: "a1", OutDir: t.TempDir(), Format: "xlsx"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
	if _, err := Run(ctx, s, Options{ActivityID: "a1"}); err == nil {
		t.Fatal("expected missing output directory error")
	}
}
