package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/lucasjlepore/trackingest/store"
)

// Source is the read side of the store an export needs.
type Source interface {
	GetActivity(ctx context.Context, id string) (*store.Activity, error)
	GetRecords(ctx context.Context, activityID string) ([]store.Record, error)
}

var csvHeader = []string{
	"seq", "ts_utc_iso", "elapsed_s", "lat_deg", "lon_deg", "altitude_m", "hr_bpm", "cadence_rpm",
	"speed_mps", "distance_m", "temperature_c", "has_position",
}

// Activity renders one activity's samples in memory as parquet (default) or csv.
func Activity(ctx context.Context, src Source, activityID, format string) ([]byte, error) {
	format, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}
	_, samples, err := load(ctx, src, activityID)
	if err != nil {
		return nil, err
	}
	if format == "csv" {
		var buf bytes.Buffer
		if err := writeSamplesCSV(&buf, samples); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return marshalSamplesParquet(samples)
}

// Run writes samples.<format> and activity_summary.json into opts.OutDir.
func Run(ctx context.Context, src Source, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.ActivityID) == "" {
		return nil, fmt.Errorf("activity id is required")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	activity, samples, err := load(ctx, src, opts.ActivityID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	samplesPath := filepath.Join(opts.OutDir, "samples."+format)
	summaryPath := filepath.Join(opts.OutDir, "activity_summary.json")
	if !opts.Overwrite {
		for _, p := range []string{samplesPath, summaryPath} {
			if _, err := os.Stat(p); err == nil {
				return nil, fmt.Errorf("%s already exists (use overwrite)", p)
			}
		}
	}

	switch format {
	case "csv":
		if err := writeSamplesCSVFile(samplesPath, samples); err != nil {
			return nil, fmt.Errorf("write samples csv: %w", err)
		}
	case "parquet":
		if err := writeSamplesParquetFile(samplesPath, samples); err != nil {
			return nil, fmt.Errorf("write samples parquet: %w", err)
		}
	}

	if err := writeJSON(summaryPath, buildActivitySummary(activity, samples)); err != nil {
		return nil, fmt.Errorf("write activity_summary.json: %w", err)
	}

	return &Result{
		OutputDir:           opts.OutDir,
		SamplesPath:         samplesPath,
		ActivitySummaryPath: summaryPath,
		Samples:             len(samples),
	}, nil
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "parquet"
	}
	if format != "parquet" && format != "csv" {
		return "", fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}
	return format, nil
}

func load(ctx context.Context, src Source, activityID string) (*store.Activity, []Sample, error) {
	activity, err := src.GetActivity(ctx, activityID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("activity %s: %w", activityID, err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load activity: %w", err)
	}
	records, err := src.GetRecords(ctx, activityID)
	if err != nil {
		return nil, nil, fmt.Errorf("load records: %w", err)
	}
	return activity, buildSamples(activity.StartTime, records), nil
}

func buildSamples(start time.Time, records []store.Record) []Sample {
	samples := make([]Sample, 0, len(records))
	for _, r := range records {
		s := Sample{
			Seq:          r.Seq,
			LatDeg:       r.Latitude,
			LonDeg:       r.Longitude,
			AltitudeM:    r.Altitude,
			HRBPM:        intToFloat(r.HeartRate),
			CadenceRPM:   intToFloat(r.Cadence),
			SpeedMPS:     r.Speed,
			DistanceM:    r.Distance,
			TemperatureC: intToFloat(r.Temperature),
			HasPosition:  r.Latitude != nil && r.Longitude != nil,
		}
		if r.Timestamp != nil {
			s.Timestamp = r.Timestamp.UTC()
			s.TSUTCISO = s.Timestamp.Format(time.RFC3339)
			elapsed := s.Timestamp.Sub(start).Seconds()
			s.ElapsedS = &elapsed
		}
		samples = append(samples, s)
	}
	return samples
}

func buildActivitySummary(a *store.Activity, samples []Sample) ActivitySummaryFile {
	positioned := 0
	for _, s := range samples {
		if s.HasPosition {
			positioned++
		}
	}
	return ActivitySummaryFile{
		ActivityID:        a.ID,
		Name:              a.Name,
		Sport:             a.Sport,
		StartTimeUTC:      a.StartTime.UTC().Format(time.RFC3339),
		TotalElapsedS:     a.TotalElapsedTime,
		TotalTimerS:       a.TotalTimerTime,
		MovingS:           a.MovingTime,
		TotalDistanceM:    a.TotalDistance,
		MaxSpeedMPS:       a.MaxSpeed,
		TotalCalories:     a.TotalCalories,
		TotalAscentM:      a.TotalAscent,
		TotalDescentM:     a.TotalDescent,
		AvgHRBPM:          a.AvgHeartRate,
		AvgCadenceRPM:     a.AvgCadence,
		Bounds:            a.Bounds,
		SampleCount:       len(samples),
		PositionedSamples: positioned,
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writeSamplesCSVFile(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeSamplesCSV(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSamplesCSV(out io.Writer, samples []Sample) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.Itoa(s.Seq),
			s.TSUTCISO,
			formatFloatPtr(s.ElapsedS),
			formatFloatPtr(s.LatDeg),
			formatFloatPtr(s.LonDeg),
			formatFloatPtr(s.AltitudeM),
			formatFloatPtr(s.HRBPM),
			formatFloatPtr(s.CadenceRPM),
			formatFloatPtr(s.SpeedMPS),
			formatFloatPtr(s.DistanceM),
			formatFloatPtr(s.TemperatureC),
			strconv.FormatBool(s.HasPosition),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func intToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
