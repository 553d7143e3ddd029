// Package export writes a stored activity's record series to Parquet or CSV,
// alongside a JSON summary.
package export

import "time"

// Options configures Run.
type Options struct {
	ActivityID string
	OutDir     string
	Format     string // parquet|csv
	Overwrite  bool
}

// Result returns generated output paths.
type Result struct {
	OutputDir           string `json:"output_dir"`
	SamplesPath         string `json:"samples_path"`
	ActivitySummaryPath string `json:"activity_summary_path"`
	Samples             int    `json:"samples"`
}

// Sample is one exported record row. Nil pointers are absent readings.
type Sample struct {
	Seq          int       `json:"seq"`
	TSUTCISO     string    `json:"ts_utc_iso,omitempty"`
	Timestamp    time.Time `json:"-"`
	ElapsedS     *float64  `json:"elapsed_s,omitempty"`
	LatDeg       *float64  `json:"lat_deg,omitempty"`
	LonDeg       *float64  `json:"lon_deg,omitempty"`
	AltitudeM    *float64  `json:"altitude_m,omitempty"`
	HRBPM        *float64  `json:"hr_bpm,omitempty"`
	CadenceRPM   *float64  `json:"cadence_rpm,omitempty"`
	SpeedMPS     *float64  `json:"speed_mps,omitempty"`
	DistanceM    *float64  `json:"distance_m,omitempty"`
	TemperatureC *float64  `json:"temperature_c,omitempty"`
	HasPosition  bool      `json:"has_position"`
}

// ActivitySummaryFile is written next to the samples.
type ActivitySummaryFile struct {
	ActivityID        string       `json:"activity_id"`
	Name              string       `json:"name"`
	Sport             string       `json:"sport,omitempty"`
	StartTimeUTC      string       `json:"start_time_utc"`
	TotalElapsedS     float64      `json:"total_elapsed_s"`
	TotalTimerS       *float64     `json:"total_timer_s,omitempty"`
	MovingS           *float64     `json:"moving_s,omitempty"`
	TotalDistanceM    *float64     `json:"total_distance_m,omitempty"`
	MaxSpeedMPS       *float64     `json:"max_speed_mps,omitempty"`
	TotalCalories     *int         `json:"total_calories,omitempty"`
	TotalAscentM      *float64     `json:"total_ascent_m,omitempty"`
	TotalDescentM     *float64     `json:"total_descent_m,omitempty"`
	AvgHRBPM          *int         `json:"avg_hr_bpm,omitempty"`
	AvgCadenceRPM     *int         `json:"avg_cadence_rpm,omitempty"`
	Bounds            [][2]float64 `json:"bounds,omitempty"`
	SampleCount       int          `json:"sample_count"`
	PositionedSamples int          `json:"positioned_samples"`
}
