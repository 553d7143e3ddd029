//go:build js && wasm

package main

import (
	"syscall/js"
	"time"

	"github.com/lucasjlepore/trackingest/trackfile"
)

func main() {
	js.Global().Set("previewTrack", js.FuncOf(previewTrack))
	select {}
}

// previewTrack(fileBytes Uint8Array, options {file_name, fit_timezone,
// max_upload_bytes}) decodes and aggregates a file in the browser before it is
// uploaded.
func previewTrack(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return errorResult("expected arguments: fileBytes(Uint8Array), options(object)")
	}
	fileArg := args[0]
	optsArg := args[1]
	if fileArg.IsUndefined() || fileArg.IsNull() || fileArg.Get("length").Int() == 0 {
		return errorResult("file bytes are required")
	}

	fileBytes := make([]byte, fileArg.Get("length").Int())
	if n := js.CopyBytesToGo(fileBytes, fileArg); n == 0 {
		return errorResult("failed to read file bytes from JS input")
	}

	opts := trackfile.Options{}
	if tz := getString(optsArg, "fit_timezone", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return errorResult("unknown fit_timezone: " + err.Error())
		}
		opts.FITLocation = loc
	}

	p, err := trackfile.Analyze(
		getString(optsArg, "file_name", "input.fit"),
		fileBytes,
		int64(getFloat(optsArg, "max_upload_bytes")),
		opts,
	)
	if err != nil {
		return errorResult(err.Error())
	}

	geojson, err := p.Aggregate.Geometry.Marshal()
	if err != nil {
		return errorResult("encode geometry: " + err.Error())
	}

	agg := p.Aggregate
	out := map[string]any{
		"ok":              true,
		"format":          string(p.Format),
		"name":            firstNonEmpty(agg.Name, p.Decoded.Name),
		"sport":           firstNonEmpty(agg.Sport, p.Decoded.Sport),
		"start_time":      agg.StartTime.UTC().Format(time.RFC3339),
		"points":          agg.PointCount,
		"positioned":      agg.PositionedCount,
		"geojson":         string(geojson),
		"warnings":        stringsToAny(p.Decoded.Warnings),
		"total_elapsed_s": floatOrNull(agg.TotalElapsedTime),
		"distance_m":      floatOrNull(agg.TotalDistance),
		"ascent_m":        floatOrNull(agg.Ascent),
		"descent_m":       floatOrNull(agg.Descent),
		"avg_hr_bpm":      floatOrNull(agg.AvgHeartRate),
		"max_speed_mps":   floatOrNull(agg.MaxSpeed),
	}
	if b := agg.Bounds.LatLngBounds(); b != nil {
		out["bounds"] = []any{
			[]any{b[0][0], b[0][1]},
			[]any{b[1][0], b[1][1]},
		}
	} else {
		out["bounds"] = nil
	}
	return out
}

func errorResult(msg string) map[string]any {
	return map[string]any{
		"ok":    false,
		"error": msg,
	}
}

func getString(v js.Value, key, fallback string) string {
	if v.IsUndefined() || v.IsNull() {
		return fallback
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() {
		return fallback
	}
	s := out.String()
	if s == "" || s == "undefined" || s == "null" {
		return fallback
	}
	return s
}

func getFloat(v js.Value, key string) float64 {
	if v.IsUndefined() || v.IsNull() {
		return 0
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() || out.Type() != js.TypeNumber {
		return 0
	}
	return out.Float()
}

func floatOrNull(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
