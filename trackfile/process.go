package trackfile

import (
	"fmt"
	"time"

	"github.com/lucasjlepore/trackingest/fitdecode"
	"github.com/lucasjlepore/trackingest/gpxdecode"
	"github.com/lucasjlepore/trackingest/track"
)

// Options tunes decoding and aggregation.
type Options struct {
	// FITLocation reinterprets FIT timestamps in a zone. Nil means UTC.
	FITLocation *time.Location
	// MovingSpeedThreshold defaults to track.DefaultMovingSpeedThreshold.
	MovingSpeedThreshold float64
}

// Decode runs the decoder for format.
func Decode(format Format, data []byte, opts Options) (*track.Decoded, error) {
	switch format {
	case FormatFIT:
		return fitdecode.Decode(data, fitdecode.Options{Location: opts.FITLocation})
	case FormatGPX:
		return gpxdecode.Decode(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, format)
	}
}

// Process decodes data and aggregates the resulting points. The returned
// error wraps the decoder's or aggregator's sentinel.
func Process(format Format, data []byte, opts Options) (*track.Decoded, *track.Aggregate, error) {
	decoded, err := Decode(format, data, opts)
	if err != nil {
		return nil, nil, err
	}
	agg, err := track.Run(decoded.Points, decoded.Summary, track.Options{
		MovingSpeedThreshold: opts.MovingSpeedThreshold,
	})
	if err != nil {
		return decoded, nil, err
	}
	return decoded, agg, nil
}

// Preview is an unpersisted view of one file.
type Preview struct {
	Format    Format
	Decoded   *track.Decoded
	Aggregate *track.Aggregate
}

// Analyze checks acceptance, detects the format and processes the file
// without touching storage.
func Analyze(filename string, data []byte, maxBytes int64, opts Options) (*Preview, error) {
	if err := CheckAcceptance(filename, int64(len(data)), maxBytes); err != nil {
		return nil, err
	}
	format, err := Detect(filename, data)
	if err != nil {
		return nil, err
	}
	decoded, agg, err := Process(format, data, opts)
	if err != nil {
		return nil, err
	}
	return &Preview{Format: format, Decoded: decoded, Aggregate: agg}, nil
}
