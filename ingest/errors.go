package ingest

import (
	"errors"

	"github.com/lucasjlepore/trackingest/fitdecode"
	"github.com/lucasjlepore/trackingest/gpxdecode"
	"github.com/lucasjlepore/trackingest/store"
	"github.com/lucasjlepore/trackingest/track"
	"github.com/lucasjlepore/trackingest/trackfile"
)

// Failure taxonomy. Sentinels of the packages ingest drives are re-exported
// so callers only need this package for errors.Is checks.
var (
	ErrMalformedFitFile     = fitdecode.ErrMalformed
	ErrMalformedGpxFile     = gpxdecode.ErrMalformed
	ErrNoValidTimestamps    = track.ErrNoValidTimestamps
	ErrEmptyTrack           = track.ErrEmptyTrack
	ErrDuplicateUpload      = store.ErrDuplicateUpload
	ErrUnsupportedExtension = trackfile.ErrUnsupportedExtension
	ErrFileTooLarge         = trackfile.ErrFileTooLarge

	ErrPersistenceFailure = errors.New("persistence failure")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrMalformedFitFile, "MalformedFitFile"},
	{ErrMalformedGpxFile, "MalformedGpxFile"},
	{ErrNoValidTimestamps, "NoValidTimestamps"},
	{ErrEmptyTrack, "EmptyTrack"},
	{ErrDuplicateUpload, "DuplicateUpload"},
	{ErrUnsupportedExtension, "UnsupportedExtension"},
	{ErrFileTooLarge, "FileTooLarge"},
	{ErrPersistenceFailure, "PersistenceFailure"},
}

// Kind names the taxonomy entry err belongs to, or "" if none.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
