// Package ingest turns uploaded FIT and GPX files into persisted activities.
//
// Each upload moves through acceptance, duplicate check, decode, aggregate,
// assemble and persist. Decoding and aggregation happen outside any
// transaction; the activity, its records and the upload's parsed status are
// written in one unit of work.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lucasjlepore/trackingest/logging"
	"github.com/lucasjlepore/trackingest/metrics"
	"github.com/lucasjlepore/trackingest/store"
	"github.com/lucasjlepore/trackingest/trackfile"
)

// Store is the persistence the ingester needs.
type Store interface {
	UploadExists(ctx context.Context, userID, filename string) (bool, error)
	Atomic(ctx context.Context, fn func(store.Writer) error) error
}

// Upload is one file handed over by the upload layer.
type Upload struct {
	UserID   string
	Filename string
	Data     []byte
}

// Options configures an Ingester.
type Options struct {
	// MaxUploadBytes defaults to trackfile.MaxUploadBytes.
	MaxUploadBytes int64
	// MovingSpeedThreshold defaults to track.DefaultMovingSpeedThreshold.
	MovingSpeedThreshold float64
	// FITLocation reinterprets FIT timestamps in a zone. Nil means UTC.
	FITLocation *time.Location
}

// Ingester runs uploads through the pipeline against a Store.
type Ingester struct {
	store Store
	opts  Options
	now   func() time.Time
}

// New returns an Ingester writing to s.
func New(s Store, opts Options) *Ingester {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = trackfile.MaxUploadBytes
	}
	return &Ingester{store: s, opts: opts, now: time.Now}
}

// Ingest processes one upload. It never panics on bad input and always
// returns a terminal Result.
func (ing *Ingester) Ingest(ctx context.Context, u Upload) Result {
	started := time.Now()
	res, format, records := ing.ingest(ctx, u)

	elapsed := time.Since(started)
	metrics.ObserveIngest(string(format), string(res.Status), elapsed, records)

	event := logging.Info()
	if res.Status == StatusFailed {
		event = logging.Warn().Err(res.Err)
	}
	event.
		Str("user", u.UserID).
		Str("file", u.Filename).
		Str("format", string(format)).
		Str("status", string(res.Status)).
		Int("records", records).
		Dur("duration", elapsed).
		Msg("upload processed")
	return res
}

// IngestBatch processes uploads one after another. A failure in one file
// never affects another. When a filename repeats, the map reports the copy
// that created the upload row, or the first copy if none did.
func (ing *Ingester) IngestBatch(ctx context.Context, uploads []Upload) map[string]Result {
	results := make(map[string]Result, len(uploads))
	for _, u := range uploads {
		res := ing.Ingest(ctx, u)
		// Only one copy of a filename can own an upload row; report that one.
		if prev, seen := results[u.Filename]; seen && (prev.UploadID != "" || res.UploadID == "") {
			logging.Debug().Str("file", u.Filename).Str("status", string(res.Status)).Msg("repeated filename in batch")
			continue
		}
		results[u.Filename] = res
	}
	return results
}

func (ing *Ingester) ingest(ctx context.Context, u Upload) (Result, trackfile.Format, int) {
	if err := trackfile.CheckAcceptance(u.Filename, int64(len(u.Data)), ing.opts.MaxUploadBytes); err != nil {
		return rejected(err), "", 0
	}
	format, err := trackfile.Detect(u.Filename, u.Data)
	if err != nil {
		return rejected(err), "", 0
	}

	exists, err := ing.store.UploadExists(ctx, u.UserID, u.Filename)
	if err != nil {
		return failed("", fmt.Errorf("%w: %w", ErrPersistenceFailure, err)), format, 0
	}
	if exists {
		return rejected(ErrDuplicateUpload), format, 0
	}

	upload := &store.UploadedFile{
		ID:               uuid.NewString(),
		UserID:           u.UserID,
		OriginalFilename: u.Filename,
		FileType:         store.FileType(format),
		Status:           store.StatusPending,
		UploadedAt:       ing.now().UTC(),
	}
	err = ing.store.Atomic(ctx, func(w store.Writer) error {
		// The pre-check above can race; the unique constraint is authoritative.
		exists, err := w.UploadExists(ctx, u.UserID, u.Filename)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateUpload
		}
		return w.CreateUpload(ctx, upload)
	})
	if errors.Is(err, ErrDuplicateUpload) {
		return rejected(ErrDuplicateUpload), format, 0
	}
	if err != nil {
		return failed("", fmt.Errorf("%w: %w", ErrPersistenceFailure, err)), format, 0
	}

	decoded, agg, err := trackfile.Process(format, u.Data, trackfile.Options{
		FITLocation:          ing.opts.FITLocation,
		MovingSpeedThreshold: ing.opts.MovingSpeedThreshold,
	})
	if decoded != nil {
		metrics.ObserveWarnings(string(format), len(decoded.Warnings))
	}
	if err != nil {
		return ing.fail(ctx, upload.ID, err), format, 0
	}

	activity, records, err := Assemble(decoded, agg, u, upload.UploadedAt)
	if err != nil {
		return ing.fail(ctx, upload.ID, err), format, 0
	}

	err = ing.store.Atomic(ctx, func(w store.Writer) error {
		if err := w.CreateActivity(ctx, activity); err != nil {
			return err
		}
		if err := w.CreateRecords(ctx, activity.ID, records); err != nil {
			return err
		}
		return w.UpdateUpload(ctx, upload.ID, store.StatusParsed, nil, &activity.ID)
	})
	if err != nil {
		logging.Error().Err(err).Str("upload_id", upload.ID).Msg("persisting activity failed")
		return ing.fail(ctx, upload.ID, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)), format, 0
	}

	return Result{
		Status:     StatusParsed,
		UploadID:   upload.ID,
		ActivityID: activity.ID,
	}, format, len(records)
}

// fail moves a pending upload to failed with cause as its parse error. The
// update outlives cancellation of ctx so the upload never stays pending.
func (ing *Ingester) fail(ctx context.Context, uploadID string, cause error) Result {
	msg := cause.Error()
	ctx = context.WithoutCancel(ctx)
	err := ing.store.Atomic(ctx, func(w store.Writer) error {
		return w.UpdateUpload(ctx, uploadID, store.StatusFailed, &msg, nil)
	})
	if err != nil {
		logging.Error().Err(err).Str("upload_id", uploadID).Msg("marking upload failed")
	}
	return failed(uploadID, cause)
}
