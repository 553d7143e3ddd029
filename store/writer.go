package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Writer is the set of operations available inside one unit of work.
type Writer interface {
	UploadExists(ctx context.Context, userID, filename string) (bool, error)
	CreateUpload(ctx context.Context, u *UploadedFile) error
	CreateActivity(ctx context.Context, a *Activity) error
	CreateRecords(ctx context.Context, activityID string, records []Record) error
	UpdateUpload(ctx context.Context, id string, status Status, parseError *string, activityID *string) error
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db        dbtx
	batchSize int
}

var _ Writer = queries{}

const recordColumns = 11

// UploadExists reports whether the user already has an upload with this filename.
func (q queries) UploadExists(ctx context.Context, userID, filename string) (bool, error) {
	var exists int
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM uploaded_files WHERE user_id = ? AND original_filename = ?)`,
		userID, filename,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking upload: %w", err)
	}
	return exists == 1, nil
}

// CreateUpload inserts an upload row. A uniqueness violation on
// (user, original_filename) is reported as ErrDuplicateUpload.
func (q queries) CreateUpload(ctx context.Context, u *UploadedFile) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO uploaded_files (
			id, user_id, original_filename, file_type, processing_status,
			parse_error, activity_id, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID, u.UserID, u.OriginalFilename, string(u.FileType), string(u.Status),
		ptrToNullString(u.ParseError), ptrToNullString(u.ActivityID), formatTime(u.UploadedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateUpload
	}
	if err != nil {
		return fmt.Errorf("inserting upload: %w", err)
	}
	return nil
}

// CreateActivity inserts an activity row.
func (q queries) CreateActivity(ctx context.Context, a *Activity) error {
	var bounds sql.NullString
	if a.Bounds != nil {
		data, err := json.Marshal(a.Bounds)
		if err != nil {
			return fmt.Errorf("encoding bounds: %w", err)
		}
		bounds = sql.NullString{String: string(data), Valid: true}
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO activities (
			id, user_id, name, sport, bounds, start_time, total_elapsed_time,
			total_timer_time, moving_time, total_distance, max_speed, total_calories,
			total_ascent, total_descent, avg_heart_rate, avg_cadence, geojson, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.UserID, a.Name, a.Sport, bounds, formatTime(a.StartTime), a.TotalElapsedTime,
		ptrToNullFloat64(a.TotalTimerTime), ptrToNullFloat64(a.MovingTime), ptrToNullFloat64(a.TotalDistance),
		ptrToNullFloat64(a.MaxSpeed), ptrIntToNullInt64(a.TotalCalories),
		ptrToNullFloat64(a.TotalAscent), ptrToNullFloat64(a.TotalDescent),
		ptrIntToNullInt64(a.AvgHeartRate), ptrIntToNullInt64(a.AvgCadence),
		bytesToNullString(a.GeoJSON), formatTime(a.UploadedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

// CreateRecords bulk-inserts records in multi-row batches.
func (q queries) CreateRecords(ctx context.Context, activityID string, records []Record) error {
	for start := 0; start < len(records); start += q.batchSize {
		end := min(start+q.batchSize, len(records))
		batch := records[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO records (
			activity_id, seq, timestamp, position_lat, position_long, altitude,
			heart_rate, cadence, speed, distance, temperature
		) VALUES `)
		args := make([]any, 0, len(batch)*recordColumns)
		for i, r := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				activityID, r.Seq, ptrTimeToNullString(r.Timestamp), ptrToNullFloat64(r.Latitude),
				ptrToNullFloat64(r.Longitude), ptrToNullFloat64(r.Altitude), ptrIntToNullInt64(r.HeartRate),
				ptrIntToNullInt64(r.Cadence), ptrToNullFloat64(r.Speed), ptrToNullFloat64(r.Distance),
				ptrIntToNullInt64(r.Temperature),
			)
		}
		if _, err := q.db.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("inserting records %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// UpdateUpload moves an upload to a new status.
func (q queries) UpdateUpload(ctx context.Context, id string, status Status, parseError *string, activityID *string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE uploaded_files
		SET processing_status = ?, parse_error = ?, activity_id = ?
		WHERE id = ?
	`, string(status), ptrToNullString(parseError), ptrToNullString(activityID), id)
	if err != nil {
		return fmt.Errorf("updating upload: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("updating upload %s: %w", id, ErrNotFound)
	}
	return nil
}

// timeLayout is fixed width so stored values sort chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func ptrTimeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func ptrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func bytesToNullString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func ptrToNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func ptrIntToNullInt64(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullFloat64ToPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullInt64ToIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullStringToPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
