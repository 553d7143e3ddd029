package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/lucasjlepore/trackingest/track"
)

const uploadColumns = `id, user_id, original_filename, file_type, processing_status, parse_error, activity_id, uploaded_at`

const activityColumns = `id, user_id, name, sport, bounds, start_time, total_elapsed_time,
	total_timer_time, moving_time, total_distance, max_speed, total_calories,
	total_ascent, total_descent, avg_heart_rate, avg_cadence, geojson, uploaded_at`

type scanner interface {
	Scan(dest ...any) error
}

// GetUpload retrieves an upload by ID.
func (s *Store) GetUpload(ctx context.Context, id string) (*UploadedFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploaded_files WHERE id = ?`, id)
	return scanUpload(row)
}

// FindUpload retrieves the upload a user made under filename.
func (s *Store) FindUpload(ctx context.Context, userID, filename string) (*UploadedFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM uploaded_files WHERE user_id = ? AND original_filename = ?`,
		userID, filename)
	return scanUpload(row)
}

// ListUploads returns every upload of a user, newest first.
func (s *Store) ListUploads(ctx context.Context, userID string) ([]UploadedFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM uploaded_files WHERE user_id = ? ORDER BY uploaded_at DESC, original_filename`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []UploadedFile
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *u)
	}
	return uploads, rows.Err()
}

// GetActivity retrieves an activity by ID.
func (s *Store) GetActivity(ctx context.Context, id string) (*Activity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	return scanActivity(row)
}

// ListActivities returns a user's activities, most recent start first.
func (s *Store) ListActivities(ctx context.Context, userID string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE user_id = ? ORDER BY start_time DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// GetRecords retrieves all records for an activity in emission order.
func (s *Store) GetRecords(ctx context.Context, activityID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT activity_id, seq, timestamp, position_lat, position_long, altitude,
			heart_rate, cadence, speed, distance, temperature
		FROM records
		WHERE activity_id = ?
		ORDER BY seq
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                              Record
			ts                             sql.NullString
			lat, lon, alt, speed, distance sql.NullFloat64
			hr, cad, temp                  sql.NullInt64
		)
		err := rows.Scan(&r.ActivityID, &r.Seq, &ts, &lat, &lon, &alt, &hr, &cad, &speed, &distance, &temp)
		if err != nil {
			return nil, err
		}
		if ts.Valid {
			t, err := parseTime(ts.String)
			if err != nil {
				return nil, fmt.Errorf("record %d timestamp: %w", r.Seq, err)
			}
			r.Timestamp = &t
		}
		r.Latitude = nullFloat64ToPtr(lat)
		r.Longitude = nullFloat64ToPtr(lon)
		r.Altitude = nullFloat64ToPtr(alt)
		r.HeartRate = nullInt64ToIntPtr(hr)
		r.Cadence = nullInt64ToIntPtr(cad)
		r.Speed = nullFloat64ToPtr(speed)
		r.Distance = nullFloat64ToPtr(distance)
		r.Temperature = nullInt64ToIntPtr(temp)
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListUploadBounds maps each parsed upload's original filename to its
// activity bounds. Uploads without geometry map to nil.
func (s *Store) ListUploadBounds(ctx context.Context, userID string) (map[string][][2]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.original_filename, a.bounds
		FROM uploaded_files u
		JOIN activities a ON a.id = u.activity_id
		WHERE u.user_id = ? AND u.processing_status = 'parsed'
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][][2]float64)
	for rows.Next() {
		var (
			filename string
			raw      sql.NullString
		)
		if err := rows.Scan(&filename, &raw); err != nil {
			return nil, err
		}
		bounds, err := decodeBounds(raw)
		if err != nil {
			return nil, fmt.Errorf("bounds for %s: %w", filename, err)
		}
		out[filename] = bounds
	}
	return out, rows.Err()
}

// ActivityGeoJSON returns the geometry of the activity a user uploaded as filename.
func (s *Store) ActivityGeoJSON(ctx context.Context, userID, filename string) (track.FeatureCollection, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT a.geojson
		FROM uploaded_files u
		JOIN activities a ON a.id = u.activity_id
		WHERE u.user_id = ? AND u.original_filename = ?
	`, userID, filename).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return track.FeatureCollection{}, ErrNotFound
	}
	if err != nil {
		return track.FeatureCollection{}, err
	}
	if !raw.Valid {
		return track.NewFeatureCollection(), nil
	}
	return track.UnmarshalFeatureCollection([]byte(raw.String))
}

// CountActivities returns the number of activity rows.
func (s *Store) CountActivities(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM activities`)
}

// CountRecords returns the number of record rows.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM records`)
}

func (s *Store) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanUpload(row scanner) (*UploadedFile, error) {
	var (
		u                    UploadedFile
		fileType, status     string
		parseError, activity sql.NullString
		uploadedAt           string
	)
	err := row.Scan(&u.ID, &u.UserID, &u.OriginalFilename, &fileType, &status, &parseError, &activity, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.FileType = FileType(fileType)
	u.Status = Status(status)
	u.ParseError = nullStringToPtr(parseError)
	u.ActivityID = nullStringToPtr(activity)
	if u.UploadedAt, err = parseTime(uploadedAt); err != nil {
		return nil, fmt.Errorf("upload %s uploaded_at: %w", u.ID, err)
	}
	return &u, nil
}

func scanActivity(row scanner) (*Activity, error) {
	var (
		a                                 Activity
		bounds, geojson                   sql.NullString
		startTime, uploadedAt             string
		timer, moving, distance, maxSpeed sql.NullFloat64
		ascent, descent                   sql.NullFloat64
		calories, avgHR, avgCadence       sql.NullInt64
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Sport, &bounds, &startTime, &a.TotalElapsedTime,
		&timer, &moving, &distance, &maxSpeed, &calories,
		&ascent, &descent, &avgHR, &avgCadence, &geojson, &uploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if a.Bounds, err = decodeBounds(bounds); err != nil {
		return nil, fmt.Errorf("activity %s bounds: %w", a.ID, err)
	}
	if a.StartTime, err = parseTime(startTime); err != nil {
		return nil, fmt.Errorf("activity %s start_time: %w", a.ID, err)
	}
	if a.UploadedAt, err = parseTime(uploadedAt); err != nil {
		return nil, fmt.Errorf("activity %s uploaded_at: %w", a.ID, err)
	}
	a.TotalTimerTime = nullFloat64ToPtr(timer)
	a.MovingTime = nullFloat64ToPtr(moving)
	a.TotalDistance = nullFloat64ToPtr(distance)
	a.MaxSpeed = nullFloat64ToPtr(maxSpeed)
	a.TotalCalories = nullInt64ToIntPtr(calories)
	a.TotalAscent = nullFloat64ToPtr(ascent)
	a.TotalDescent = nullFloat64ToPtr(descent)
	a.AvgHeartRate = nullInt64ToIntPtr(avgHR)
	a.AvgCadence = nullInt64ToIntPtr(avgCadence)
	if geojson.Valid {
		a.GeoJSON = []byte(geojson.String)
	}
	return &a, nil
}

func decodeBounds(raw sql.NullString) ([][2]float64, error) {
	if !raw.Valid {
		return nil, nil
	}
	var bounds [][2]float64
	if err := json.Unmarshal([]byte(raw.String), &bounds); err != nil {
		return nil, err
	}
	return bounds, nil
}
