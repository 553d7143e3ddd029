package store

import (
	"context"
	"database/sql"
)

// migrate runs all database migrations
func migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		// Activities (one per successfully ingested upload)
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT 'Unnamed Activity',
			sport TEXT NOT NULL DEFAULT '',
			bounds TEXT,
			start_time TEXT NOT NULL,
			total_elapsed_time REAL NOT NULL,
			total_timer_time REAL,
			moving_time REAL,
			total_distance REAL,
			max_speed REAL,
			total_calories INTEGER,
			total_ascent REAL,
			total_descent REAL,
			avg_heart_rate INTEGER,
			avg_cadence INTEGER,
			geojson TEXT,
			uploaded_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_user_start ON activities(user_id, start_time)`,

		// Records (point series, created in bulk and never updated)
		`CREATE TABLE IF NOT EXISTS records (
			activity_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			timestamp TEXT,
			position_lat REAL,
			position_long REAL,
			altitude REAL,
			heart_rate INTEGER,
			cadence INTEGER,
			speed REAL,
			distance REAL,
			temperature INTEGER,
			PRIMARY KEY (activity_id, seq),
			FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
		)`,

		// Uploaded files; the status/activity CHECK mirrors the lifecycle rule
		`CREATE TABLE IF NOT EXISTS uploaded_files (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			file_type TEXT NOT NULL CHECK (file_type IN ('fit', 'gpx')),
			processing_status TEXT NOT NULL DEFAULT 'pending'
				CHECK (processing_status IN ('pending', 'parsed', 'failed')),
			parse_error TEXT,
			activity_id TEXT UNIQUE REFERENCES activities(id),
			uploaded_at TEXT NOT NULL,
			UNIQUE (user_id, original_filename),
			CHECK ((processing_status = 'parsed') = (activity_id IS NOT NULL))
		)`,

		`CREATE INDEX IF NOT EXISTS idx_uploaded_files_user ON uploaded_files(user_id)`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
