package store

import "time"

// FileType is the detected upload format.
type FileType string

const (
	FileTypeFIT FileType = "fit"
	FileTypeGPX FileType = "gpx"
)

// Status is the processing state of an uploaded file.
type Status string

const (
	StatusPending Status = "pending"
	StatusParsed  Status = "parsed"
	StatusFailed  Status = "failed"
)

// UploadedFile tracks one user upload through ingestion.
// A parsed upload always has ActivityID set; pending and failed never do.
type UploadedFile struct {
	ID               string
	UserID           string
	OriginalFilename string
	FileType         FileType
	Status           Status
	ParseError       *string
	ActivityID       *string
	UploadedAt       time.Time
}

// Activity is the persisted summary of one decoded track.
type Activity struct {
	ID               string
	UserID           string
	Name             string
	Sport            string
	Bounds           [][2]float64 // [[min_lat, min_lon], [max_lat, max_lon]] or nil
	StartTime        time.Time
	TotalElapsedTime float64
	TotalTimerTime   *float64
	MovingTime       *float64
	TotalDistance    *float64
	MaxSpeed         *float64
	TotalCalories    *int
	TotalAscent      *float64
	TotalDescent     *float64
	AvgHeartRate     *int
	AvgCadence       *int
	GeoJSON          []byte
	UploadedAt       time.Time
}

// Record is one point of an activity. Seq preserves decoder emission order.
type Record struct {
	ActivityID  string
	Seq         int
	Timestamp   *time.Time
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	HeartRate   *int
	Cadence     *int
	Speed       *float64
	Distance    *float64
	Temperature *int
}
