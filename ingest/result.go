package ingest

import "fmt"

// Status is the terminal outcome of one upload.
type Status string

const (
	StatusParsed   Status = "parsed"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Result is the per-file outcome. Reason is set for rejected and failed
// uploads; ActivityID only for parsed ones.
type Result struct {
	Status     Status
	UploadID   string
	ActivityID string
	Reason     string
	Err        error
}

func (r Result) String() string {
	switch r.Status {
	case StatusParsed:
		return fmt.Sprintf("parsed (activity %s)", r.ActivityID)
	case StatusRejected, StatusFailed:
		if kind := Kind(r.Err); kind != "" {
			return fmt.Sprintf("%s [%s]: %s", r.Status, kind, r.Reason)
		}
		return fmt.Sprintf("%s: %s", r.Status, r.Reason)
	default:
		return string(r.Status)
	}
}

func rejected(err error) Result {
	return Result{Status: StatusRejected, Reason: err.Error(), Err: err}
}

func failed(uploadID string, err error) Result {
	return Result{Status: StatusFailed, UploadID: uploadID, Reason: err.Error(), Err: err}
}
