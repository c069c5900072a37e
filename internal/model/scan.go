package model

import "time"

// ScanState is the busy/idle state of a scan session.
type ScanState int

// Scan states.
const (
	ScanStateIdle ScanState = iota
	ScanStateScanning
)

func (s ScanState) String() string {
	switch s {
	case ScanStateIdle:
		return "idle"
	case ScanStateScanning:
		return "scanning"
	default:
		return "unknown"
	}
}

// ScanStatus is how a recorded scan ended.
type ScanStatus string

// Scan status constants.
const (
	ScanStatusCompleted   ScanStatus = "COMPLETED"
	ScanStatusInterrupted ScanStatus = "INTERRUPTED"
)

// ScanRecord is a finished scan as persisted in the history store.
type ScanRecord struct {
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	ID         string                 `json:"id"`
	Directory  string                 `json:"directory"`
	Status     ScanStatus             `json:"status"`
	Results    []ClassificationResult `json:"results"`
	Failures   []ItemFailure          `json:"failures,omitempty"`
	Discovered int                    `json:"discovered"`
	Eligible   int                    `json:"eligible"`
	Skipped    int                    `json:"skipped"`
	Classified int                    `json:"classified"`
	Failed     int                    `json:"failed"`
}

// Duration returns how long the scan ran.
func (r ScanRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Deletion records a file removed through a session.
type Deletion struct {
	DeletedAt  time.Time `json:"deleted_at"`
	ScanID     string    `json:"scan_id"`
	Filename   string    `json:"filename"`
	Confidence float64   `json:"confidence"`
}
