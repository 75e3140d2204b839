package models

import "time"

// TransferProgress is the live view of an upload session or download job.
type TransferProgress struct {
	TransferID string
	Percent    float64
	Status     string
	Message    string

	BytesDone      int64
	BytesTotal     int64
	BytesPerSecond float64
	ETA            time.Duration

	Terminal  bool
	UpdatedAt time.Time
}
