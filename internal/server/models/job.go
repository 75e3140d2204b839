package models

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

func (s JobStatus) IsActive() bool {
	return s == JobQueued || s == JobRunning
}

// TransferHint tells the fetcher what part of the remote media is wanted.
type TransferHint string

const (
	HintFull      TransferHint = "FULL"
	HintAudioOnly TransferHint = "AUDIO_ONLY"
)

// DownloadJob is the server-side record of one asynchronous remote fetch.
type DownloadJob struct {
	ID          string
	URL         string
	Owner       string
	Destination Destination
	Hint        TransferHint

	Status JobStatus

	QueuedAt    time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Title       string
	ContentType string
	StorageKey  string
	CatalogID   string

	Error     string
	ErrorKind string
}

func (j *DownloadJob) Clone() *DownloadJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
