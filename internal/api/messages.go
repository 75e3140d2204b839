// Package api holds the wire contract of the gophmedia transfer service: the
// request and reply messages, the hand-registered gRPC service descriptor and
// a typed client.
package api

import (
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

type Destination struct {
	Category    string `json:"category,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type OpenSessionRequest struct {
	Filename         string      `json:"filename"`
	ContentType      string      `json:"content_type,omitempty"`
	TotalSize        int64       `json:"total_size"`
	ChunkSize        int64       `json:"chunk_size"`
	ExpectedChecksum string      `json:"expected_checksum,omitempty"`
	Destination      Destination `json:"destination"`
}

type Session struct {
	ID               string      `json:"id"`
	Filename         string      `json:"filename"`
	ContentType      string      `json:"content_type,omitempty"`
	TotalSize        int64       `json:"total_size"`
	ChunkSize        int64       `json:"chunk_size"`
	TotalChunks      int         `json:"total_chunks"`
	Received         []int       `json:"received"`
	ReceivedBytes    int64       `json:"received_bytes"`
	Percent          float64     `json:"percent"`
	ExpectedChecksum string      `json:"expected_checksum,omitempty"`
	Checksum         string      `json:"checksum,omitempty"`
	Status           string      `json:"status"`
	Error            string      `json:"error,omitempty"`
	ErrorKind        string      `json:"error_kind,omitempty"`
	StorageKey       string      `json:"storage_key,omitempty"`
	CatalogID        string      `json:"catalog_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	LastActivity     time.Time   `json:"last_activity"`
	FinalizedAt      *time.Time  `json:"finalized_at,omitempty"`
	Destination      Destination `json:"destination"`
}

// SubmitChunkRequest carries one chunk. Checksum is optional and uses the
// "algo:hex" form.
type SubmitChunkRequest struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Data      []byte `json:"data"`
	Checksum  string `json:"checksum,omitempty"`
}

type ChunkReceipt struct {
	Index         int     `json:"index"`
	Duplicate     bool    `json:"duplicate,omitempty"`
	Received      int     `json:"received"`
	TotalChunks   int     `json:"total_chunks"`
	ReceivedBytes int64   `json:"received_bytes"`
	Percent       float64 `json:"percent"`
	Complete      bool    `json:"complete,omitempty"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type MissingChunksReply struct {
	SessionID string `json:"session_id"`
	Missing   []int  `json:"missing"`
}

type FinalizeReply struct {
	CatalogID string `json:"catalog_id"`
}

type CancelReply struct {
	Cancelled bool `json:"cancelled"`
}

type EnqueueDownloadRequest struct {
	URL         string      `json:"url"`
	Owner       string      `json:"owner,omitempty"`
	Hint        string      `json:"hint,omitempty"`
	Destination Destination `json:"destination"`
}

type EnqueueDownloadReply struct {
	JobID string `json:"job_id"`
}

type JobRequest struct {
	JobID string `json:"job_id"`
}

type Job struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Owner       string      `json:"owner,omitempty"`
	Hint        string      `json:"hint,omitempty"`
	Status      string      `json:"status"`
	QueuedAt    time.Time   `json:"queued_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Title       string      `json:"title,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	StorageKey  string      `json:"storage_key,omitempty"`
	CatalogID   string      `json:"catalog_id,omitempty"`
	Error       string      `json:"error,omitempty"`
	ErrorKind   string      `json:"error_kind,omitempty"`
	Destination Destination `json:"destination"`
}

type ActiveJobsRequest struct {
	Owner string `json:"owner,omitempty"`
}

type ActiveJobsReply struct {
	Jobs []Job `json:"jobs"`
}

type ProgressRequest struct {
	TransferID string `json:"transfer_id"`
}

type Progress struct {
	TransferID     string    `json:"transfer_id"`
	Percent        float64   `json:"percent"`
	Status         string    `json:"status"`
	Message        string    `json:"message,omitempty"`
	BytesDone      int64     `json:"bytes_done,omitempty"`
	BytesTotal     int64     `json:"bytes_total,omitempty"`
	BytesPerSecond float64   `json:"bytes_per_second,omitempty"`
	ETASeconds     float64   `json:"eta_seconds,omitempty"`
	Terminal       bool      `json:"terminal,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ETA converts ETASeconds back to a duration.
func (p Progress) ETA() time.Duration {
	return time.Duration(p.ETASeconds * float64(time.Second))
}

func (d Destination) Model() models.Destination {
	return models.Destination{
		Category:    models.Category(d.Category),
		Visibility:  d.Visibility,
		Owner:       d.Owner,
		Title:       d.Title,
		Description: d.Description,
	}
}

func DestinationFromModel(d models.Destination) Destination {
	return Destination{
		Category:    string(d.Category),
		Visibility:  d.Visibility,
		Owner:       d.Owner,
		Title:       d.Title,
		Description: d.Description,
	}
}

func SessionFromModel(s *models.UploadSession) *Session {
	received := s.Received
	if received == nil {
		received = []int{}
	}
	return &Session{
		ID:               s.ID,
		Filename:         s.Filename,
		ContentType:      s.ContentType,
		TotalSize:        s.TotalSize,
		ChunkSize:        s.ChunkSize,
		TotalChunks:      s.TotalChunks,
		Received:         received,
		ReceivedBytes:    s.ReceivedBytes,
		Percent:          s.Percent(),
		ExpectedChecksum: s.ExpectedChecksum,
		Checksum:         s.Checksum,
		Status:           string(s.Status),
		Error:            s.Error,
		ErrorKind:        s.ErrorKind,
		StorageKey:       s.StorageKey,
		CatalogID:        s.CatalogID,
		CreatedAt:        s.CreatedAt,
		LastActivity:     s.LastActivity,
		FinalizedAt:      s.FinalizedAt,
		Destination:      DestinationFromModel(s.Destination),
	}
}

func JobFromModel(j *models.DownloadJob) Job {
	return Job{
		ID:          j.ID,
		URL:         j.URL,
		Owner:       j.Owner,
		Hint:        string(j.Hint),
		Status:      string(j.Status),
		QueuedAt:    j.QueuedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Title:       j.Title,
		ContentType: j.ContentType,
		StorageKey:  j.StorageKey,
		CatalogID:   j.CatalogID,
		Error:       j.Error,
		ErrorKind:   j.ErrorKind,
		Destination: DestinationFromModel(j.Destination),
	}
}

func ProgressFromModel(p models.TransferProgress) *Progress {
	return &Progress{
		TransferID:     p.TransferID,
		Percent:        p.Percent,
		Status:         p.Status,
		Message:        p.Message,
		BytesDone:      p.BytesDone,
		BytesTotal:     p.BytesTotal,
		BytesPerSecond: p.BytesPerSecond,
		ETASeconds:     p.ETA.Seconds(),
		Terminal:       p.Terminal,
		UpdatedAt:      p.UpdatedAt,
	}
}
