package models

import (
	"slices"
	"time"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionAssembling SessionStatus = "ASSEMBLING"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionFailed     SessionStatus = "FAILED"
	SessionCancelled  SessionStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition can leave s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// UploadSession is the server-side record of one resumable upload.
type UploadSession struct {
	ID          string
	Filename    string
	ContentType string

	TotalSize   int64
	ChunkSize   int64
	TotalChunks int

	// Received holds accepted chunk indices in ascending order.
	Received      []int
	ReceivedBytes int64

	// ExpectedChecksum is the digest declared by the client, if any.
	ExpectedChecksum string
	// Checksum is the digest computed during assembly.
	Checksum string

	Status    SessionStatus
	Error     string
	ErrorKind string

	StorageKey string
	CatalogID  string

	CreatedAt    time.Time
	LastActivity time.Time
	FinalizedAt  *time.Time

	Destination Destination
}

// ChunkCount is ceil(totalSize / chunkSize), at least 1.
func ChunkCount(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 1
	}
	n := totalSize / chunkSize
	if totalSize%chunkSize != 0 {
		n++
	}
	return int(n)
}

// ChunkLen is the exact byte length chunk index must have.
func (s *UploadSession) ChunkLen(index int) int64 {
	if index == s.TotalChunks-1 {
		return s.TotalSize - int64(s.TotalChunks-1)*s.ChunkSize
	}
	return s.ChunkSize
}

func (s *UploadSession) HasChunk(index int) bool {
	_, found := slices.BinarySearch(s.Received, index)
	return found
}

// MissingChunks is the complement of Received in [0, TotalChunks).
func (s *UploadSession) MissingChunks() []int {
	missing := make([]int, 0, s.TotalChunks-len(s.Received))
	j := 0
	for i := 0; i < s.TotalChunks; i++ {
		if j < len(s.Received) && s.Received[j] == i {
			j++
			continue
		}
		missing = append(missing, i)
	}
	return missing
}

func (s *UploadSession) IsComplete() bool {
	return len(s.Received) == s.TotalChunks
}

// Percent of chunk bytes received, in [0, 100].
func (s *UploadSession) Percent() float64 {
	if s.TotalSize <= 0 {
		return 0
	}
	p := float64(s.ReceivedBytes) * 100 / float64(s.TotalSize)
	if p > 100 {
		p = 100
	}
	return p
}

func (s *UploadSession) Clone() *UploadSession {
	c := *s
	c.Received = slices.Clone(s.Received)
	if s.FinalizedAt != nil {
		t := *s.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}
