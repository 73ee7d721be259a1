package types

import "time"

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Segment source constants
const (
	SourceRecorded = "recorded"
	SourceUploaded = "uploaded"
)

// CompiledArtifact describes the concatenation result for one session.
type CompiledArtifact struct {
	SessionID string    `json:"session_id"`
	Key       string    `json:"key"`
	ByteSize  int64     `json:"byte_size"`
	Manifest  []string  `json:"manifest"`
	RemoteURL string    `json:"remote_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JobUpdate is one status transition of a compile job, pushed to
// websocket subscribers.
type JobUpdate struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Artifact  string `json:"compiled_file,omitempty"`
}
