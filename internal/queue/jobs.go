package queue

import (
	"context"
	"time"

	"github.com/voicemimic/voice-compiler/internal/pipeline"
	"github.com/voicemimic/voice-compiler/internal/types"
)

// Job is one compile request for a session. The handler that enqueued it
// waits on Done so the HTTP response can carry the artifact reference.
type Job struct {
	SessionID string
	Files     []pipeline.SourceFile
	Status    string
	Artifact  *types.CompiledArtifact
	Err       error
	CreatedAt time.Time

	// ctx is the submitting request's context: when the client disconnects,
	// in-flight conversion work for this job is cancelled.
	ctx  context.Context
	done chan struct{}
}

// NewJob creates a compile job bound to the submitting request's context.
func NewJob(ctx context.Context, sessionID string, files []pipeline.SourceFile) *Job {
	return &Job{
		SessionID: sessionID,
		Files:     files,
		Status:    types.StatusQueued,
		CreatedAt: time.Now(),
		ctx:       ctx,
		done:      make(chan struct{}),
	}
}

// Done is closed when the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
