package client

import (
	"errors"
	"fmt"
	"strings"
)

// ErrArtifactNotFound is returned by TriggerTraining when the server has no
// compiled artifact for the session yet.
var ErrArtifactNotFound = errors.New("no compiled artifact exists for this session")

// InvalidDurationError rejects a segment whose measured duration is not a
// finite non-negative number of seconds.
type InvalidDurationError struct {
	Value float64
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid segment duration: %v", e.Value)
}

// NotReadyError is returned when submission is attempted before the aggregate
// duration threshold is reached. Recoverable: the user adds more audio.
type NotReadyError struct {
	Total   int
	Minimum int
}

// Remaining reports how many more seconds of audio are needed.
func (e *NotReadyError) Remaining() int {
	return e.Minimum - e.Total
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("total audio length is %s, need %s; remaining time needed: %s",
		FormatDuration(e.Total), FormatDuration(e.Minimum), FormatDuration(e.Remaining()))
}

// AlreadyCompilingError is returned when a submission is attempted while one
// is already outstanding, or after the session has been compiled.
type AlreadyCompilingError struct {
	SessionID string
}

func (e *AlreadyCompilingError) Error() string {
	return fmt.Sprintf("session %s already has a compilation in flight or completed", e.SessionID)
}

// MissingPayloadError blocks submission when segments count toward the
// displayed duration but never materialized into bytes.
type MissingPayloadError struct {
	Filenames []string
}

func (e *MissingPayloadError) Error() string {
	return fmt.Sprintf("segments have no audio data: %s", strings.Join(e.Filenames, ", "))
}

// FormatDuration renders whole seconds as m:ss for user-facing messages.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
