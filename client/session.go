package client

import (
	"sync"

	"github.com/google/uuid"
)

type sessionState int

const (
	stateGathering sessionState = iota
	stateCompiling
	stateCompiled
)

// Session groups all segments from one user interaction under a stable
// identifier. It terminates in at most one compiled artifact; there is no
// append-after-compile path.
type Session struct {
	ID    string
	Store *SegmentStore

	mu          sync.Mutex
	state       sessionState
	artifactRef string
}

func NewSession() *Session {
	return &Session{
		ID:    uuid.New().String(),
		Store: NewStore(),
	}
}

// ArtifactRef returns the compiled artifact reference, empty until
// compilation succeeds.
func (s *Session) ArtifactRef() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifactRef
}

// Compiled reports whether the session reached its terminal state.
func (s *Session) Compiled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateCompiled
}

// beginSubmit marks the session compiling. At most one submission may be
// outstanding, and a compiled session never submits again.
func (s *Session) beginSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateGathering {
		return &AlreadyCompilingError{SessionID: s.ID}
	}
	s.state = stateCompiling
	return nil
}

// completeSubmit records the artifact reference and makes the state terminal.
func (s *Session) completeSubmit(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateCompiled
	s.artifactRef = ref
}

// failSubmit returns the session to submittable after a transport or server
// failure.
func (s *Session) failSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateCompiling {
		s.state = stateGathering
	}
}
