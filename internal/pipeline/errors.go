package pipeline

import "fmt"

// ConversionError reports that one input file could not be normalized. The
// whole session's compilation is aborted so the user can remove or replace
// the file and resubmit.
type ConversionError struct {
	Filename string
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert %s: %v", e.Filename, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// CompilationError reports that concatenation failed after all inputs were
// normalized. No partial artifact is published.
type CompilationError struct {
	Err error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile session audio: %v", e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// AlreadyCompilingError rejects a second compile request for a session while
// one is outstanding.
type AlreadyCompilingError struct {
	SessionID string
}

func (e *AlreadyCompilingError) Error() string {
	return fmt.Sprintf("a compilation for session %s is already in progress", e.SessionID)
}
