package client

import (
	"sync"
	"time"
)

// Recorder measures the elapsed time of one in-progress recording on a
// periodic tick. The ticker is owned by the recorder and cancelled on every
// exit path; Stop is idempotent.
type Recorder struct {
	interval time.Duration

	mu      sync.Mutex
	elapsed int
	running bool
	stop    chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{interval: time.Second}
}

func newRecorderWithInterval(d time.Duration) *Recorder {
	return &Recorder{interval: d}
}

// Start begins counting from zero. Starting an already-running recorder is a
// no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.elapsed = 0
	r.running = true
	r.stop = make(chan struct{})

	go func(stop chan struct{}) {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.mu.Lock()
				// Drop ticks that raced Stop or belong to a previous run.
				if r.running && r.stop == stop {
					r.elapsed++
				}
				r.mu.Unlock()
			case <-stop:
				return
			}
		}
	}(r.stop)
}

// Elapsed returns the seconds counted so far.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Stop cancels the tick and returns the final elapsed seconds. Safe to call
// more than once.
func (r *Recorder) Stop() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		close(r.stop)
		r.running = false
	}
	return r.elapsed
}
