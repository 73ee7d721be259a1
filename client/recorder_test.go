package client

import (
	"testing"
	"time"
)

func TestRecorderCountsWhileRunning(t *testing.T) {
	r := newRecorderWithInterval(5 * time.Millisecond)
	r.Start()

	deadline := time.Now().Add(2 * time.Second)
	for r.Elapsed() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("recorder never ticked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := r.Stop()
	if got < 3 {
		t.Fatalf("Stop = %d, want >= 3", got)
	}
}

func TestRecorderStopCancelsTick(t *testing.T) {
	r := newRecorderWithInterval(5 * time.Millisecond)
	r.Start()
	time.Sleep(30 * time.Millisecond)

	final := r.Stop()
	time.Sleep(50 * time.Millisecond)

	if r.Elapsed() != final {
		t.Fatalf("elapsed advanced after Stop: %d != %d", r.Elapsed(), final)
	}

	// Stop is idempotent.
	if again := r.Stop(); again != final {
		t.Fatalf("second Stop = %d, want %d", again, final)
	}
}

func TestRecorderStopValueIsFinal(t *testing.T) {
	// A tick selected concurrently with Stop must not land after Stop has
	// returned. Tight interval and repetition to give the race a chance.
	for i := 0; i < 25; i++ {
		r := newRecorderWithInterval(time.Millisecond)
		r.Start()
		time.Sleep(2 * time.Millisecond)
		final := r.Stop()
		time.Sleep(3 * time.Millisecond)
		if got := r.Elapsed(); got != final {
			t.Fatalf("iteration %d: Elapsed = %d after Stop returned %d", i, got, final)
		}
	}
}

func TestRecorderRestartResetsElapsed(t *testing.T) {
	r := newRecorderWithInterval(5 * time.Millisecond)
	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Stop()

	r.Start()
	defer r.Stop()
	if r.Elapsed() > 1 {
		t.Fatalf("restart should reset elapsed, got %d", r.Elapsed())
	}
}
