// Package client is the recording-side SDK: it accumulates audio segments for
// one session, gates submission on a minimum aggregate duration, and submits
// the session to the compilation service.
package client

import (
	"math"
	"sync"

	"github.com/google/uuid"
)

// Kind distinguishes how a segment entered the session.
type Kind string

const (
	KindRecorded Kind = "recorded"
	KindUploaded Kind = "uploaded"
)

// Segment is one audio clip contributed to a session.
type Segment struct {
	ID       string
	Duration int // whole seconds
	Tag      string
	Kind     Kind
	Seq      int // 1-based, assigned at insertion, stable afterwards
	Filename string
	Payload  []byte // nil until the clip's bytes are realized
}

// SegmentStore is the ordered collection of segments for one session.
// File decodes complete concurrently and append on completion, so the store
// is safe for concurrent use; Seq reflects completion order.
type SegmentStore struct {
	mu       sync.Mutex
	segments []*Segment
	nextSeq  int
	total    int
}

func NewStore() *SegmentStore {
	return &SegmentStore{nextSeq: 1}
}

// DurationFromSeconds converts a measured duration to whole seconds,
// rejecting NaN, infinities and negative values.
func DurationFromSeconds(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, &InvalidDurationError{Value: v}
	}
	return int(math.Floor(v)), nil
}

// CoerceDuration maps non-finite or negative measurements to 0 for callers
// that display a duration and must not block the user on a bad decode.
func CoerceDuration(v float64) int {
	d, err := DurationFromSeconds(v)
	if err != nil {
		return 0
	}
	return d
}

// Add appends a segment with the next sequence number. The payload may be
// nil when the clip's bytes are not realized yet (see AttachPayload).
func (s *SegmentStore) Add(duration int, kind Kind, filename string, payload []byte) (Segment, error) {
	if duration < 0 {
		return Segment{}, &InvalidDurationError{Value: float64(duration)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seg := &Segment{
		ID:       uuid.New().String(),
		Duration: duration,
		Kind:     kind,
		Seq:      s.nextSeq,
		Filename: filename,
		Payload:  payload,
	}
	s.nextSeq++
	s.segments = append(s.segments, seg)
	s.recompute()
	return *seg, nil
}

// UpdateTag replaces the tag of the segment with the given ID. Unknown IDs
// are a no-op: the segment may have been discarded concurrently.
func (s *SegmentStore) UpdateTag(id, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range s.segments {
		if seg.ID == id {
			seg.Tag = tag
			return
		}
	}
}

// AttachPayload realizes a segment's bytes after capture finishes.
// Returns false if the segment was discarded in the meantime.
func (s *SegmentStore) AttachPayload(id string, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range s.segments {
		if seg.ID == id {
			seg.Payload = payload
			return true
		}
	}
	return false
}

// Remove discards the segment with the given ID. Unknown IDs are a no-op.
// Sequence numbers of surviving segments never change.
func (s *SegmentStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, seg := range s.segments {
		if seg.ID == id {
			s.segments = append(s.segments[:i], s.segments[i+1:]...)
			s.recompute()
			return
		}
	}
}

// recompute re-derives the aggregate from the members. Called under s.mu
// after every mutation so the store never holds a stale total.
func (s *SegmentStore) recompute() {
	total := 0
	for _, seg := range s.segments {
		total += seg.Duration
	}
	s.total = total
}

// AggregateDuration returns the sum of all member durations in seconds.
func (s *SegmentStore) AggregateDuration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Ready reports whether the aggregate duration has reached the minimum.
// Exactly equal is ready.
func (s *SegmentStore) Ready(minimumSeconds int) bool {
	return s.AggregateDuration() >= minimumSeconds
}

// Remaining returns the seconds still needed to reach the minimum, never
// negative.
func (s *SegmentStore) Remaining(minimumSeconds int) int {
	if r := minimumSeconds - s.AggregateDuration(); r > 0 {
		return r
	}
	return 0
}

// Segments returns a snapshot of the members in sequence order.
func (s *SegmentStore) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Segment, len(s.segments))
	for i, seg := range s.segments {
		out[i] = *seg
	}
	return out
}

// Len returns the number of segments in the store.
func (s *SegmentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}
