package testutil

import (
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// RecordingListener records every event it receives.
// Err is returned for events whose type is in FailOn.
type RecordingListener struct {
	FailOn map[transfertypes.EventType]bool
	Err    error

	mu     sync.Mutex
	events []transfertypes.Event
}

// OnEvent records e.
func (l *RecordingListener) OnEvent(e transfertypes.Event) error {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()

	if l.FailOn[e.Type] {
		return l.Err
	}
	return nil
}

// Events returns a copy of the recorded events.
func (l *RecordingListener) Events() []transfertypes.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]transfertypes.Event(nil), l.events...)
}

// Count returns how many events of type t were recorded.
func (l *RecordingListener) Count(t transfertypes.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Parts returns the part numbers of recorded events of type t in delivery order.
func (l *RecordingListener) Parts(t transfertypes.EventType) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var parts []int
	for _, e := range l.events {
		if e.Type == t {
			parts = append(parts, e.Part)
		}
	}
	return parts
}

// Reset clears the recorded events.
func (l *RecordingListener) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
