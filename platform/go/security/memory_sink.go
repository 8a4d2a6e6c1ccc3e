package security

import (
	"context"
	"sync"
	"time"
)

// MemorySink keeps events in process. Used by tests and the dev server.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record implements Sink.
func (s *MemorySink) Record(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cloneEvent(event))
	return nil
}

// CountSince implements Sink.
func (s *MemorySink) CountSince(ctx context.Context, userID string, eventType EventType, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.events {
		if e.Type != eventType || e.UserID == nil || *e.UserID != userID {
			continue
		}
		if e.CreatedAt.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

// Events returns a copy of all recorded events in insertion order.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, len(s.events))
	for i, e := range s.events {
		out[i] = cloneEvent(e)
	}
	return out
}

// Recent returns the newest events matching filter.
func (s *MemorySink) Recent(ctx context.Context, filter EventFilter) ([]Event, error) {
	all := s.Events()
	limit := filter.PageSize()

	var out []Event
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if filter.Matches(all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// OfType returns the recorded events of the given type.
func (s *MemorySink) OfType(eventType EventType) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func cloneEvent(e Event) Event {
	if e.Metadata != nil {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}
