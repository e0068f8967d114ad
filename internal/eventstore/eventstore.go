// Package eventstore keeps an in-memory, append-only log of SSE events so
// clients can resume a stream with Last-Event-ID after a disconnect.
//
// The log is bounded two ways: entries older than the TTL are trimmed on
// every access, and the head is trimmed FIFO once the size cap is exceeded.
// Clients whose anchor event has been trimmed get ErrUnknownEventID and must
// re-initialize.
package eventstore

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrUnknownEventID indicates that the replay anchor is not (or no longer)
// in the store.
var ErrUnknownEventID = errors.New("unknown event id")

// Event is one stored SSE event.
type Event struct {
	ID        string
	StreamID  string
	Message   json.RawMessage
	CreatedAt time.Time
}

// Store is a TTL- and size-bounded per-stream event log.
type Store struct {
	mu        sync.Mutex
	events    []Event
	counter   uint64
	maxEvents int
	ttl       time.Duration
	now       func() time.Time
}

// New creates a store holding at most maxEvents entries, each for at most ttl.
func New(maxEvents int, ttl time.Duration) *Store {
	return &Store{
		events:    make([]Event, 0, 64),
		maxEvents: maxEvents,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Store appends msg to streamID's log and returns the assigned event ID.
// Event IDs are globally monotonic base-10 strings.
func (s *Store) Store(streamID string, msg json.RawMessage) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.trimExpiredLocked(now)

	s.counter++
	id := strconv.FormatUint(s.counter, 10)
	s.events = append(s.events, Event{
		ID:        id,
		StreamID:  streamID,
		Message:   msg,
		CreatedAt: now,
	})

	if over := len(s.events) - s.maxEvents; over > 0 {
		s.events = append(s.events[:0:0], s.events[over:]...)
	}

	return id
}

// StreamIDForEvent returns the stream an event belongs to.
func (s *Store) StreamIDForEvent(eventID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trimExpiredLocked(s.now())
	for i := range s.events {
		if s.events[i].ID == eventID {
			return s.events[i].StreamID, true
		}
	}
	return "", false
}

// ReplayAfter invokes send for every event after lastEventID on the same
// stream, in order, and returns that stream's ID. The events are snapshotted
// under the lock; send runs without it so a slow SSE write cannot block
// writers.
func (s *Store) ReplayAfter(lastEventID string, send func(eventID string, msg json.RawMessage) error) (string, error) {
	s.mu.Lock()
	s.trimExpiredLocked(s.now())

	idx := -1
	for i := range s.events {
		if s.events[i].ID == lastEventID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return "", ErrUnknownEventID
	}

	streamID := s.events[idx].StreamID
	var pending []Event
	for _, ev := range s.events[idx+1:] {
		if ev.StreamID == streamID {
			pending = append(pending, ev)
		}
	}
	s.mu.Unlock()

	for _, ev := range pending {
		if err := send(ev.ID, ev.Message); err != nil {
			return streamID, err
		}
	}
	return streamID, nil
}

// Len returns the current number of stored events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trimExpiredLocked(s.now())
	return len(s.events)
}

func (s *Store) trimExpiredLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	cutoff := now.Add(-s.ttl)
	keep := 0
	for keep < len(s.events) && s.events[keep].CreatedAt.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		s.events = append(s.events[:0:0], s.events[keep:]...)
	}
}
