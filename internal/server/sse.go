package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
)

// SSEStream manages one Server-Sent Events response
type SSEStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelFunc

	// lastID is the highest numeric event id written; store ids are
	// globally monotonic, so a lower or equal id is a duplicate.
	lastID uint64
}

// NewSSEStream prepares w for SSE output and writes the stream headers
func NewSSEStream(ctx context.Context, w http.ResponseWriter) (*SSEStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	streamCtx, cancel := context.WithCancel(ctx)

	return &SSEStream{
		w:       w,
		flusher: flusher,
		ctx:     streamCtx,
		cancel:  cancel,
	}, nil
}

// WriteEvent writes one SSE event with the given id and JSON payload
func (s *SSEStream) WriteEvent(eventID string, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeEventLocked(eventID, data)
}

// beginReplay locks out live writes while a resumed stream re-sends
// stored events; the returned send writes under that lock. The caller
// must invoke release exactly once before blocking on the stream.
func (s *SSEStream) beginReplay() (send func(eventID string, data json.RawMessage) error, release func()) {
	s.mu.Lock()
	return s.writeEventLocked, s.mu.Unlock
}

func (s *SSEStream) writeEventLocked(eventID string, data json.RawMessage) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	// A notification stored while the replay snapshot was being taken
	// arrives twice, once replayed and once live; send it only once.
	if id, err := strconv.ParseUint(eventID, 10, 64); err == nil {
		if id <= s.lastID {
			return nil
		}
		s.lastID = id
	}

	if _, err := fmt.Fprintf(s.w, "event: message\nid: %s\ndata: %s\n\n", eventID, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close closes the stream
func (s *SSEStream) Close() {
	s.cancel()
}

// Done returns a channel that's closed when the stream is closed
func (s *SSEStream) Done() <-chan struct{} {
	return s.ctx.Done()
}
