// Package memory stores raw pages in-memory for tests and development.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// PageSink keeps page artifacts in a map keyed by stream and sequence.
type PageSink struct {
	mu    sync.RWMutex
	pages map[string][]byte
}

// New creates an in-memory page sink.
func New() *PageSink {
	return &PageSink{pages: make(map[string][]byte)}
}

// WritePage stores the artifact and returns a memory:// URI.
func (s *PageSink) WritePage(_ context.Context, stream string, seq int, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%05d", stream, seq)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = append([]byte(nil), data...)
	return "memory://" + key, nil
}

// Page returns a stored artifact, if present.
func (s *PageSink) Page(stream string, seq int) ([]byte, bool) {
	key := fmt.Sprintf("%s/%05d", stream, seq)
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.pages[key]
	return data, ok
}

// Count returns the number of stored artifacts.
func (s *PageSink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}
