package audit

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

const defaultBuffer = 256

// AsyncSink decouples the request path from audit I/O: Record enqueues
// onto a buffered channel and a single worker fans events out to every
// backend. When the buffer is full or a backend write fails the event is
// counted as dropped and a warning goes to stderr once; the request that
// produced it is never delayed or failed.
type AsyncSink struct {
	backends []Backend
	ch       chan Event
	done     chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped  atomic.Uint64
	warnOnce sync.Once
}

// NewAsync starts the fan-out worker. A buffer of 0 uses the default.
func NewAsync(buffer int, backends ...Backend) *AsyncSink {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &AsyncSink{
		backends: backends,
		ch:       make(chan Event, buffer),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) Record(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop()
		return
	}
	select {
	case s.ch <- event:
	default:
		s.drop()
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for event := range s.ch {
		for _, b := range s.backends {
			if err := b.Write(event); err != nil {
				s.drop()
			}
		}
	}
}

func (s *AsyncSink) drop() {
	s.dropped.Add(1)
	s.warnOnce.Do(func() {
		fmt.Fprintln(os.Stderr, "audit: dropping events (backend failure or full buffer); decisions are unaffected")
	})
}

// Dropped reports how many events never reached a backend.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close drains the queue, flushes every backend, and closes them. Safe to
// call more than once.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.ch)
	<-s.done

	var firstErr error
	for _, b := range s.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
