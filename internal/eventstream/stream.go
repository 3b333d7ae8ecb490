// Package eventstream implements the single-producer, multi-consumer typed
// channel described in spec 4.B: an unbounded, non-blocking push side, a
// lazy ordered consume side, and a deferred terminal result that resolves
// exactly once a terminal event has been pushed (or the stream is ended
// explicitly).
package eventstream

import "sync"

// Terminal decides, for a given event, whether it ends the stream and (if
// so) what result value the stream resolves to.
type Terminal[E any, R any] func(e E) (result R, ok bool)

// Stream is a single-producer, multi-consumer event channel. E is the
// event type carried on the wire; R is the value the stream's deferred
// result resolves to once a terminal event arrives.
//
// Producers run on a background goroutine; Push is non-blocking thanks to
// an unbounded internal queue, matching the scheduling contract in spec 5:
// "producers run on background workers; push is non-blocking".
type Stream[E any, R any] struct {
	terminal Terminal[E, R]

	mu     sync.Mutex
	queue  []E
	notify chan struct{}
	closed bool

	out chan E

	resultMu   sync.Mutex
	resultCh   chan R
	resultSet  bool
	resultOnce sync.Once

	terminatedMu sync.RWMutex
	terminated   bool
}

// New creates a Stream with the given terminal predicate and starts its
// background delivery pump.
func New[E any, R any](terminal Terminal[E, R]) *Stream[E, R] {
	s := &Stream[E, R]{
		terminal: terminal,
		notify:   make(chan struct{}, 1),
		out:      make(chan E),
		resultCh: make(chan R, 1),
	}
	go s.pump()
	return s
}

// pump drains the internal unbounded queue into the bounded delivery
// channel `out`, blocking only when the queue is empty. This is what
// makes Push non-blocking regardless of consumer speed.
func (s *Stream[E, R]) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.mu.Unlock()
			<-s.notify
			s.mu.Lock()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.out <- e
	}
}

func (s *Stream[E, R]) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Push enqueues e. If e satisfies the terminal predicate, the deferred
// result is completed with the extracted value and the stream is closed.
// Push on an already-closed stream is a silent no-op (spec 4.B).
func (s *Stream[E, R]) Push(e E) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.signal()

	if result, ok := s.terminal(e); ok {
		s.complete(result)
		s.Close()
	}
}

// Events returns the lazy, finite, non-restartable sequence of events.
// It is fully consumed exactly once the stream closes.
func (s *Stream[E, R]) Events() <-chan E {
	return s.out
}

// Result suspends until a terminal event has been pushed or End(result)
// has been called, then returns the completed value. If the stream is
// cancelled instead, Result never returns on this goroutine; callers
// should select against a cancellation-aware context in that case.
func (s *Stream[E, R]) Result() R {
	return <-s.resultCh
}

// ResultChan exposes the underlying result channel for use in select
// statements (e.g. alongside context cancellation).
func (s *Stream[E, R]) ResultChan() <-chan R {
	return s.resultCh
}

func (s *Stream[E, R]) complete(result R) {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	if s.resultSet {
		return
	}
	s.resultSet = true
	s.resultOnce.Do(func() {
		s.resultCh <- result
	})
}

// End idempotently closes the stream. If result is non-nil and the
// deferred has not yet resolved, it is set before closing.
func (s *Stream[E, R]) End(result *R) {
	if result != nil {
		s.complete(*result)
	}
	s.Close()
}

// Close closes the channel without touching the result. Exported so
// producers that already called End/Cancel can be idempotent; prefer End
// or Cancel over calling this directly.
func (s *Stream[E, R]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.signal()

	s.terminatedMu.Lock()
	s.terminated = true
	s.terminatedMu.Unlock()
}

// Cancel closes the stream without resolving Result: consumers observe
// end-of-events, but Result never completes. Cancel on an
// already-terminated stream is a no-op (spec 5).
func (s *Stream[E, R]) Cancel() {
	if s.IsTerminated() {
		return
	}
	s.Close()
}

// IsTerminated reports whether the stream has closed, whether via a
// terminal event, End, or Cancel.
func (s *Stream[E, R]) IsTerminated() bool {
	s.terminatedMu.RLock()
	defer s.terminatedMu.RUnlock()
	return s.terminated
}
