package hostcap

import (
	"context"
	"sync"
)

// ReleaseFunc observes a session's release. The failure argument is the
// typed failure the session's body ended with, or nil for a clean exit, so
// cleanup can distinguish normal from faulted teardown.
type ReleaseFunc func(failure *Error)

// Session is a scoped acquisition of a handle's grant. It is released exactly
// once, on every exit path; operations attempted after release fail with
// SessionClosed rather than reaching the broker.
type Session struct {
	broker    *Broker
	handle    Handle
	onRelease ReleaseFunc

	mu     sync.Mutex
	closed bool
}

// SessionOption configures a session at acquisition time.
type SessionOption func(*Session)

// WithRelease registers a hook that runs exactly once when the session is
// released, receiving the captured failure context if any.
func WithRelease(fn ReleaseFunc) SessionOption {
	return func(s *Session) {
		s.onRelease = fn
	}
}

// Acquire opens a scoped session over a live handle. The caller must
// guarantee Close runs on every exit path; WithSession does this with defer.
func (b *Broker) Acquire(h Handle, opts ...SessionOption) (*Session, *Error) {
	if _, err := b.Grants(h); err != nil {
		return nil, err
	}

	s := &Session{broker: b, handle: h}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handle returns the handle the session was acquired over.
func (s *Session) Handle() Handle {
	return s.handle
}

// Invoke performs an operation through the session. After release it fails
// with SessionClosed without touching the broker.
func (s *Session) Invoke(ctx context.Context, op string, args map[string]any) (any, *Error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, Errf(SessionClosed, op, "session released")
	}
	s.mu.Unlock()

	return s.broker.Invoke(ctx, s.handle, op, args)
}

// Close releases the session, passing the failure context to the release
// hook. Only the first Close runs the hook; later calls are no-ops.
func (s *Session) Close(failure *Error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.onRelease != nil {
		s.onRelease(failure)
	}
}

// WithSession acquires a session, runs body, and releases on every exit path.
// The body's failure, if any, is handed to the release hook; a panic in the
// body still releases (with a nil failure context) before propagating.
func (b *Broker) WithSession(h Handle, body func(*Session) *Error, opts ...SessionOption) *Error {
	s, err := b.Acquire(h, opts...)
	if err != nil {
		return err
	}

	var failure *Error
	defer func() {
		s.Close(failure)
	}()

	failure = body(s)
	return failure
}
