package etw

import (
	"errors"
	"fmt"
	"sync"
)

// RecordedEvent is an event written to a [Recorder].
type RecordedEvent struct {
	Provider   string
	Descriptor Descriptor
	Event      *Event
}

// Recorder is an in-memory [Native] that stores written events.
//
// It is used for tests and for dry runs, where events should be inspected rather than sent
// to the OS.
// By default all levels and keywords are enabled and all writes succeed.
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
	active map[string]struct{}
	closed int

	registerErr error
	enabled     func(Level, uint64) bool
	writeStatus func(*Event) uint32
	onWrite     func(*Event)
}

var _ Native = &Recorder{}

func NewRecorder() *Recorder {
	return &Recorder{
		active: make(map[string]struct{}),
	}
}

// FailRegister causes subsequent registrations to fail with err.
// A nil err allows registrations again.
func (r *Recorder) FailRegister(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerErr = err
}

// SetEnabled overrides the enabled check. A nil f enables all levels and keywords.
func (r *Recorder) SetEnabled(f func(Level, uint64) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = f
}

// FailWrites sets a function that returns the OS status to report for an event.
// Events with a non-zero status are not recorded and fail with a [*WriteError].
func (r *Recorder) FailWrites(f func(*Event) uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeStatus = f
}

// OnWrite sets a function that is called synchronously during every write, before the event
// is recorded.
// It is called without holding any Recorder locks, so it may write to the Recorder again.
func (r *Recorder) OnWrite(f func(*Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onWrite = f
}

// Events returns a copy of the recorded events, in write order.
func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// Active returns the number of registered providers that have not been closed.
func (r *Recorder) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Closed returns the number of times a provider was closed.
func (r *Recorder) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) Register(name string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registerErr != nil {
		return nil, r.registerErr
	}
	if _, ok := r.active[name]; ok {
		return nil, fmt.Errorf("provider %q: %w", name, ErrNameCollision)
	}
	r.active[name] = struct{}{}
	return &recorderSession{r: r, name: name}, nil
}

type recorderSession struct {
	r    *Recorder
	name string

	mu     sync.Mutex
	closed bool
}

var _ Session = &recorderSession{}

func (s *recorderSession) IsEnabled(level Level, keyword uint64) bool {
	s.r.mu.Lock()
	f := s.r.enabled
	s.r.mu.Unlock()

	if f == nil {
		return true
	}
	return f(level, keyword)
}

func (s *recorderSession) Write(d Descriptor, ev *Event) error {
	s.r.mu.Lock()
	onWrite, status := s.r.onWrite, s.r.writeStatus
	s.r.mu.Unlock()

	if onWrite != nil {
		onWrite(ev)
	}

	if status != nil {
		if st := status(ev); st != 0 {
			return &WriteError{
				Provider: s.name,
				Status:   st,
				Err:      errors.New("event write rejected"),
			}
		}
	}

	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.events = append(s.r.events, RecordedEvent{
		Provider:   s.name,
		Descriptor: d,
		Event:      ev,
	})
	return nil
}

func (s *recorderSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	delete(s.r.active, s.name)
	s.r.closed++
	return nil
}
