package etw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Microsoft/go-winio/pkg/guid"
	"github.com/sirupsen/logrus"

	"github.com/Microsoft/otel-etw-trace/internal/log"
	"github.com/Microsoft/otel-etw-trace/internal/otel/instrumentation/nativecall"
)

// maxProviderNameLength is the longest provider name TraceLogging accepts, in characters.
const maxProviderNameLength = 255

// providers tracks the provider IDs registered in this process, so that the same provider is not
// registered twice.
// Names are hashed case-insensitively, so the ID is used as the key.
var providers = struct {
	m   sync.Mutex
	ids map[guid.GUID]string
}{
	ids: make(map[guid.GUID]string),
}

func claimProviderID(id guid.GUID, name string) error {
	providers.m.Lock()
	defer providers.m.Unlock()

	if n, ok := providers.ids[id]; ok {
		return fmt.Errorf("%w: %q (%s) conflicts with %q", ErrNameCollision, name, id, n)
	}
	providers.ids[id] = name
	return nil
}

func releaseProviderID(id guid.GUID) {
	providers.m.Lock()
	defer providers.m.Unlock()

	delete(providers.ids, id)
}

type RegistryOption func(*Registry)

// WithTestMode makes [Handle.IsEnabled] always return true, regardless of whether a
// trace session is listening.
func WithTestMode() RegistryOption {
	return func(r *Registry) {
		r.testMode = true
	}
}

// Registry manages the registration of a single ETW provider.
//
// A Registry can register at most one provider over its lifetime; the registration is
// released via [Registry.Unregister].
type Registry struct {
	native   Native
	testMode bool

	mu   sync.Mutex
	used bool
}

// NewRegistry returns a Registry that registers providers with native.
// If native is nil, [DefaultNative] is used.
func NewRegistry(native Native, opts ...RegistryOption) *Registry {
	if native == nil {
		native = DefaultNative()
	}
	r := &Registry{native: native}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register registers the provider name and returns a [Handle] to write events with.
//
// All errors are of type [*RegistrationError].
func (r *Registry) Register(name string) (*Handle, error) {
	if err := validateName(name); err != nil {
		return nil, &RegistrationError{Name: name, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.used {
		return nil, &RegistrationError{Name: name, Err: ErrAlreadyRegistered}
	}

	id := ProviderID(name)
	if err := claimProviderID(id, name); err != nil {
		return nil, &RegistrationError{Name: name, Err: err}
	}

	s, err := r.native.Register(name)
	if err != nil {
		releaseProviderID(id)
		return nil, &RegistrationError{Name: name, Err: err}
	}
	r.used = true

	h := &Handle{
		owner:    r,
		name:     name,
		id:       id,
		testMode: r.testMode,
		s:        s,
	}
	log.L.WithFields(logrus.Fields{
		"provider": name,
		"guid":     id.String(),
	}).Debug("registered ETW provider")
	return h, nil
}

// Unregister releases the provider registration held by h.
//
// After Unregister returns, h cannot be used to write events.
// Unregister waits for in-progress writes to finish, and returns [ErrClosed] if h was already
// released.
func (r *Registry) Unregister(h *Handle) error {
	if h == nil {
		return ErrClosed
	}
	if h.owner != r {
		return fmt.Errorf("handle for provider %q was not registered by this registry", h.name)
	}

	h.mu.Lock()
	s := h.s
	h.s = nil
	h.mu.Unlock()

	if s == nil {
		return ErrClosed
	}

	err := s.Close()
	releaseProviderID(h.id)

	entry := log.L.WithFields(logrus.Fields{
		"provider": h.name,
		"guid":     h.id.String(),
	})
	if err != nil {
		entry.WithError(err).Warning("failed to unregister ETW provider")
		return err
	}
	entry.Debug("unregistered ETW provider")
	return nil
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidProviderName)
	case len([]rune(name)) > maxProviderNameLength:
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidProviderName, maxProviderNameLength)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: name contains a null character", ErrInvalidProviderName)
	}
	return nil
}

// Handle is a registered ETW provider.
//
// It is safe for concurrent use.
type Handle struct {
	owner    *Registry
	name     string
	id       guid.GUID
	testMode bool

	// mu guards s; writers hold a read lock so that unregistering waits for them to finish
	mu sync.RWMutex
	s  Session
}

func (h *Handle) Name() string { return h.name }

// ID returns the provider GUID.
func (h *Handle) ID() guid.GUID { return h.id }

func (h *Handle) String() string {
	return h.name + " (" + h.id.String() + ")"
}

// Released returns true once the handle has been unregistered.
func (h *Handle) Released() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s == nil
}

// IsEnabled returns true if events with the given level and keyword will be captured by a trace session.
//
// IsEnabled returns true if the answer is unknown (eg, the handle was released), so that callers
// do not silently drop events; the subsequent [Handle.Write] will report the actual failure.
func (h *Handle) IsEnabled(level Level, keyword uint64) bool {
	if h.testMode {
		return true
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s == nil {
		return true
	}
	return h.s.IsEnabled(level, keyword)
}

// Write writes ev with the ETW options in d.
//
// It returns [ErrClosed] if the handle was released, and a [*WriteError] if the OS rejects
// the event.
func (h *Handle) Write(d Descriptor, ev *Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s == nil {
		return fmt.Errorf("write event to %q: %w", h.name, ErrClosed)
	}

	start := time.Now()
	err := h.s.Write(d, ev)
	nativecall.RecordDuration(context.Background(), h.name, "EventWrite", err, time.Since(start))

	if err == nil {
		return nil
	}
	if we := (*WriteError)(nil); errors.As(err, &we) {
		return err
	}
	return &WriteError{Provider: h.name, Err: err}
}
