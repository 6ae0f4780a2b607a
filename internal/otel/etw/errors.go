package etw

import (
	"errors"
	"fmt"

	etwotel "github.com/Microsoft/otel-etw-trace/internal/otel"
)

var (
	// ErrNotSupported is returned when registering a provider on a platform without ETW.
	ErrNotSupported = errors.New("ETW is not supported on this platform")

	// ErrInvalidProviderName is returned for empty or malformed provider names.
	ErrInvalidProviderName = errors.New("invalid ETW provider name")

	// ErrNameCollision is returned when a provider with the same name (or name hash) is
	// already registered in this process.
	ErrNameCollision = errors.New("ETW provider already registered in this process")

	// ErrAlreadyRegistered is returned when a [Registry] is used to register more than once.
	ErrAlreadyRegistered = errors.New("registry already used to register a provider")

	// ErrClosed is returned when writing to, or unregistering, a released [Handle].
	ErrClosed = fmt.Errorf("ETW provider %w", etwotel.ErrClosed)
)

// RegistrationError is returned when a provider cannot be registered.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register ETW provider %q: %v", e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// WriteError is returned when the OS rejects an event write.
type WriteError struct {
	Provider string
	// Status is the raw status code returned by the OS; it is zero if the status is unknown.
	Status uint32
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write event to ETW provider %q (status 0x%x): %v", e.Provider, e.Status, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// StatusCode returns the raw status code of the failed write.
func (e *WriteError) StatusCode() uint32 { return e.Status }
