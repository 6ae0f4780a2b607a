package etw

//go:generate go run go.uber.org/mock/mockgen -source=native.go -destination=mock_native_test.go -package=etw

// Native is the OS event tracing subsystem.
type Native interface {
	// Register registers a provider with the OS and returns the session used to write its events.
	Register(name string) (Session, error)
}

// Session is a registered provider.
//
// IsEnabled and Write must be safe to call concurrently.
// Close is called at most once, and never concurrently with IsEnabled or Write.
type Session interface {
	// IsEnabled returns true if any trace session is listening for events with the given level
	// and keyword.
	IsEnabled(level Level, keyword uint64) bool
	// Write writes ev to the OS.
	// Errors should be a [*WriteError] carrying the OS status code.
	Write(d Descriptor, ev *Event) error
	// Close unregisters the provider.
	Close() error
}
