//go:build !windows

package etw

type unsupportedNative struct{}

// DefaultNative returns a [Native] that fails all registrations with [ErrNotSupported].
func DefaultNative() Native { return unsupportedNative{} }

func (unsupportedNative) Register(string) (Session, error) {
	return nil, ErrNotSupported
}
