// This package provides an optional data type, similar to Rust's `Option<T>` (and Haskell's `Maybe a`).
//
// It is used for event fields that must be omitted, rather than written as their zero value,
// when absent.
package option

// ideally Option would be defined as:
//
//	type Option[T any] struct {
//	  v *T
//	}
//
// but "encoding/json".Marshal matches the type with reflect.Pointer to determine if a type is "empty"
// for the `omitempty` option
//
// However, this means that we cannot define methods on [Option], since its underlying type is *T.

// Option carries either a value of type T, or nothing.
type Option[T any] *T

func Some[T any](v T) Option[T] { return Option[T](&v) }
func None[T any]() Option[T]    { return Option[T](nil) }

func IsNone[T any](o Option[T]) bool { return o == nil }
func IsSome[T any](o Option[T]) bool { return !IsNone(o) }

// Unwrap returns the Option's value, or panics if the Option [IsNone].
//
// Use [UnwrapOr] or [UnwrapOrDefault] for functions that do not panic.
func Unwrap[T any](o Option[T]) T {
	if IsNone(o) {
		panic("(Option).Unwrap called on a None value")
	}
	return *o
}

// UnwrapOrDefault returns the Option's value if it [IsSome], or the type's default value otherwise.
func UnwrapOrDefault[T any](o Option[T]) T {
	return UnwrapOr(o, *new(T))
}

// UnwrapOr returns the Option's value if it [IsSome], or v otherwise.
func UnwrapOr[T any](o Option[T], v T) T {
	if IsNone(o) {
		return v
	}
	return *o
}
