// Package optional holds values that may be absent, such as the dynamic
// challenge a connection keeps between a verification failure and the next
// credential request.
package optional

import "github.com/ovpngui/ovpngui/internal/runtimex"

// Value is either empty or holds a T. The zero value is empty.
type Value[T any] struct {
	value T
	set   bool
}

// None returns an empty [Value].
func None[T any]() Value[T] {
	return Value[T]{}
}

// Some returns a [Value] holding value. Unlike a nil pointer, a nil or
// zero value is still held.
func Some[T any](value T) Value[T] {
	return Value[T]{value: value, set: true}
}

// IsNone reports whether v is empty.
func (v Value[T]) IsNone() bool {
	return !v.set
}

// Get returns the held value and whether there is one.
func (v Value[T]) Get() (T, bool) {
	return v.value, v.set
}

// Take returns the held value, like [Value.Get], and empties v.
func (v *Value[T]) Take() (T, bool) {
	value, set := v.value, v.set
	*v = Value[T]{}
	return value, set
}

// Unwrap returns the held value. It panics when v is empty.
func (v Value[T]) Unwrap() T {
	runtimex.Assert(v.set, "optional: unwrap of an empty value")
	return v.value
}

// UnwrapOr returns the held value or fallback when v is empty.
func (v Value[T]) UnwrapOr(fallback T) T {
	if !v.set {
		return fallback
	}
	return v.value
}
