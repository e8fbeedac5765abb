// Package result provides the success/failure and optional-value algebra used
// across the host capability boundary.
//
// Result holds exactly one of a value or an error; Option holds a value or
// nothing, where absence is not a failure. Neither converts implicitly to the
// other: use [ToOption] and [OptionToResultWith] when interop is needed.
package result

// Result is a tagged union of Ok(value) or Err(error).
// The zero value is Ok with the zero value of T.
type Result[T any] struct {
	value T
	err   error
}

// Ok returns a successful Result holding v.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err returns a failed Result holding err. Err panics on a nil error: a
// failure without a cause is a caller bug, not a representable state.
func Err[T any](err error) Result[T] {
	if err == nil {
		panic("result: Err with nil error")
	}
	return Result[T]{err: err}
}

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// IsErr reports whether the result holds an error.
func (r Result[T]) IsErr() bool { return r.err != nil }

// Get unpacks the result into Go's conventional (value, error) pair.
func (r Result[T]) Get() (T, error) { return r.value, r.err }

// Value returns the held value, or the zero value if the result is an error.
func (r Result[T]) Value() T { return r.value }

// Error returns the held error, or nil for a successful result.
func (r Result[T]) Error() error { return r.err }

// Or returns the held value, or fallback if the result is an error.
func (r Result[T]) Or(fallback T) T {
	if r.err != nil {
		return fallback
	}
	return r.value
}

// Option is a tagged union of Some(value) or None.
// The zero value is None.
type Option[T any] struct {
	value T
	some  bool
}

// Some returns an Option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, some: true}
}

// None returns the absent Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// IsSome reports whether the option holds a value.
func (o Option[T]) IsSome() bool { return o.some }

// IsNone reports whether the option is absent.
func (o Option[T]) IsNone() bool { return !o.some }

// Get unpacks the option into (value, present).
func (o Option[T]) Get() (T, bool) { return o.value, o.some }

// Or returns the held value, or fallback if the option is absent.
func (o Option[T]) Or(fallback T) T {
	if !o.some {
		return fallback
	}
	return o.value
}

// ToOption discards the error side of a Result: Ok(v) becomes Some(v) and any
// Err becomes None. The error cause is lost; callers that need it back must
// supply a default via OptionToResultWith.
func ToOption[T any](r Result[T]) Option[T] {
	if r.err != nil {
		return None[T]()
	}
	return Some(r.value)
}

// OptionToResultWith lifts an Option into a Result, mapping absence to the
// supplied default error.
func OptionToResultWith[T any](o Option[T], absent error) Result[T] {
	if !o.some {
		return Err[T](absent)
	}
	return Ok(o.value)
}
