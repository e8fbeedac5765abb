package hostcap

import (
	"errors"
	"fmt"
)

// Kind classifies a boundary failure. The set is closed: new kinds may be
// added, existing ones are never repurposed.
type Kind uint8

const (
	// PermissionDenied means the handle lacks the capability category the
	// operation requires.
	PermissionDenied Kind = iota + 1

	// HandleExpired means the handle was revoked or the host ended the grant.
	HandleExpired

	// NotFound means the requested operation, resource, or secret does not exist.
	NotFound

	// InvalidOperand means an input failed host-side validation.
	InvalidOperand

	// Overflow means a numeric result exceeded host-declared bounds.
	Overflow

	// SessionClosed means the operation was attempted after scoped release.
	SessionClosed

	// Unavailable means an upstream or transport failure outside the guest's
	// control.
	Unavailable
)

var kindNames = map[Kind]string{
	PermissionDenied: "permission_denied",
	HandleExpired:    "handle_expired",
	NotFound:         "not_found",
	InvalidOperand:   "invalid_operand",
	Overflow:         "overflow",
	SessionClosed:    "session_closed",
	Unavailable:      "unavailable",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// KindFromString maps a wire name back to its Kind. Returns 0 for unknown names.
func KindFromString(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return 0
}

// Error is the typed failure returned across the guest/host boundary.
// Failures are always returned as values, never panics: the guest runtime
// decides whether to retry, surface, or abort.
type Error struct {
	Kind Kind
	Op   string // fully-qualified operation, empty for boundary-level failures
	Msg  string
}

func (e *Error) Error() string {
	if e.Op != "" {
		return e.Op + ": " + e.Kind.String() + ": " + e.Msg
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is reports kind equality, so errors.Is(err, &Error{Kind: HandleExpired})
// matches any expired-handle failure regardless of operation and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Op == "" || t.Op == e.Op)
}

// Errf constructs an Error with a formatted message.
func Errf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is (or wraps) a boundary Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
