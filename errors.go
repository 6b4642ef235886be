package irc

import "errors"

// Sentinel error kinds as described by the framework's error handling design.
// Callers should compare with errors.Is; most wrap additional context with
// fmt.Errorf("%w: ...", ErrX) the same way message.go already wraps
// warnTruncate.
var (
	// ErrCommandTooLong indicates a command or its tags exceeded the
	// configured byte limits (LineLen, ClientTagLen, ServerTagLen).
	ErrCommandTooLong = errors.New("command exceeds configured length limit")

	// ErrInvalidArgument indicates a syntactically invalid verb, source,
	// argument, or tag was supplied to a constructor. This is always a
	// caller bug and never originates from the wire.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBadState indicates the server told the client something impossible
	// given local state (e.g. a nick rename collided with an existing
	// entry). Sessions that encounter this terminate.
	ErrBadState = errors.New("bad state: server violated local invariants")

	// ErrNumeric wraps a server numeric reply matched against a deferred
	// send. Use AsNumeric to recover the numeric and human text.
	ErrNumeric = errors.New("server returned an error numeric")

	// ErrTimeout indicates a deferred reply exceeded its deadline.
	ErrTimeout = errors.New("deferred reply timed out")

	// ErrAuthFailed indicates SASL negotiation was rejected or every
	// candidate mechanism was exhausted.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrPermissionDenied indicates the dispatcher's permission check
	// failed for a handler that declared a required privilege.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation indicates a dispatcher validator rejected a parameter.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedPermission is returned by a PermissionManager to tell
	// the Dispatcher's permission chain that it has no opinion on the
	// given account/permission combination, so the next manager in
	// registration order should be consulted instead.
	ErrUnsupportedPermission = errors.New("permission manager does not handle this account/permission combination")

	// ErrCancelled indicates cooperative cancellation of a pending
	// operation (a context was cancelled, or the session disconnected).
	ErrCancelled = errors.New("operation cancelled")

	// ErrTransport indicates a socket or TLS I/O error. Sessions that
	// encounter this terminate.
	ErrTransport = errors.New("transport error")
)

// NumericError carries the numeric reply and human-readable message for a
// server error matched against a DeferredCommand's reply predicate.
type NumericError struct {
	Numeric string
	Message string
}

func (e *NumericError) Error() string {
	return e.Numeric + ": " + e.Message
}

func (e *NumericError) Unwrap() error {
	return ErrNumeric
}

// AsNumeric reports whether err (or something it wraps) is a *NumericError,
// returning it if so.
func AsNumeric(err error) (*NumericError, bool) {
	var ne *NumericError
	ok := errors.As(err, &ne)
	return ne, ok
}
