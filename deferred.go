package irc

import (
	"context"
	"errors"
	"fmt"
)

// ReplyPredicate reports whether an inbound Message satisfies a pending
// DeferredCommand. Predicates are evaluated in registration order for every
// message the session's read loop parses; the first match wins and the
// waiter is removed from the registry.
type ReplyPredicate func(*Message) bool

// DeferredCommand pairs an outbound command with a promise for the reply
// (or replies) the caller expects the server to eventually send. Use
// Client.SendDeferred to construct one; the zero value is not usable.
//
// The "attach before await" pattern matters here: the predicate is
// registered with the session's reply registry *before* the command is
// written to the connection, closing the race where a fast server could
// reply before the caller started waiting for it.
type DeferredCommand struct {
	done chan struct{}
	msg  *Message
	err  error
}

// Wait blocks until a matching reply arrives, ctx is cancelled, or the
// session shuts down, whichever happens first. A ctx whose deadline passed
// yields an error wrapping ErrTimeout; any other cancellation wraps
// ErrCancelled.
func (d *DeferredCommand) Wait(ctx context.Context) (*Message, error) {
	select {
	case <-d.done:
		return d.msg, d.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// resolve completes the deferred command exactly once; later calls are
// no-ops, since a registry entry is removed from the dispatch table as soon
// as it is matched.
func (d *DeferredCommand) resolve(m *Message, err error) {
	select {
	case <-d.done:
		return
	default:
		d.msg, d.err = m, err
		close(d.done)
	}
}

// replyWaiter is one entry in a replyRegistry: a predicate plus the
// DeferredCommand it will resolve.
type replyWaiter struct {
	match ReplyPredicate
	d     *DeferredCommand
}

// replyRegistry tracks pending DeferredCommands for a session. It is not
// safe for concurrent use on its own; callers must hold the owning
// client's repliesMu (see Client.SendDeferred / Client.dispatchReply).
type replyRegistry struct {
	waiters []*replyWaiter
}

// register adds a new waiter and returns the DeferredCommand it will
// resolve. Client.SendDeferred calls it under repliesMu before writing the
// command to the connection, so the waiter is live before the bytes hit
// the wire.
func (r *replyRegistry) register(match ReplyPredicate) *DeferredCommand {
	d := &DeferredCommand{done: make(chan struct{})}
	r.waiters = append(r.waiters, &replyWaiter{match: match, d: d})
	return d
}

// dispatch offers an inbound message to every pending waiter in
// registration order, resolving (and removing) the first match. When the
// matched message is a numeric error reply (4xx/5xx and the SASL failure
// numerics), the caller gets it together with a *NumericError; a waiter
// only sees an error numeric its own predicate accepts.
func (r *replyRegistry) dispatch(m *Message) {
	for i, w := range r.waiters {
		if !w.match(m) {
			continue
		}
		r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
		if isErrorNumeric(m.Command) {
			w.d.resolve(m, &NumericError{Numeric: m.Command.String(), Message: m.Params.Get(len(m.Params))})
		} else {
			w.d.resolve(m, nil)
		}
		return
	}
}

// cancelAll resolves every pending waiter with ErrCancelled, used when a
// session disconnects while commands are still awaiting replies.
func (r *replyRegistry) cancelAll(cause error) {
	for _, w := range r.waiters {
		w.d.resolve(nil, fmt.Errorf("%w: %v", ErrCancelled, cause))
	}
	r.waiters = nil
}

// isErrorNumeric reports whether cmd is a numeric in the 4xx/5xx error
// range, or one of the SASL failure numerics (902/904/905/906).
func isErrorNumeric(cmd Command) bool {
	switch cmd {
	case RplNickLocked, RplSaslFail, RplSaslTooLong, RplSaslAborted:
		return true
	}
	s := cmd.String()
	if len(s) != 3 {
		return false
	}
	return s[0] == '4' || s[0] == '5'
}
