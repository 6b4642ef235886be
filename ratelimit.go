package irc

import (
	"context"

	"golang.org/x/time/rate"
)

// outboundLimiter throttles WriteMessage calls so a Session doesn't trip a
// server's flood protection. It wraps golang.org/x/time/rate.Limiter rather
// than hand-rolling a token bucket, since the rest of the pack (soju,
// kouhai, retro-aim-server) all reach for the same package for exactly this
// purpose.
//
// Messages are sent in FIFO order: goroutines block on a channel-based
// ticket queue rather than racing limiter.Wait calls directly, so that a
// burst of WriteMessage calls from multiple goroutines preserves call
// order on the wire the same way a single-threaded sender would.
type outboundLimiter struct {
	limiter *rate.Limiter
	tickets chan struct{}
}

// newOutboundLimiter constructs a limiter that permits burst messages
// immediately and then refills at r messages per second. A burst of 1 with
// a low rate effectively serializes all sends through the limiter.
func newOutboundLimiter(r rate.Limit, burst int) *outboundLimiter {
	if burst < 1 {
		burst = 1
	}
	return &outboundLimiter{
		limiter: rate.NewLimiter(r, burst),
		tickets: make(chan struct{}, 1),
	}
}

// wait blocks until it is this caller's turn to send and the token bucket
// has a token available, or ctx is cancelled.
func (l *outboundLimiter) wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case l.tickets <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.tickets }()

	return l.limiter.Wait(ctx)
}

// allowNow reports whether a message could be sent immediately without
// waiting, without consuming a token. Used by callers that want to log
// when a send is about to be delayed.
func (l *outboundLimiter) allowNow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Tokens() >= 1
}
