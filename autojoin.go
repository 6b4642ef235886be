package irc

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// joinRejectNumerics are the error numerics a server may send instead of a
// JOIN echo when a channel can't be joined (spec'd set: 403, 405, 471, 473,
// 474, 475, 476).
var joinRejectNumerics = map[Command]bool{
	"403": true, "405": true, "471": true, "473": true,
	"474": true, "475": true, "476": true,
}

// autoJoiner joins a configured channel list once registration completes
// (RPL_WELCOME), the way capNegotiator reacts to a single numeric to drive
// its own next step. Channels are joined concurrently, each bounded by
// timeout, so one slow or hung channel (e.g. awaiting a key exchange with
// ChanServ) can't stall the rest. Each join awaits either its own JOIN echo
// or a channel-join error numeric via the same deferred-reply mechanism
// SendDeferred exposes to callers, rather than blindly sleeping out the
// full timeout on every attempt.
type autoJoiner struct {
	channels     []string
	timeout      time.Duration
	mainctx      func() context.Context
	nick         func() Nickname
	sendDeferred func(cmd *Message, match ReplyPredicate) *DeferredCommand
}

func newAutoJoiner(channels []string, timeout time.Duration, mainctx func() context.Context, nick func() Nickname, sendDeferred func(*Message, ReplyPredicate) *DeferredCommand) *autoJoiner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &autoJoiner{channels: channels, timeout: timeout, mainctx: mainctx, nick: nick, sendDeferred: sendDeferred}
}

func (a *autoJoiner) middleware(next Handler) Handler {
	return HandlerFunc(func(mw MessageWriter, m *Message) {
		next.SpeakIRC(mw, m)
		if m.Command != RplWelcome || len(a.channels) == 0 {
			return
		}
		go a.joinAll(mw)
	})
}

// joinAll sends JOIN for every configured channel and issues a WHO per
// channel to populate member details, each under its own timeout so a
// single unresponsive channel doesn't block the others.
func (a *autoJoiner) joinAll(mw MessageWriter) {
	parent := context.Background()
	if a.mainctx != nil {
		parent = a.mainctx()
	}

	g, ctx := errgroup.WithContext(parent)
	for _, ch := range a.channels {
		ch := ch
		g.Go(func() error {
			joinCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			name, _, _ := strings.Cut(ch, " ")
			d := a.sendDeferred(joinCommand(ch), matchJoinResult(a.nick(), name))
			if _, err := d.Wait(joinCtx); err != nil {
				return nil
			}
			mw.WriteMessage(WhoX(name, nextWhoxToken()))
			return nil
		})
	}
	_ = g.Wait()
}

// whoxTokenCounter hands out small distinct WHOX tokens (the server echoes
// the token back on every RPL_WHOSPCRPL line) so concurrent auto-joins
// issuing overlapping WHO requests can't be confused for one another.
var whoxTokenCounter atomic.Uint32

func nextWhoxToken() string {
	n := whoxTokenCounter.Add(1)
	// WHOX tokens are restricted to 1-3 digits (1-999); wrap around rather
	// than emit something the server would reject.
	return strconv.Itoa(int(n%999) + 1)
}

// joinCommand constructs the JOIN for ch, which may be "#name" or
// "#name key".
func joinCommand(ch string) *Message {
	name, key, ok := strings.Cut(ch, " ")
	if !ok {
		return Join(name)
	}
	return JoinWithKey(name, key)
}

// matchJoinResult reports whether m is either the JOIN echo for channel by
// nick, or one of the channel-join error numerics naming channel.
func matchJoinResult(nick Nickname, channel string) ReplyPredicate {
	return func(m *Message) bool {
		if m.Command == CmdJoin {
			return m.Source.Nick.Is(nick.String()) && strings.EqualFold(m.Params.Get(1), channel)
		}
		if joinRejectNumerics[m.Command] {
			return strings.EqualFold(m.Params.Get(2), channel)
		}
		return false
	}
}
