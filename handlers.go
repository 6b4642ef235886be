package irc

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// A Handler responds to an IRC message.
//
// An IRC message may be any type, including PRIVMSG, NOTICE, JOIN, Numerics,
// etc. It is up to the calling function to map incoming messages/commands
// to the appropriate handler.
//
// Handlers should avoid modifying the provided Message.
type Handler interface {
	SpeakIRC(MessageWriter, *Message)
}

// The HandlerFunc type is an adapter to allow the usage of ordinary functions
// as handlers, following the same pattern as http.HandlerFunc.
type HandlerFunc func(MessageWriter, *Message)

// SpeakIRC calls f(w, m).
func (f HandlerFunc) SpeakIRC(w MessageWriter, m *Message) {
	f(w, m)
}

type middleware func(Handler) Handler

func wrap(h Handler, mw ...middleware) Handler {
	if len(mw) < 1 {
		return h
	}

	wrapped := h
	// loop in reverse to preserve middleware order
	for i := len(mw) - 1; i >= 0; i-- {
		wrapped = mw[i](wrapped)
	}

	return wrapped
}

var ctcpRegex = regexp.MustCompile("^\\x01([^ \\x01]+) ?(.*?)\\x01?$")

// ctcpHandler looks for incoming PRIVMSG or NOTICE messages that match the CTCP protocol,
// and if found, modifies the Message's Command field and strips CTCP formatting from
// the message parameters before passing the message to the next Handler.
//
// ctcpHandler MUST be called before any handlers or middleware which need to
// differentiate between regular PRIVMSG/NOTICE and CTCP messages.
func ctcpHandler(next Handler) Handler {
	return HandlerFunc(func(mw MessageWriter, m *Message) {
		if !m.Command.is(CmdPrivmsg) && !m.Command.is(CmdNotice) {
			next.SpeakIRC(mw, m)
			return
		}
		body := m.Params.Get(2)
		if len(body) == 0 {
			next.SpeakIRC(mw, m)
			return
		}
		if body[0] != 0x01 { // "\x01" is the ctcp delim
			next.SpeakIRC(mw, m)
			return
		}
		parts := ctcpRegex.FindStringSubmatch(body)
		// parts should never be nil if we made it this far, but if it is we pass it on
		// because we don't know how to deal with it
		if parts == nil {
			next.SpeakIRC(mw, m)
			return
		}
		// now we know the message is either a CTCP or CTCP Reply
		subcommand := parts[1]
		body = parts[2]

		switch m.Command {
		case CmdPrivmsg:
			m.Command = CTCPAction
			m.Command = NewCTCPCmd(subcommand)
		case CmdNotice:
			m.Command = NewCTCPReplyCmd(subcommand)
		}
		m.Params[1] = body
		next.SpeakIRC(mw, m)
	})
}

// pingMiddleware intercepts server PING messages and replies with the appropriate PONG.
func pingMiddleware(next Handler) Handler {
	return HandlerFunc(func(mw MessageWriter, m *Message) {
		if !m.Command.is(CmdPing) {
			next.SpeakIRC(mw, m)
			return
		}
		mw.WriteMessage(Pong(m.Params.Get(1)))
	})
}

type pingHandler struct {
	sync.Mutex
	expecting map[string]chan bool
	timeout   func()
}

func (ph *pingHandler) ping(ctx context.Context, mw MessageWriter, m string) {
	ph.Lock()
	defer ph.Unlock()

	if ph.expecting == nil {
		ph.expecting = make(map[string]chan bool)
	}

	// if we're already expecting a reply for the given ping then we skip sending another
	// in order to simplify the logic. having duplicate in-flight pings would not
	// be of any benefit.
	if _, exists := ph.expecting[m]; exists {
		return
	}

	ret := make(chan bool, 1)
	ph.expecting[m] = ret
	go func() {
		// we know this is the only goroutine waiting for a reply to m, so when it exits
		// for any reason we must remove the reference.
		defer func() {
			ph.Lock()
			defer ph.Unlock()
			delete(ph.expecting, m)
		}()

		select {
		case <-ret:
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
			ph.timeout()
		}
	}()
	mw.WriteMessage(Ping(m))
}

func (ph *pingHandler) pongHandler(next Handler) Handler {
	return HandlerFunc(func(mw MessageWriter, m *Message) {
		if !m.Command.is(CmdPong) {
			next.SpeakIRC(mw, m)
			return
		}

		ph.Lock()
		defer ph.Unlock()

		reply := m.Params.Get(2)

		// if we were not expecting the reply, pass it on
		if _, expected := ph.expecting[reply]; !expected {
			next.SpeakIRC(mw, m)
			return
		}

		// if we were expecting the reply, intercept it and don't pass it on
		select {
		case ph.expecting[reply] <- true:
		default:
		}
	})
}

// unconditionalCaps are the IRCv3 capabilities requested on every
// connection regardless of SASL configuration or registered handlers: the
// framework-level set plus the two needed for draft/multiline BATCH
// framing, since say.go must know whether the server actually enabled
// draft/multiline before wrapping a long message in a batch.
var unconditionalCaps = []string{
	"multi-prefix", "userhost-in-names", "extended-join", "account-notify",
	"away-notify", "chghost", "setname", "draft/channel-rename",
	"batch", "draft/multiline",
}

// capNegotiator listens for CAP LS/NEW/ACK and drives capability
// negotiation: it requests unconditionalCaps as soon as they're offered,
// and tracks which capabilities the server actually ACKed so other
// middleware (e.g. say.go's BATCH wrapping) can check whether a given
// capability is live.
//
// "CAP * LS * :extended-join chghost cap-notify userhost-in-names multi-prefix"
// "CAP * LS :extended-join chghost cap-notify userhost-in-names multi-prefix"
// "CAP <nick> ACK :extended-join "
// "CAP <nick> LIST * :extended-join chghost cap-notify userhost-in-names multi-prefix away-notify account-notify"
// "CAP <nick> LIST :extended-join chghost cap-notify userhost-in-names multi-prefix away-notify account-notify"
// https://ircv3.net/specs/core/capability-negotiation.html
type capNegotiator struct {
	// saslPending reports whether a SASL negotiation is still holding CAP
	// END open; nil means no SASL is configured, so END is never deferred.
	saslPending func() bool

	mu      sync.Mutex
	enabled map[string]bool
	values  map[string]string // raw CAP LS value, keyed by lowercased cap name
}

func newCapNegotiator(saslPending func() bool) *capNegotiator {
	return &capNegotiator{
		saslPending: saslPending,
		enabled:     make(map[string]bool),
		values:      make(map[string]string),
	}
}

// has reports whether name was ACKed by the server during negotiation (or
// via a later CAP NEW/ACK exchange).
func (cn *capNegotiator) has(name string) bool {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return cn.enabled[strings.ToLower(name)]
}

// multilineLimits reports the draft/multiline "max-bytes"/"max-lines"
// values the server advertised in CAP LS, or 0 when a dimension wasn't
// advertised (meaning no limit on that axis).
func (cn *capNegotiator) multilineLimits() (maxBytes, maxLines int) {
	cn.mu.Lock()
	val := cn.values["draft/multiline"]
	cn.mu.Unlock()

	for _, kv := range strings.Split(val, ",") {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		switch k {
		case "max-bytes":
			maxBytes = n
		case "max-lines":
			maxLines = n
		}
	}
	return maxBytes, maxLines
}

func (cn *capNegotiator) middleware(next Handler) Handler {
	return HandlerFunc(func(mw MessageWriter, m *Message) {
		// the next handler is always called first so that other middleware which request capabilities
		// will write their message before we complete negotiation.
		next.SpeakIRC(mw, m)

		if !m.Command.is(CmdCap) || len(m.Params) < 3 {
			return
		}

		switch strings.ToUpper(m.Params.Get(2)) {
		case "LS":
			cn.requestUnconditional(mw, m)

			// An asterisk in the 3rd param (before the CAP list) indicates there will be more lines coming
			// for the CAP LS response. If this is the last line we request a list of the caps enabled and send CAP END,
			// unless a SASL exchange is still holding END open.
			if m.Params.Get(3) != "*" {
				mw.WriteMessage(CapList())
				if cn.saslPending == nil || !cn.saslPending() {
					mw.WriteMessage(CapEnd())
				}
			}
		case "NEW":
			cn.requestUnconditional(mw, m)
		case "ACK":
			cn.mu.Lock()
			for _, c := range strings.Fields(m.Params.Get(len(m.Params))) {
				cn.enabled[strings.ToLower(c)] = true
			}
			cn.mu.Unlock()
		}
	})
}

// requestUnconditional sends CAP REQ for whichever of unconditionalCaps
// appear in m's offered capability list and haven't been requested yet.
func (cn *capNegotiator) requestUnconditional(mw MessageWriter, m *Message) {
	var toReq []string
	for _, tok := range strings.Fields(m.Params.Get(len(m.Params))) {
		name, val, found := strings.Cut(tok, "=")
		if found {
			cn.mu.Lock()
			cn.values[strings.ToLower(name)] = val
			cn.mu.Unlock()
		}
		if containsFold(unconditionalCaps, name) {
			toReq = append(toReq, name)
		}
	}
	if len(toReq) > 0 {
		mw.WriteMessage(CapReq(toReq...))
	}
}
