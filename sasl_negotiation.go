package irc

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/SkizNet/netwolf/sasl"
)

// saslChunkSize is the maximum base64-encoded payload length per
// AUTHENTICATE line. A payload that encodes to exactly this many bytes
// must be followed by an empty "AUTHENTICATE +" continuation line so the
// receiver can distinguish "more data follows" from "the payload happened
// to end exactly on a chunk boundary".
// https://ircv3.net/specs/extensions/sasl-3.1
const saslChunkSize = 400

// SASLConfig describes how a session should authenticate via the IRCv3
// SASL capability.
type SASLConfig struct {
	// Mechanism pins an exact SASL mechanism name to use. Leave empty to
	// auto-select the strongest mechanism the server and this
	// configuration can mutually support (see sasl.SelectMechanism).
	Mechanism string

	Authzid string
	Authcid string
	Password string

	// HaveClientCertificate should be true when the connection was
	// established with a TLS client certificate, enabling EXTERNAL.
	HaveClientCertificate bool

	// ChannelBinding is the tls-server-end-point channel binding data
	// for the negotiated TLS connection, enabling "-PLUS" SCRAM
	// variants. Leave nil if unavailable.
	ChannelBinding []byte

	// Required causes the session to disconnect if SASL authentication
	// fails or no mutual mechanism exists, instead of continuing
	// unauthenticated.
	Required bool
}

// saslNegotiator drives one SASL exchange across the CAP/AUTHENTICATE
// handshake, the same way pingHandler in handlers.go drives one PING/PONG
// round trip: a small stateful struct whose methods are wired in as
// middleware/hooks against the client's incoming message stream.
type saslNegotiator struct {
	mu  sync.Mutex
	cfg *SASLConfig

	offered    []string // mechanisms advertised in the CAP LS "sasl=..." value, if any
	mech       sasl.Mechanism
	pendingBuf strings.Builder // accumulates multi-line AUTHENTICATE challenges from the server
	onComplete func(err error) // called exactly once, successful or not
	finished   bool            // true once finish() has run
}

func newSASLNegotiator(cfg *SASLConfig, onComplete func(error)) *saslNegotiator {
	return &saslNegotiator{cfg: cfg, onComplete: onComplete}
}

// middleware intercepts the CAP and AUTHENTICATE exchange needed to
// negotiate SASL. It must run before capNegotiator in the chain so it can
// request the "sasl" capability before capNegotiator decides whether to
// send CAP END; actual END deferral is driven by capNegotiator consulting
// n.pending, not by withholding the message here.
func (n *saslNegotiator) middleware(next Handler) Handler {
	return HandlerFunc(func(mw MessageWriter, m *Message) {
		if n.cfg == nil {
			next.SpeakIRC(mw, m)
			return
		}

		switch {
		case m.Command.is(CmdCap):
			n.handleCap(mw, m, next)
			return
		case m.Command.is(CmdAuthenticate):
			n.handleAuthenticate(mw, m)
			return
		case isSASLResultNumeric(m.Command):
			n.handleResult(mw, m)
			return
		}
		next.SpeakIRC(mw, m)
	})
}

func isSASLResultNumeric(cmd Command) bool {
	switch cmd {
	case RplLoggedIn, RplLoggedOut, RplNickLocked, RplSaslSuccess, RplSaslFail,
		RplSaslTooLong, RplSaslAborted, RplSaslAlready, RplSaslMechs:
		return true
	default:
		return false
	}
}

func (n *saslNegotiator) handleCap(mw MessageWriter, m *Message, next Handler) {
	if len(m.Params) < 3 {
		next.SpeakIRC(mw, m)
		return
	}

	switch strings.ToUpper(m.Params.Get(2)) {
	case "LS":
		// Multiline CAP LS marks every line but the last with a literal
		// "*" parameter before the capability list; only request sasl
		// once we've seen the final line.
		for _, tok := range strings.Fields(m.Params.Get(len(m.Params))) {
			name, val, found := strings.Cut(tok, "=")
			if found && strings.EqualFold(name, "sasl") {
				n.offered = strings.Split(val, ",")
			}
		}
		if len(m.Params) < 4 || m.Params.Get(3) != "*" {
			mw.WriteMessage(CapReq("sasl"))
		}
	case "ACK":
		caps := strings.Fields(m.Params.Get(len(m.Params)))
		if containsFold(caps, "sasl") {
			n.start(mw)
		}
	case "NAK":
		caps := strings.Fields(m.Params.Get(len(m.Params)))
		if containsFold(caps, "sasl") {
			n.fail(mw, fmt.Errorf("%w: server rejected the sasl capability", ErrAuthFailed))
		}
	}
	next.SpeakIRC(mw, m)
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

func (n *saslNegotiator) start(mw MessageWriter) {
	name := n.cfg.Mechanism
	if name == "" {
		offered := n.offered
		if len(offered) == 0 {
			// The server didn't advertise a "sasl=..." mechanism list in
			// CAP LS (pre-302 servers never do); fall back to offering
			// our own preference order and let AUTHENTICATE fail with
			// RPL_SASLMECHS (908) if the guess was wrong.
			offered = sasl.Preference
		}
		selected, ok := sasl.SelectMechanism(offered, n.cfg.HaveClientCertificate, len(n.cfg.ChannelBinding) > 0)
		if !ok {
			n.fail(mw, fmt.Errorf("%w: no mutually supported SASL mechanism", ErrAuthFailed))
			return
		}
		name = selected
	}

	mech, err := sasl.New(name, sasl.Credentials{
		Authzid:                         n.cfg.Authzid,
		Authcid:                         n.cfg.Authcid,
		Password:                        n.cfg.Password,
		ChannelBinding:                  n.cfg.ChannelBinding,
		ChannelBindingSupportedByServer: len(n.cfg.ChannelBinding) > 0,
	})
	if err != nil {
		n.fail(mw, fmt.Errorf("%w: %v", ErrAuthFailed, err))
		return
	}

	n.mu.Lock()
	n.mech = mech
	n.mu.Unlock()

	mw.WriteMessage(Authenticate(name))
}

func (n *saslNegotiator) handleAuthenticate(mw MessageWriter, m *Message) {
	payload := m.Params.Get(1)

	n.mu.Lock()
	mech := n.mech
	n.mu.Unlock()
	if mech == nil {
		return
	}

	if payload == "+" && n.pendingBuf.Len() == 0 {
		n.step(mw, mech, nil)
		return
	}

	if payload != "+" {
		n.pendingBuf.WriteString(payload)
		if len(payload) == saslChunkSize {
			// more chunks to come
			return
		}
	}
	chunk := n.pendingBuf.String()
	n.pendingBuf.Reset()

	decoded, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		n.fail(mw, fmt.Errorf("%w: malformed AUTHENTICATE payload: %v", ErrAuthFailed, err))
		return
	}
	n.step(mw, mech, decoded)
}

func (n *saslNegotiator) step(mw MessageWriter, mech sasl.Mechanism, challenge []byte) {
	ctx := context.Background()

	var (
		resp []byte
		err  error
	)
	if challenge == nil && !mech.Done() {
		resp, err = mech.Start(ctx)
	} else {
		resp, err = mech.Next(ctx, challenge)
	}

	if err == sasl.ErrDone {
		return
	}
	if err != nil {
		mw.WriteMessage(AuthenticateAbort())
		n.fail(mw, fmt.Errorf("%w: %v", ErrAuthFailed, err))
		return
	}

	n.sendChunked(mw, resp)
}

// sendChunked base64-encodes payload and splits it across AUTHENTICATE
// lines of at most saslChunkSize bytes, appending an explicit empty final
// line when the encoded payload is an exact multiple of the chunk size.
func (n *saslNegotiator) sendChunked(mw MessageWriter, payload []byte) {
	encoded := base64.StdEncoding.EncodeToString(payload)
	if encoded == "" {
		mw.WriteMessage(Authenticate("+"))
		return
	}
	exactMultiple := len(encoded)%saslChunkSize == 0
	for len(encoded) > 0 {
		end := saslChunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		mw.WriteMessage(Authenticate(encoded[:end]))
		encoded = encoded[end:]
	}
	if exactMultiple {
		mw.WriteMessage(Authenticate("+"))
	}
}

func (n *saslNegotiator) handleResult(mw MessageWriter, m *Message) {
	switch m.Command {
	case RplSaslSuccess, RplLoggedIn:
		if m.Command == RplSaslSuccess {
			n.succeed(mw)
		}
	case RplSaslMechs:
		// "<nick> <mechanisms> :are available SASL mechanisms"; arrives
		// alongside a failure numeric, so we only use it to correct our
		// record of what the server actually supports.
		n.offered = strings.Split(m.Params.Get(2), ",")
	case RplSaslFail, RplSaslTooLong, RplSaslAborted, RplNickLocked:
		n.fail(mw, fmt.Errorf("%w: %s", ErrAuthFailed, m.Params.Get(len(m.Params))))
	case RplSaslAlready:
		// already authenticated; nothing to do
	}
}

func (n *saslNegotiator) succeed(mw MessageWriter) {
	n.finish(mw, nil)
}

func (n *saslNegotiator) fail(mw MessageWriter, err error) {
	if n.cfg.Required {
		n.finish(mw, err)
		return
	}
	// not required: log-equivalent via onComplete(nil) and continue
	// registration unauthenticated.
	n.finish(mw, nil)
}

func (n *saslNegotiator) finish(mw MessageWriter, err error) {
	n.mu.Lock()
	n.finished = true
	n.mu.Unlock()

	mw.WriteMessage(CapEnd())
	if n.onComplete != nil {
		n.onComplete(err)
	}
}

// pending reports whether a SASL exchange is configured and has not yet
// finished, meaning capNegotiator must withhold CAP END on its own account
// until finish() sends it.
func (n *saslNegotiator) pending() bool {
	if n == nil || n.cfg == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.finished
}
