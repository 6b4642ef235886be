package irc

import "testing"

func capLS(value string, more bool) *Message {
	params := Params{"*", "LS", value}
	if more {
		params = Params{"*", "LS", "*", value}
	}
	return &Message{Command: CmdCap, Params: params}
}

func TestSASLNegotiatorSkipsWhenUnconfigured(t *testing.T) {
	n := newSASLNegotiator(nil, nil)
	w := &recordingWriter{}
	called := false
	next := HandlerFunc(func(mw MessageWriter, m *Message) { called = true })

	n.middleware(next).SpeakIRC(w, capLS("sasl=PLAIN", false))

	if !called {
		t.Errorf("expected pass-through to next handler when SASL is unconfigured")
	}
	if len(w.sent) != 0 {
		t.Errorf("expected no outbound messages, got %#v", w.sent)
	}
}

func TestSASLNegotiatorWaitsForFinalLSLine(t *testing.T) {
	n := newSASLNegotiator(&SASLConfig{Mechanism: "PLAIN", Authcid: "tim", Password: "tanstaaftanstaaf"}, nil)
	w := &recordingWriter{}
	forwarded := 0
	next := HandlerFunc(func(mw MessageWriter, m *Message) { forwarded++ })

	// multiline CAP LS: intermediate line must not trigger CAP REQ, but
	// must still be forwarded so capNegotiator can see it too.
	n.middleware(next).SpeakIRC(w, capLS("sasl=PLAIN,EXTERNAL", true))
	if len(w.sent) != 0 {
		t.Fatalf("expected no CAP REQ on non-final LS line, got %#v", w.sent)
	}

	n.middleware(next).SpeakIRC(w, capLS("multi-prefix", false))
	if len(w.sent) != 1 {
		t.Fatalf("expected exactly one CAP REQ after final LS line, got %#v", w.sent)
	}
	if got := w.sent[0].Params.Get(len(w.sent[0].Params)); got != "sasl" {
		t.Errorf("expected CAP REQ sasl, got %#v", w.sent[0])
	}
	if len(n.offered) != 2 || n.offered[0] != "PLAIN" || n.offered[1] != "EXTERNAL" {
		t.Errorf("expected offered mechanisms [PLAIN EXTERNAL], got %v", n.offered)
	}
	if forwarded != 2 {
		t.Errorf("expected both CAP LS lines to be forwarded to next, got %d", forwarded)
	}
}

func TestSASLNegotiatorStartsOnAck(t *testing.T) {
	n := newSASLNegotiator(&SASLConfig{Mechanism: "PLAIN", Authcid: "tim", Password: "tanstaaftanstaaf"}, nil)
	w := &recordingWriter{}
	forwarded := false
	next := HandlerFunc(func(mw MessageWriter, m *Message) { forwarded = true })

	ack := &Message{Command: CmdCap, Params: Params{"*", "ACK", "sasl"}}
	n.middleware(next).SpeakIRC(w, ack)

	if len(w.sent) != 1 || !w.sent[0].Command.is(CmdAuthenticate) {
		t.Fatalf("expected a single AUTHENTICATE command, got %#v", w.sent)
	}
	if w.sent[0].Params.Get(1) != "PLAIN" {
		t.Errorf("expected AUTHENTICATE PLAIN, got %#v", w.sent[0])
	}
	if !forwarded {
		t.Errorf("expected the ACK to still be forwarded to next")
	}
}

func TestSASLNegotiatorFailsOnNakWhenRequired(t *testing.T) {
	var gotErr error
	n := newSASLNegotiator(&SASLConfig{Mechanism: "PLAIN", Required: true}, func(err error) { gotErr = err })
	w := &recordingWriter{}
	next := HandlerFunc(func(mw MessageWriter, m *Message) {})

	nak := &Message{Command: CmdCap, Params: Params{"*", "NAK", "sasl"}}
	n.middleware(next).SpeakIRC(w, nak)

	if gotErr == nil {
		t.Errorf("expected a required SASL failure to report an error")
	}
	found := false
	for _, m := range w.sent {
		if m.Command.is(CmdCap) && m.Params.Get(1) == "END" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected CAP END to be sent after a failed required SASL negotiation, got %#v", w.sent)
	}
}

func TestSASLNegotiatorNonRequiredFailureContinues(t *testing.T) {
	var gotErr error
	called := false
	n := newSASLNegotiator(&SASLConfig{Mechanism: "PLAIN"}, func(err error) { gotErr = err; called = true })
	w := &recordingWriter{}
	next := HandlerFunc(func(mw MessageWriter, m *Message) {})

	nak := &Message{Command: CmdCap, Params: Params{"*", "NAK", "sasl"}}
	n.middleware(next).SpeakIRC(w, nak)

	if !called {
		t.Fatalf("expected onComplete to be called")
	}
	if gotErr != nil {
		t.Errorf("expected a non-required SASL failure to complete without error, got %v", gotErr)
	}
}
