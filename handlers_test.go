package irc

import "testing"

func TestCapNegotiatorRequestsUnconditionalCaps(t *testing.T) {
	cn := newCapNegotiator(nil)
	w := &recordingWriter{}
	next := HandlerFunc(func(mw MessageWriter, m *Message) {})

	ls := &Message{Command: CmdCap, Params: Params{"*", "LS", "multi-prefix away-notify sasl=PLAIN unknown-cap"}}
	cn.middleware(next).SpeakIRC(w, ls)

	if len(w.sent) != 3 {
		t.Fatalf("expected a CAP REQ, CAP LIST, and CAP END, got %#v", w.sent)
	}
	req := w.sent[0].Params.Get(len(w.sent[0].Params))
	if req != "multi-prefix away-notify" {
		t.Errorf("expected CAP REQ for multi-prefix away-notify, got %q", req)
	}
	if w.sent[1].Params.Get(1) != "LIST" {
		t.Errorf("expected CAP LIST after a single-line LS response, got %#v", w.sent[1])
	}
	if w.sent[2].Params.Get(1) != "END" {
		t.Errorf("expected CAP END to follow CAP LIST, got %#v", w.sent[2])
	}
}

func TestCapNegotiatorDefersEndWhileSASLPending(t *testing.T) {
	pending := true
	cn := newCapNegotiator(func() bool { return pending })
	w := &recordingWriter{}
	next := HandlerFunc(func(mw MessageWriter, m *Message) {})

	ls := &Message{Command: CmdCap, Params: Params{"*", "LS", "multi-prefix"}}
	cn.middleware(next).SpeakIRC(w, ls)

	for _, m := range w.sent {
		if m.Command.is(CmdCap) && m.Params.Get(1) == "END" {
			t.Fatalf("expected CAP END to be withheld while SASL is pending, got %#v", w.sent)
		}
	}
}

func TestCapNegotiatorTracksAckedCaps(t *testing.T) {
	cn := newCapNegotiator(nil)
	w := &recordingWriter{}
	next := HandlerFunc(func(mw MessageWriter, m *Message) {})

	ack := &Message{Command: CmdCap, Params: Params{"*", "ACK", "draft/multiline batch"}}
	cn.middleware(next).SpeakIRC(w, ack)

	if !cn.has("draft/multiline") || !cn.has("batch") {
		t.Errorf("expected draft/multiline and batch to be tracked as enabled")
	}
	if cn.has("sasl") {
		t.Errorf("expected sasl to not be tracked as enabled")
	}
}

func TestCapNegotiatorWaitsForFinalLSLine(t *testing.T) {
	cn := newCapNegotiator(nil)
	w := &recordingWriter{}
	next := HandlerFunc(func(mw MessageWriter, m *Message) {})

	ls := &Message{Command: CmdCap, Params: Params{"*", "LS", "*", "multi-prefix"}}
	cn.middleware(next).SpeakIRC(w, ls)

	for _, m := range w.sent {
		if m.Command.is(CmdCap) && (m.Params.Get(1) == "END" || m.Params.Get(1) == "LIST") {
			t.Fatalf("expected no CAP LIST/END on a non-final LS line, got %#v", w.sent)
		}
	}
}
