package irc

import (
	"strings"
	"testing"
)

func testClient(nick, user, host string) *Client {
	c := &Client{Nickname: nick, User: user}
	c.state = clientState{nick: nick, user: user, host: host}
	c.capNeg = newCapNegotiator(nil)
	return c
}

func TestSayLinesRespectsLineBudget(t *testing.T) {
	c := testClient("bot", "botuser", "bot.example.net")
	text := strings.Repeat("supercalifragilisticexpialidocious ", 40)

	msgs := c.SayLines("#channel", text)
	if len(msgs) < 2 {
		t.Fatalf("expected the long message to split across multiple lines, got %d", len(msgs))
	}
	for _, m := range msgs {
		encoded, err := m.MarshalText()
		if err != nil {
			t.Fatalf("unexpected marshal error: %v", err)
		}
		if len(encoded) > LineLen {
			t.Errorf("expected encoded line to fit within %d bytes, got %d: %q", LineLen, len(encoded), encoded)
		}
	}
}

func TestSayLinesShortMessageIsSingleLine(t *testing.T) {
	c := testClient("bot", "botuser", "bot.example.net")
	msgs := c.SayLines("#channel", "hello there")

	if len(msgs) != 1 {
		t.Fatalf("expected a single PRIVMSG, got %d", len(msgs))
	}
	if !msgs[0].Command.is(CmdPrivmsg) {
		t.Errorf("expected PRIVMSG, got %s", msgs[0].Command)
	}
	if msgs[0].Params.Get(2) != "hello there" {
		t.Errorf("expected body %q, got %q", "hello there", msgs[0].Params.Get(2))
	}
}

func TestSayViaChannelUsesCPrivmsgAndShrinksBudget(t *testing.T) {
	c := testClient("bot", "botuser", "bot.example.net")
	msgs := c.SayViaChannel("alice", "#shared", "hi")

	if len(msgs) != 1 || !msgs[0].Command.is(CmdCPrivmsg) {
		t.Fatalf("expected a single CPRIVMSG, got %#v", msgs)
	}
	if msgs[0].Params.Get(1) != "alice" || msgs[0].Params.Get(2) != "#shared" {
		t.Errorf("expected CPRIVMSG alice #shared, got %#v", msgs[0].Params)
	}
}

func TestNoticeLinesUsesNotice(t *testing.T) {
	c := testClient("bot", "botuser", "bot.example.net")
	msgs := c.NoticeLines("alice", "heads up")

	if len(msgs) != 1 || !msgs[0].Command.is(CmdNotice) {
		t.Fatalf("expected a single NOTICE, got %#v", msgs)
	}
}

func TestSayLinesWrapsInMultilineBatchWhenNegotiated(t *testing.T) {
	c := testClient("bot", "botuser", "bot.example.net")
	c.capNeg.enabled["draft/multiline"] = true
	c.capNeg.values["draft/multiline"] = "max-bytes=4096,max-lines=24"

	text := strings.Repeat("supercalifragilisticexpialidocious ", 40)
	msgs := c.SayLines("#channel", text)

	if len(msgs) < 3 {
		t.Fatalf("expected a BATCH start, one or more lines, and a BATCH end, got %d messages", len(msgs))
	}
	first, last := msgs[0], msgs[len(msgs)-1]
	if !first.Command.is(CmdBatch) || !strings.HasPrefix(first.Params.Get(1), "+") {
		t.Fatalf("expected the first message to be a BATCH start, got %#v", first)
	}
	if first.Params.Get(2) != "draft/multiline" {
		t.Errorf("expected batch type draft/multiline, got %q", first.Params.Get(2))
	}
	if !last.Command.is(CmdBatch) || !strings.HasPrefix(last.Params.Get(1), "-") {
		t.Fatalf("expected the last message to be a BATCH end, got %#v", last)
	}
	ref := strings.TrimPrefix(first.Params.Get(1), "+")
	if strings.TrimPrefix(last.Params.Get(1), "-") != ref {
		t.Errorf("expected BATCH end to reference the same ref as BATCH start")
	}
	for _, m := range msgs[1 : len(msgs)-1] {
		if m.Tags.Get("batch") != ref {
			t.Errorf("expected every batched line to carry batch=%s, got %#v", ref, m.Tags)
		}
	}
}

func TestSayLinesSkipsBatchWithoutMultilineCap(t *testing.T) {
	c := testClient("bot", "botuser", "bot.example.net")
	text := strings.Repeat("supercalifragilisticexpialidocious ", 40)

	msgs := c.SayLines("#channel", text)
	for _, m := range msgs {
		if m.Command.is(CmdBatch) {
			t.Fatalf("expected no BATCH framing without a negotiated draft/multiline cap, got %#v", msgs)
		}
	}
}
