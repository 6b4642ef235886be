package irc

import (
	"github.com/google/uuid"

	"github.com/SkizNet/netwolf/linebreak"
)

// prepareClientMessageOverhead is the fixed byte allowance prepareClientMessage
// subtracts for every outgoing PRIVMSG/NOTICE line beyond the prefix, verb,
// and target lengths. It covers the leading ':', the framing spaces around
// the verb/target/trailing-colon, and the CRLF terminator, and leaves the
// rest as headroom.
const prepareClientMessageOverhead = 21

// prepareClientMessage implements the PRIVMSG/NOTICE line-budget and
// draft/multiline BATCH wrapping: it computes the per-line budget for
// kind (CmdPrivmsg or CmdNotice) addressed to target, optionally via
// sharedChannel (which selects the CPRIVMSG/CNOTICE variant so an op can
// message a user without a prior query), splits text using the line-break
// splitter, and wraps multi-line output in a draft/multiline BATCH when the
// server has negotiated it.
func (c *Client) prepareClientMessage(kind Command, target, sharedChannel, text string) []*Message {
	viaChannel := sharedChannel != ""
	verb := kind.String()
	if viaChannel {
		switch kind {
		case CmdPrivmsg:
			verb = CmdCPrivmsg.String()
		case CmdNotice:
			verb = CmdCNotice.String()
		}
	}

	budget := LineLen - prepareClientMessageOverhead - len(c.prefix().String()) - len(verb) - len(target)
	if viaChannel {
		budget -= 1 + len(sharedChannel)
	}
	if budget < 1 {
		budget = 1
	}

	lines := linebreak.Split(text, linebreak.Options{MaxBytes: budget})
	if len(lines) == 0 {
		return nil
	}

	build := func(line string) *Message {
		switch {
		case viaChannel && kind == CmdPrivmsg:
			return CPrivmsg(target, sharedChannel, line)
		case viaChannel && kind == CmdNotice:
			return CNotice(target, sharedChannel, line)
		case kind == CmdNotice:
			return Notice(target, line)
		default:
			return Msg(target, line)
		}
	}

	if len(lines) == 1 || !c.hasCap("draft/multiline") {
		msgs := make([]*Message, 0, len(lines))
		for _, l := range lines {
			if l.Text == "" {
				continue
			}
			msgs = append(msgs, build(l.Text))
		}
		return msgs
	}

	return c.wrapMultiline(target, build, lines)
}

// wrapMultiline frames lines as one or more draft/multiline BATCHes,
// splitting into additional batches whenever the server-advertised
// max-bytes/max-lines limits would otherwise be exceeded. A line that
// follows one which didn't end on a hard break (see linebreak.Line) is
// tagged draft/multiline-concat, telling the server (and other clients) to
// concatenate it directly onto the previous line rather than treating it
// as a new paragraph.
// https://ircv3.net/specs/extensions/multiline
func (c *Client) wrapMultiline(target string, build func(string) *Message, lines []linebreak.Line) []*Message {
	maxBytes, maxLines := 0, 0
	if c.capNeg != nil {
		maxBytes, maxLines = c.capNeg.multilineLimits()
	}

	var out []*Message
	i := 0
	for i < len(lines) {
		ref := uuid.New().String()
		var batch []*Message
		byteTotal := 0

		for i < len(lines) {
			if lines[i].Text == "" {
				i++
				continue
			}

			msg := build(lines[i].Text)
			encoded, err := msg.MarshalText()
			size := len(encoded)
			if err != nil {
				size = len(lines[i].Text)
			}

			if len(batch) > 0 && ((maxLines > 0 && len(batch) >= maxLines) || (maxBytes > 0 && byteTotal+size > maxBytes)) {
				break
			}

			if len(batch) > 0 && !lines[i-1].HardBreak {
				msg.Tags.Set("draft/multiline-concat", "")
			}
			msg.Tags.Set("batch", ref)

			batch = append(batch, msg)
			byteTotal += size
			i++
		}

		if len(batch) == 0 {
			// only empty lines remained, so there is nothing to frame. (A
			// line that alone exceeds max-bytes still gets a batch of its
			// own above: the limits are only checked once a batch holds a
			// line.)
			continue
		}

		out = append(out, BatchStart(ref, "draft/multiline", target))
		out = append(out, batch...)
		out = append(out, BatchEnd(ref))
	}

	return out
}

// SayLines splits text into one or more PRIVMSG commands to target, each
// sized to fit within the protocol line limit after accounting for the
// client's current prefix. Splitting prefers UAX#14 line-break
// opportunities (word boundaries, mandatory breaks) over cutting mid-word,
// and multi-line output is wrapped in a draft/multiline BATCH when the
// server supports it.
func (c *Client) SayLines(target, text string) []*Message {
	return c.prepareClientMessage(CmdPrivmsg, target, "", text)
}

// Say splits text as SayLines does and writes each resulting message in
// order, subject to the client's outbound rate limiter.
func (c *Client) Say(target, text string) {
	for _, m := range c.SayLines(target, text) {
		c.WriteMessage(m)
	}
}

// NoticeLines is SayLines for NOTICE instead of PRIVMSG.
func (c *Client) NoticeLines(target, text string) []*Message {
	return c.prepareClientMessage(CmdNotice, target, "", text)
}

// SayNotice splits text as NoticeLines does and writes each resulting
// message in order, subject to the client's outbound rate limiter.
func (c *Client) SayNotice(target, text string) {
	for _, m := range c.NoticeLines(target, text) {
		c.WriteMessage(m)
	}
}

// SayViaChannel is SayLines, but addresses nick through sharedChannel using
// CPRIVMSG so the message succeeds even without a prior query, provided the
// client has op status on sharedChannel.
func (c *Client) SayViaChannel(nick, sharedChannel, text string) []*Message {
	return c.prepareClientMessage(CmdPrivmsg, nick, sharedChannel, text)
}

// NoticeViaChannel is NoticeLines, but addresses nick through sharedChannel
// using CNOTICE.
func (c *Client) NoticeViaChannel(nick, sharedChannel, text string) []*Message {
	return c.prepareClientMessage(CmdNotice, nick, sharedChannel, text)
}
