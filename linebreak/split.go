package linebreak

import (
	"strings"
	"unicode/utf8"
)

// Options configures Split's line emission.
type Options struct {
	// MaxBytes is the maximum encoded byte length of each emitted line.
	// Required; Split treats a value <= 0 as 400, a reasonable default
	// for a PRIVMSG body after accounting for typical prefix/target
	// overhead within the 512-byte protocol line limit.
	MaxBytes int

	// IncludeBreakCharacters keeps the whitespace or line-break characters
	// (CR, LF, ...) that were broken on at
	// the end of the emitted line instead of trimming it. Mirrors
	// girc's NewSplit option of the same name.
	IncludeBreakCharacters bool

	// AllowOverflow permits a line to exceed MaxBytes when no break
	// opportunity exists within budget, instead of hard-cutting the
	// line at a rune boundary.
	AllowOverflow bool
}

// Line is one emitted line from Split, paired with whether it ended on a
// mandatory break (e.g. an embedded '\n' in the source text) as opposed to
// a budget-driven soft wrap. Callers that frame continuation lines (e.g.
// IRCv3 draft/multiline BATCH) need this distinction: a soft wrap is a
// continuation of the same logical line, while a hard break starts a new
// one.
type Line struct {
	Text      string
	HardBreak bool
}

// Split breaks text into a sequence of lines, each no longer than
// opts.MaxBytes, preferring the line-break opportunities FindBreaks
// reports over splitting mid-word. This is the splitter outbound PRIVMSG
// and NOTICE construction calls when a message body doesn't fit within
// one command's length budget.
//
// The greedy emission loop (accumulate until the next candidate would
// exceed budget, then flush) follows the same structure as girc's
// naive space-based PRIVMSG splitter, but walks UAX#14 break opportunities
// instead of literal space characters.
func Split(text string, opts Options) []Line {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 400
	}
	if text == "" {
		return nil
	}

	breaks := FindBreaks(text)
	n := len(text)

	var lines []Line
	start := 0
	i := 0

	for start < n {
		for i < len(breaks) && breaks[i].Offset <= start {
			i++
		}

		bestOffset := -1
		bestMandatory := false
		j := i
		for j < len(breaks) {
			b := breaks[j]
			width := b.Offset - start
			if width > opts.MaxBytes {
				break
			}
			bestOffset = b.Offset
			bestMandatory = b.Mandatory
			j++
			if b.Mandatory {
				break
			}
		}

		// The rest of the text fits: emit it whole unless a mandatory
		// break comes first.
		if !bestMandatory && n-start <= opts.MaxBytes {
			bestOffset, j = n, len(breaks)
		}

		if bestOffset == -1 {
			remaining := n - start
			if remaining <= opts.MaxBytes || opts.AllowOverflow {
				lines = append(lines, Line{Text: trimIfRequested(text[start:n], opts), HardBreak: true})
				start = n
				continue
			}
			cut := hardCut(text, start, opts.MaxBytes)
			lines = append(lines, Line{Text: text[start:cut], HardBreak: false})
			start = cut
			continue
		}

		lines = append(lines, Line{Text: trimIfRequested(text[start:bestOffset], opts), HardBreak: bestOffset == n || bestMandatory})
		start = bestOffset
		i = j
	}

	return lines
}

// trimIfRequested drops trailing break whitespace (spaces, tabs, and
// line-break characters such as CR and LF) from a line unless the caller
// asked to keep it.
func trimIfRequested(line string, opts Options) string {
	if opts.IncludeBreakCharacters {
		return line
	}
	return strings.TrimRight(line, " \t\r\n\v\f\u0085  ")
}

// hardCut finds the largest rune-aligned offset at or before start+maxBytes,
// used only when AllowOverflow is false and no break opportunity exists
// within budget (e.g. one very long unbroken token).
func hardCut(text string, start, maxBytes int) int {
	cut := start + maxBytes
	if cut >= len(text) {
		return len(text)
	}
	for cut > start && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut <= start {
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			size = 1
		}
		cut = start + size
	}
	return cut
}
