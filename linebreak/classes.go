// Package linebreak implements outbound message splitting along Unicode
// UAX#14 line-break opportunities, so long PRIVMSG/NOTICE text is split at
// a linguistically sensible boundary instead of mid-word or mid-grapheme.
//
// This is a scoped implementation: it covers the UAX#14 classes and rules
// that matter for everyday chat text (Latin/Cyrillic/Greek scripts, CJK
// ideographs, digits/punctuation, emoji sequences, regional indicators)
// rather than the complete generated Unicode line-break property table.
// Scripts UAX#14 defers to "complex context" (Thai, Lao, Khmer...) are
// treated as plain alphabetic text, matching what most IRC clients do in
// practice since dictionary-based breaking needs a language-specific
// segmenter UAX#14 itself doesn't provide.
package linebreak

import (
	"unicode"

	"golang.org/x/text/width"
)

// class is a (deliberately scoped) subset of the UAX#14 line-break
// property values.
type class int

const (
	classXX class = iota // unassigned/unknown: treated as AL
	classBK               // mandatory break (vertical tab, form feed, NEL, LS, PS)
	classCR
	classLF
	classNL
	classSP  // space
	classWJ  // word joiner / zero-width no-break space
	classGL  // non-breaking glue
	classZW  // zero width space
	classCM  // combining mark
	classCB  // contingent break opportunity
	classBA  // break opportunity after
	classBB  // break opportunity before
	classB2  // break opportunity before and after
	classHY  // hyphen
	classNS  // nonstarter
	classOP  // open punctuation
	classCL  // close punctuation
	classCP  // close parenthesis
	classQU  // quotation mark
	classEX  // exclamation/interrogation
	classIS  // infix numeric separator
	classSY  // symbols allowing a break after
	classPR  // prefix numeric
	classPO  // postfix numeric
	classNU  // numeric
	classAL  // alphabetic (default)
	classID  // ideographic
	classIN  // inseparable characters (leaders)
	classRI  // regional indicator
	classEB  // emoji base
	classEM  // emoji modifier
	classZWJ // zero width joiner
)

// classify maps a rune to its line-break class. This is a hand-coded
// approximation of the generated UAX#14 property table: it recognizes the
// control characters and punctuation categories that drive the rules in
// rules.go by name, and falls back to general Unicode categories
// (unicode.IsDigit, the Ps/Pe/Pi/Pf punctuation categories,
// unicode.IsSpace, and golang.org/x/text/width's East Asian Width, which
// sends remaining wide/fullwidth characters to classID) for everything else.
func classify(r rune) class {
	switch r {
	case '\n':
		return classLF
	case '\r':
		return classCR
	case 0x0B, 0x0C, 0x85, 0x2028, 0x2029:
		return classBK
	case ' ':
		return classSP
	case '\t':
		return classBA
	case 0x00A0, 0x202F, 0x2007, 0xFEFF, 0x2060:
		return classGL
	case 0x200B:
		return classZW
	case 0x200D:
		return classZWJ
	case '-', 0x2010:
		return classHY
	case '(', '[', '{', 0x0F3A, 0x2045:
		return classOP
	case ')', ']', '}':
		return classCP
	case '"', '\'', 0x2018, 0x2019, 0x201C, 0x201D:
		return classQU
	case '!', '?':
		return classEX
	case ',':
		return classIS
	case '/':
		return classSY
	case '#', '$':
		return classPR
	case '%':
		return classPO
	case '&':
		return classAL
	case 0x3031, 0x3032, 0x2025, 0x2026:
		return classIN
	}

	switch {
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return classRI
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return classEM
	case isEmojiBase(r):
		return classEB
	case unicode.Is(unicode.Mn, r), unicode.Is(unicode.Me, r), unicode.Is(unicode.Mc, r):
		return classCM
	case unicode.IsDigit(r):
		return classNU
	case unicode.Is(unicode.Ps, r):
		return classOP
	case unicode.Is(unicode.Pe, r):
		return classCL
	case unicode.Is(unicode.Pi, r), unicode.Is(unicode.Pf, r):
		return classQU
	case unicode.IsSpace(r):
		return classSP
	}

	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return classID
	}

	if unicode.IsLetter(r) || unicode.IsMark(r) {
		return classAL
	}

	return classAL
}

// isEmojiBase reports whether r is a common emoji base character that may
// be followed by a skin-tone modifier (classEM). This covers the most
// frequently used ranges rather than the full emoji-data.txt Emoji_Modifier_Base
// property.
func isEmojiBase(r rune) bool {
	switch {
	case r >= 0x1F466 && r <= 0x1F478:
		return true
	case r >= 0x1F385 && r <= 0x1F3FA:
		return false
	case r == 0x261D || r == 0x270A || r == 0x270B || r == 0x270C:
		return true
	case r >= 0x1F590 && r <= 0x1F596:
		return true
	case r >= 0x1F64B && r <= 0x1F64F:
		return true
	default:
		return false
	}
}
