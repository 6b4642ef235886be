// Package state tracks the set of known users and channels for a Session:
// nicknames, channel membership, and the network's negotiated casemapping,
// rekeyed whenever a nick changes, a channel is renamed, or ISUPPORT
// advertises a different CASEMAPPING than the one the store started with.
package state

import "strings"

// CaseMapping identifies which IRC casefolding rule a network uses to
// decide whether two nicknames or channel names are "the same", per the
// CASEMAPPING token in RPL_ISUPPORT (005).
type CaseMapping int

const (
	// CaseMapRFC1459 folds '{', '}', '|', '~' to '[', ']', '\\', '^' in
	// addition to ASCII case, the historical IRC default.
	CaseMapRFC1459 CaseMapping = iota
	// CaseMapRFC1459Strict is the same as CaseMapRFC1459 but excludes
	// the '~'/'^' pair, matching what some networks call "strict".
	CaseMapRFC1459Strict
	// CaseMapASCII folds only ASCII a-z/A-Z.
	CaseMapASCII
	// CaseMapRFC7613 approximates PRECIS-based casefolding (modern
	// networks advertising "CASEMAPPING=rfc7613"), implemented here as
	// simple Unicode case folding since a full PRECIS IdentifierClass
	// profile is out of scope for name comparison.
	CaseMapRFC7613
)

// ParseCaseMapping maps an ISUPPORT CASEMAPPING token to a CaseMapping,
// defaulting to CaseMapRFC1459 for unrecognized or missing values per the
// protocol's historical default.
func ParseCaseMapping(token string) CaseMapping {
	switch strings.ToLower(token) {
	case "ascii":
		return CaseMapASCII
	case "rfc1459-strict":
		return CaseMapRFC1459Strict
	case "rfc7613", "utf-8":
		return CaseMapRFC7613
	default:
		return CaseMapRFC1459
	}
}

// Fold returns the casefolded form of s used as a store lookup key.
func (c CaseMapping) Fold(s string) string {
	switch c {
	case CaseMapASCII:
		return strings.ToLower(s)
	case CaseMapRFC1459Strict:
		return foldRunes(s, "{}|", "[]\\")
	case CaseMapRFC7613:
		return strings.ToLower(strings.TrimSpace(s))
	case CaseMapRFC1459:
		fallthrough
	default:
		return foldRunes(s, "{}|~", "[]\\^")
	}
}

func foldRunes(s, from, to string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if idx := strings.IndexRune(from, r); idx >= 0 {
			b.WriteRune([]rune(to)[idx])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Equal reports whether a and b are the same name under this casemapping.
func (c CaseMapping) Equal(a, b string) bool {
	return c.Fold(a) == c.Fold(b)
}
