package linebreak

// opportunity classifies what kind of line-break opportunity (if any)
// exists between two adjacent characters.
type opportunity int

const (
	oppProhibited opportunity = iota
	oppAllowed
	oppMandatory
)

// resolve applies LB1: classes UAX#14 doesn't expect line-breaking
// algorithms to special-case get resolved to their defaults before the
// pairwise rules run. Our classify() already folds most of these down
// (complex-context scripts, unassigned code points, surrogates) to classAL
// at assignment time, so resolve here only handles classCB, which has no
// single correct resolution and is treated as classBA (breakable after)
// the same way most simplified implementations treat it.
func resolve(c class) class {
	if c == classCB {
		return classBA
	}
	return c
}

// between implements the UAX#14 pairwise/contextual rules (LB4-LB31) in
// priority order: the first rule whose condition matches the (before,
// after) pair decides the outcome. ctx carries the lookback state LB30a
// needs (regional indicator pairing); LB9's combining-mark absorption is
// applied by FindBreaks before between() is called.
func between(before, after class, ctx *ruleContext) opportunity {
	before = resolve(before)
	after = resolve(after)

	switch {
	// LB4: always break after BK (mandatory).
	case before == classBK:
		return oppMandatory
	// LB5: always break after CR/LF/NL (mandatory), except CR×LF.
	case before == classCR && after == classLF:
		return oppProhibited
	case before == classCR, before == classLF, before == classNL:
		return oppMandatory
	// LB6: never break before a mandatory-break class.
	case after == classBK, after == classCR, after == classLF, after == classNL:
		return oppProhibited
	// LB7: never break before SP or ZW.
	case after == classSP, after == classZW:
		return oppProhibited
	// LB8: break after ZW, unless followed by more spaces (handled by LB7
	// above consuming the SP case before we reach ZW×non-SP).
	case before == classZW:
		return oppAllowed
	// LB8a: ZWJ glues emoji sequences together; never break after it.
	case before == classZWJ:
		return oppProhibited
	// LB9: combining marks attach to the preceding character. FindBreaks
	// applies this before calling between() by giving each CM/ZWJ the
	// preceding character's class; this case covers a CM/ZWJ pair as given.
	case after == classCM, after == classZWJ:
		if before == classSP || before == classBK || before == classCR ||
			before == classLF || before == classNL || before == classZW {
			break
		}
		return oppProhibited
	// LB11: never break before or after WJ.
	case before == classWJ, after == classWJ:
		return oppProhibited
	// LB12: never break after GL.
	case before == classGL:
		return oppProhibited
	// LB12a: never break before GL, unless preceded by a class that
	// itself permits a break there (SP/BA/HY).
	case after == classGL && before != classSP && before != classBA && before != classHY:
		return oppProhibited
	// LB13: never break before ']' ')' '!' ';' '/' classes.
	case after == classCL, after == classCP, after == classEX, after == classIS, after == classSY:
		return oppProhibited
	// LB14: never break directly after OP. LB14-LB17 check only the
	// adjacent pair: intervening spaces are not looked through, so LB18
	// still allows a break after the spaces (e.g. in OP SP AL).
	case before == classOP:
		return oppProhibited
	// LB15: never break between QU and a directly following OP.
	case before == classQU && after == classOP:
		return oppProhibited
	// LB16: never break between CL/CP and a directly following NS.
	case (before == classCL || before == classCP) && after == classNS:
		return oppProhibited
	// LB17: never break between two adjacent B2.
	case before == classB2 && after == classB2:
		return oppProhibited
	// LB18: break after spaces, if nothing above already prohibited it.
	case before == classSP:
		return oppAllowed
	// LB19: never break before or after a quotation mark.
	case before == classQU, after == classQU:
		return oppProhibited
	// LB20: break before and after CB (already resolved to BA above, so
	// this is effectively unreachable; kept for rule-order fidelity).
	case before == classCB, after == classCB:
		return oppAllowed
	// LB21: never break before HY/BA/NS, or after BB.
	case after == classBA, after == classHY, after == classNS, before == classBB:
		return oppProhibited
	// LB22: never break before IN.
	case after == classIN:
		return oppProhibited
	// LB23: never break between digits and letters (NU AL / AL NU), or
	// around a prefix/postfix (LB23a folded in).
	case (before == classAL && after == classNU), (before == classNU && after == classAL):
		return oppProhibited
	case before == classPR && (after == classID || after == classEB || after == classEM):
		return oppProhibited
	case (before == classID || before == classEB || before == classEM) && after == classPO:
		return oppProhibited
	// LB24: never break between numeric prefix/postfix and letters.
	case (before == classPR || before == classPO) && after == classAL:
		return oppProhibited
	case before == classAL && (after == classPR || after == classPO):
		return oppProhibited
	// LB25: never break within numeric expressions (simplified: any
	// adjacency of NU/SY/IS/PR/PO is kept together).
	case isNumericGlue(before, after):
		return oppProhibited
	// LB26/27: Hangul syllable glue is out of scope (classH2/H3/JL/JV/JT
	// are folded to classAL by classify), so nothing to do here.
	// LB28: never break between alphabetic characters.
	case before == classAL && after == classAL:
		return oppProhibited
	// LB29: never break between IS and a following letter.
	case before == classIS && after == classAL:
		return oppProhibited
	// LB30: never break between a letter/number and a following open
	// punctuation mark, or between a close parenthesis and a following
	// letter/number. Wide (CJK) marks are not excluded: classify() gives
	// every Ps character classOP whatever its East Asian Width.
	case (before == classAL || before == classNU) && after == classOP:
		return oppProhibited
	case before == classCP && (after == classAL || after == classNU):
		return oppProhibited
	// LB30a: never break between two regional indicators that pair up
	// (handled by the caller via ctx.riRunParity, since this rule depends
	// on whether an even or odd number of RI characters preceded it).
	case before == classRI && after == classRI:
		if ctx != nil && ctx.riRunParity%2 == 1 {
			return oppProhibited
		}
		return oppAllowed
	// LB30b: never break between an emoji base and its modifier.
	case before == classEB && after == classEM:
		return oppProhibited
	}

	// LB31: break is allowed everywhere else.
	return oppAllowed
}

// isNumericGlue implements a simplified LB25: keeps numeric expressions
// (digits, numeric separators, and currency/percent affixes) glued
// together rather than modeling the full state-machine grammar UAX#14
// defines for this rule.
func isNumericGlue(before, after class) bool {
	numericish := func(c class) bool {
		switch c {
		case classNU, classSY, classIS, classPR, classPO:
			return true
		default:
			return false
		}
	}
	return numericish(before) && numericish(after) && (before == classNU || after == classNU)
}

// ruleContext carries the small amount of state between() needs beyond the
// immediate pair of classes.
type ruleContext struct {
	// riRunParity is the number of consecutive regional indicator
	// characters ending with the before character; between() checks its
	// parity.
	riRunParity int
}
