package linebreak

// Break describes one candidate breakpoint found by FindBreaks: a byte
// offset into the original string, and whether breaking there is merely
// allowed or mandatory (a hard line boundary, e.g. from an embedded '\n').
type Break struct {
	Offset    int
	Mandatory bool
}

// FindBreaks walks s and returns every position where UAX#14 permits or
// requires a line break, in ascending order. Offset 0 and len(s) are never
// included; a breakpoint at len(s) is implicit.
func FindBreaks(s string) []Break {
	if s == "" {
		return nil
	}

	runes := make([]rune, 0, len(s))
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		runes = append(runes, r)
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))

	classes := make([]class, len(runes))
	for i, r := range runes {
		classes[i] = classify(r)
	}

	// LB9: a combining mark (or ZWJ) attaches to whatever precedes it, so
	// for the purposes of the pairwise table it takes on the preceding
	// character's effective class rather than classCM/classZWJ. SP/BK/CR
	// /LF/NL/ZW are never combined-with, matching the exception already
	// encoded in between()'s LB9 case.
	effective := make([]class, len(classes))
	copy(effective, classes)
	for i := 1; i < len(effective); i++ {
		if classes[i] != classCM && classes[i] != classZWJ {
			continue
		}
		switch effective[i-1] {
		case classSP, classBK, classCR, classLF, classNL, classZW:
			// leave as-is; LB9's exception applies
		default:
			effective[i] = effective[i-1]
		}
	}

	var breaks []Break
	riParity := 0
	for i := 0; i < len(runes)-1; i++ {
		if effective[i] == classRI {
			riParity++
		} else {
			riParity = 0
		}
		ctx := &ruleContext{riRunParity: riParity}
		op := between(effective[i], effective[i+1], ctx)
		switch op {
		case oppMandatory:
			breaks = append(breaks, Break{Offset: offsets[i+1], Mandatory: true})
		case oppAllowed:
			breaks = append(breaks, Break{Offset: offsets[i+1], Mandatory: false})
		}
	}

	return breaks
}
