// Package unicodex detects Unicode smuggling in prompts and tool arguments:
// invisible characters, bidirectional overrides, tag characters, and
// cross-script homoglyphs that make displayed text differ from what an
// agent actually executes.
package unicodex

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Severity ranks how a finding should influence the risk pipeline.
type Severity string

const (
	// SeverityHigh marks characters with no legitimate place in a prompt.
	SeverityHigh Severity = "high"
	// SeverityLow marks characters that are suspicious but can appear in
	// honest multilingual text.
	SeverityLow Severity = "low"
)

// Finding is a single smuggling indicator located in the input.
type Finding struct {
	Kind      string   // "zero-width", "bidi-override", "tag-char", "control-char", "homoglyph", "invalid-utf8"
	Detail    string
	Offset    int    // byte offset in the input
	Codepoint string // e.g. "U+200B"
	Severity  Severity
}

// Report is the outcome of scanning one input.
type Report struct {
	Clean    bool
	Findings []Finding

	// Sanitized is the input with flagged characters stripped.
	Sanitized string

	// NonASCII is a forensic dump of every non-ASCII codepoint seen.
	NonASCII string
}

// Worst returns the highest severity across findings, or "" when clean.
func (r Report) Worst() Severity {
	var worst Severity
	for _, f := range r.Findings {
		if f.Severity == SeverityHigh {
			return SeverityHigh
		}
		worst = f.Severity
	}
	return worst
}

// Scan inspects a prompt for Unicode smuggling indicators. It never fails:
// malformed UTF-8 is itself reported as a finding.
func Scan(input string) Report {
	rep := Report{Clean: true}
	var sanitized strings.Builder
	var seen []string

	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])

		if r == utf8.RuneError && size == 1 {
			rep.Clean = false
			rep.Findings = append(rep.Findings, Finding{
				Kind:      "invalid-utf8",
				Detail:    "invalid UTF-8 byte sequence",
				Offset:    i,
				Codepoint: fmt.Sprintf("0x%02X", input[i]),
				Severity:  SeverityHigh,
			})
			seen = append(seen, fmt.Sprintf("%02X", input[i]))
			i++
			continue
		}

		if f, flagged := classifyRune(r, i); flagged {
			rep.Clean = false
			rep.Findings = append(rep.Findings, f)
			// Flagged characters never reach the sanitized output.
			seen = append(seen, fmt.Sprintf("U+%04X", r))
			i += size
			continue
		}

		if r > 127 {
			seen = append(seen, fmt.Sprintf("U+%04X", r))
		}

		sanitized.WriteRune(r)
		i += size
	}

	rep.Sanitized = sanitized.String()
	if len(seen) > 0 {
		rep.NonASCII = strings.Join(seen, " ")
	}
	return rep
}

func classifyRune(r rune, pos int) (Finding, bool) {
	cp := fmt.Sprintf("U+%04X", r)

	if isZeroWidth(r) {
		return Finding{
			Kind:      "zero-width",
			Detail:    fmt.Sprintf("zero-width character %s can hide content from review", cp),
			Offset:    pos,
			Codepoint: cp,
			Severity:  SeverityHigh,
		}, true
	}

	if isBidiControl(r) {
		return Finding{
			Kind:      "bidi-override",
			Detail:    fmt.Sprintf("bidirectional control %s can make displayed text differ from executed text", cp),
			Offset:    pos,
			Codepoint: cp,
			Severity:  SeverityHigh,
		}, true
	}

	// Unicode tag block (U+E0001..U+E007F): a second, invisible ASCII.
	if r >= 0xE0001 && r <= 0xE007F {
		return Finding{
			Kind:      "tag-char",
			Detail:    fmt.Sprintf("tag character %s can smuggle hidden instructions", cp),
			Offset:    pos,
			Codepoint: cp,
			Severity:  SeverityHigh,
		}, true
	}

	if isUnsafeControl(r) {
		return Finding{
			Kind:      "control-char",
			Detail:    fmt.Sprintf("control character %s has no place in a prompt", cp),
			Offset:    pos,
			Codepoint: cp,
			Severity:  SeverityHigh,
		}, true
	}

	if latin, script, ok := lookupConfusable(r); ok {
		return Finding{
			Kind:      "homoglyph",
			Detail:    fmt.Sprintf("%s %s looks like Latin %q", script, cp, latin),
			Offset:    pos,
			Codepoint: cp,
			Severity:  SeverityLow,
		}, true
	}

	return Finding{}, false
}

func isZeroWidth(r rune) bool {
	switch r {
	case '​', // ZERO WIDTH SPACE
		'‌', // ZERO WIDTH NON-JOINER
		'‍', // ZERO WIDTH JOINER
		'\uFEFF', // ZERO WIDTH NO-BREAK SPACE (BOM)
		'⁠', // WORD JOINER
		'᠎', // MONGOLIAN VOWEL SEPARATOR
		'‎', // LEFT-TO-RIGHT MARK
		'‏': // RIGHT-TO-LEFT MARK
		return true
	}
	return false
}

func isBidiControl(r rune) bool {
	switch r {
	case '‪', // LEFT-TO-RIGHT EMBEDDING
		'‫', // RIGHT-TO-LEFT EMBEDDING
		'‬', // POP DIRECTIONAL FORMATTING
		'‭', // LEFT-TO-RIGHT OVERRIDE
		'‮', // RIGHT-TO-LEFT OVERRIDE
		'⁦', // LEFT-TO-RIGHT ISOLATE
		'⁧', // RIGHT-TO-LEFT ISOLATE
		'⁨', // FIRST STRONG ISOLATE
		'⁩': // POP DIRECTIONAL ISOLATE
		return true
	}
	return false
}

// isUnsafeControl flags C0/C1 controls and DEL; tab, newline and carriage
// return are ordinary prompt whitespace.
func isUnsafeControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	if r <= 0x1F {
		return true
	}
	if r == 0x7F {
		return true
	}
	if r >= 0x80 && r <= 0x9F {
		return true
	}
	return false
}

// lookupConfusable reports whether r is a known cross-script lookalike of a
// Latin letter, and which script it belongs to.
func lookupConfusable(r rune) (latin rune, script string, ok bool) {
	if latin, ok = confusables[r]; !ok {
		return 0, "", false
	}
	switch {
	case unicode.Is(unicode.Cyrillic, r):
		return latin, "Cyrillic", true
	case unicode.Is(unicode.Greek, r):
		return latin, "Greek", true
	default:
		return latin, "non-Latin", true
	}
}

// confusables maps non-Latin letters to the Latin letter they imitate.
// Sourced from the IDN homograph families that matter for commands and
// hostnames, not the full Unicode confusables table.
var confusables = map[rune]rune{
	// Cyrillic
	'а': 'a', 'А': 'A',
	'В': 'B',
	'с': 'c', 'С': 'C',
	'е': 'e', 'Е': 'E',
	'Н': 'H',
	'і': 'i', 'І': 'I',
	'К': 'K',
	'М': 'M',
	'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P',
	'Т': 'T',
	'х': 'x', 'Х': 'X',
	'у': 'y', 'У': 'Y',

	// Greek
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I',
	'Κ': 'K', 'Μ': 'M', 'Ν': 'N',
	'Ο': 'O', 'ο': 'o',
	'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y', 'Ζ': 'Z',
}
