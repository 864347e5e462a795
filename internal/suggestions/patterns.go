package suggestions

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

// Entity labels produced by PatternRecognizer.
const (
	LabelEmail      = "EMAIL"
	LabelPhone      = "PHONE"
	LabelSSN        = "SSN"
	LabelCreditCard = "CREDIT_CARD"
	LabelGSTIN      = "GSTIN"
	LabelPAN        = "PAN"
	LabelIBAN       = "IBAN"
)

type pattern struct {
	label string
	re    *regexp.Regexp
	check func(string) bool
}

// PatternRecognizer finds well-formed identifiers with regular expressions. It
// needs no model files and is used when no model server is configured.
type PatternRecognizer struct {
	patterns []pattern
}

func NewPatternRecognizer() *PatternRecognizer {
	return &PatternRecognizer{patterns: []pattern{
		{label: LabelEmail, re: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
		{label: LabelGSTIN, re: regexp.MustCompile(`\b[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]\b`)},
		{label: LabelPAN, re: regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`)},
		{label: LabelIBAN, re: regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`), check: validIBAN},
		{label: LabelSSN, re: regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`), check: validSSN},
		{label: LabelCreditCard, re: regexp.MustCompile(`\b(?:[0-9][ -]?){12,18}[0-9]\b`), check: luhn},
		{label: LabelPhone, re: regexp.MustCompile(`(?:\+?[0-9]{1,3}[ .-]?)?(?:\([0-9]{2,4}\)|[0-9]{2,5})[ .-]?[0-9]{3,4}[ .-]?[0-9]{3,4}\b`), check: validPhone},
	}}
}

// Recognize returns each match once, in pattern order. A span claimed by an
// earlier pattern is not reported again by a later one.
func (r *PatternRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	var out []Entity
	var claimed [][2]int
	seen := make(map[Entity]bool)

	for _, p := range r.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if overlapsAny(claimed, loc[0], loc[1]) {
				continue
			}
			match := strings.TrimSpace(text[loc[0]:loc[1]])
			if p.check != nil && !p.check(match) {
				continue
			}
			claimed = append(claimed, [2]int{loc[0], loc[1]})
			e := Entity{Label: p.label, Text: match}
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func overlapsAny(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func luhn(s string) bool {
	d := digits(s)
	if len(d) < 13 || len(d) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(d) - 1; i >= 0; i-- {
		n := int(d[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

func validSSN(s string) bool {
	d := digits(s)
	return len(d) == 9 && d[:3] != "000" && d[:3] != "666" && d[0] != '9' && d[3:5] != "00" && d[5:] != "0000"
}

func validPhone(s string) bool {
	n := len(digits(s))
	return n >= 10 && n <= 13
}

// validIBAN applies the ISO 13616 mod-97 check.
func validIBAN(s string) bool {
	s = strings.ReplaceAll(s, " ", "")
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	s = s[4:] + s[:4]
	rem := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			rem = (rem*100 + v) % 97
		default:
			return false
		}
	}
	return rem == 1
}
