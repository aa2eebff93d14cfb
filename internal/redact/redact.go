// Package redact masks personally identifiable information in free text.
// Employees sometimes paste identifiers into policy questions; the audit log
// runs every question through a Detector before it is written.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Type categorizes a kind of personally identifiable information.
type Type string

const (
	TypeEmail       Type = "email"
	TypeCreditCard  Type = "credit_card"
	TypeSSN         Type = "ssn"
	TypeDateOfBirth Type = "date_of_birth"
	TypePhone       Type = "phone"
	TypeIPAddress   Type = "ip_address"
	TypeAccountNum  Type = "account_number"
)

// builtin patterns in priority order. When two matches start at the same
// offset and have the same length the earlier type wins.
var builtin = []struct {
	typ Type
	re  *regexp.Regexp
}{
	{TypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{TypeCreditCard, regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	{TypeSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{TypeDateOfBirth, regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12]\d|3[01])[/-](?:19|20)\d{2}\b`)},
	{TypePhone, regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{TypeIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{TypeAccountNum, regexp.MustCompile(`\b[A-Z]{0,3}\d{8,17}\b`)},
}

// Style determines how a match is masked.
type Style string

const (
	StyleRedact  Style = "redact"  // [REDACTED:type]
	StylePartial Style = "partial" // keep the last few characters
	StyleHash    Style = "hash"    // stable short digest, joinable across log lines
)

// ParseStyle accepts the config spelling of a style. Empty means StyleRedact.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleRedact:
		return StyleRedact, nil
	case StylePartial:
		return StylePartial, nil
	case StyleHash:
		return StyleHash, nil
	}
	return "", fmt.Errorf("unknown masking style %q", s)
}

// Match is one detected value.
type Match struct {
	Type   Type   `json:"type"`
	Value  string `json:"-"`
	Masked string `json:"masked"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Options configures a Detector.
type Options struct {
	// Types limits detection; empty enables every built-in type.
	Types []Type
	Style Style
	// Custom adds named patterns checked after the built-ins.
	Custom map[string]*regexp.Regexp
}

type pattern struct {
	typ  Type
	re   *regexp.Regexp
	rank int
}

// Detector finds and masks PII. It is safe for concurrent use.
type Detector struct {
	style    Style
	patterns []pattern
}

// New builds a detector. The zero Options detect everything and redact.
func New(opts Options) *Detector {
	enabled := func(Type) bool { return true }
	if len(opts.Types) > 0 {
		set := make(map[Type]bool, len(opts.Types))
		for _, t := range opts.Types {
			set[t] = true
		}
		enabled = func(t Type) bool { return set[t] }
	}

	d := &Detector{style: opts.Style}
	if d.style == "" {
		d.style = StyleRedact
	}
	for _, b := range builtin {
		if enabled(b.typ) {
			d.patterns = append(d.patterns, pattern{typ: b.typ, re: b.re, rank: len(d.patterns)})
		}
	}
	names := make([]string, 0, len(opts.Custom))
	for name := range opts.Custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d.patterns = append(d.patterns, pattern{typ: Type(name), re: opts.Custom[name], rank: len(d.patterns)})
	}
	return d
}

// Detect returns non-overlapping matches ordered by position. Overlaps are
// resolved leftmost-longest, so a card number is not also reported as a phone.
func (d *Detector) Detect(text string) []Match {
	type candidate struct {
		Match
		rank int
	}
	var all []candidate
	for _, p := range d.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			all = append(all, candidate{
				Match: Match{Type: p.typ, Value: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]},
				rank:  p.rank,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		return a.rank < b.rank
	})

	var out []Match
	end := -1
	for _, c := range all {
		if c.Start < end {
			continue
		}
		c.Masked = d.mask(c.Value, c.Type)
		out = append(out, c.Match)
		end = c.End
	}
	return out
}

// Mask returns text with every match replaced, plus the matches.
func (d *Detector) Mask(text string) (string, []Match) {
	matches := d.Detect(text)
	if len(matches) == 0 {
		return text, nil
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString(m.Masked)
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String(), matches
}

// MaskText is Mask without the match list.
func (d *Detector) MaskText(text string) string {
	masked, _ := d.Mask(text)
	return masked
}

func (d *Detector) mask(value string, t Type) string {
	switch d.style {
	case StylePartial:
		return partial(value, t)
	case StyleHash:
		sum := sha256.Sum256([]byte(value))
		return "HASH:" + string(t) + ":" + hex.EncodeToString(sum[:4])
	default:
		return "[REDACTED:" + string(t) + "]"
	}
}

var nonDigit = regexp.MustCompile(`\D`)

func partial(value string, t Type) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	switch t {
	case TypeCreditCard:
		digits := nonDigit.ReplaceAllString(value, "")
		return "****-****-****-" + digits[len(digits)-4:]
	case TypeSSN:
		return "***-**-" + value[len(value)-4:]
	case TypeEmail:
		if local, domain, ok := strings.Cut(value, "@"); ok && local != "" {
			return local[:1] + "***@" + domain
		}
	case TypePhone:
		digits := nonDigit.ReplaceAllString(value, "")
		if len(digits) >= 4 {
			return "(***) ***-" + digits[len(digits)-4:]
		}
	}
	return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
}
