package sanitization

import (
	"regexp"
	"strings"
)

type (
	// Sanitizer rewrites arbitrary input into a valid name by applying its rules in order.
	Sanitizer struct {
		rules     []Rule
		maxLength int
	}

	Rule struct {
		Pattern     *regexp.Regexp
		Replacement string
		// Lowercase lower-cases the input before the rule's pattern is applied.
		Lowercase bool
	}
)

// NewSanitizer creates a Sanitizer. A maxLength of 0 means unbounded.
func NewSanitizer(maxLength int, rules ...Rule) *Sanitizer {
	return &Sanitizer{rules: rules, maxLength: maxLength}
}

// Replace returns a rule replacing every match of pattern. It panics if pattern does not compile.
func Replace(pattern, replacement string) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Replacement: replacement}
}

// Strip returns a rule removing every match of pattern.
func Strip(pattern string) Rule {
	return Replace(pattern, "")
}

// Lower returns a copy of r that lower-cases its input first.
func (r Rule) Lower() Rule {
	r.Lowercase = true
	return r
}

func (s *Sanitizer) Apply(input string) string {
	out := input
	for _, r := range s.rules {
		if r.Lowercase {
			out = strings.ToLower(out)
		}
		out = r.Pattern.ReplaceAllString(out, r.Replacement)
	}
	if s.maxLength > 0 && len(out) > s.maxLength {
		out = out[:s.maxLength]
	}
	return out
}
