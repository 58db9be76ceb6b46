// Package globpat implements mandate scope glob matching: anchored,
// case-sensitive tool-name patterns where a single `*` excludes `.` and a
// double `**` includes it. Ported byte-for-byte from
// original_source/crates/assay-evidence/src/mandate/glob.rs's segment
// grammar and backtracking matcher; not built on gobwas/glob because that
// library's `*` has no per-segment dot-exclusion/-inclusion distinction.
package globpat

import "fmt"

// Security limits, matched to the original to bound backtracking cost.
const (
	MaxToolNameLength = 256
	MaxPatternLength  = 256
	MaxSegments       = 32
)

// Error reports an invalid glob pattern.
type Error struct {
	Pattern string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid glob pattern %q: %s", e.Pattern, e.Message)
}

type segmentKind int

const (
	segLiteral segmentKind = iota
	segSingleGlob
	segDoubleGlob
)

type segment struct {
	kind    segmentKind
	literal string
}

// Pattern is a compiled glob pattern.
type Pattern struct {
	pattern  string
	segments []segment
}

// New compiles pattern, rejecting patterns that exceed the length/segment
// bounds or that end in a trailing unescaped backslash.
func New(pattern string) (*Pattern, error) {
	if len(pattern) > MaxPatternLength {
		truncated := pattern
		if len(truncated) > 50 {
			truncated = truncated[:50] + "..."
		}
		return nil, &Error{Pattern: truncated, Message: fmt.Sprintf("pattern length %d exceeds maximum %d", len(pattern), MaxPatternLength)}
	}

	segments, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	if len(segments) > MaxSegments {
		return nil, &Error{Pattern: pattern, Message: fmt.Sprintf("pattern has %d segments, exceeds maximum %d", len(segments), MaxSegments)}
	}
	return &Pattern{pattern: pattern, segments: segments}, nil
}

func parsePattern(pattern string) ([]segment, error) {
	var segments []segment
	var literal []rune
	runes := []rune(pattern)

	flush := func() {
		if len(literal) > 0 {
			segments = append(segments, segment{kind: segLiteral, literal: string(literal)})
			literal = literal[:0]
		}
	}

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '\\':
			i++
			if i >= len(runes) {
				return nil, &Error{Pattern: pattern, Message: "trailing backslash"}
			}
			literal = append(literal, runes[i])
		case '*':
			flush()
			if i+1 < len(runes) && runes[i+1] == '*' {
				i++
				segments = append(segments, segment{kind: segDoubleGlob})
			} else {
				segments = append(segments, segment{kind: segSingleGlob})
			}
		default:
			literal = append(literal, c)
		}
	}
	flush()
	return segments, nil
}

// Matches reports whether name fully matches the compiled pattern. Names
// longer than MaxToolNameLength always fail to match.
func (p *Pattern) Matches(name string) bool {
	if len(name) > MaxToolNameLength {
		return false
	}
	return matchSegments(p.segments, name)
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.pattern }

func matchSegments(segments []segment, input string) bool {
	if len(segments) == 0 {
		return input == ""
	}
	head := segments[0]
	rest := segments[1:]

	switch head.kind {
	case segLiteral:
		if len(input) < len(head.literal) || input[:len(head.literal)] != head.literal {
			return false
		}
		return matchSegments(rest, input[len(head.literal):])

	case segSingleGlob:
		for i := 0; i <= len(input); i++ {
			prefix, suffix := input[:i], input[i:]
			if containsDot(prefix) {
				break
			}
			if matchSegments(rest, suffix) {
				return true
			}
		}
		return false

	case segDoubleGlob:
		for i := 0; i <= len(input); i++ {
			if matchSegments(rest, input[i:]) {
				return true
			}
		}
		return false
	}
	return false
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

// MatchesAny compiles each pattern and reports whether name matches any of
// them, short-circuiting on the first match.
func MatchesAny(name string, patterns []string) (bool, error) {
	for _, p := range patterns {
		glob, err := New(p)
		if err != nil {
			return false, err
		}
		if glob.Matches(name) {
			return true, nil
		}
	}
	return false, nil
}

// Set is a pre-compiled collection of patterns for repeated batch matching.
type Set struct {
	patterns []*Pattern
}

// NewSet compiles every pattern in patterns.
func NewSet(patterns []string) (*Set, error) {
	compiled := make([]*Pattern, 0, len(patterns))
	for _, p := range patterns {
		glob, err := New(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, glob)
	}
	return &Set{patterns: compiled}, nil
}

// Matches reports whether name matches any pattern in the set.
func (s *Set) Matches(name string) bool {
	for _, p := range s.patterns {
		if p.Matches(name) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the set has no patterns.
func (s *Set) IsEmpty() bool { return len(s.patterns) == 0 }
