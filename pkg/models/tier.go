package models

import "strings"

// Complexity is the difficulty bucket of a subtask or a whole plan.
type Complexity string

const (
	// ComplexityLow is routine work.
	ComplexityLow Complexity = "low"
	// ComplexityMedium is the default bucket.
	ComplexityMedium Complexity = "medium"
	// ComplexityHigh is demanding work.
	ComplexityHigh Complexity = "high"
	// ComplexityExpert is work whose failure aborts the session.
	ComplexityExpert Complexity = "expert"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh, ComplexityExpert:
		return true
	default:
		return false
	}
}

// Score maps the bucket onto 1..4. Unknown values score as medium.
func (c Complexity) Score() int {
	switch c {
	case ComplexityLow:
		return 1
	case ComplexityHigh:
		return 3
	case ComplexityExpert:
		return 4
	default:
		return 2
	}
}

// ComplexityFromScore buckets a mean complexity score.
func ComplexityFromScore(avg float64) Complexity {
	switch {
	case avg < 1.5:
		return ComplexityLow
	case avg < 2.5:
		return ComplexityMedium
	case avg < 3.5:
		return ComplexityHigh
	default:
		return ComplexityExpert
	}
}

// ParseComplexity normalizes free text, defaulting to medium.
func ParseComplexity(s string) Complexity {
	c := Complexity(normalize(s))
	if c.Valid() {
		return c
	}
	return ComplexityMedium
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
