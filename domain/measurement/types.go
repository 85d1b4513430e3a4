package measurement

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is the stable key of one competing sampling strategy (e.g. "distBased")
type Condition string

// Parameter is one experiment configuration level (the t in t-wise interactions)
type Parameter int

// CaseStudy names one subject system
type CaseStudy string

// Sample is the raw set of run measurements (error rates, 0-100) of one cell
type Sample []float64

// CellKey addresses one (case study, condition, parameter) cell
type CellKey struct {
	CaseStudy CaseStudy
	Condition Condition
	Parameter Parameter
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s/%s/t=%d", k.CaseStudy, k.Condition, k.Parameter)
}

// ExportRow is one flattened (case study, condition, parameter, run value) tuple
type ExportRow struct {
	CaseStudy CaseStudy
	Condition Condition
	Parameter Parameter
	Value     float64
}

// ParseConditions splits a comma-separated condition list, trimming blanks
func ParseConditions(list string) []Condition {
	parts := splitList(list)
	out := make([]Condition, len(parts))
	for i, p := range parts {
		out[i] = Condition(p)
	}
	return out
}

// ParseLabels splits a comma-separated label list, trimming blanks
func ParseLabels(list string) []string {
	return splitList(list)
}

// ParseParameter parses "2" or "t=2"
func ParseParameter(s string) (Parameter, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "t=")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid parameter %q: %w", s, err)
	}
	return Parameter(n), nil
}

func splitList(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ContainsCondition reports whether c is in set
func ContainsCondition(set []Condition, c Condition) bool {
	for _, s := range set {
		if s == c {
			return true
		}
	}
	return false
}
