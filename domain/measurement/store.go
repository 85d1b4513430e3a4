package measurement

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Store holds every raw sample of one analysis run. The loader fills it once with
// Set; afterwards it is only read.
type Store struct {
	samples map[CellKey]Sample
	studies map[CaseStudy]struct{}
}

// NewStore creates an empty measurement store
func NewStore() *Store {
	return &Store{
		samples: make(map[CellKey]Sample),
		studies: make(map[CaseStudy]struct{}),
	}
}

// Set stores the sample of a cell, replacing any previous one. A nil or empty
// sample still registers the case study so that it shows up as a row of NaNs.
func (s *Store) Set(cs CaseStudy, cond Condition, param Parameter, sample Sample) {
	s.studies[cs] = struct{}{}
	if len(sample) == 0 {
		delete(s.samples, CellKey{cs, cond, param})
		return
	}
	cp := make(Sample, len(sample))
	copy(cp, sample)
	s.samples[CellKey{cs, cond, param}] = cp
}

// AddCaseStudy registers a case study without data
func (s *Store) AddCaseStudy(cs CaseStudy) {
	s.studies[cs] = struct{}{}
}

// Sample returns a copy of the raw sample of a cell (empty when absent)
func (s *Store) Sample(cs CaseStudy, cond Condition, param Parameter) Sample {
	sample := s.samples[CellKey{cs, cond, param}]
	cp := make(Sample, len(sample))
	copy(cp, sample)
	return cp
}

// Mean returns the arithmetic mean of a cell, NaN iff the sample is empty
func (s *Store) Mean(cs CaseStudy, cond Condition, param Parameter) float64 {
	sample := s.samples[CellKey{cs, cond, param}]
	if len(sample) == 0 {
		return math.NaN()
	}
	mean, err := stats.Mean(stats.Float64Data(sample))
	if err != nil {
		return math.NaN()
	}
	return mean
}

// StdDev returns the sample standard deviation of a cell, 0 for fewer than two runs
func (s *Store) StdDev(cs CaseStudy, cond Condition, param Parameter) float64 {
	sample := s.samples[CellKey{cs, cond, param}]
	if len(sample) < 2 {
		return 0
	}
	sd, err := stats.StandardDeviationSample(stats.Float64Data(sample))
	if err != nil {
		return 0
	}
	return sd
}

// CaseStudies returns every registered case study in lexical order
func (s *Store) CaseStudies() []CaseStudy {
	out := make([]CaseStudy, 0, len(s.studies))
	for cs := range s.studies {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of non-empty cells
func (s *Store) Len() int {
	return len(s.samples)
}

// Export flattens every run value of the given conditions and parameters into
// rows, ordered by case study, condition order and parameter order. Conditions in
// exclude are skipped.
func (s *Store) Export(conditions []Condition, params []Parameter, exclude []Condition) []ExportRow {
	var rows []ExportRow
	for _, cs := range s.CaseStudies() {
		for _, cond := range conditions {
			if ContainsCondition(exclude, cond) {
				continue
			}
			for _, p := range params {
				for _, v := range s.samples[CellKey{cs, cond, p}] {
					rows = append(rows, ExportRow{CaseStudy: cs, Condition: cond, Parameter: p, Value: v})
				}
			}
		}
	}
	return rows
}
