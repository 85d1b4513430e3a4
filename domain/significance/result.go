package significance

import (
	"fmt"
	"math"
	"sort"

	"errtable/domain/measurement"
)

// TestKind selects the omnibus question asked of the statistics backend
type TestKind string

const (
	// Kruskal asks whether any condition differs in location (Kruskal-Wallis,
	// pairwise rank-sum tests with effect sizes)
	Kruskal TestKind = "kruskal"
	// Levene asks whether any condition differs in variance (Levene, pairwise F tests)
	Levene TestKind = "levene"
)

// Valid reports whether k is a known kind
func (k TestKind) Valid() bool {
	return k == Kruskal || k == Levene
}

// OmnibusTestName is the display name of the omnibus test
func (k TestKind) OmnibusTestName() string {
	if k == Levene {
		return "Levene's test"
	}
	return "Kruskal-Wallis test"
}

// PairwiseTestName is the display name of the pairwise test
func (k TestKind) PairwiseTestName() string {
	if k == Levene {
		return "F-test"
	}
	return "Mann-Whitney U test"
}

// PairwiseRecord is one directional pairwise comparison
type PairwiseRecord struct {
	Label      string  `json:"label"` // "A - B"
	PValue     float64 `json:"p_value"`
	EffectSize float64 `json:"effect_size"`
	HasEffect  bool    `json:"has_effect"`
}

// OmnibusResult is the outcome of one omnibus test at one parameter
type OmnibusResult struct {
	PValue   float64          `json:"p_value"`
	Pairwise []PairwiseRecord `json:"pairwise"`
}

// Results maps each parameter to its omnibus result
type Results map[measurement.Parameter]OmnibusResult

// PairLabel builds the directional label used by the statistics backend
func PairLabel(a, b measurement.Condition) string {
	return fmt.Sprintf("%s - %s", a, b)
}

// Lookup finds the record for the comparison "a - b" at param. The reverse
// direction is never tried. ok is false when the pair was not tested.
func (r Results) Lookup(param measurement.Parameter, a, b measurement.Condition) (PairwiseRecord, bool) {
	res, found := r[param]
	if !found {
		return PairwiseRecord{}, false
	}
	label := PairLabel(a, b)
	for _, rec := range res.Pairwise {
		if rec.Label == label {
			return rec, true
		}
	}
	return PairwiseRecord{}, false
}

// Omnibus returns the omnibus p-value at param, NaN if absent
func (r Results) Omnibus(param measurement.Parameter) float64 {
	res, ok := r[param]
	if !ok {
		return math.NaN()
	}
	return res.PValue
}

// Parameters returns the parameters present in ascending order
func (r Results) Parameters() []measurement.Parameter {
	out := make([]measurement.Parameter, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
