package ranking

import (
	"fmt"
	"math"
	"sort"

	"errtable/domain/core"
)

// DefaultAlpha is the significance level of the leader/runner-up tie-break test
const DefaultAlpha = 0.05

// TwoSampleTester returns the two-sided p-value of a two-sample location test
type TwoSampleTester interface {
	PValue(a, b []float64) (float64, error)
}

// TesterFunc adapts a function to TwoSampleTester
type TesterFunc func(a, b []float64) (float64, error)

// PValue calls f(a, b)
func (f TesterFunc) PValue(a, b []float64) (float64, error) {
	return f(a, b)
}

// RankVector holds one rank per condition, lower is better.
//
// When the tie-break test finds no significant difference, the leader is demoted
// from 1 to 2 and Collapsed is set: leader and runner-up then share the best tier.
type RankVector struct {
	Ranks     []int   `json:"ranks"`
	Collapsed bool    `json:"collapsed"`
	Tested    bool    `json:"tested"`
	PValue    float64 `json:"p_value"` // NaN when no test ran
}

// IsBest reports whether position i belongs to the best tier
func (v RankVector) IsBest(i int) bool {
	if i < 0 || i >= len(v.Ranks) {
		return false
	}
	r := v.Ranks[i]
	return r == 1 || (v.Collapsed && r == 2)
}

// BestCount returns the number of positions in the best tier
func (v RankVector) BestCount() int {
	n := 0
	for i := range v.Ranks {
		if v.IsBest(i) {
			n++
		}
	}
	return n
}

// Engine ranks conditions by mean and decides via a rank-sum test whether the
// apparent winner is significantly better than the next tier.
type Engine struct {
	tester TwoSampleTester
	alpha  float64
}

// NewEngine creates a rank engine. A non-positive alpha falls back to DefaultAlpha.
func NewEngine(tester TwoSampleTester, alpha float64) *Engine {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	return &Engine{tester: tester, alpha: alpha}
}

// Alpha returns the significance level in use
func (e *Engine) Alpha() float64 {
	return e.alpha
}

// Rank produces the rank vector of means; samples[i] backs means[i].
//
// Only the leader and the runner-up tier are ever compared. Lower tiers are never
// promoted. If either side has no data the provisional order is kept.
func (e *Engine) Rank(means []float64, samples [][]float64) (RankVector, error) {
	if len(means) != len(samples) {
		return RankVector{}, core.NewLengthMismatchError("means and samples", len(means), len(samples))
	}

	vec := RankVector{Ranks: ProvisionalRanks(means), PValue: math.NaN()}
	if len(means) < 2 {
		return vec, nil
	}

	leader := indexOfRank(vec.Ranks, 1)
	runnerUp := indexOfRank(vec.Ranks, nextRank(vec.Ranks))
	if leader < 0 || runnerUp < 0 {
		return vec, nil
	}
	if math.IsNaN(means[leader]) || math.IsNaN(means[runnerUp]) {
		return vec, nil
	}

	first, second := broadcast(samples[leader], samples[runnerUp])
	if len(first) == 0 || len(second) == 0 {
		return vec, nil
	}

	p, err := e.tester.PValue(first, second)
	if err != nil {
		return RankVector{}, fmt.Errorf("tie-break test failed: %w", err)
	}
	vec.Tested = true
	vec.PValue = p

	if p > e.alpha {
		vec.Ranks[leader] = 2
		vec.Collapsed = true
	}
	return vec, nil
}

// ProvisionalRanks assigns 1 + the position of each mean in a stable ascending
// order where NaN sorts after every real number. Equal means keep input order.
func ProvisionalRanks(means []float64) []int {
	order := make([]int, len(means))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lessNaNLast(means[order[a]], means[order[b]])
	})

	ranks := make([]int, len(means))
	for pos, idx := range order {
		ranks[idx] = pos + 1
	}
	return ranks
}

func lessNaNLast(a, b float64) bool {
	switch {
	case math.IsNaN(a):
		return false
	case math.IsNaN(b):
		return true
	default:
		return a < b
	}
}

// nextRank returns the smallest rank strictly greater than 1, or 0 if none occurs
func nextRank(ranks []int) int {
	best := 0
	for _, r := range ranks {
		if r > 1 && (best == 0 || r < best) {
			best = r
		}
	}
	return best
}

func indexOfRank(ranks []int, rank int) int {
	if rank == 0 {
		return -1
	}
	for i, r := range ranks {
		if r == rank {
			return i
		}
	}
	return -1
}

// broadcast repeats a single-value sample to the other sample's length
func broadcast(a, b []float64) ([]float64, []float64) {
	switch {
	case len(a) == 1 && len(b) > 1:
		return repeat(a[0], len(b)), b
	case len(b) == 1 && len(a) > 1:
		return a, repeat(b[0], len(a))
	default:
		return a, b
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
