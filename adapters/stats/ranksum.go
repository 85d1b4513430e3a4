package stats

import (
	"fmt"
	"math"
	"sort"

	"errtable/domain/core"

	"gonum.org/v1/gonum/stat/distuv"
)

// ExactLimit is the largest per-sample size for which the exact null
// distribution of U is enumerated (tie-free samples only)
const ExactLimit = 8

// RankSumResult is the outcome of a two-sided Mann-Whitney U test of a against b
type RankSumResult struct {
	U      float64 // U statistic of the first sample
	PValue float64
	A12    float64 // Vargha-Delaney: P(a > b) + 0.5 P(a == b)
	Exact  bool
}

// MannWhitney is the two-sided Mann-Whitney U (Wilcoxon rank-sum) test.
// It implements ranking.TwoSampleTester.
type MannWhitney struct{}

// NewMannWhitney creates the rank-sum test
func NewMannWhitney() *MannWhitney {
	return &MannWhitney{}
}

// PValue returns the two-sided p-value of a against b
func (m *MannWhitney) PValue(a, b []float64) (float64, error) {
	res, err := m.Test(a, b)
	if err != nil {
		return math.NaN(), err
	}
	return res.PValue, nil
}

// Test runs the rank-sum test. NaN observations are dropped.
func (m *MannWhitney) Test(a, b []float64) (RankSumResult, error) {
	a, b = dropNaN(a), dropNaN(b)
	n1, n2 := len(a), len(b)
	if n1 == 0 || n2 == 0 {
		return RankSumResult{PValue: math.NaN(), A12: math.NaN()},
			fmt.Errorf("rank-sum test needs two non-empty samples (got %d and %d): %w", n1, n2, core.ErrInsufficientData)
	}

	pooled := make([]float64, 0, n1+n2)
	pooled = append(pooled, a...)
	pooled = append(pooled, b...)
	ranks, tieTerm := midranks(pooled)

	r1 := 0.0
	for i := 0; i < n1; i++ {
		r1 += ranks[i]
	}
	u1 := r1 - float64(n1*(n1+1))/2
	res := RankSumResult{U: u1, A12: u1 / float64(n1*n2)}

	if n1 <= ExactLimit && n2 <= ExactLimit && tieTerm == 0 {
		res.PValue = exactTwoSided(int(math.Round(u1)), n1, n2)
		res.Exact = true
		return res, nil
	}
	res.PValue = normalTwoSided(u1, n1, n2, tieTerm)
	return res, nil
}

// normalTwoSided uses the normal approximation with tie and continuity correction
func normalTwoSided(u1 float64, n1, n2 int, tieTerm float64) float64 {
	n := float64(n1 + n2)
	mu := float64(n1*n2) / 2
	variance := float64(n1*n2) / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	if variance <= 0 {
		// every observation is equal
		return 1
	}
	z := (math.Abs(u1-mu) - 0.5) / math.Sqrt(variance)
	if z <= 0 {
		return 1
	}
	return math.Min(1, 2*distuv.UnitNormal.Survival(z))
}

// exactTwoSided enumerates the distribution of U under the null hypothesis
func exactTwoSided(u, n1, n2 int) float64 {
	counts := uCounts(n1, n2)
	var total, lower, upper float64
	for k, c := range counts {
		total += c
		if k <= u {
			lower += c
		}
		if k >= u {
			upper += c
		}
	}
	return math.Min(1, 2*math.Min(lower, upper)/total)
}

// uCounts returns the number of arrangements producing each U in [0, n1*n2].
// f(i, j, u) = f(i-1, j, u-j) + f(i, j-1, u)
func uCounts(n1, n2 int) []float64 {
	maxU := n1 * n2
	prev := make([][]float64, n2+1)
	for j := range prev {
		prev[j] = make([]float64, maxU+1)
		prev[j][0] = 1 // i = 0
	}
	for i := 1; i <= n1; i++ {
		cur := make([][]float64, n2+1)
		cur[0] = make([]float64, maxU+1)
		cur[0][0] = 1
		for j := 1; j <= n2; j++ {
			cur[j] = make([]float64, maxU+1)
			for u := 0; u <= i*j; u++ {
				v := cur[j-1][u]
				if u >= j {
					v += prev[j][u-j]
				}
				cur[j][u] = v
			}
		}
		prev = cur
	}
	return prev[n2]
}

// midranks assigns 1-based ranks, averaging ties. tieTerm is sum(t^3 - t) over tie groups.
func midranks(values []float64) (ranks []float64, tieTerm float64) {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return values[idx[i]] < values[idx[j]] })

	ranks = make([]float64, len(values))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && values[idx[end]] == values[idx[start]] {
			end++
		}
		avg := float64(start+end+1) / 2
		for k := start; k < end; k++ {
			ranks[idx[k]] = avg
		}
		if t := float64(end - start); t > 1 {
			tieTerm += t*t*t - t
		}
		start = end
	}
	return ranks, tieTerm
}

func dropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
