package stats

import (
	"context"
	"fmt"
	"math"
	"sort"

	"errtable/domain/measurement"
	"errtable/domain/significance"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// OmnibusTester computes omnibus and pairwise tests in-process.
// It implements ports.OmnibusTester.
//
// Per parameter, each condition's runs are pooled over all case studies.
// Kruskal: Kruskal-Wallis H (tie corrected) followed by pairwise rank-sum tests
// with Vargha-Delaney effect sizes. Levene: Brown-Forsythe variant (median centred)
// followed by pairwise variance-ratio F tests. Pairwise p-values are
// Bonferroni-adjusted and reported in both directions.
type OmnibusTester struct {
	rankSum *MannWhitney
}

// NewOmnibusTester creates the in-process tester
func NewOmnibusTester() *OmnibusTester {
	return &OmnibusTester{rankSum: NewMannWhitney()}
}

// group is one condition's pooled runs at one parameter
type group struct {
	cond   measurement.Condition
	values []float64
}

// Compute runs the omnibus test selected by kind for every parameter in rows.
// Parameters with fewer than two non-empty conditions produce no block.
func (o *OmnibusTester) Compute(ctx context.Context, rows []measurement.ExportRow, kind significance.TestKind) (significance.Results, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown test kind %q", kind)
	}

	results := make(significance.Results)
	for _, param := range parametersOf(rows) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		groups := groupRows(rows, param)
		if len(groups) < 2 {
			continue
		}

		var (
			res significance.OmnibusResult
			err error
		)
		switch kind {
		case significance.Kruskal:
			res, err = o.kruskal(groups)
		case significance.Levene:
			res = levene(groups)
		}
		if err != nil {
			return nil, fmt.Errorf("t=%d: %w", param, err)
		}
		results[param] = res
	}
	return results, nil
}

func (o *OmnibusTester) kruskal(groups []group) (significance.OmnibusResult, error) {
	res := significance.OmnibusResult{PValue: kruskalWallis(groups)}

	comparisons := float64(len(groups) * (len(groups) - 1) / 2)
	for i := range groups {
		for j := range groups {
			if i == j {
				continue
			}
			rs, err := o.rankSum.Test(groups[i].values, groups[j].values)
			if err != nil {
				return significance.OmnibusResult{}, err
			}
			res.Pairwise = append(res.Pairwise, significance.PairwiseRecord{
				Label:      significance.PairLabel(groups[i].cond, groups[j].cond),
				PValue:     bonferroni(rs.PValue, comparisons),
				EffectSize: rs.A12,
				HasEffect:  true,
			})
		}
	}
	return res, nil
}

// kruskalWallis returns the p-value of the tie-corrected H statistic
func kruskalWallis(groups []group) float64 {
	var pooled []float64
	for _, g := range groups {
		pooled = append(pooled, g.values...)
	}
	n := float64(len(pooled))
	ranks, tieTerm := midranks(pooled)

	h := 0.0
	offset := 0
	for _, g := range groups {
		r := 0.0
		for k := range g.values {
			r += ranks[offset+k]
		}
		offset += len(g.values)
		h += r * r / float64(len(g.values))
	}
	h = 12/(n*(n+1))*h - 3*(n+1)

	correction := 1 - tieTerm/(n*n*n-n)
	if correction <= 0 {
		return 1
	}
	h /= correction
	if h < 0 {
		// rounding on identical groups
		h = 0
	}

	chi := distuv.ChiSquared{K: float64(len(groups) - 1)}
	return chi.Survival(h)
}

func levene(groups []group) significance.OmnibusResult {
	res := significance.OmnibusResult{PValue: brownForsythe(groups)}

	comparisons := float64(len(groups) * (len(groups) - 1) / 2)
	for i := range groups {
		for j := range groups {
			if i == j {
				continue
			}
			p := varianceRatioTest(groups[i].values, groups[j].values)
			res.Pairwise = append(res.Pairwise, significance.PairwiseRecord{
				Label:  significance.PairLabel(groups[i].cond, groups[j].cond),
				PValue: bonferroni(p, comparisons),
			})
		}
	}
	return res
}

// brownForsythe returns the p-value of Levene's test on absolute deviations from the median
func brownForsythe(groups []group) float64 {
	k := len(groups)
	deviations := make([][]float64, k)
	total := 0
	for i, g := range groups {
		median, err := mstats.Median(g.values)
		if err != nil {
			return math.NaN()
		}
		deviations[i] = make([]float64, len(g.values))
		for j, v := range g.values {
			deviations[i][j] = math.Abs(v - median)
		}
		total += len(g.values)
	}
	if total <= k {
		return math.NaN()
	}

	var all []float64
	for _, d := range deviations {
		all = append(all, d...)
	}
	grand := stat.Mean(all, nil)

	between, within := 0.0, 0.0
	for _, d := range deviations {
		m := stat.Mean(d, nil)
		between += float64(len(d)) * (m - grand) * (m - grand)
		for _, z := range d {
			within += (z - m) * (z - m)
		}
	}

	switch {
	case within == 0 && between == 0:
		return 1
	case within == 0:
		return 0
	}
	df1, df2 := float64(k-1), float64(total-k)
	w := (df2 / df1) * between / within
	return distuv.F{D1: df1, D2: df2}.Survival(w)
}

// varianceRatioTest is the two-sided F test of equal variances
func varianceRatioTest(a, b []float64) float64 {
	if len(a) < 2 || len(b) < 2 {
		return math.NaN()
	}
	va, vb := stat.Variance(a, nil), stat.Variance(b, nil)
	switch {
	case va == 0 && vb == 0:
		return 1
	case va == 0 || vb == 0:
		return 0
	}
	f := distuv.F{D1: float64(len(a) - 1), D2: float64(len(b) - 1)}
	cdf := f.CDF(va / vb)
	return math.Min(1, 2*math.Min(cdf, 1-cdf))
}

func bonferroni(p, comparisons float64) float64 {
	if math.IsNaN(p) {
		return p
	}
	return math.Min(1, p*comparisons)
}

func parametersOf(rows []measurement.ExportRow) []measurement.Parameter {
	seen := make(map[measurement.Parameter]bool)
	var out []measurement.Parameter
	for _, r := range rows {
		if !seen[r.Parameter] {
			seen[r.Parameter] = true
			out = append(out, r.Parameter)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// groupRows pools values per condition at param, conditions in order of first appearance
func groupRows(rows []measurement.ExportRow, param measurement.Parameter) []group {
	index := make(map[measurement.Condition]int)
	var groups []group
	for _, r := range rows {
		if r.Parameter != param || math.IsNaN(r.Value) {
			continue
		}
		i, ok := index[r.Condition]
		if !ok {
			i = len(groups)
			index[r.Condition] = i
			groups = append(groups, group{cond: r.Condition})
		}
		groups[i].values = append(groups[i].values, r.Value)
	}
	return groups
}
