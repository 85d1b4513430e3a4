package ranking

import (
	"fmt"
	"math"

	"errtable/domain/measurement"

	"gonum.org/v1/gonum/stat"
)

// SampleSource is the read side of the measurement store
type SampleSource interface {
	Sample(cs measurement.CaseStudy, cond measurement.Condition, param measurement.Parameter) measurement.Sample
	Mean(cs measurement.CaseStudy, cond measurement.Condition, param measurement.Parameter) float64
	CaseStudies() []measurement.CaseStudy
}

// Plan is the explicit configuration of one ranking question. Conditions keep
// their order in every produced rank vector. Exclude lists conditions whose means
// are forced to NaN before ranking; their samples stay available.
type Plan struct {
	Conditions []measurement.Condition
	Parameters []measurement.Parameter
	Exclude    []measurement.Condition
}

// Validate checks the plan is rankable
func (p Plan) Validate() error {
	if len(p.Conditions) == 0 {
		return fmt.Errorf("plan has no conditions")
	}
	if len(p.Parameters) == 0 {
		return fmt.Errorf("plan has no parameters")
	}
	return nil
}

func (p Plan) excluded(c measurement.Condition) bool {
	return measurement.ContainsCondition(p.Exclude, c)
}

// CellRankings maps case study -> parameter -> rank vector over Plan.Conditions
type CellRankings map[measurement.CaseStudy]map[measurement.Parameter]RankVector

// GlobalRanking is the ranking of pooled means, one rank vector per parameter.
// Means holds the pooled means of every condition, excluded ones included, in
// Plan.Conditions order.
type GlobalRanking struct {
	Means map[measurement.Parameter][]float64
	Ranks map[measurement.Parameter]RankVector
}

// Pool concatenates the samples of one condition/parameter across case studies
// and returns their mean (NaN when nothing was pooled). Every run weighs equally.
func Pool(src SampleSource, caseStudies []measurement.CaseStudy, cond measurement.Condition, param measurement.Parameter) (float64, measurement.Sample) {
	var pooled measurement.Sample
	for _, cs := range caseStudies {
		pooled = append(pooled, src.Sample(cs, cond, param)...)
	}
	if len(pooled) == 0 {
		return math.NaN(), pooled
	}
	return stat.Mean(pooled, nil), pooled
}

// Aggregator applies the rank engine to every cell and to the pooled data
type Aggregator struct {
	engine *Engine
}

// NewAggregator creates an aggregator around a rank engine
func NewAggregator(engine *Engine) *Aggregator {
	return &Aggregator{engine: engine}
}

// CellRankings ranks every (case study, parameter) cell of src
func (a *Aggregator) CellRankings(src SampleSource, plan Plan) (CellRankings, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	out := make(CellRankings)
	for _, cs := range src.CaseStudies() {
		out[cs] = make(map[measurement.Parameter]RankVector, len(plan.Parameters))
		for _, p := range plan.Parameters {
			means := make([]float64, len(plan.Conditions))
			samples := make([][]float64, len(plan.Conditions))
			for i, c := range plan.Conditions {
				if plan.excluded(c) {
					means[i] = math.NaN()
				} else {
					means[i] = src.Mean(cs, c, p)
				}
				samples[i] = src.Sample(cs, c, p)
			}
			vec, err := a.engine.Rank(means, samples)
			if err != nil {
				return nil, fmt.Errorf("ranking %s at t=%d: %w", cs, p, err)
			}
			out[cs][p] = vec
		}
	}
	return out, nil
}

// GlobalRanking pools every condition across caseStudies and ranks the pooled
// means once per parameter
func (a *Aggregator) GlobalRanking(src SampleSource, caseStudies []measurement.CaseStudy, plan Plan) (*GlobalRanking, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	g := &GlobalRanking{
		Means: make(map[measurement.Parameter][]float64, len(plan.Parameters)),
		Ranks: make(map[measurement.Parameter]RankVector, len(plan.Parameters)),
	}
	for _, p := range plan.Parameters {
		means := make([]float64, len(plan.Conditions))
		ranked := make([]float64, len(plan.Conditions))
		samples := make([][]float64, len(plan.Conditions))
		for i, c := range plan.Conditions {
			mean, pooled := Pool(src, caseStudies, c, p)
			means[i] = mean
			ranked[i] = mean
			if plan.excluded(c) {
				ranked[i] = math.NaN()
			}
			samples[i] = pooled
		}
		vec, err := a.engine.Rank(ranked, samples)
		if err != nil {
			return nil, fmt.Errorf("global ranking at t=%d: %w", p, err)
		}
		g.Means[p] = means
		g.Ranks[p] = vec
	}
	return g, nil
}
