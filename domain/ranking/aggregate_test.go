package ranking

import (
	"math"
	"testing"

	"errtable/domain/measurement"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ConcatenatesRuns(t *testing.T) {
	s := measurement.NewStore()
	s.Set("a", "dist", 1, measurement.Sample{1, 2, 3})
	s.Set("b", "dist", 1, measurement.Sample{4, 5})

	mean, pooled := Pool(s, s.CaseStudies(), "dist", 1)

	assert.Len(t, pooled, 5)
	assert.InDelta(t, 3.0, mean, 1e-12)
}

func TestPool_NothingPooledIsNaN(t *testing.T) {
	s := measurement.NewStore()
	s.AddCaseStudy("a")

	mean, pooled := Pool(s, s.CaseStudies(), "dist", 1)
	assert.True(t, math.IsNaN(mean))
	assert.Empty(t, pooled)
}

func TestPlan_Validate(t *testing.T) {
	assert.Error(t, Plan{}.Validate())
	assert.Error(t, Plan{Conditions: []measurement.Condition{"a"}}.Validate())
	assert.NoError(t, Plan{Conditions: []measurement.Condition{"a"}, Parameters: []measurement.Parameter{1}}.Validate())
}

// Two conditions, three parameters, one case study: A is constant at 10, B is
// {10.5, 20, 5}. B's mean is worse, the stubbed test is not significant, so both
// share the best tier everywhere.
func TestAggregator_EndToEndTieCollapse(t *testing.T) {
	s := measurement.NewStore()
	params := []measurement.Parameter{1, 2, 3}
	for _, p := range params {
		s.Set("cs", "A", p, measurement.Sample{10, 10, 10})
		s.Set("cs", "B", p, measurement.Sample{10.5, 20, 5})
	}
	plan := Plan{Conditions: []measurement.Condition{"A", "B"}, Parameters: params}
	agg := NewAggregator(NewEngine(&fixedTester{p: 0.3}, DefaultAlpha))

	cells, err := agg.CellRankings(s, plan)
	require.NoError(t, err)
	for _, p := range params {
		vec := cells["cs"][p]
		assert.True(t, vec.IsBest(0), "t=%d", p)
		assert.True(t, vec.IsBest(1), "t=%d", p)
		assert.True(t, vec.Collapsed)
	}

	global, err := agg.GlobalRanking(s, s.CaseStudies(), plan)
	require.NoError(t, err)
	for _, p := range params {
		assert.InDelta(t, 10.0, global.Means[p][0], 1e-12)
		assert.InDelta(t, 35.5/3, global.Means[p][1], 1e-12)
		assert.Equal(t, 2, global.Ranks[p].BestCount())
	}
}

func TestAggregator_ExclusionAffectsRankingOnly(t *testing.T) {
	s := measurement.NewStore()
	s.Set("x", "rand", 1, measurement.Sample{1, 1, 1})
	s.Set("x", "dist", 1, measurement.Sample{5, 6, 7})
	s.Set("x", "div", 1, measurement.Sample{8, 9, 10})
	conds := []measurement.Condition{"dist", "div", "rand"}
	plan := Plan{Conditions: conds, Parameters: []measurement.Parameter{1}, Exclude: []measurement.Condition{"rand"}}
	agg := NewAggregator(NewEngine(&fixedTester{p: 0.001}, 0))

	cells, err := agg.CellRankings(s, plan)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, cells["x"][1].Ranks)

	global, err := agg.GlobalRanking(s, s.CaseStudies(), plan)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, global.Ranks[1].Ranks)
	// the pooled mean of the excluded condition is still reported
	assert.InDelta(t, 1.0, global.Means[1][2], 1e-12)

	rows := s.Export(conds, plan.Parameters, nil)
	count := 0
	for _, r := range rows {
		if r.Condition == "rand" {
			count++
		}
	}
	assert.Equal(t, 3, count)
}

func TestAggregator_GlobalIndependentOfCells(t *testing.T) {
	s := measurement.NewStore()
	// per case study the winner differs, pooled the runs decide
	s.Set("a", "p", 1, measurement.Sample{1, 1})
	s.Set("a", "q", 1, measurement.Sample{2, 2})
	s.Set("b", "p", 1, measurement.Sample{30})
	s.Set("b", "q", 1, measurement.Sample{3, 3, 3, 3})
	plan := Plan{Conditions: []measurement.Condition{"p", "q"}, Parameters: []measurement.Parameter{1}}
	agg := NewAggregator(NewEngine(&fixedTester{p: 0.001}, 0))

	cells, err := agg.CellRankings(s, plan)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, cells["a"][1].Ranks)
	assert.Equal(t, []int{2, 1}, cells["b"][1].Ranks)

	global, err := agg.GlobalRanking(s, s.CaseStudies(), plan)
	require.NoError(t, err)
	// p pooled: (1+1+30)/3 = 10.67, q pooled: (2+2+3*4)/6 = 2.67
	assert.Equal(t, []int{2, 1}, global.Ranks[1].Ranks)
}
