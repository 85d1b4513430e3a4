package report

import (
	"testing"

	"errtable/domain/measurement"
	"errtable/domain/significance"

	"github.com/stretchr/testify/assert"
)

func TestSortRows_FirstLetterOfDirectoryIgnoresCase(t *testing.T) {
	rows := []Row{
		{CaseStudy: "x264", Label: "x264"},
		{CaseStudy: "BerkeleyDBC", Label: "BDB-C"},
		{CaseStudy: "apache", Label: "apache"},
		{CaseStudy: "Dune", Label: "Dune"},
		{CaseStudy: "7z", Label: "7z"},
		{CaseStudy: "Bzip", Label: "bzip2"},
	}
	SortRows(rows)

	var got []string
	for _, r := range rows {
		got = append(got, r.Label)
	}
	// same first letter: ordered by case-study name
	assert.Equal(t, []string{"7z", "apache", "BDB-C", "bzip2", "Dune", "x264"}, got)
}

func TestSortRows_LabelDoesNotMoveRow(t *testing.T) {
	rows := []Row{
		{CaseStudy: "LLVM", Label: "llvm"},
		{CaseStudy: "HSMGP", Label: "Apache-HSMGP"},
		{CaseStudy: "Dune", Label: "Dune"},
	}
	SortRows(rows)

	var got []measurement.CaseStudy
	for _, r := range rows {
		got = append(got, r.CaseStudy)
	}
	assert.Equal(t, []measurement.CaseStudy{"Dune", "HSMGP", "LLVM"}, got)
}

func TestRemainingConditions(t *testing.T) {
	conds := []measurement.Condition{"distBased", "twise", "rand"}

	c, l := RemainingConditions(conds, []string{"D", "T", "R"}, []measurement.Condition{"twise"})
	assert.Equal(t, []measurement.Condition{"distBased", "rand"}, c)
	assert.Equal(t, []string{"D", "R"}, l)

	c, l = RemainingConditions(conds, []string{"D"}, nil)
	assert.Equal(t, conds, c)
	assert.Equal(t, []string{"D", "twise", "rand"}, l)
}

func TestReport_LabelAndPass(t *testing.T) {
	rep := &Report{
		Conditions: []measurement.Condition{"a", "b"},
		Labels:     []string{"A"},
		Passes:     []SignificancePass{{Kind: significance.Levene}},
	}
	assert.Equal(t, "A", rep.Label(0))
	assert.Equal(t, "b", rep.Label(1))

	_, ok := rep.Pass(significance.Kruskal)
	assert.False(t, ok)
	pass, ok := rep.Pass(significance.Levene)
	assert.True(t, ok)
	assert.Equal(t, significance.Levene, pass.Kind)
}
