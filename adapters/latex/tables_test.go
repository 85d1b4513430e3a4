package latex

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"errtable/domain/measurement"
	"errtable/domain/ranking"
	"errtable/domain/report"
	"errtable/domain/significance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *report.Report {
	params := []measurement.Parameter{1, 2}
	return &report.Report{
		Conditions: []measurement.Condition{"distBased", "rand"},
		Labels:     []string{"Distance", "Random"},
		Parameters: params,
		Rows: []report.Row{
			{
				CaseStudy: "BerkeleyDBC",
				Label:     "BDB-C",
				Means:     map[measurement.Parameter][]float64{1: {12.37, 20}, 2: {math.NaN(), 3.04}},
				Ranks: map[measurement.Parameter]ranking.RankVector{
					1: {Ranks: []int{1, 2}},
					2: {Ranks: []int{2, 1}},
				},
			},
			{
				CaseStudy: "x264",
				Label:     "x264",
				Means:     map[measurement.Parameter][]float64{1: {5, 5.01}, 2: {1, 2}},
				Ranks: map[measurement.Parameter]ranking.RankVector{
					1: {Ranks: []int{2, 2}, Collapsed: true},
					2: {Ranks: []int{1, 2}},
				},
			},
		},
		Global: &ranking.GlobalRanking{
			Means: map[measurement.Parameter][]float64{1: {8.68, 12.5}, 2: {1, 2.5}},
			Ranks: map[measurement.Parameter]ranking.RankVector{
				1: {Ranks: []int{1, 2}},
				2: {Ranks: []int{1, 2}},
			},
		},
		Passes: []report.SignificancePass{
			{
				Kind:       significance.Kruskal,
				Conditions: []measurement.Condition{"distBased", "rand"},
				Labels:     []string{"Distance", "Random"},
				Results: significance.Results{
					1: {PValue: 0.0001, Pairwise: []significance.PairwiseRecord{
						{Label: "distBased - rand", PValue: 0.001, EffectSize: 0.73, HasEffect: true},
						{Label: "rand - distBased", PValue: 0.001, EffectSize: 0.27, HasEffect: true},
					}},
					2: {PValue: 0.3},
				},
			},
			{
				Kind:       significance.Levene,
				Conditions: []measurement.Condition{"distBased", "rand"},
				Labels:     []string{"Distance", "Random"},
				Results: significance.Results{
					1: {PValue: 0.02, Pairwise: []significance.PairwiseRecord{{Label: "distBased - rand", PValue: 0.04}}},
				},
			},
		},
	}
}

func TestRenderErrorTable(t *testing.T) {
	out := RenderErrorTable(sampleReport())

	assert.Contains(t, out, `\begin{tabular}{eabab}`)
	assert.Contains(t, out, `& \multicolumn{2}{c}{Distance}& \multicolumn{2}{c}{Random}\\`)
	assert.Contains(t, out, `\cmidrule(lr{1.3em}){2-3} \cmidrule(lr){4-5} `)
	assert.Contains(t, out, "& $t=1$& $t=2$& $t=1$& $t=2$")

	// BDB-C: t=1 distBased best, t=2 distBased missing and rand best
	assert.Contains(t, out, "\t\tBDB-C&"+`\textbf{\color{Green}12.3\percent } &--&20.0\percent &\textbf{\color{Green}3.0\percent } \\`)
	// x264 at t=1 collapsed: both best
	assert.Contains(t, out, "\t\tx264&"+`\textbf{\color{Green}5.0\percent } &\textbf{\color{Green}1.0\percent } &\textbf{\color{Green}5.0\percent } &2.0\percent \\`)
	assert.Contains(t, out, `Mean  & \textbf{\color{Green}8.6\percent }  & \textbf{\color{Green}1.0\percent }  & 12.5\percent  & 2.5\percent \\`)
	assert.True(t, strings.HasSuffix(out, "\\end{adjustbox}\n"))

	// only one spacer between the two rows, none after the last
	assert.Equal(t, 1, strings.Count(out, "[-0.3cm]"))
}

func TestRenderErrorTable_SingleParameter(t *testing.T) {
	rep := sampleReport()
	rep.Parameters = []measurement.Parameter{1}
	out := RenderErrorTable(rep)

	assert.Contains(t, out, `\begin{tabular}{eaa}`)
	assert.Contains(t, out, "\t\t&Distance&Random\\\\\n\\midrule\n")
	assert.NotContains(t, out, "$t=1$")
}

func TestRenderOmnibusTable(t *testing.T) {
	out := NewWriter().RenderOmnibusTable(sampleReport().Passes[0])
	assert.Contains(t, out, `\multicolumn{2}{c}{\texttt{Kruskal-Wallis test}}\\`)
	assert.Contains(t, out, "t=1 & $10^{-04}$\\\\\n")
	assert.Contains(t, out, "t=2 & \\\\\n")
}

func TestRenderPairwiseTable_WithEffect(t *testing.T) {
	rep := sampleReport()
	out := NewWriter().RenderPairwiseTable(rep.Passes[0], rep.Parameters)

	assert.Contains(t, out, `\multicolumn{5}{c}{\normalfont{Mann-Whitney U test [\textit{p} value ($\hat{A}_{12}$)]}}\\`)
	// distBased row: diagonal, then t=1 significant and t=2 untested
	assert.Contains(t, out, ` & \multicolumn{2}{c}{\cellcolor{white} \noindent} & $10^{-03}$ & \\[-0.1cm]`)
	assert.Contains(t, out, `\multirow{-2}{*}{Distance}& \multicolumn{2}{c}{\cellcolor{white}}&  ($0.73$)& \\`)
	assert.Contains(t, out, `\multirow{-2}{*}{Random}&  ($0.27$)& & \multicolumn{2}{c}{\cellcolor{white}}\\`)
}

func TestRenderPairwiseTable_WithoutEffect(t *testing.T) {
	rep := sampleReport()
	out := NewWriter().RenderPairwiseTable(rep.Passes[1], rep.Parameters)

	assert.Contains(t, out, `F-test (\textit{p} value)}}\\`)
	assert.Contains(t, out, `Distance & \multicolumn{2}{c}{\cellcolor{white} \noindent} & $0.04$ & \\`)
	// reverse direction was not tested: blank cells
	assert.Contains(t, out, `Random &  &  & \multicolumn{2}{c}{\cellcolor{white} \noindent}\\`)
	assert.NotContains(t, out, "multirow")
}

func TestWriter_WritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewWriter().Write(context.Background(), dir, sampleReport()))

	for _, name := range []string{"table.tex", "kruskalTable.tex", "mwuTable.tex", "leveneTable.tex", "fTable.tex"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}
