package markdown

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"errtable/domain/core"
	"errtable/domain/measurement"
	"errtable/domain/ranking"
	"errtable/domain/report"
	"errtable/domain/significance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryReport() *report.Report {
	return &report.Report{
		RunID:      core.RunID("0192f0c4-aaaa-7bbb-8ccc-123456789abc"),
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Backend:    "rscript",
		Alpha:      0.05,
		Conditions: []measurement.Condition{"a", "b"},
		Labels:     []string{"A", "B"},
		Parameters: []measurement.Parameter{2},
		Rows: []report.Row{{
			Label: "Dune",
			Means: map[measurement.Parameter][]float64{2: {1.25, math.NaN()}},
			Ranks: map[measurement.Parameter]ranking.RankVector{2: {Ranks: []int{1, 2}}},
		}},
		Passes: []report.SignificancePass{{
			Kind: significance.Levene,
			Results: significance.Results{2: {PValue: 0.2, Pairwise: []significance.PairwiseRecord{
				{Label: "a - b", PValue: 0.00002},
			}}},
		}},
	}
}

func TestRender(t *testing.T) {
	md := NewSummaryWriter().Render(summaryReport())

	assert.Contains(t, md, "Run `0192f0c4-aaaa-7bbb-8ccc-123456789abc`, backend `rscript`, alpha 0.05")
	assert.Contains(t, md, "| Case study | A t=2 | B t=2 |\n| --- | --- | --- |\n")
	assert.Contains(t, md, "| Dune | **1.2%** | -- |\n")
	assert.NotContains(t, md, "**Mean**")
	assert.Contains(t, md, "## Levene's test")
	assert.Contains(t, md, "| 2 | n.s. |")
	assert.Contains(t, md, "### F-test")
	assert.Contains(t, md, "| 2 | a - b | 10^{-05} |  |")
}

func TestWrite_ProducesHTML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewSummaryWriter().Write(context.Background(), dir, summaryReport()))

	page, err := os.ReadFile(filepath.Join(dir, HTMLFile))
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "<title>Error-rate comparison 0192f0c4</title>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<strong>1.2%</strong>")
	assert.True(t, strings.Contains(html, "<h2"))

	_, err = os.Stat(filepath.Join(dir, MarkdownFile))
	assert.NoError(t, err)
}
