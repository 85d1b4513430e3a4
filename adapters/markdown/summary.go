// Package markdown renders a short run summary as Markdown and HTML.
package markdown

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"errtable/domain/measurement"
	"errtable/domain/pformat"
	"errtable/domain/ranking"
	"errtable/domain/report"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Output file names
const (
	MarkdownFile = "summary.md"
	HTMLFile     = "summary.html"
)

const notSignificant = "n.s."

// SummaryWriter writes summary.md and its HTML rendering
type SummaryWriter struct {
	format pformat.Formatter
}

// NewSummaryWriter creates the summary writer
func NewSummaryWriter() *SummaryWriter {
	return &SummaryWriter{format: pformat.Plain}
}

// Name identifies the writer in logs
func (w *SummaryWriter) Name() string { return "markdown" }

// Write renders rep into outputDir
func (w *SummaryWriter) Write(ctx context.Context, outputDir string, rep *report.Report) error {
	md := w.Render(rep)
	if err := os.WriteFile(filepath.Join(outputDir, MarkdownFile), []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", MarkdownFile, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	page := ToHTML([]byte(md), "Error-rate comparison "+rep.RunID.Short())
	if err := os.WriteFile(filepath.Join(outputDir, HTMLFile), page, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", HTMLFile, err)
	}
	return nil
}

// ToHTML converts Markdown (with tables) to a complete HTML page
func ToHTML(md []byte, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(md, p, renderer)
}

// Render builds the Markdown summary
func (w *SummaryWriter) Render(rep *report.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Error-rate comparison\n\n")
	fmt.Fprintf(&b, "Run `%s`, backend `%s`, alpha %s, created %s.\n\n",
		rep.RunID, rep.Backend, pformat.Float(rep.Alpha), rep.CreatedAt.Format("2006-01-02 15:04"))

	b.WriteString("## Error rates\n\n")
	header := []string{"Case study"}
	for i := range rep.Conditions {
		for _, p := range rep.Parameters {
			header = append(header, fmt.Sprintf("%s t=%d", rep.Label(i), p))
		}
	}
	writeTableHeader(&b, header)
	for _, row := range rep.Rows {
		writeTableRow(&b, append([]string{row.Label}, w.cells(rep, row.Means, row.Ranks)...))
	}
	if rep.Global != nil {
		writeTableRow(&b, append([]string{"**Mean**"}, w.cells(rep, rep.Global.Means, rep.Global.Ranks)...))
	}
	b.WriteString("\nBold values are in the best tier of their cell; `--` marks missing data.\n")

	for _, pass := range rep.Passes {
		fmt.Fprintf(&b, "\n## %s\n\n", pass.Kind.OmnibusTestName())
		writeTableHeader(&b, []string{"t", "p-value"})
		for _, p := range pass.Results.Parameters() {
			writeTableRow(&b, []string{fmt.Sprint(p), w.pValue(pass.Results.Omnibus(p))})
		}

		fmt.Fprintf(&b, "\n### %s\n\n", pass.Kind.PairwiseTestName())
		writeTableHeader(&b, []string{"t", "Comparison", "p-value", "Effect size"})
		for _, p := range pass.Results.Parameters() {
			for _, rec := range pass.Results[p].Pairwise {
				effect := ""
				if rec.HasEffect {
					effect = fmt.Sprintf("%.2f", rec.EffectSize)
				}
				writeTableRow(&b, []string{fmt.Sprint(p), rec.Label, w.pValue(rec.PValue), effect})
			}
		}
	}
	return b.String()
}

func (w *SummaryWriter) cells(rep *report.Report, means map[measurement.Parameter][]float64, ranks map[measurement.Parameter]ranking.RankVector) []string {
	var out []string
	for i := range rep.Conditions {
		for _, p := range rep.Parameters {
			m := means[p]
			text := "--"
			if i < len(m) && !math.IsNaN(m[i]) {
				text = pformat.Percent(m[i]) + "%"
			}
			if vec, ok := ranks[p]; ok && vec.IsBest(i) {
				text = "**" + text + "**"
			}
			out = append(out, text)
		}
	}
	return out
}

func (w *SummaryWriter) pValue(p float64) string {
	s := w.format.Format(p).PValue
	if s == "" {
		return notSignificant
	}
	return s
}

func writeTableHeader(b *strings.Builder, cols []string) {
	writeTableRow(b, cols)
	seps := make([]string, len(cols))
	for i := range seps {
		seps[i] = "---"
	}
	writeTableRow(b, seps)
}

func writeTableRow(b *strings.Builder, cols []string) {
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
}
