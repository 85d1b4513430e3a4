// Package latex renders an analysis report as LaTeX table fragments.
package latex

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"errtable/domain/measurement"
	"errtable/domain/pformat"
	"errtable/domain/report"
	"errtable/domain/significance"
)

const (
	newLine      = `\\`
	percent      = `\percent `
	bestPrefix   = `\textbf{\color{Green}`
	bestSuffix   = `} `
	missing      = "--"
	firstColumn  = "e"
	otherColumns = "abd"
)

// Output file names
const (
	ErrorTableFile = "table.tex"
)

// TableFiles returns the omnibus and pairwise table file names of kind
func TableFiles(kind significance.TestKind) (omnibus, pairwise string) {
	if kind == significance.Levene {
		return "leveneTable.tex", "fTable.tex"
	}
	return "kruskalTable.tex", "mwuTable.tex"
}

// Writer writes table.tex plus the omnibus and pairwise tables of every pass
type Writer struct {
	format pformat.Formatter
}

// NewWriter creates a LaTeX writer using $...$ math delimiters
func NewWriter() *Writer {
	return &Writer{format: pformat.LaTeX}
}

// Name identifies the writer in logs
func (w *Writer) Name() string { return "latex" }

// Write renders every table of rep into outputDir
func (w *Writer) Write(ctx context.Context, outputDir string, rep *report.Report) error {
	files := map[string]string{ErrorTableFile: RenderErrorTable(rep)}
	for _, pass := range rep.Passes {
		omnibus, pairwise := TableFiles(pass.Kind)
		files[omnibus] = w.RenderOmnibusTable(pass)
		files[pairwise] = w.RenderPairwiseTable(pass, rep.Parameters)
	}
	for name, content := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

// RenderErrorTable renders the per-case-study error rates with best cells
// highlighted and a trailing pooled Mean row
func RenderErrorTable(rep *report.Report) string {
	params := rep.Parameters
	var (
		columns = firstColumn
		header  = "\t\t"
		rules   = "\t\t"
		tLabels = "\t\t"
		spacer  = "\t\t"
	)
	for i := range rep.Conditions {
		columns += columnSpec(len(params))
		label := rep.Label(i)
		if len(params) == 1 {
			header += "&" + label
			rules = `\midrule`
		} else {
			header += fmt.Sprintf(`& \multicolumn{%d}{c}{%s}`, len(params), label)
			trim := "lr"
			if i < len(rep.Conditions)-1 && strings.Contains(strings.ToLower(rep.Label(i+1)), "rand") {
				trim = "lr{1.3em}"
			}
			rules += fmt.Sprintf(`\cmidrule(%s){%d-%d} `, trim, i*len(params)+2, (i+1)*len(params)+1)
		}
		for _, p := range params {
			tLabels += fmt.Sprintf("& $t=%d$", p)
			spacer += "& "
		}
	}
	header += newLine
	tLabels += newLine + "[0.1cm] "
	spacer += newLine

	var b strings.Builder
	writeLines(&b,
		`\begin{adjustbox}{angle=0}`,
		"\t"+`\begin{tabular}{`+columns+"}",
		"\t"+`\toprule`,
		header,
		rules,
	)
	if len(params) > 1 {
		writeLines(&b, tLabels, spacer+"[-0.2cm]")
	}

	var lines []string
	for _, row := range rep.Rows {
		line := "\t\t" + row.Label
		for i := range rep.Conditions {
			for _, p := range params {
				line += "&" + cell(row.Means[p], row.Ranks[p].IsBest(i), i)
			}
		}
		lines = append(lines, line+newLine, spacer+"[-0.3cm]")
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}

	if rep.Global != nil {
		line := "Mean "
		for i := range rep.Conditions {
			for _, p := range params {
				line += " & " + cell(rep.Global.Means[p], rep.Global.Ranks[p].IsBest(i), i)
			}
		}
		lines = append(lines, line+newLine)
	}
	writeLines(&b, lines...)

	writeLines(&b,
		"\t\t"+`\bottomrule`,
		"\t"+`\end{tabular}`,
		`\end{adjustbox}`,
	)
	return b.String()
}

// RenderOmnibusTable lists the omnibus p-value per parameter
func (w *Writer) RenderOmnibusTable(pass report.SignificancePass) string {
	var b strings.Builder
	writeLines(&b,
		`\begin{tabular}{l r}`,
		`\toprule`,
		`\multicolumn{2}{c}{\texttt{`+pass.Kind.OmnibusTestName()+`}}`+newLine,
		`\midrule`,
		`& \textit{p}-value `+newLine,
		`\midrule`,
	)
	for _, p := range pass.Results.Parameters() {
		writeLines(&b, fmt.Sprintf("t=%d & %s%s", p, w.format.Format(pass.Results.Omnibus(p)).PValue, newLine))
	}
	writeLines(&b, `\bottomrule`, `\end{tabular}`)
	return b.String()
}

// RenderPairwiseTable renders the condition-by-condition matrix of pairwise
// p-values. Row i, column block j holds the test "i - j" at every parameter.
// Effect sizes, when present, go on a second line below the p-values.
func (w *Writer) RenderPairwiseTable(pass report.SignificancePass, params []measurement.Parameter) string {
	withEffect := pass.Kind == significance.Kruskal
	conds := pass.Conditions
	width := len(params)

	var (
		columns = firstColumn
		header  string
		rules   string
		tLabels string
		spacer  string
	)
	for i := range conds {
		columns += columnSpec(width)
		header += fmt.Sprintf(`& \multicolumn{%d}{c}{%s}`, width, labelAt(pass.Labels, conds, i))
		rules += fmt.Sprintf(`\cmidrule(lr){%d-%d} `, i*width+2, (i+1)*width+1)
		for _, p := range params {
			tLabels += fmt.Sprintf("& $t=%d$", p)
			spacer += "& "
		}
	}
	header += newLine
	tLabels += newLine + "[0.1cm] "
	spacer += newLine

	valueText := ` (\textit{p} value)}}` + newLine
	if withEffect {
		valueText = ` [\textit{p} value ($\hat{A}_{12}$)]}}` + newLine
	}

	var b strings.Builder
	writeLines(&b,
		`\begin{tabular}{`+columns+"}",
		`\toprule`,
		fmt.Sprintf(`\multicolumn{%d}{c}{\normalfont{%s%s`, 1+width*len(conds), pass.Kind.PairwiseTestName(), valueText),
		`\midrule`,
		header,
		rules,
		tLabels,
		spacer+"[-0.3cm]",
	)

	var lines []string
	for i := range conds {
		label := labelAt(pass.Labels, conds, i)
		first, second := label, ""
		if withEffect {
			first, second = "", fmt.Sprintf(`\multirow{-2}{*}{%s}`, label)
		}
		for j := range conds {
			if i == j {
				first += fmt.Sprintf(` & \multicolumn{%d}{c}{\cellcolor{white} \noindent}`, width)
				second += fmt.Sprintf(`& \multicolumn{%d}{c}{\cellcolor{white}}`, width)
				continue
			}
			for _, p := range params {
				rec, ok := pass.Results.Lookup(p, conds[i], conds[j])
				if !ok {
					first += " & "
					second += "& "
					continue
				}
				if rec.HasEffect {
					res := w.format.FormatWithEffect(rec.PValue, rec.EffectSize)
					first += " & " + res.PValue
					second += "& " + res.Effect
				} else {
					first += " & " + w.format.Format(rec.PValue).PValue
					second += "& "
				}
			}
		}
		if withEffect {
			lines = append(lines, first+newLine+"[-0.1cm]", second+newLine)
		} else {
			lines = append(lines, first+newLine)
		}
		lines = append(lines, spacer+"[-0.3cm]")
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	writeLines(&b, lines...)
	writeLines(&b, `\bottomrule`, `\end{tabular}`)
	return b.String()
}

func cell(means []float64, best bool, i int) string {
	v := math.NaN()
	if i < len(means) {
		v = means[i]
	}
	text := missing
	if !math.IsNaN(v) {
		text = pformat.Percent(v) + percent
	}
	if best {
		return bestPrefix + text + bestSuffix
	}
	return text
}

// columnSpec cycles through the column types, one per parameter
func columnSpec(n int) string {
	var b strings.Builder
	for k := 0; k < n; k++ {
		b.WriteByte(otherColumns[k%len(otherColumns)])
	}
	return b.String()
}

func labelAt(labels []string, conds []measurement.Condition, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return string(conds[i])
}

func writeLines(b *strings.Builder, lines ...string) {
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
}
