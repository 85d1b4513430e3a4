package excel

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"errtable/domain/measurement"
	"errtable/domain/pformat"
	"errtable/domain/ranking"
	"errtable/domain/report"

	"github.com/xuri/excelize/v2"
)

// WorkbookFile is the name of the workbook written into the output directory
const WorkbookFile = "table.xlsx"

// Sheet names
const (
	ErrorSheet = "Error rates"
	RunSheet   = "Run"
)

// PassSheet names the sheet of one significance pass ("Kruskal", "Levene")
func PassSheet(pass report.SignificancePass) string {
	k := string(pass.Kind)
	if k == "" {
		return "Tests"
	}
	return strings.ToUpper(k[:1]) + k[1:]
}

// WorkbookWriter renders a report as an XLSX workbook
type WorkbookWriter struct{}

// NewWorkbookWriter creates the workbook writer
func NewWorkbookWriter() *WorkbookWriter {
	return &WorkbookWriter{}
}

// Name identifies the writer in logs
func (w *WorkbookWriter) Name() string { return "excel" }

// Write saves table.xlsx into outputDir
func (w *WorkbookWriter) Write(ctx context.Context, outputDir string, rep *report.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	best, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Color: "008000"}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	// the default sheet becomes the error-rate sheet
	if err := f.SetSheetName("Sheet1", ErrorSheet); err != nil {
		return err
	}
	if err := writeErrorSheet(f, rep, best); err != nil {
		return fmt.Errorf("error-rate sheet: %w", err)
	}
	for _, pass := range rep.Passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writePassSheet(f, pass); err != nil {
			return fmt.Errorf("%s sheet: %w", pass.Kind, err)
		}
	}
	if err := writeRunSheet(f, rep); err != nil {
		return fmt.Errorf("run sheet: %w", err)
	}

	idx, err := f.GetSheetIndex(ErrorSheet)
	if err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	path := filepath.Join(outputDir, WorkbookFile)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func writeErrorSheet(f *excelize.File, rep *report.Report, bestStyle int) error {
	header := []interface{}{"Case study"}
	for i := range rep.Conditions {
		for _, p := range rep.Parameters {
			header = append(header, fmt.Sprintf("%s t=%d", rep.Label(i), p))
		}
	}
	if err := setRow(f, ErrorSheet, 1, header); err != nil {
		return err
	}

	rowIdx := 2
	writeRow := func(label string, means map[measurement.Parameter][]float64, ranks map[measurement.Parameter]ranking.RankVector) error {
		if err := setCell(f, ErrorSheet, 1, rowIdx, label); err != nil {
			return err
		}
		col := 2
		for i := range rep.Conditions {
			for _, p := range rep.Parameters {
				if err := setCell(f, ErrorSheet, col, rowIdx, displayValue(means[p], i)); err != nil {
					return err
				}
				if vec, ok := ranks[p]; ok && vec.IsBest(i) {
					cell, _ := excelize.CoordinatesToCellName(col, rowIdx)
					if err := f.SetCellStyle(ErrorSheet, cell, cell, bestStyle); err != nil {
						return err
					}
				}
				col++
			}
		}
		rowIdx++
		return nil
	}

	for _, row := range rep.Rows {
		if err := writeRow(row.Label, row.Means, row.Ranks); err != nil {
			return err
		}
	}
	if rep.Global != nil {
		if err := writeRow("Mean", rep.Global.Means, rep.Global.Ranks); err != nil {
			return err
		}
	}
	return f.SetColWidth(ErrorSheet, "A", "A", 18)
}

func writePassSheet(f *excelize.File, pass report.SignificancePass) error {
	sheet := PassSheet(pass)
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := setRow(f, sheet, 1, []interface{}{"t", "Test", "Comparison", "p-value", "Effect size"}); err != nil {
		return err
	}

	rowIdx := 2
	for _, p := range pass.Results.Parameters() {
		res := pass.Results[p]
		if err := setRow(f, sheet, rowIdx, []interface{}{int(p), pass.Kind.OmnibusTestName(), "", numberOrBlank(res.PValue), ""}); err != nil {
			return err
		}
		rowIdx++
		for _, rec := range res.Pairwise {
			var effect interface{} = ""
			if rec.HasEffect {
				effect = rec.EffectSize
			}
			if err := setRow(f, sheet, rowIdx, []interface{}{int(p), pass.Kind.PairwiseTestName(), rec.Label, numberOrBlank(rec.PValue), effect}); err != nil {
				return err
			}
			rowIdx++
		}
	}
	return nil
}

func writeRunSheet(f *excelize.File, rep *report.Report) error {
	if _, err := f.NewSheet(RunSheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Run", rep.RunID.String()},
		{"Created", rep.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Backend", rep.Backend},
		{"Alpha", rep.Alpha},
	}
	for i, r := range rows {
		if err := setRow(f, RunSheet, i+1, r); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for c, v := range values {
		if err := setCell(f, sheet, c+1, row, v); err != nil {
			return err
		}
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, v)
}

// displayValue is the truncated mean, or "--" when missing
func displayValue(means []float64, i int) interface{} {
	if i >= len(means) || math.IsNaN(means[i]) {
		return "--"
	}
	return pformat.TruncateOneDecimal(means[i])
}

func numberOrBlank(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}
