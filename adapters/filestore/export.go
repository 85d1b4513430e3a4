package filestore

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"errtable/domain/measurement"
	"errtable/domain/pformat"
	apperrors "errtable/internal/errors"
)

// ExportHeader is the header row of the flattened export
var ExportHeader = []string{"CaseStudy", "Strategy", "t", "Result"}

// WriteExport writes rows as "CaseStudy;Strategy;t;Result" lines
func WriteExport(w io.Writer, rows []measurement.ExportRow) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(ExportHeader, ";") + "\n"); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(bw, "%s;%s;%d;%s\n", r.CaseStudy, r.Condition, r.Parameter, pformat.Float(r.Value)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteExportFile writes the export to path
func WriteExportFile(path string, rows []measurement.ExportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export %s: %w", path, err)
	}
	if err := WriteExport(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing export %s: %w", path, err)
	}
	return f.Close()
}

// ReadExport parses an export written by WriteExport
func ReadExport(r io.Reader) ([]measurement.ExportRow, error) {
	reader := csv.NewReader(r)
	reader.Comma = csvSeparator
	reader.FieldsPerRecord = len(ExportHeader)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.InvalidInputf("reading export: %v", err)
	}
	if len(records) == 0 {
		return nil, apperrors.InvalidInput("export is empty")
	}

	rows := make([]measurement.ExportRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		p, err := measurement.ParseParameter(rec[2])
		if err != nil {
			return nil, apperrors.InvalidInputf("export row %d: %v", i+2, err)
		}
		v, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, apperrors.InvalidInputf("export row %d: invalid result %q", i+2, rec[3])
		}
		rows = append(rows, measurement.ExportRow{
			CaseStudy: measurement.CaseStudy(rec[0]),
			Condition: measurement.Condition(rec[1]),
			Parameter: p,
			Value:     v,
		})
	}
	return rows, nil
}
