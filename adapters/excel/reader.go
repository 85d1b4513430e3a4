package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DataReader reads one sheet of a workbook, or a ';'-separated CSV export, into
// header-keyed rows
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a reader; the file type follows the extension
func NewDataReader(filePath string) *DataReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// SheetNames lists the sheets of a workbook in order
func (r *DataReader) SheetNames() ([]string, error) {
	if r.fileType != "xlsx" {
		return nil, fmt.Errorf("%s is not a workbook", r.filePath)
	}
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// ReadData reads the named sheet (ignored for CSV)
func (r *DataReader) ReadData(sheet string) (*ExcelData, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var (
		rows [][]string
		err  error
	)
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows(sheet)
	}
	if err != nil {
		return nil, err
	}
	return toExcelData(rows), nil
}

func (r *DataReader) readExcelRows(sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

func toExcelData(rows [][]string) *ExcelData {
	data := &ExcelData{}
	if len(rows) == 0 {
		return data
	}
	data.Headers = rows[0]
	for _, row := range rows[1:] {
		raw := make(RawRowData, len(data.Headers))
		for i, h := range data.Headers {
			if i < len(row) {
				raw[h] = row[i]
			} else {
				raw[h] = ""
			}
		}
		data.Rows = append(data.Rows, raw)
	}
	return data
}
