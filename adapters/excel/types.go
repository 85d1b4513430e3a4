package excel

// RawRowData is one sheet row keyed by column header
type RawRowData map[string]string

// ExcelData is one sheet read back as headers plus keyed rows
type ExcelData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}
