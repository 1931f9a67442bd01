package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// HintPrefix marks a leading guidance row in import templates. A first row
// whose first cell starts with this prefix is skipped during parsing.
const HintPrefix = "~"

// ParseResult is a parsed upload: rows keyed by header text, plus the
// 1-indexed spreadsheet row number of the first data row so validation errors
// can point at the user's actual rows past header and hint rows.
type ParseResult struct {
	Headers      []string
	Rows         []map[string]string
	DataStartRow int
}

// Parse reads a CSV or Excel upload into row maps keyed by header text.
// Headers come from the first non-hint row.
func Parse(file io.Reader, filename string) (*ParseResult, error) {
	var raw [][]string
	var err error

	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		raw, err = parseCSV(file)
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xls"):
		raw, err = parseExcel(file)
	default:
		return nil, fmt.Errorf("unsupported file format")
	}
	if err != nil {
		return nil, err
	}

	dataStart := 2 // row 1 is the header
	if len(raw) > 0 && len(raw[0]) > 0 && strings.HasPrefix(raw[0][0], HintPrefix) {
		raw = raw[1:]
		dataStart = 3
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("file contains no header row")
	}

	headers := raw[0]
	rows := make([]map[string]string, 0, len(raw)-1)
	for _, record := range raw[1:] {
		row := make(map[string]string, len(headers))
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = value
			}
		}
		rows = append(rows, row)
	}

	return &ParseResult{Headers: headers, Rows: rows, DataStartRow: dataStart}, nil
}

func parseCSV(file io.Reader) ([][]string, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var raw [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		raw = append(raw, record)
	}
	return raw, nil
}

func parseExcel(file io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("Excel file is empty")
	}
	return rows, nil
}

// Sheet is one worksheet's worth of already-ordered cell rows
type Sheet struct {
	Name string
	Rows [][]string
}

// WriteWorkbook renders sheets into a single xlsx workbook
func WriteWorkbook(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook needs at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		name := sheetName(sheet.Name)
		if i == 0 {
			f.SetSheetName(f.GetSheetName(0), name)
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return nil, fmt.Errorf("failed to create sheet '%s': %w", name, err)
			}
		}

		for r, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return nil, err
			}
			values := make([]interface{}, len(row))
			for c, v := range row {
				values[c] = v
			}
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				return nil, fmt.Errorf("failed to write row %d of '%s': %w", r+1, name, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetName enforces Excel's 31 character sheet name limit
func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
