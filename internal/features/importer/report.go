package importer

import (
	"strings"

	"civic-os/internal/spreadsheet"
)

// BuildErrorReport renders the original upload with one extra "Errors" column
// listing each row's validation failures, reflecting the most recent
// validation pass exactly.
func BuildErrorReport(headers []string, rows []map[string]string, startRow int, summary *ValidationErrorSummary) ([]byte, error) {
	errorsByRow := make(map[int][]string)
	if summary != nil {
		for _, e := range summary.Errors {
			errorsByRow[e.Row] = append(errorsByRow[e.Row], e.Message)
		}
	}

	out := make([][]string, 0, len(rows)+1)
	out = append(out, append(append([]string(nil), headers...), "Errors"))

	for i, row := range rows {
		record := make([]string, 0, len(headers)+1)
		for _, h := range headers {
			record = append(record, row[h])
		}
		record = append(record, strings.Join(errorsByRow[startRow+i], "; "))
		out = append(out, record)
	}

	return spreadsheet.WriteWorkbook([]spreadsheet.Sheet{{Name: "Errors", Rows: out}})
}
