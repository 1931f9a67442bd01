package export

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"civic-os/internal/features/lookup"
	"civic-os/internal/features/schema"
	"civic-os/internal/spreadsheet"
)

func (s *ExportServiceImpl) Template(ctx context.Context, entityKey, token string) (*File, error) {
	specs, err := s.Schema.GetColumnSpecs(ctx, entityKey, token)
	if err != nil {
		return nil, err
	}

	importable := importableSpecs(specs)
	if len(importable) == 0 {
		return nil, fmt.Errorf("entity '%s' has no importable columns", entityKey)
	}

	// Hint row first: the parser only skips guidance when it is row 1, with
	// the headers on row 2 and data starting at row 3.
	sheets := []spreadsheet.Sheet{{
		Name: entityKey,
		Rows: [][]string{hintRow(importable), templateHeaders(importable)},
	}}

	lookups, err := s.Refs.BuildForSpecs(ctx, importable, token)
	if err != nil {
		return nil, err
	}
	for _, table := range sortedTables(lookups) {
		sheets = append(sheets, referenceSheet(table, lookups[table]))
	}

	data, err := spreadsheet.WriteWorkbook(sheets)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("built import template",
		zap.String("entity", entityKey),
		zap.Int("columns", len(importable)),
		zap.Int("reference_sheets", len(lookups)))

	return &File{Name: fmt.Sprintf("%s_template.xlsx", entityKey), Data: data}, nil
}

func importableSpecs(specs []schema.ColumnSpec) []schema.ColumnSpec {
	out := make([]schema.ColumnSpec, 0, len(specs))
	for _, spec := range specs {
		if spec.IsGenerated || spec.Type == schema.TypeManyToMany {
			continue
		}
		out = append(out, spec)
	}
	return out
}

func templateHeaders(specs []schema.ColumnSpec) []string {
	headers := make([]string, 0, len(specs))
	for _, spec := range specs {
		headers = append(headers, spec.DisplayName)
	}
	return headers
}

// hintRow is the first template row. Its first cell starts with "~" so the
// importer skips the whole row instead of treating it as data.
func hintRow(specs []schema.ColumnSpec) []string {
	hints := make([]string, 0, len(specs))
	for i, spec := range specs {
		hint := hintFor(spec)
		if i == 0 {
			hint = spreadsheet.HintPrefix + hint
		}
		hints = append(hints, hint)
	}
	return hints
}

func hintFor(spec schema.ColumnSpec) string {
	var parts []string
	if !spec.Nullable {
		parts = append(parts, "Required.")
	}

	switch {
	case spec.IsReference():
		parts = append(parts, fmt.Sprintf("Name or id from '%s' (see the %s sheet)", spec.RefTable, spec.RefTable))
	case spec.Type == schema.TypeInteger:
		parts = append(parts, "Whole number")
	case spec.Type == schema.TypeMoney:
		parts = append(parts, "Amount, e.g. 1250.50")
	case spec.Type == schema.TypeBoolean:
		parts = append(parts, "true/false or yes/no")
	case spec.Type == schema.TypeDate:
		parts = append(parts, "Date formatted YYYY-MM-DD")
	case spec.Type == schema.TypeGeoPoint:
		parts = append(parts, "Coordinates formatted lat,lng")
	case spec.Type == schema.TypeColor:
		parts = append(parts, "Hex color like #1A2B3C")
	case spec.MaxLength > 0:
		parts = append(parts, fmt.Sprintf("Text up to %d characters", spec.MaxLength))
	default:
		parts = append(parts, "Text")
	}
	return strings.Join(parts, " ")
}

// referenceSheet lists every valid id and name of one referenced table so
// users can fill foreign key cells without guessing
func referenceSheet(table string, l lookup.ForeignKeyLookup) spreadsheet.Sheet {
	ids := make([]string, 0, len(l.IDsToName))
	for id := range l.IDsToName {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if l.IDsToName[ids[i]] != l.IDsToName[ids[j]] {
			return l.IDsToName[ids[i]] < l.IDsToName[ids[j]]
		}
		return ids[i] < ids[j]
	})

	rows := [][]string{{"ID", "Name"}}
	for _, id := range ids {
		rows = append(rows, []string{id, l.IDsToName[id]})
	}
	return spreadsheet.Sheet{Name: table, Rows: rows}
}

func sortedTables(lookups map[string]lookup.ForeignKeyLookup) []string {
	tables := make([]string, 0, len(lookups))
	for table := range lookups {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}
