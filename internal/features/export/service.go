package export

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"civic-os/internal/features/lookup"
	"civic-os/internal/features/schema"
	"civic-os/internal/spreadsheet"
)

// DataFetcher abstracts the data plane for entity reads
type DataFetcher interface {
	FetchRows(ctx context.Context, table string, columns []string, token string) ([]map[string]any, error)
}

// File is one rendered workbook ready to send
type File struct {
	Name string
	Data []byte
}

type ExportService interface {
	// Export renders every row of an entity as a workbook, with foreign keys
	// expanded into an id column plus a human-readable name column.
	Export(ctx context.Context, entityKey, token string) (*File, error)
	// Template renders an empty import workbook for an entity: display-name
	// headers, a hint row, and one reference sheet per foreign key table.
	Template(ctx context.Context, entityKey, token string) (*File, error)
}

type ExportServiceImpl struct {
	Schema   schema.SchemaService
	Data     DataFetcher
	Refs     lookup.LookupService
	RowLimit int
	Logger   *zap.Logger
}

func NewExportService(schemaSvc schema.SchemaService, data DataFetcher, refs lookup.LookupService, rowLimit int, logger *zap.Logger) ExportService {
	return &ExportServiceImpl{
		Schema:   schemaSvc,
		Data:     data,
		Refs:     refs,
		RowLimit: rowLimit,
		Logger:   logger,
	}
}

func (s *ExportServiceImpl) Export(ctx context.Context, entityKey, token string) (*File, error) {
	specs, err := s.Schema.GetColumnSpecs(ctx, entityKey, token)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("entity '%s' has no exportable columns", entityKey)
	}

	rows, err := s.Data.FetchRows(ctx, entityKey, selectors(specs), token)
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", entityKey, err)
	}
	if len(rows) > s.RowLimit {
		return nil, fmt.Errorf("export of '%s' would contain %d rows; the maximum is %d, filter the data first",
			entityKey, len(rows), s.RowLimit)
	}

	cells := make([][]string, 0, len(rows)+1)
	cells = append(cells, exportHeaders(specs))
	for _, row := range rows {
		cells = append(cells, flattenRow(specs, row))
	}

	data, err := spreadsheet.WriteWorkbook([]spreadsheet.Sheet{{Name: entityKey, Rows: cells}})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("exported entity",
		zap.String("entity", entityKey),
		zap.Int("rows", len(rows)))

	return &File{
		Name: fmt.Sprintf("%s_export_%s.xlsx", entityKey, time.Now().Format("2006-01-02")),
		Data: data,
	}, nil
}

// selectors builds the PostgREST select list. Foreign keys get a companion
// embedded-resource alias so the export can show the referenced display name
// next to the raw id.
func selectors(specs []schema.ColumnSpec) []string {
	out := make([]string, 0, len(specs))
	for _, spec := range specs {
		switch {
		case spec.Type == schema.TypeManyToMany:
			out = append(out, fmt.Sprintf("%s:%s(display_name)", spec.Name, spec.RefTable))
		case spec.IsReference():
			out = append(out, spec.Name)
			out = append(out, fmt.Sprintf("%s_ref:%s!%s(display_name)", spec.Name, spec.RefTable, spec.Name))
		default:
			out = append(out, spec.Name)
		}
	}
	return out
}

func exportHeaders(specs []schema.ColumnSpec) []string {
	headers := make([]string, 0, len(specs))
	for _, spec := range specs {
		headers = append(headers, spec.DisplayName)
		if spec.IsReference() {
			headers = append(headers, spec.DisplayName+" (Name)")
		}
	}
	return headers
}

func flattenRow(specs []schema.ColumnSpec, row map[string]any) []string {
	cells := make([]string, 0, len(specs))
	for _, spec := range specs {
		switch {
		case spec.Type == schema.TypeManyToMany:
			cells = append(cells, joinRelated(row[spec.Name]))
		case spec.IsReference():
			cells = append(cells, lookup.FormatID(row[spec.Name]))
			cells = append(cells, embeddedName(row[spec.Name+"_ref"]))
		case spec.Type == schema.TypeGeoPoint:
			cells = append(cells, pointToLatLng(row[spec.Name]))
		default:
			cells = append(cells, formatCell(row[spec.Name]))
		}
	}
	return cells
}

// joinRelated renders an embedded to-many relation as a comma separated list
func joinRelated(value any) string {
	related, ok := value.([]any)
	if !ok {
		return ""
	}
	names := make([]string, 0, len(related))
	for _, item := range related {
		if name := embeddedName(item); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func embeddedName(value any) string {
	obj, ok := value.(map[string]any)
	if !ok {
		return ""
	}
	name, _ := obj["display_name"].(string)
	return name
}

var wktPointRe = regexp.MustCompile(`^POINT\s*\(\s*(-?[\d.]+)\s+(-?[\d.]+)\s*\)$`)

// pointToLatLng renders a stored point in the same lat,lng form the import
// accepts, so an exported file can round-trip back through the importer.
func pointToLatLng(value any) string {
	switch v := value.(type) {
	case string:
		if m := wktPointRe.FindStringSubmatch(v); m != nil {
			return m[2] + "," + m[1]
		}
		return v
	case map[string]any:
		coords, ok := v["coordinates"].([]any)
		if !ok || len(coords) != 2 {
			return ""
		}
		lng := formatCell(coords[0])
		lat := formatCell(coords[1])
		return lat + "," + lng
	case nil:
		return ""
	default:
		return formatCell(value)
	}
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
