package export

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"civic-os/internal/features/lookup"
	"civic-os/internal/features/schema"
)

type fakeSchema struct {
	specs []schema.ColumnSpec
}

func (f *fakeSchema) GetColumnSpecs(ctx context.Context, entityKey, token string) ([]schema.ColumnSpec, error) {
	return f.specs, nil
}

type fakeFetcher struct {
	rows     []map[string]any
	lastCols []string
}

func (f *fakeFetcher) FetchRows(ctx context.Context, table string, columns []string, token string) ([]map[string]any, error) {
	f.lastCols = columns
	return f.rows, nil
}

type fakeRefs struct {
	lookups map[string]lookup.ForeignKeyLookup
}

func (f *fakeRefs) BuildForSpecs(ctx context.Context, specs []schema.ColumnSpec, token string) (map[string]lookup.ForeignKeyLookup, error) {
	return f.lookups, nil
}

func issueSpecs() []schema.ColumnSpec {
	return []schema.ColumnSpec{
		{Name: "id", DisplayName: "ID", Type: schema.TypeInteger, IsGenerated: true},
		{Name: "name", DisplayName: "Name", Type: schema.TypeShortText, MaxLength: 50},
		{Name: "status_id", DisplayName: "Status", Type: schema.TypeForeignKey, Nullable: true, RefTable: "statuses", RefIDColumn: "id", RefIsNumeric: true},
		{Name: "location", DisplayName: "Location", Type: schema.TypeGeoPoint, Nullable: true},
	}
}

func newService(specs []schema.ColumnSpec, fetcher *fakeFetcher, refs *fakeRefs, limit int) ExportService {
	if refs == nil {
		refs = &fakeRefs{}
	}
	return NewExportService(&fakeSchema{specs: specs}, fetcher, refs, limit, zap.NewNop())
}

func TestSelectorsEmbedReferences(t *testing.T) {
	got := selectors(issueSpecs())
	want := []string{"id", "name", "status_id", "status_id_ref:statuses!status_id(display_name)", "location"}
	if len(got) != len(want) {
		t.Fatalf("selectors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("selectors = %v, want %v", got, want)
		}
	}
}

func TestFlattenRow(t *testing.T) {
	row := map[string]any{
		"id":            float64(7),
		"name":          "Pothole",
		"status_id":     float64(1),
		"status_id_ref": map[string]any{"display_name": "Open"},
		"location":      "POINT(-83.05 42.33)",
	}

	cells := flattenRow(issueSpecs(), row)
	want := []string{"7", "Pothole", "1", "Open", "42.33,-83.05"}
	if len(cells) != len(want) {
		t.Fatalf("cells = %v, want %v", cells, want)
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("cell %d = %q, want %q", i, cells[i], want[i])
		}
	}
}

func TestFlattenRowNulls(t *testing.T) {
	cells := flattenRow(issueSpecs(), map[string]any{"id": float64(7), "name": "x"})
	// id, name, status id, status name, location
	for i, cell := range cells[2:] {
		if cell != "" {
			t.Errorf("null column %d rendered as %q", i+2, cell)
		}
	}
}

func TestJoinRelated(t *testing.T) {
	got := joinRelated([]any{
		map[string]any{"display_name": "Roads"},
		map[string]any{"display_name": "Drainage"},
	})
	if got != "Roads, Drainage" {
		t.Errorf("joinRelated = %q", got)
	}
	if joinRelated(nil) != "" {
		t.Error("nil relation should render empty")
	}
}

func TestPointToLatLng(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"WKT", "POINT(-83.05 42.33)", "42.33,-83.05"},
		{"GeoJSON", map[string]any{"type": "Point", "coordinates": []any{float64(-83.05), float64(42.33)}}, "42.33,-83.05"},
		{"Nil", nil, ""},
		{"Unparseable", "somewhere", "somewhere"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pointToLatLng(tt.value); got != tt.want {
				t.Errorf("pointToLatLng(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestExportRowLimit(t *testing.T) {
	fetcher := &fakeFetcher{rows: []map[string]any{
		{"name": "a"}, {"name": "b"}, {"name": "c"},
	}}
	svc := newService(issueSpecs(), fetcher, nil, 2)

	_, err := svc.Export(context.Background(), "issues", "")
	if err == nil {
		t.Fatal("expected row limit error")
	}
	if !strings.Contains(err.Error(), "filter") {
		t.Errorf("limit error should tell the user to filter, got %q", err.Error())
	}
}

func TestExportProducesWorkbook(t *testing.T) {
	fetcher := &fakeFetcher{rows: []map[string]any{
		{"id": float64(1), "name": "Pothole", "status_id": float64(1), "status_id_ref": map[string]any{"display_name": "Open"}},
	}}
	svc := newService(issueSpecs(), fetcher, nil, 100)

	file, err := svc.Export(context.Background(), "issues", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(file.Name, "issues_export_") || !strings.HasSuffix(file.Name, ".xlsx") {
		t.Errorf("unexpected file name %q", file.Name)
	}
	if len(file.Data) == 0 {
		t.Error("workbook is empty")
	}
	if len(fetcher.lastCols) == 0 {
		t.Error("export should request an explicit select list")
	}
}

func TestTemplateSheets(t *testing.T) {
	refs := &fakeRefs{lookups: map[string]lookup.ForeignKeyLookup{
		"statuses": lookup.Build([]lookup.ReferenceRow{
			{ID: "1", DisplayName: "Open"},
			{ID: "2", DisplayName: "Closed"},
		}, true),
	}}
	svc := newService(issueSpecs(), &fakeFetcher{}, refs, 100)

	file, err := svc.Template(context.Background(), "issues", "")
	if err != nil {
		t.Fatal(err)
	}
	if file.Name != "issues_template.xlsx" {
		t.Errorf("unexpected file name %q", file.Name)
	}
	if len(file.Data) == 0 {
		t.Error("workbook is empty")
	}
}

func TestHintRowMarksFirstCell(t *testing.T) {
	hints := hintRow(importableSpecs(issueSpecs()))
	if !strings.HasPrefix(hints[0], "~") {
		t.Errorf("first hint cell must carry the skip marker, got %q", hints[0])
	}
	for _, h := range hints[1:] {
		if strings.HasPrefix(h, "~") {
			t.Errorf("only the first hint cell carries the marker, got %q", h)
		}
	}
}

func TestImportableSpecsSkipGenerated(t *testing.T) {
	importable := importableSpecs(issueSpecs())
	for _, spec := range importable {
		if spec.IsGenerated {
			t.Errorf("generated column %q must not appear in templates", spec.Name)
		}
	}
	if len(importable) != 3 {
		t.Errorf("expected 3 importable columns, got %d", len(importable))
	}
}

func TestReferenceSheetSortedByName(t *testing.T) {
	l := lookup.Build([]lookup.ReferenceRow{
		{ID: "2", DisplayName: "Open"},
		{ID: "3", DisplayName: "Closed"},
		{ID: "1", DisplayName: "Open"},
	}, true)

	sheet := referenceSheet("statuses", l)
	if sheet.Name != "statuses" {
		t.Errorf("sheet name = %q", sheet.Name)
	}
	if len(sheet.Rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %v", sheet.Rows)
	}
	if sheet.Rows[1][1] != "Closed" {
		t.Errorf("rows should sort by name, got %v", sheet.Rows)
	}
	// Ties on name fall back to id order
	if sheet.Rows[2][0] != "1" || sheet.Rows[3][0] != "2" {
		t.Errorf("name ties should sort by id, got %v", sheet.Rows)
	}
}
