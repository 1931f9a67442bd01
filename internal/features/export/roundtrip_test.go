package export

import (
	"bytes"
	"context"
	"testing"

	"civic-os/internal/features/importer"
	"civic-os/internal/features/lookup"
	"civic-os/internal/spreadsheet"
)

func statusLookups() map[string]lookup.ForeignKeyLookup {
	return map[string]lookup.ForeignKeyLookup{
		"statuses": lookup.Build([]lookup.ReferenceRow{
			{ID: "1", DisplayName: "Open"},
			{ID: "2", DisplayName: "Closed"},
		}, true),
	}
}

// A generated template must parse back with its guidance row skipped: data
// starts at row 3 and the headers are the display names users fill in under.
func TestTemplateRoundTripsThroughParser(t *testing.T) {
	refs := &fakeRefs{lookups: statusLookups()}
	svc := newService(issueSpecs(), &fakeFetcher{}, refs, 100)

	file, err := svc.Template(context.Background(), "issues", "")
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := spreadsheet.Parse(bytes.NewReader(file.Data), file.Name)
	if err != nil {
		t.Fatal(err)
	}

	if parsed.DataStartRow != 3 {
		t.Errorf("DataStartRow = %d, want 3: hint row must precede the headers", parsed.DataStartRow)
	}
	wantHeaders := []string{"Name", "Status", "Location"}
	if len(parsed.Headers) != len(wantHeaders) {
		t.Fatalf("headers = %v, want %v", parsed.Headers, wantHeaders)
	}
	for i := range wantHeaders {
		if parsed.Headers[i] != wantHeaders[i] {
			t.Errorf("header %d = %q, want %q", i, parsed.Headers[i], wantHeaders[i])
		}
	}
	if len(parsed.Rows) != 0 {
		t.Errorf("a fresh template should contain no data rows, got %v", parsed.Rows)
	}
}

// An exported workbook must re-import cleanly: parsing it and validating each
// row against the same column specs yields zero errors and the stored values.
func TestExportRoundTripsThroughValidator(t *testing.T) {
	fetcher := &fakeFetcher{rows: []map[string]any{
		{
			"id":            float64(7),
			"name":          "Pothole on Main St",
			"status_id":     float64(1),
			"status_id_ref": map[string]any{"display_name": "Open"},
			"location":      "POINT(-83.05 42.33)",
		},
		{
			"id":            float64(8),
			"name":          "Broken streetlight",
			"status_id":     float64(2),
			"status_id_ref": map[string]any{"display_name": "Closed"},
		},
	}}
	svc := newService(issueSpecs(), fetcher, nil, 100)

	file, err := svc.Export(context.Background(), "issues", "")
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := spreadsheet.Parse(bytes.NewReader(file.Data), file.Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Rows) != 2 {
		t.Fatalf("parsed %d rows, want 2", len(parsed.Rows))
	}

	specs := issueSpecs()
	lookups := statusLookups()

	normalized, errs := importer.ValidateRow(parsed.DataStartRow, parsed.Rows[0], specs, lookups)
	if len(errs) != 0 {
		t.Fatalf("exported row should re-validate cleanly, got %v", errs)
	}
	if normalized["name"] != "Pothole on Main St" {
		t.Errorf("name = %v", normalized["name"])
	}
	if normalized["status_id"] != int64(1) {
		t.Errorf("status_id = %v (%T), want 1", normalized["status_id"], normalized["status_id"])
	}
	if normalized["location"] != "POINT(-83.05 42.33)" {
		t.Errorf("location = %v, want the original point back", normalized["location"])
	}

	normalized, errs = importer.ValidateRow(parsed.DataStartRow+1, parsed.Rows[1], specs, lookups)
	if len(errs) != 0 {
		t.Fatalf("exported row should re-validate cleanly, got %v", errs)
	}
	if normalized["status_id"] != int64(2) {
		t.Errorf("status_id = %v, want 2", normalized["status_id"])
	}
	if _, ok := normalized["location"]; ok {
		t.Error("empty location cell should stay unset")
	}
}
