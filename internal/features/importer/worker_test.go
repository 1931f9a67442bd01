package importer

import (
	"testing"
	"time"

	"civic-os/internal/features/lookup"
	"civic-os/internal/features/schema"
)

func workerSpecs() []schema.ColumnSpec {
	return []schema.ColumnSpec{
		{Name: "name", DisplayName: "Name", Type: schema.TypeShortText},
		{Name: "count", DisplayName: "Count", Type: schema.TypeInteger, Nullable: true},
	}
}

func workerRows(n int) []map[string]string {
	rows := make([]map[string]string, n)
	for i := range rows {
		rows[i] = map[string]string{"Name": "row", "Count": "1"}
	}
	return rows
}

// collectEvents drains the worker until its event channel closes
func collectEvents(t *testing.T, w *Worker) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("worker did not finish; events so far: %v", events)
		}
	}
}

func terminalEvents(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		switch ev.Type {
		case EventComplete, EventCancelled, EventError:
			out = append(out, ev)
		}
	}
	return out
}

func TestWorkerValidatesRows(t *testing.T) {
	rows := workerRows(10)
	rows[2]["Count"] = "abc"
	rows[7]["Name"] = ""

	w := NewWorker()
	defer w.Terminate()
	w.Validate(ValidateRequest{
		EntityKey: "issues",
		Rows:      rows,
		Specs:     workerSpecs(),
		Lookups:   lookup.SerializedLookups{},
		StartRow:  2,
	})

	events := collectEvents(t, w)
	terminals := terminalEvents(events)
	if len(terminals) != 1 || terminals[0].Type != EventComplete {
		t.Fatalf("expected exactly one complete event, got %v", terminals)
	}

	results := terminals[0].Results
	if len(results.ValidRows) != 8 {
		t.Errorf("expected 8 valid rows, got %d", len(results.ValidRows))
	}
	if results.ErrorSummary.TotalErrors != 2 {
		t.Errorf("expected 2 errors, got %d", results.ErrorSummary.TotalErrors)
	}

	// Error rows carry spreadsheet row numbers, offset by the start row
	wantRows := map[int]bool{4: true, 9: true}
	for _, e := range results.ErrorSummary.Errors {
		if !wantRows[e.Row] {
			t.Errorf("unexpected error row %d", e.Row)
		}
	}
}

func TestWorkerProgressMonotonic(t *testing.T) {
	w := NewWorker()
	defer w.Terminate()
	w.Validate(ValidateRequest{Rows: workerRows(10), Specs: workerSpecs(), StartRow: 2})

	events := collectEvents(t, w)

	last := -1
	var sawFinal bool
	for _, ev := range events {
		if ev.Type != EventProgress {
			continue
		}
		p := ev.Progress
		if p.Percentage < last {
			t.Errorf("progress went backwards: %d after %d", p.Percentage, last)
		}
		if p.Percentage == 100 {
			if p.CurrentRow != p.TotalRows {
				t.Errorf("100%% reported before the final row: %+v", p)
			}
			sawFinal = true
		}
		last = p.Percentage
	}
	if !sawFinal {
		t.Error("final 100% progress event never emitted")
	}
}

func TestWorkerChunksLargeRuns(t *testing.T) {
	w := NewWorker()
	defer w.Terminate()
	w.Validate(ValidateRequest{Rows: workerRows(250), Specs: workerSpecs(), StartRow: 2})

	events := collectEvents(t, w)

	var progress []int
	for _, ev := range events {
		if ev.Type == EventProgress {
			progress = append(progress, ev.Progress.CurrentRow)
		}
	}
	want := []int{100, 200, 250}
	if len(progress) != len(want) {
		t.Fatalf("expected progress at %v, got %v", want, progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("expected progress at %v, got %v", want, progress)
		}
	}
}

func TestWorkerCancelBeforeRequest(t *testing.T) {
	w := NewWorker()
	w.Cancel()

	events := collectEvents(t, w)
	terminals := terminalEvents(events)
	if len(terminals) != 1 || terminals[0].Type != EventCancelled {
		t.Fatalf("expected exactly one cancelled event, got %v", terminals)
	}
	for _, ev := range events {
		if ev.Type == EventComplete {
			t.Error("cancelled run must never also complete")
		}
	}
}

func TestWorkerCancelIsIdempotent(t *testing.T) {
	w := NewWorker()
	w.Cancel()
	w.Cancel()
	w.Terminate()
	w.Terminate()

	events := collectEvents(t, w)
	// Terminate does not wait for acknowledgment, so the cancelled event is
	// optional here, but there is never more than one terminal event.
	if terminals := terminalEvents(events); len(terminals) > 1 {
		t.Fatalf("expected at most one terminal event, got %v", terminals)
	}
}

func TestCloneRequestDetachesInputs(t *testing.T) {
	rows := workerRows(1)
	req := ValidateRequest{
		Rows:  rows,
		Specs: workerSpecs(),
		Lookups: lookup.SerializedLookups{
			"statuses": {NameToIDs: map[string][]string{"open": {"1"}}, ValidIDs: []string{"1"}, IDsToName: map[string]string{"1": "Open"}, NumericIDs: true},
		},
		StartRow: 2,
	}

	cloned, err := cloneRequest(req)
	if err != nil {
		t.Fatalf("cloneRequest: %v", err)
	}

	rows[0]["Name"] = "mutated"
	req.Lookups["statuses"].NameToIDs["open"][0] = "9"

	if cloned.Rows[0]["Name"] != "row" {
		t.Error("cloned rows share memory with the original")
	}
	if cloned.Lookups["statuses"].NameToIDs["open"][0] != "1" {
		t.Error("cloned lookups share memory with the original")
	}
}
