package importer

import (
	"encoding/json"
	"fmt"
	"sync"

	"civic-os/internal/features/lookup"
	"civic-os/internal/features/schema"
)

// Worker message protocol. Everything crossing the boundary is plain data:
// the worker operates on a deep copy of its inputs and shares no mutable
// state with the orchestrator.

type EventType string

const (
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventCancelled EventType = "cancelled"
	EventError     EventType = "error"
)

type Progress struct {
	CurrentRow int    `json:"current_row"`
	TotalRows  int    `json:"total_rows"`
	Percentage int    `json:"percentage"`
	Stage      string `json:"stage"`
}

type Results struct {
	ValidRows    []map[string]any       `json:"valid_rows"`
	ErrorSummary ValidationErrorSummary `json:"error_summary"`
}

// Event is the tagged union the worker emits. Exactly one terminal event
// (complete, cancelled or error) is delivered per run.
type Event struct {
	Type     EventType `json:"type"`
	Progress *Progress `json:"progress,omitempty"`
	Results  *Results  `json:"results,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// ValidateRequest carries one full validation pass's inputs
type ValidateRequest struct {
	EntityKey string                   `json:"entity_key"`
	Rows      []map[string]string      `json:"rows"`
	Specs     []schema.ColumnSpec      `json:"specs"`
	Lookups   lookup.SerializedLookups `json:"lookups"`
	StartRow  int                      `json:"start_row"` // spreadsheet row of the first data row
}

// progressChunk bounds event volume on large files; small files report per row
const progressChunk = 100

// Worker validates one row set off the request goroutine. One instance per
// validation pass; it is stateless between runs and must be terminated once a
// terminal event has been observed.
type Worker struct {
	requests chan ValidateRequest
	events   chan Event
	cancel   chan struct{}
	quitOnce sync.Once
	cancOnce sync.Once
}

func NewWorker() *Worker {
	w := &Worker{
		requests: make(chan ValidateRequest, 1),
		events:   make(chan Event, 64),
		cancel:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Events delivers worker events in emission order
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Validate submits the run's inputs. Calling it twice on one worker is not a
// defined operation; the wizard step guard prevents it.
func (w *Worker) Validate(req ValidateRequest) {
	w.requests <- req
}

// Cancel asks the worker to stop. Best effort: the orchestrator keeps
// listening until the cancelled acknowledgment arrives.
func (w *Worker) Cancel() {
	w.cancOnce.Do(func() { close(w.cancel) })
}

// Terminate tears the worker down without waiting for acknowledgment.
// Terminating an already-terminated worker is a no-op.
func (w *Worker) Terminate() {
	w.quitOnce.Do(func() { close(w.requests) })
	w.Cancel()
}

func (w *Worker) run() {
	defer close(w.events)

	var req ValidateRequest
	select {
	case r, ok := <-w.requests:
		if !ok {
			return
		}
		req = r
	case <-w.cancel:
		w.events <- Event{Type: EventCancelled}
		return
	}

	// Structural clone: the worker's copy of rows, specs and lookups is
	// fully detached from the caller's memory.
	cloned, err := cloneRequest(req)
	if err != nil {
		w.events <- Event{Type: EventError, Error: fmt.Sprintf("failed to copy validation inputs: %v", err)}
		return
	}

	w.validate(cloned)
}

func (w *Worker) validate(req ValidateRequest) {
	lookups := lookup.Deserialize(req.Lookups)
	total := len(req.Rows)

	var validRows []map[string]any
	var allErrors []ValidationError

	for i, row := range req.Rows {
		select {
		case <-w.cancel:
			w.events <- Event{Type: EventCancelled}
			return
		default:
		}

		normalized, errs := ValidateRow(req.StartRow+i, row, req.Specs, lookups)
		if len(errs) > 0 {
			allErrors = append(allErrors, errs...)
		} else {
			validRows = append(validRows, normalized)
		}

		current := i + 1
		if current == total || total <= progressChunk || current%progressChunk == 0 {
			w.events <- Event{Type: EventProgress, Progress: &Progress{
				CurrentRow: current,
				TotalRows:  total,
				Percentage: current * 100 / max(total, 1),
				Stage:      "validating",
			}}
		}
	}

	w.events <- Event{Type: EventComplete, Results: &Results{
		ValidRows:    validRows,
		ErrorSummary: NewErrorSummary(allErrors),
	}}
}

func cloneRequest(req ValidateRequest) (ValidateRequest, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return ValidateRequest{}, err
	}
	var cloned ValidateRequest
	if err := json.Unmarshal(raw, &cloned); err != nil {
		return ValidateRequest{}, err
	}
	return cloned, nil
}
