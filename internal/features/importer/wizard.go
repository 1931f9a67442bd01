package importer

import (
	"fmt"
)

// Wizard is the import run's authoritative state. Every transition lives
// here and validates its own preconditions; callers never mutate fields
// directly from the outside.
type Wizard struct {
	Step      Step
	EntityKey string

	FileName string
	FileSize int64

	ValidationProgress int // 0-100
	UploadProgress     int // 0-100

	ErrorMessage string
	ErrorSummary *ValidationErrorSummary

	ValidRows     []map[string]any
	ValidRowCount int
	ImportedCount int

	// Original upload kept for the error report download
	Headers    []string
	SourceRows []map[string]string
	StartRow   int
}

func NewWizard(entityKey string) *Wizard {
	return &Wizard{Step: StepChoose, EntityKey: entityKey}
}

// CanProceedToImport holds iff validation produced rows and zero errors
func (w *Wizard) CanProceedToImport() bool {
	return w.ValidRowCount > 0 && (w.ErrorSummary == nil || w.ErrorSummary.TotalErrors == 0)
}

// RejectFile records a file-level failure while staying in Choose
func (w *Wizard) RejectFile(message string) error {
	if w.Step != StepChoose {
		return fmt.Errorf("cannot reject a file in step '%s'", w.Step)
	}
	w.ErrorMessage = message
	return nil
}

// BeginValidation moves Choose -> Validating once a file has been accepted,
// clearing any previous error and result state.
func (w *Wizard) BeginValidation(fileName string, fileSize int64, headers []string, rows []map[string]string, startRow int) error {
	if w.Step != StepChoose {
		return fmt.Errorf("cannot start validation from step '%s'", w.Step)
	}

	w.FileName = fileName
	w.FileSize = fileSize
	w.Headers = headers
	w.SourceRows = rows
	w.StartRow = startRow

	w.ErrorMessage = ""
	w.ErrorSummary = nil
	w.ValidRows = nil
	w.ValidRowCount = 0
	w.ImportedCount = 0
	w.ValidationProgress = 0
	w.UploadProgress = 0

	w.Step = StepValidating
	return nil
}

// SetValidationProgress records worker progress while Validating
func (w *Wizard) SetValidationProgress(pct int) {
	if w.Step == StepValidating && pct >= w.ValidationProgress {
		w.ValidationProgress = pct
	}
}

// CompleteValidation moves Validating -> Results with the worker's output
func (w *Wizard) CompleteValidation(validRows []map[string]any, summary ValidationErrorSummary) error {
	if w.Step != StepValidating {
		return fmt.Errorf("cannot complete validation from step '%s'", w.Step)
	}
	w.ValidRows = validRows
	w.ValidRowCount = len(validRows)
	w.ErrorSummary = &summary
	w.ValidationProgress = 100
	w.Step = StepResults
	return nil
}

// FailValidation returns Validating -> Choose after a cancel or worker fault
func (w *Wizard) FailValidation(message string) error {
	if w.Step != StepValidating {
		return fmt.Errorf("cannot fail validation from step '%s'", w.Step)
	}
	w.ErrorMessage = message
	w.Step = StepChoose
	return nil
}

// BeginImport moves Results -> Importing. Proceeding without importable rows
// or with outstanding errors is not a transition, it is a no-op error.
func (w *Wizard) BeginImport() error {
	if w.Step != StepResults {
		return fmt.Errorf("cannot start import from step '%s'", w.Step)
	}
	if w.EntityKey == "" {
		return fmt.Errorf("no target entity for import")
	}
	if !w.CanProceedToImport() {
		return fmt.Errorf("cannot import: %d valid rows, %d errors", w.ValidRowCount, w.totalErrors())
	}
	w.ErrorMessage = ""
	w.UploadProgress = 0
	w.Step = StepImporting
	return nil
}

// SetUploadProgress records bulk insert progress while Importing
func (w *Wizard) SetUploadProgress(pct int) {
	if w.Step == StepImporting && pct >= w.UploadProgress {
		w.UploadProgress = pct
	}
}

// CompleteImport moves Importing -> Success; every accepted row was written
func (w *Wizard) CompleteImport() error {
	if w.Step != StepImporting {
		return fmt.Errorf("cannot complete import from step '%s'", w.Step)
	}
	w.ImportedCount = w.ValidRowCount
	w.UploadProgress = 100
	w.Step = StepSuccess
	return nil
}

// FailImport returns Importing -> Results. Validated rows stay available so
// the user can retry without re-uploading or re-validating.
func (w *Wizard) FailImport(message string) error {
	if w.Step != StepImporting {
		return fmt.Errorf("cannot fail import from step '%s'", w.Step)
	}
	w.ErrorMessage = message
	w.Step = StepResults
	return nil
}

// Reset discards all run state and returns to Choose
func (w *Wizard) Reset() {
	*w = Wizard{Step: StepChoose, EntityKey: w.EntityKey}
}

func (w *Wizard) totalErrors() int {
	if w.ErrorSummary == nil {
		return 0
	}
	return w.ErrorSummary.TotalErrors
}
