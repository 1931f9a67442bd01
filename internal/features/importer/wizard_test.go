package importer

import "testing"

func validatedWizard(t *testing.T, validRows int, errors int) *Wizard {
	t.Helper()
	w := NewWizard("issues")
	if err := w.BeginValidation("data.csv", 100, []string{"Name"}, []map[string]string{{"Name": "x"}}, 2); err != nil {
		t.Fatal(err)
	}

	rows := make([]map[string]any, validRows)
	for i := range rows {
		rows[i] = map[string]any{"name": "x"}
	}
	var errs []ValidationError
	for i := 0; i < errors; i++ {
		errs = append(errs, ValidationError{Row: 2 + i, Column: "Name", Type: ErrRequired})
	}
	if err := w.CompleteValidation(rows, NewErrorSummary(errs)); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWizardHappyPath(t *testing.T) {
	w := validatedWizard(t, 3, 0)
	if w.Step != StepResults {
		t.Fatalf("expected Results, got %s", w.Step)
	}
	if !w.CanProceedToImport() {
		t.Fatal("clean validation must allow import")
	}

	if err := w.BeginImport(); err != nil {
		t.Fatal(err)
	}
	w.SetUploadProgress(40)
	if err := w.CompleteImport(); err != nil {
		t.Fatal(err)
	}

	if w.Step != StepSuccess {
		t.Errorf("expected Success, got %s", w.Step)
	}
	if w.ImportedCount != 3 {
		t.Errorf("expected all 3 rows counted as imported, got %d", w.ImportedCount)
	}
	if w.UploadProgress != 100 {
		t.Errorf("expected upload progress 100, got %d", w.UploadProgress)
	}
}

func TestWizardBlocksImportWithErrors(t *testing.T) {
	w := validatedWizard(t, 3, 1)
	if w.CanProceedToImport() {
		t.Error("outstanding errors must block import")
	}
	if err := w.BeginImport(); err == nil {
		t.Error("BeginImport should fail with outstanding errors")
	}
	if w.Step != StepResults {
		t.Errorf("failed precondition must not move the wizard, got %s", w.Step)
	}
}

func TestWizardBlocksImportWithNoRows(t *testing.T) {
	w := validatedWizard(t, 0, 0)
	if w.CanProceedToImport() {
		t.Error("zero valid rows must block import")
	}
	if err := w.BeginImport(); err == nil {
		t.Error("BeginImport should fail with nothing to import")
	}
}

func TestWizardInvalidTransitions(t *testing.T) {
	w := NewWizard("issues")

	if err := w.CompleteValidation(nil, NewErrorSummary(nil)); err == nil {
		t.Error("CompleteValidation must require Validating")
	}
	if err := w.BeginImport(); err == nil {
		t.Error("BeginImport must require Results")
	}
	if err := w.CompleteImport(); err == nil {
		t.Error("CompleteImport must require Importing")
	}
	if err := w.FailImport("x"); err == nil {
		t.Error("FailImport must require Importing")
	}
	if w.Step != StepChoose {
		t.Errorf("rejected transitions must not move the wizard, got %s", w.Step)
	}

	if err := w.BeginValidation("f.csv", 1, nil, nil, 2); err != nil {
		t.Fatal(err)
	}
	if err := w.BeginValidation("f.csv", 1, nil, nil, 2); err == nil {
		t.Error("BeginValidation must not restart mid-run")
	}
	if err := w.RejectFile("too big"); err == nil {
		t.Error("RejectFile must require Choose")
	}
}

func TestWizardFailImportKeepsResults(t *testing.T) {
	w := validatedWizard(t, 2, 0)
	if err := w.BeginImport(); err != nil {
		t.Fatal(err)
	}
	if err := w.FailImport("upstream write failed"); err != nil {
		t.Fatal(err)
	}

	if w.Step != StepResults {
		t.Errorf("failed import must return to Results, got %s", w.Step)
	}
	if len(w.ValidRows) != 2 || w.ValidRowCount != 2 {
		t.Error("validated rows must survive a failed import for retry")
	}
	if w.ImportedCount != 0 {
		t.Errorf("nothing was written, imported count should be 0, got %d", w.ImportedCount)
	}
	if w.ErrorMessage == "" {
		t.Error("failure message should be recorded")
	}

	// A retry from Results is a legal transition
	if err := w.BeginImport(); err != nil {
		t.Errorf("retry after failed import should be allowed: %v", err)
	}
}

func TestWizardCancelReturnsToChoose(t *testing.T) {
	w := NewWizard("issues")
	if err := w.BeginValidation("f.csv", 1, nil, nil, 2); err != nil {
		t.Fatal(err)
	}
	w.SetValidationProgress(35)
	if err := w.FailValidation("validation cancelled"); err != nil {
		t.Fatal(err)
	}
	if w.Step != StepChoose {
		t.Errorf("expected Choose after cancel, got %s", w.Step)
	}
}

func TestWizardProgressIsMonotonic(t *testing.T) {
	w := NewWizard("issues")
	if err := w.BeginValidation("f.csv", 1, nil, nil, 2); err != nil {
		t.Fatal(err)
	}
	w.SetValidationProgress(60)
	w.SetValidationProgress(30)
	if w.ValidationProgress != 60 {
		t.Errorf("progress must not move backwards, got %d", w.ValidationProgress)
	}
}

func TestWizardReset(t *testing.T) {
	w := validatedWizard(t, 2, 1)
	w.Reset()

	if w.Step != StepChoose {
		t.Errorf("expected Choose after reset, got %s", w.Step)
	}
	if w.EntityKey != "issues" {
		t.Errorf("reset must keep the entity selection, got %q", w.EntityKey)
	}
	if w.ValidRows != nil || w.ErrorSummary != nil || w.ErrorMessage != "" {
		t.Error("reset must discard all run state")
	}
}
