package importer

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Step is the wizard's current position. Exactly one step is active at a time.
type Step string

const (
	StepChoose     Step = "choose"
	StepValidating Step = "validating"
	StepResults    Step = "results"
	StepImporting  Step = "importing"
	StepSuccess    Step = "success"
)

type ErrorType string

const (
	ErrRequired           ErrorType = "required"
	ErrTypeFormat         ErrorType = "type_format"
	ErrRangeViolation     ErrorType = "range_violation"
	ErrInvalidReference   ErrorType = "invalid_reference"
	ErrAmbiguousReference ErrorType = "ambiguous_reference"
)

// ValidationError pins one rejected cell to its spreadsheet position
type ValidationError struct {
	Row     int       `json:"row" bson:"row"` // 1-indexed, offset by header/hint rows
	Column  string    `json:"column" bson:"column"`
	Value   string    `json:"value" bson:"value"`
	Message string    `json:"message" bson:"message"`
	Type    ErrorType `json:"type" bson:"type"`
}

// previewCap bounds the error preview shown inline; the full list stays
// available through the error report download.
const previewCap = 50

// ValidationErrorSummary aggregates one validation pass's errors
type ValidationErrorSummary struct {
	TotalErrors int               `json:"total_errors" bson:"total_errors"`
	ByType      map[ErrorType]int `json:"by_type" bson:"by_type"`
	ByColumn    map[string]int    `json:"by_column" bson:"by_column"`
	Preview     []ValidationError `json:"preview" bson:"preview"`
	Errors      []ValidationError `json:"errors" bson:"errors"`
}

// NewErrorSummary groups errors by type and column and caps the preview
func NewErrorSummary(errors []ValidationError) ValidationErrorSummary {
	summary := ValidationErrorSummary{
		TotalErrors: len(errors),
		ByType:      make(map[ErrorType]int),
		ByColumn:    make(map[string]int),
		Errors:      errors,
	}
	for _, e := range errors {
		summary.ByType[e.Type]++
		summary.ByColumn[e.Column]++
	}
	if len(errors) > previewCap {
		summary.Preview = errors[:previewCap]
	} else {
		summary.Preview = errors
	}
	return summary
}

// ImportJob is the persisted record of one wizard run
type ImportJob struct {
	ID            primitive.ObjectID      `json:"id" bson:"_id,omitempty"`
	UserID        string                  `json:"user_id" bson:"user_id"`
	EntityKey     string                  `json:"entity_key" bson:"entity_key"`
	FileName      string                  `json:"file_name" bson:"file_name"`
	FilePath      string                  `json:"file_path,omitempty" bson:"file_path,omitempty"`
	FileSize      int64                   `json:"file_size" bson:"file_size"`
	Step          Step                    `json:"step" bson:"step"`
	TotalRows     int                     `json:"total_rows" bson:"total_rows"`
	ValidRowCount int                     `json:"valid_row_count" bson:"valid_row_count"`
	ImportedCount int                     `json:"imported_count" bson:"imported_count"`
	ErrorMessage  string                  `json:"error_message,omitempty" bson:"error_message,omitempty"`
	ErrorSummary  *ValidationErrorSummary `json:"error_summary,omitempty" bson:"error_summary,omitempty"`
	CreatedAt     time.Time               `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at" bson:"updated_at"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}
