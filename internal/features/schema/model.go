package schema

// PropertyType is the semantic type driving both validation and export shape
type PropertyType string

const (
	TypeShortText     PropertyType = "short_text"
	TypeLongText      PropertyType = "long_text"
	TypeBoolean       PropertyType = "boolean"
	TypeInteger       PropertyType = "integer"
	TypeMoney         PropertyType = "money"
	TypeDate          PropertyType = "date"
	TypeDateTimeNaive PropertyType = "datetime"
	TypeDateTimeZoned PropertyType = "datetime_tz"
	TypeForeignKey    PropertyType = "foreign_key"
	TypeUserReference PropertyType = "user"
	TypeGeoPoint      PropertyType = "geo_point"
	TypeColor         PropertyType = "color"
	TypeManyToMany    PropertyType = "many_to_many"
	TypeUnknown       PropertyType = "unknown"
)

type RuleKind string

const (
	RuleMin        RuleKind = "min"
	RuleMax        RuleKind = "max"
	RuleMinLength  RuleKind = "min_length"
	RuleMaxLength  RuleKind = "max_length"
	RuleExpression RuleKind = "expression"
)

// ValidationRule is one declared per-column rule, checked in declaration order
type ValidationRule struct {
	Kind       RuleKind `json:"kind" bson:"kind"`
	Bound      float64  `json:"bound" bson:"bound"`
	Expression string   `json:"expression,omitempty" bson:"expression,omitempty"`
	Message    string   `json:"message" bson:"message"`
}

// ColumnSpec is one entity column's metadata, fetched once per entity and
// read-only during an import/export run.
type ColumnSpec struct {
	Name        string           `json:"name" bson:"name"`
	DisplayName string           `json:"display_name" bson:"display_name"`
	Type        PropertyType     `json:"type" bson:"type"`
	Nullable    bool             `json:"nullable" bson:"nullable"`
	MaxLength   int              `json:"max_length,omitempty" bson:"max_length,omitempty"`
	Rules       []ValidationRule `json:"rules,omitempty" bson:"rules,omitempty"`

	// Reference columns only
	RefTable     string `json:"ref_table,omitempty" bson:"ref_table,omitempty"`
	RefIDColumn  string `json:"ref_id_column,omitempty" bson:"ref_id_column,omitempty"`
	RefIsNumeric bool   `json:"ref_is_numeric,omitempty" bson:"ref_is_numeric,omitempty"`

	// Server-generated columns (ids, timestamps) are excluded from import
	// templates and from round-trip comparisons.
	IsGenerated bool `json:"is_generated,omitempty" bson:"is_generated,omitempty"`
}

// IsReference reports whether the column points at another table
func (c ColumnSpec) IsReference() bool {
	return c.Type == TypeForeignKey || c.Type == TypeUserReference
}
