package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"civic-os/internal/postgrest"
)

// usersTable is the well-known system table backing user reference columns
const usersTable = "civic_os_users"

// MetadataSource abstracts the PostgREST metadata views for testing
type MetadataSource interface {
	SchemaVersion(ctx context.Context, token string) (string, error)
	GetSchemaProperties(ctx context.Context, table, token string) ([]postgrest.PropertyRow, error)
}

type SchemaService interface {
	GetColumnSpecs(ctx context.Context, entityKey, token string) ([]ColumnSpec, error)
}

type SchemaServiceImpl struct {
	Source MetadataSource

	mu      sync.Mutex
	version string
	specs   map[string][]ColumnSpec
}

func NewSchemaService(client *postgrest.Client) SchemaService {
	return &SchemaServiceImpl{
		Source: client,
		specs:  make(map[string][]ColumnSpec),
	}
}

// GetColumnSpecs returns cached specs for the entity, refreshing the whole
// cache when the database's schema version has moved.
func (s *SchemaServiceImpl) GetColumnSpecs(ctx context.Context, entityKey, token string) ([]ColumnSpec, error) {
	version, err := s.Source.SchemaVersion(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to check schema version: %w", err)
	}

	s.mu.Lock()
	if version != s.version {
		s.specs = make(map[string][]ColumnSpec)
		s.version = version
	}
	if cached, ok := s.specs[entityKey]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	rows, err := s.Source.GetSchemaProperties(ctx, entityKey, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch column metadata for '%s': %w", entityKey, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("entity '%s' not found in schema metadata", entityKey)
	}

	specs := make([]ColumnSpec, 0, len(rows))
	for _, row := range rows {
		specs = append(specs, specFromRow(row))
	}

	s.mu.Lock()
	if version == s.version {
		s.specs[entityKey] = specs
	}
	s.mu.Unlock()

	return specs, nil
}

func specFromRow(row postgrest.PropertyRow) ColumnSpec {
	spec := ColumnSpec{
		Name:        row.ColumnName,
		DisplayName: row.DisplayName,
		Type:        propertyTypeFor(row),
		Nullable:    row.IsNullable,
		MaxLength:   row.MaxLength,
		IsGenerated: row.IsGenerated,
	}
	if spec.DisplayName == "" {
		spec.DisplayName = displayNameFromColumn(row.ColumnName)
	}

	if spec.IsReference() {
		spec.RefTable = row.JoinTable
		spec.RefIDColumn = row.JoinColumn
		if spec.RefIDColumn == "" {
			spec.RefIDColumn = "id"
		}
		spec.RefIsNumeric = row.JoinNumeric
	}

	if len(row.Rules) > 0 {
		var rules []postgrest.RuleRow
		if err := json.Unmarshal(row.Rules, &rules); err == nil {
			for _, r := range rules {
				spec.Rules = append(spec.Rules, ValidationRule{
					Kind:       RuleKind(r.Kind),
					Bound:      r.Bound,
					Expression: r.Expression,
					Message:    r.Message,
				})
			}
		}
	}

	return spec
}

// propertyTypeFor maps a Postgres column description to the semantic type
func propertyTypeFor(row postgrest.PropertyRow) PropertyType {
	if row.JoinTable != "" {
		if row.DataType == "junction" {
			return TypeManyToMany
		}
		if row.JoinTable == usersTable {
			return TypeUserReference
		}
		return TypeForeignKey
	}

	switch row.UdtName {
	case "varchar", "bpchar":
		return TypeShortText
	case "text":
		return TypeLongText
	case "bool":
		return TypeBoolean
	case "int2", "int4", "int8":
		return TypeInteger
	case "money", "numeric":
		return TypeMoney
	case "date":
		return TypeDate
	case "timestamp":
		return TypeDateTimeNaive
	case "timestamptz":
		return TypeDateTimeZoned
	case "geography", "geometry":
		if strings.EqualFold(row.GeographyTyp, "point") || row.GeographyTyp == "" {
			return TypeGeoPoint
		}
		return TypeUnknown
	case "color":
		return TypeColor
	default:
		return TypeUnknown
	}
}

// displayNameFromColumn falls back to a title-cased column name when the
// metadata carries no display name, e.g. "status_id" -> "Status Id"
func displayNameFromColumn(column string) string {
	parts := strings.Split(column, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
