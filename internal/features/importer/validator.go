package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"civic-os/internal/features/lookup"
	"civic-os/internal/features/schema"

	"github.com/d5/tengo/v2"
)

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	colorRe    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	currencyRe = regexp.MustCompile(`[$€£¥,\s]`)
)

// ValidateRow checks one imported row against the entity's column specs and
// returns either a normalized column-name-keyed row or the full list of that
// row's errors. Rows are atomic: any column error rejects the whole row.
func ValidateRow(rowNum int, row map[string]string, specs []schema.ColumnSpec, lookups map[string]lookup.ForeignKeyLookup) (map[string]any, []ValidationError) {
	normalized := make(map[string]any)
	var errs []ValidationError

	for _, spec := range specs {
		if spec.IsGenerated || spec.Type == schema.TypeManyToMany {
			continue
		}

		raw := strings.TrimSpace(row[spec.DisplayName])

		if raw == "" {
			if !spec.Nullable {
				errs = append(errs, ValidationError{
					Row:     rowNum,
					Column:  spec.DisplayName,
					Value:   raw,
					Message: fmt.Sprintf("'%s' is required", spec.DisplayName),
					Type:    ErrRequired,
				})
			}
			continue
		}

		value, colErrs := validateColumn(rowNum, spec, raw, lookups)
		if len(colErrs) > 0 {
			errs = append(errs, colErrs...)
			continue
		}
		normalized[spec.Name] = value
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return normalized, nil
}

func validateColumn(rowNum int, spec schema.ColumnSpec, raw string, lookups map[string]lookup.ForeignKeyLookup) (any, []ValidationError) {
	fail := func(typ ErrorType, msg string) (any, []ValidationError) {
		return nil, []ValidationError{{Row: rowNum, Column: spec.DisplayName, Value: raw, Message: msg, Type: typ}}
	}

	var value any

	switch {
	case spec.IsReference():
		resolved, err := resolveReference(spec, raw, lookups)
		if err != nil {
			return nil, []ValidationError{*err.at(rowNum, spec.DisplayName, raw)}
		}
		value = resolved

	case spec.Type == schema.TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fail(ErrTypeFormat, fmt.Sprintf("'%s' must be a whole number", spec.DisplayName))
		}
		if msg := checkRange(spec.Rules, float64(n)); msg != "" {
			return fail(ErrRangeViolation, msg)
		}
		value = n

	case spec.Type == schema.TypeMoney:
		cleaned := currencyRe.ReplaceAllString(raw, "")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return fail(ErrTypeFormat, fmt.Sprintf("'%s' must be an amount", spec.DisplayName))
		}
		if msg := checkRange(spec.Rules, f); msg != "" {
			return fail(ErrRangeViolation, msg)
		}
		value = f

	case spec.Type == schema.TypeBoolean:
		switch strings.ToLower(raw) {
		case "true", "yes":
			value = true
		case "false", "no":
			value = false
		default:
			return fail(ErrTypeFormat, fmt.Sprintf("'%s' must be true/false or yes/no", spec.DisplayName))
		}

	case spec.Type == schema.TypeDate:
		if !dateRe.MatchString(raw) {
			return fail(ErrTypeFormat, fmt.Sprintf("'%s' must be formatted YYYY-MM-DD", spec.DisplayName))
		}
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			return fail(ErrTypeFormat, fmt.Sprintf("'%s' is not a valid date", spec.DisplayName))
		}
		value = raw

	case spec.Type == schema.TypeGeoPoint:
		wkt, ok := latLngToWKT(raw)
		if !ok {
			return fail(ErrTypeFormat, fmt.Sprintf("'%s' must be formatted 'lat,lng'", spec.DisplayName))
		}
		value = wkt

	case spec.Type == schema.TypeColor:
		if !colorRe.MatchString(raw) {
			return fail(ErrTypeFormat, fmt.Sprintf("'%s' must be a 6-digit hex color like #1A2B3C", spec.DisplayName))
		}
		value = raw

	case spec.Type == schema.TypeShortText:
		if spec.MaxLength > 0 && len(raw) > spec.MaxLength {
			return fail(ErrRangeViolation, fmt.Sprintf("'%s' must be at most %d characters", spec.DisplayName, spec.MaxLength))
		}
		if msg := checkLength(spec.Rules, len(raw)); msg != "" {
			return fail(ErrRangeViolation, msg)
		}
		value = raw

	default:
		// LongText, naive/zoned timestamps and unknown types pass through
		value = raw
	}

	if msg := checkExpressions(spec.Rules, value); msg != "" {
		return fail(ErrRangeViolation, msg)
	}

	return value, nil
}

// refError carries the reference resolution failure until we know the cell
type refError struct {
	message string
	typ     ErrorType
}

func (e *refError) at(rowNum int, column, value string) *ValidationError {
	return &ValidationError{Row: rowNum, Column: column, Value: value, Message: e.message, Type: e.typ}
}

// resolveReference accepts either a native id or a display name. Ids win:
// a cell that parses as an id and is known stays an id. Names resolve only
// when unambiguous; colliding names are rejected with the candidate ids so
// the user can supply one directly.
func resolveReference(spec schema.ColumnSpec, raw string, lookups map[string]lookup.ForeignKeyLookup) (any, *refError) {
	l, ok := lookups[spec.RefTable]
	if !ok {
		return nil, &refError{
			message: fmt.Sprintf("no reference data available for '%s'", spec.RefTable),
			typ:     ErrInvalidReference,
		}
	}

	if looksLikeID(raw, l.NumericIDs) {
		if _, valid := l.ValidIDs[raw]; valid {
			return idValue(raw, l.NumericIDs), nil
		}
	}

	candidates := l.NameToIDs[lookup.NormalizeName(raw)]
	switch len(candidates) {
	case 1:
		return idValue(candidates[0], l.NumericIDs), nil
	case 0:
		return nil, &refError{
			message: fmt.Sprintf("'%s' does not match any record in '%s' by id or name", raw, spec.RefTable),
			typ:     ErrInvalidReference,
		}
	default:
		return nil, &refError{
			message: fmt.Sprintf("'%s' matches multiple records in '%s' (ids: %s); use the id instead",
				raw, spec.RefTable, strings.Join(candidates, ", ")),
			typ: ErrAmbiguousReference,
		}
	}
}

func looksLikeID(raw string, numeric bool) bool {
	if !numeric {
		return true // opaque identifiers have no parseable shape
	}
	_, err := strconv.ParseInt(raw, 10, 64)
	return err == nil
}

func idValue(id string, numeric bool) any {
	if numeric {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}
	}
	return id
}

// latLngToWKT converts "lat,lng" into the POINT(lng lat) representation the
// backend stores
func latLngToWKT(raw string) (string, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return "", false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return "", false
	}
	return fmt.Sprintf("POINT(%s %s)",
		strconv.FormatFloat(lng, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64)), true
}

func checkRange(rules []schema.ValidationRule, v float64) string {
	for _, r := range rules {
		switch r.Kind {
		case schema.RuleMin:
			if v < r.Bound {
				return ruleMessage(r, fmt.Sprintf("must be at least %v", r.Bound))
			}
		case schema.RuleMax:
			if v > r.Bound {
				return ruleMessage(r, fmt.Sprintf("must be at most %v", r.Bound))
			}
		}
	}
	return ""
}

func checkLength(rules []schema.ValidationRule, length int) string {
	for _, r := range rules {
		switch r.Kind {
		case schema.RuleMinLength:
			if float64(length) < r.Bound {
				return ruleMessage(r, fmt.Sprintf("must be at least %v characters", r.Bound))
			}
		case schema.RuleMaxLength:
			if float64(length) > r.Bound {
				return ruleMessage(r, fmt.Sprintf("must be at most %v characters", r.Bound))
			}
		}
	}
	return ""
}

// checkExpressions runs declared expression rules against the coerced value.
// An expression is a script that sets `valid` from `value`, e.g.
// `valid := value % 2 == 0`. A failing or broken expression rejects the cell.
func checkExpressions(rules []schema.ValidationRule, value any) string {
	for _, r := range rules {
		if r.Kind != schema.RuleExpression || r.Expression == "" {
			continue
		}

		script := tengo.NewScript([]byte(r.Expression))
		if err := script.Add("value", value); err != nil {
			return ruleMessage(r, "validation rule could not bind value")
		}
		compiled, err := script.Compile()
		if err != nil {
			return ruleMessage(r, "validation rule failed to compile")
		}
		if err := compiled.Run(); err != nil {
			return ruleMessage(r, "validation rule failed to run")
		}
		if !compiled.Get("valid").Bool() {
			return ruleMessage(r, "value failed a validation rule")
		}
	}
	return ""
}

func ruleMessage(r schema.ValidationRule, fallback string) string {
	if r.Message != "" {
		return r.Message
	}
	return fallback
}
