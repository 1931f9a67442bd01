package lookup

import (
	"fmt"
	"strconv"
	"strings"
)

// ReferenceRow is one id + display_name pair from a referenced table
type ReferenceRow struct {
	ID          string
	DisplayName string
}

// ForeignKeyLookup indexes one referenced table three ways so the row
// validator can accept either an id or a display name during import.
type ForeignKeyLookup struct {
	// NameToIDs keeps every id per normalized name. Duplicates are preserved,
	// not deduped: an ambiguous name must be rejected, never silently resolved.
	NameToIDs map[string][]string
	ValidIDs  map[string]struct{}
	IDsToName map[string]string
	// NumericIDs marks tables whose ids are integers rather than opaque
	// identifiers; the validator uses it to decide whether a raw cell value
	// can even be an id.
	NumericIDs bool
}

// NormalizeName is the canonical key for name-based lookups
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Build constructs the three indices from reference rows. Empty input yields
// three empty structures.
func Build(rows []ReferenceRow, numericIDs bool) ForeignKeyLookup {
	l := ForeignKeyLookup{
		NameToIDs:  make(map[string][]string),
		ValidIDs:   make(map[string]struct{}),
		IDsToName:  make(map[string]string),
		NumericIDs: numericIDs,
	}

	for _, row := range rows {
		l.ValidIDs[row.ID] = struct{}{}
		// Last write wins on duplicate ids, which should not occur
		l.IDsToName[row.ID] = row.DisplayName

		key := NormalizeName(row.DisplayName)
		l.NameToIDs[key] = append(l.NameToIDs[key], row.ID)
	}

	return l
}

// FormatID renders a raw JSON cell as a canonical id string. PostgREST
// delivers numeric ids as JSON numbers, which decode to float64.
func FormatID(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
