package lookup

import (
	"context"
	"fmt"

	"civic-os/internal/features/schema"
)

// RowFetcher abstracts the data plane for reference-table reads
type RowFetcher interface {
	FetchRows(ctx context.Context, table string, columns []string, token string) ([]map[string]any, error)
}

type LookupService interface {
	// BuildForSpecs fetches every referenced table named by the column specs
	// and builds fresh lookups for one import run.
	BuildForSpecs(ctx context.Context, specs []schema.ColumnSpec, token string) (map[string]ForeignKeyLookup, error)
}

type LookupServiceImpl struct {
	Fetcher RowFetcher
}

func NewLookupService(fetcher RowFetcher) LookupService {
	return &LookupServiceImpl{Fetcher: fetcher}
}

func (s *LookupServiceImpl) BuildForSpecs(ctx context.Context, specs []schema.ColumnSpec, token string) (map[string]ForeignKeyLookup, error) {
	lookups := make(map[string]ForeignKeyLookup)

	for _, spec := range specs {
		if !spec.IsReference() {
			continue
		}
		if _, done := lookups[spec.RefTable]; done {
			continue
		}

		rows, err := s.Fetcher.FetchRows(ctx, spec.RefTable, []string{spec.RefIDColumn, "display_name"}, token)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch reference data from '%s': %w", spec.RefTable, err)
		}

		refs := make([]ReferenceRow, 0, len(rows))
		for _, row := range rows {
			id := FormatID(row[spec.RefIDColumn])
			if id == "" {
				continue
			}
			name, _ := row["display_name"].(string)
			refs = append(refs, ReferenceRow{ID: id, DisplayName: name})
		}

		lookups[spec.RefTable] = Build(refs, spec.RefIsNumeric)
	}

	return lookups, nil
}
