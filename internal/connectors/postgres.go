package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresConnector reads directly from the application database. It serves
// the same row shape as the HTTP data plane so callers can swap between them.
type PostgresConnector struct {
	db *sql.DB
}

func NewPostgresConnector(dsn string) (*PostgresConnector, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &PostgresConnector{db: db}, nil
}

// identRe restricts table and column names to plain identifiers. Everything
// reaching this connector comes from schema metadata, not user input, but
// names are still never interpolated unquoted.
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func quoteIdent(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid identifier '%s'", name)
	}
	return `"` + name + `"`, nil
}

func (c *PostgresConnector) FetchRows(ctx context.Context, table string, columns []string, _ string) ([]map[string]any, error) {
	quotedTable, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}

	selected := "*"
	if len(columns) > 0 {
		quoted := make([]string, 0, len(columns))
		for _, col := range columns {
			q, err := quoteIdent(col)
			if err != nil {
				return nil, err
			}
			quoted = append(quoted, q)
		}
		selected = strings.Join(quoted, ", ")
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", selected, quotedTable))
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", table, err)
	}
	defer rows.Close()

	return rowsToMaps(rows)
}

func (c *PostgresConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *PostgresConnector) Close() error {
	return c.db.Close()
}

func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			case int64:
				// Match the JSON data plane, where numbers arrive as float64
				row[col] = float64(v)
			default:
				row[col] = v
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
