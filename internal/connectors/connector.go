package connectors

import "context"

// Connector is a direct database-level data source. It mirrors the data
// plane's read surface so reference and export reads can bypass the HTTP
// layer when a direct connection is configured.
type Connector interface {
	// FetchRows reads the named columns of a table. The token parameter
	// exists for interface compatibility with the HTTP data plane; a direct
	// connection runs under its own credentials and ignores it.
	FetchRows(ctx context.Context, table string, columns []string, token string) ([]map[string]any, error)

	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool
	Close() error
}
