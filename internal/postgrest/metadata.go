package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// PropertyRow is one row of the schema_properties metadata view. The view is
// maintained by the database itself (information_schema joined with the
// metadata tables), so column naming follows Postgres conventions.
type PropertyRow struct {
	TableName    string          `json:"table_name"`
	ColumnName   string          `json:"column_name"`
	DisplayName  string          `json:"display_name"`
	SortOrder    int             `json:"sort_order"`
	IsNullable   bool            `json:"is_nullable"`
	IsGenerated  bool            `json:"is_generated"`
	DataType     string          `json:"data_type"`
	UdtName      string          `json:"udt_name"`
	MaxLength    int             `json:"character_maximum_length"`
	JoinTable    string          `json:"join_table"`
	JoinColumn   string          `json:"join_column"`
	JoinNumeric  bool            `json:"join_numeric_id"`
	GeographyTyp string          `json:"geography_type"`
	Rules        json.RawMessage `json:"validation_rules"`
}

// RuleRow is one declared validation rule inside PropertyRow.Rules
type RuleRow struct {
	Kind       string  `json:"kind"`
	Bound      float64 `json:"bound"`
	Expression string  `json:"expression"`
	Message    string  `json:"message"`
}

// GetSchemaProperties reads column metadata for one entity, in display order.
func (c *Client) GetSchemaProperties(ctx context.Context, table, token string) ([]PropertyRow, error) {
	query := url.Values{}
	query.Set("table_name", "eq."+table)
	query.Set("order", "sort_order")

	req, err := c.newRequest(ctx, http.MethodGet, "schema_properties", query, nil, token)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema properties: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp, "schema_properties")
	}

	var rows []PropertyRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode schema properties: %w", err)
	}
	return rows, nil
}

// SchemaVersion returns the database's current metadata version token. The
// version bumps whenever entity or property metadata changes, which is the
// cache invalidation trigger for cached column specs.
func (c *Client) SchemaVersion(ctx context.Context, token string) (string, error) {
	query := url.Values{}
	query.Set("limit", "1")

	req, err := c.newRequest(ctx, http.MethodGet, "schema_version", query, nil, token)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch schema version: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.errorFromResponse(resp, "schema_version")
	}

	var rows []struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return "", fmt.Errorf("failed to decode schema version: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("schema_version view returned no rows")
	}
	return rows[0].Version, nil
}
