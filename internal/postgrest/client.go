package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"civic-os/internal/config"
)

// Client talks to the PostgREST data plane. All reads and writes the import
// pipeline performs go through here; the service itself owns no tables.
type Client struct {
	baseURL      string
	serviceToken string
	http         *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.PostgRESTURL, "/"),
		serviceToken: cfg.PostgRESTToken,
		http:         &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, token string) (*http.Request, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	if token == "" {
		token = c.serviceToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// FetchRows reads rows from a table or view, optionally restricted to columns.
// PostgREST embedded-resource selectors ("status:status_id(display_name)") pass
// through untouched.
func (c *Client) FetchRows(ctx context.Context, table string, columns []string, token string) ([]map[string]any, error) {
	query := url.Values{}
	if len(columns) > 0 {
		query.Set("select", strings.Join(columns, ","))
	}

	req, err := c.newRequest(ctx, http.MethodGet, table, query, nil, token)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rows from %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp, table)
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows from %s: %w", table, err)
	}
	return rows, nil
}

// BulkInsert posts all rows as a single JSON array. PostgREST executes the
// batch in one statement, so the write is atomic: one bad row fails them all.
// The progress callback receives upload percentage in [0,100].
func (c *Client) BulkInsert(ctx context.Context, table string, rows []map[string]any, token string, progress func(pct int)) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}

	var body io.Reader = bytes.NewReader(payload)
	if progress != nil {
		body = &progressReader{r: bytes.NewReader(payload), total: int64(len(payload)), report: progress}
	}

	req, err := c.newRequest(ctx, http.MethodPost, table, nil, body, token)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	req.ContentLength = int64(len(payload))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bulk insert into %s failed: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp, table)
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

func (c *Client) errorFromResponse(resp *http.Response, table string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	// PostgREST error payloads carry a "message" field
	var payload struct {
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		if payload.Details != "" {
			return fmt.Errorf("%s: %s (%s)", table, payload.Message, payload.Details)
		}
		return fmt.Errorf("%s: %s", table, payload.Message)
	}
	return fmt.Errorf("%s: unexpected status %d", table, resp.StatusCode)
}

// progressReader reports read progress as a percentage of total
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 99 {
			pct = 99 // 100 is reported only after the server accepts the batch
		}
		p.report(pct)
	}
	return n, err
}
