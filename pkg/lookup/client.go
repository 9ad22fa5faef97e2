package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/sgv/pkg/model"
)

var _ Lookup = (*Client)(nil)

// Client calls a lookup server.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the server at baseURL. A non-positive
// timeout means no per-request timeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q: scheme must be http or https", baseURL)
	}
	hc := &http.Client{}
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: hc,
	}, nil
}

// CellTypes fetches the distinct cell types.
func (c *Client) CellTypes(ctx context.Context) ([]string, error) {
	return c.getStrings(ctx, "cell_types", "/api/cell_types", nil)
}

// Clusters fetches the clusters of cellType. Duplicates are passed through;
// deduplication is the caller's job.
func (c *Client) Clusters(ctx context.Context, cellType string) ([]string, error) {
	return c.getStrings(ctx, "clusters", "/api/clusters", url.Values{"cell_type": {cellType}})
}

// Iterations fetches the iterations of cellType, scoped to cluster when it
// is non-empty.
func (c *Client) Iterations(ctx context.Context, cellType, cluster string) ([]string, error) {
	q := url.Values{"cell_type": {cellType}}
	if cluster != "" {
		q.Set("cluster", cluster)
	}
	return c.getStrings(ctx, "iterations", "/api/iterations", q)
}

// Terms fetches term names starting with prefix.
func (c *Client) Terms(ctx context.Context, prefix string) ([]string, error) {
	return c.getStrings(ctx, "terms", "/api/terms", url.Values{"term": {prefix}})
}

// Records fetches the whole annotation dataset.
func (c *Client) Records(ctx context.Context) ([]model.Record, error) {
	var records []model.Record
	if err := c.get(ctx, "records", "/api/records", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) getStrings(ctx context.Context, op, path string, q url.Values) ([]string, error) {
	var raw []any
	if err := c.get(ctx, op, path, q, &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case float64:
			out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
		case nil:
		default:
			out = append(out, fmt.Sprint(x))
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, into any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &Error{Op: op, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
