package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/config"
)

// DefaultTimeout is the maximum time to wait for vector index responses.
const DefaultTimeout = 30 * time.Second

// Client talks to the vector index service over its JSON HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	index      string
	apiKey     string
	logger     *zap.Logger
}

// NewClient creates a new vector index client from configuration.
func NewClient(cfg *config.VectorIndexConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vector index base URL is required")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("vector index name is required")
	}

	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    cfg.BaseURL,
		index:      cfg.Index,
		apiKey:     cfg.APIKey,
		logger:     logger.Named("vectorindex"),
	}, nil
}

var _ Index = (*Client)(nil)

// Upsert inserts or replaces vectors in the index.
func (c *Client) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	var resp struct {
		MutationID string `json:"mutation_id"`
	}
	err := c.post(ctx, "upsert", map[string]any{"vectors": vectors}, &resp)
	if err != nil {
		return fmt.Errorf("upsert %d vectors: %w", len(vectors), err)
	}

	c.logger.Debug("upserted vectors",
		zap.Int("count", len(vectors)),
		zap.String("mutation_id", resp.MutationID))
	return nil
}

// Query returns the topK nearest neighbors, optionally filtered by metadata.
func (c *Client) Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Match, error) {
	body := map[string]any{
		"vector":          vector,
		"top_k":           topK,
		"return_metadata": true,
	}
	if len(filter) > 0 {
		body["filter"] = filter
	}

	var resp struct {
		Matches []Match `json:"matches"`
	}
	if err := c.post(ctx, "query", body, &resp); err != nil {
		return nil, fmt.Errorf("query top %d: %w", topK, err)
	}
	return resp.Matches, nil
}

// DeleteByIDs removes vectors by id.
func (c *Client) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := c.post(ctx, "delete-by-ids", map[string]any{"ids": ids}, &resp); err != nil {
		return 0, fmt.Errorf("delete %d vectors: %w", len(ids), err)
	}
	return resp.Count, nil
}

// ListIDs pages through vector ids with the given prefix.
func (c *Client) ListIDs(ctx context.Context, prefix string, limit int, cursor string) ([]string, string, error) {
	body := map[string]any{
		"prefix": prefix,
		"limit":  limit,
	}
	if cursor != "" {
		body["cursor"] = cursor
	}

	var resp struct {
		IDs    []string `json:"ids"`
		Cursor string   `json:"cursor"`
	}
	if err := c.post(ctx, "list-ids", body, &resp); err != nil {
		return nil, "", fmt.Errorf("list ids with prefix %q: %w", prefix, err)
	}
	return resp.IDs, resp.Cursor, nil
}

// post executes one JSON request against an index operation endpoint.
func (c *Client) post(ctx context.Context, operation string, body any, out any) error {
	endpoint, err := buildURL(c.baseURL, "indexes", c.index, operation)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call vector index: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("vector index returned error",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)))
		return fmt.Errorf("vector index returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
