// Package kb is the client for the external knowledge-base vector search.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	parleyerrors "parley/internal/errors"
	"parley/internal/httpclient"
	"parley/internal/logging"
)

const defaultTopK = 3

// Match is one ranked search result.
type Match struct {
	Text   string  `json:"text"`
	FileID string  `json:"file_id"`
	Score  float64 `json:"score"`
}

// Searcher runs similarity queries against the knowledge-base service.
type Searcher interface {
	Search(ctx context.Context, query, kbID string) ([]Match, error)
}

// Disabled stands in when no search service is configured. Every query
// fails, which the search tool reports back to the model.
type Disabled struct{}

// Search implements Searcher.
func (Disabled) Search(context.Context, string, string) ([]Match, error) {
	return nil, fmt.Errorf("knowledge base search is not configured")
}

// Client calls the vector-search endpoint.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logging.Logger
}

// NewClient builds a search client for the configured endpoint.
func NewClient(baseURL, apiKey string, logger logging.Logger) *Client {
	logger = logging.OrNop(logger)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpclient.New(15*time.Second, logger),
		logger:  logger,
	}
}

type searchRequest struct {
	Query string `json:"query"`
	KBID  string `json:"kb_id"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Matches []Match `json:"matches"`
}

// Search returns the topK matches for query within the knowledge base.
func (c *Client) Search(ctx context.Context, query, kbID string) ([]Match, error) {
	payload, err := json.Marshal(searchRequest{Query: query, KBID: kbID, TopK: defaultTopK})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge base query: %w", err)
	}
	defer resp.Body.Close()

	body, err := httpclient.ReadBody(resp.Body, httpclient.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &parleyerrors.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return result.Matches, nil
}

// FormatMatches renders matches the way the search tool reports them to the
// model: one line per match with source file and confidence.
func FormatMatches(matches []Match) string {
	if len(matches) == 0 {
		return "Found 0 similar documents"
	}
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("source: %s (confidence: %g) %s", m.FileID, m.Score, m.Text))
	}
	return fmt.Sprintf("Found %d similar documents:\n%s", len(matches), strings.Join(lines, "\n\n"))
}
