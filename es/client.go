// Package es provides direct Elasticsearch access to the financial indices
// backing the dashboard. It is independent of the MCP layer: dashboard
// endpoints and the built-in local tool server both read through this client.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/advisordesk/advisord/config"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"
)

// Financial indices queried by the dashboard.
const (
	IndexAccounts = "financial_accounts"
	IndexHoldings = "financial_holdings"
	IndexNews     = "financial_news"
	IndexReports  = "financial_reports"
)

// knownIndices is the whitelist for raw document fetches.
var knownIndices = map[string]bool{
	IndexAccounts: true,
	IndexHoldings: true,
	IndexNews:     true,
	IndexReports:  true,
}

// ErrNotFound reports a document id that does not exist in its index.
type ErrNotFound struct {
	Index string
	ID    string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("document %q not found in index %q", e.ID, e.Index)
}

// Client wraps the Elasticsearch connection for the financial indices.
type Client struct {
	es     *elasticsearch.Client
	logger zerolog.Logger
}

// NewClient builds a client from server configuration.
func NewClient(cfg config.ElasticsearchConfig, logger zerolog.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{
		es:     es,
		logger: logger.With().Str("component", "es").Logger(),
	}, nil
}

type hit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []hit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Value float64 `json:"value"`
	} `json:"aggregations"`
}

func decodeResponse(res *esapi.Response, out any) error {
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch error: %s: %s", res.Status(), body)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// search runs a raw query body against one index.
func (c *Client) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	var out searchResponse
	if err := decodeResponse(res, &out); err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	return &out, nil
}

// count returns the document count of one index.
func (c *Client) count(ctx context.Context, index string) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	var out struct {
		Count int64 `json:"count"`
	}
	if err := decodeResponse(res, &out); err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	return out.Count, nil
}

// get fetches a single document source by id.
func (c *Client) get(ctx context.Context, index, id string, out any) error {
	res, err := c.es.Get(index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return &ErrNotFound{Index: index, ID: id}
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("get %s/%s: %s: %s", index, id, res.Status(), body)
	}

	var envelope struct {
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s/%s: %w", index, id, err)
	}
	return json.Unmarshal(envelope.Source, out)
}

// RawDocument fetches a document's source by index and id. Only the known
// financial indices may be queried.
func (c *Client) RawDocument(ctx context.Context, index, id string) (map[string]any, error) {
	if !knownIndices[index] {
		return nil, fmt.Errorf("unknown index %q", index)
	}
	var doc map[string]any
	if err := c.get(ctx, index, id, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeHits[T any](hits []hit) ([]T, error) {
	out := make([]T, 0, len(hits))
	for _, h := range hits {
		var doc T
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, fmt.Errorf("decode hit %s: %w", h.ID, err)
		}
		out = append(out, doc)
	}
	return out, nil
}
