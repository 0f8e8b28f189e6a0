package es

import (
	"context"
	"encoding/json"
	"fmt"
)

const elserModel = "elser-adaptive-endpoint"

// Account is a client account document from financial_accounts.
type Account struct {
	ID                  string  `json:"id,omitempty"`
	AccountHolderName   string  `json:"account_holder_name"`
	State               string  `json:"state"`
	AccountType         string  `json:"account_type"`
	RiskProfile         string  `json:"risk_profile"`
	TotalPortfolioValue float64 `json:"total_portfolio_value"`
}

// Holding is a position document from financial_holdings.
type Holding struct {
	AccountID     string  `json:"account_id"`
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
	Sector        string  `json:"sector,omitempty"`
}

// Value is the position's current worth as tracked in the index.
func (h Holding) Value() float64 {
	return h.Quantity * h.PurchasePrice
}

// Article is a news document from financial_news.
type Article struct {
	ID            string `json:"id,omitempty"`
	Title         string `json:"title"`
	Symbol        string `json:"symbol"`
	Content       string `json:"content,omitempty"`
	PublishedDate string `json:"published_date"`
}

// Report is a research document from financial_reports.
type Report struct {
	ID            string `json:"id,omitempty"`
	Title         string `json:"title"`
	Symbol        string `json:"symbol"`
	Content       string `json:"content,omitempty"`
	PublishedDate string `json:"published_date"`
}

// Overview aggregates the headline dashboard metrics.
type Overview struct {
	TotalAccounts int64 `json:"total_accounts"`
	TotalAUM      int64 `json:"total_aum"`
	TotalNews     int64 `json:"total_news"`
	TotalReports  int64 `json:"total_reports"`
}

// MetricsOverview returns account count, total assets under management, and
// document counts for the news and report indices.
func (c *Client) MetricsOverview(ctx context.Context) (*Overview, error) {
	accounts, err := c.count(ctx, IndexAccounts)
	if err != nil {
		return nil, err
	}

	aumResp, err := c.search(ctx, IndexAccounts, map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"total_aum": map[string]any{
				"sum": map[string]any{"field": "total_portfolio_value"},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	news, err := c.count(ctx, IndexNews)
	if err != nil {
		return nil, err
	}
	reports, err := c.count(ctx, IndexReports)
	if err != nil {
		return nil, err
	}

	return &Overview{
		TotalAccounts: accounts,
		TotalAUM:      int64(aumResp.Aggregations["total_aum"].Value),
		TotalNews:     news,
		TotalReports:  reports,
	}, nil
}

// AccountByID fetches one account document.
func (c *Client) AccountByID(ctx context.Context, accountID string) (*Account, error) {
	var acct Account
	if err := c.get(ctx, IndexAccounts, accountID, &acct); err != nil {
		return nil, err
	}
	if acct.ID == "" {
		acct.ID = accountID
	}
	return &acct, nil
}

// HoldingsByAccount returns the positions held by one account.
func (c *Client) HoldingsByAccount(ctx context.Context, accountID string) ([]Holding, error) {
	resp, err := c.search(ctx, IndexHoldings, map[string]any{
		"query": map[string]any{"term": map[string]any{"account_id": accountID}},
		"size":  100,
	})
	if err != nil {
		return nil, err
	}
	return decodeHits[Holding](resp.Hits.Hits)
}

// NewsBySymbols returns the most recent articles mentioning any of the
// symbols.
func (c *Client) NewsBySymbols(ctx context.Context, symbols []string, size int) ([]Article, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	resp, err := c.search(ctx, IndexNews, map[string]any{
		"query": map[string]any{"terms": map[string]any{"symbol": symbols}},
		"size":  size,
		"sort":  []map[string]any{{"published_date": map[string]any{"order": "desc"}}},
	})
	if err != nil {
		return nil, err
	}
	return c.articlesWithIDs(resp)
}

// ReportsBySymbols returns the most recent reports covering any of the
// symbols.
func (c *Client) ReportsBySymbols(ctx context.Context, symbols []string, size int) ([]Report, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	resp, err := c.search(ctx, IndexReports, map[string]any{
		"query": map[string]any{"terms": map[string]any{"symbol": symbols}},
		"size":  size,
		"sort":  []map[string]any{{"published_date": map[string]any{"order": "desc"}}},
	})
	if err != nil {
		return nil, err
	}
	return c.reportsWithIDs(resp)
}

// AllAccounts lists every account for selection views.
func (c *Client) AllAccounts(ctx context.Context) ([]Account, error) {
	resp, err := c.search(ctx, IndexAccounts, map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  1000,
	})
	if err != nil {
		return nil, err
	}
	accounts, err := decodeHits[Account](resp.Hits.Hits)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == "" {
			accounts[i].ID = resp.Hits.Hits[i].ID
		}
	}
	return accounts, nil
}

// TopAccountsByValue lists the largest accounts by total portfolio value.
func (c *Client) TopAccountsByValue(ctx context.Context, limit int) ([]Account, error) {
	resp, err := c.search(ctx, IndexAccounts, map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  limit,
		"sort":  []map[string]any{{"total_portfolio_value": map[string]any{"order": "desc"}}},
	})
	if err != nil {
		return nil, err
	}
	accounts, err := decodeHits[Account](resp.Hits.Hits)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == "" {
			accounts[i].ID = resp.Hits.Hits[i].ID
		}
	}
	return accounts, nil
}

// AccountsByState lists accounts registered in one state.
func (c *Client) AccountsByState(ctx context.Context, state string) ([]Account, error) {
	resp, err := c.search(ctx, IndexAccounts, map[string]any{
		"query": map[string]any{"term": map[string]any{"state": state}},
		"size":  100,
	})
	if err != nil {
		return nil, err
	}
	accounts, err := decodeHits[Account](resp.Hits.Hits)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == "" {
			accounts[i].ID = resp.Hits.Hits[i].ID
		}
	}
	return accounts, nil
}

// AllNews returns the most recent articles across all symbols.
func (c *Client) AllNews(ctx context.Context, size int) ([]Article, error) {
	resp, err := c.search(ctx, IndexNews, map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  size,
		"sort":  []map[string]any{{"published_date": map[string]any{"order": "desc"}}},
	})
	if err != nil {
		return nil, err
	}
	return c.articlesWithIDs(resp)
}

// AllReports returns the most recent reports across all symbols.
func (c *Client) AllReports(ctx context.Context, size int) ([]Report, error) {
	resp, err := c.search(ctx, IndexReports, map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  size,
		"sort":  []map[string]any{{"published_date": map[string]any{"order": "desc"}}},
	})
	if err != nil {
		return nil, err
	}
	return c.reportsWithIDs(resp)
}

// HighValueHoldingsBySector returns holdings in a sector whose position value
// meets the minimum. Value is derived from quantity and purchase price, so
// the floor is applied after the fetch.
func (c *Client) HighValueHoldingsBySector(ctx context.Context, sector string, minValue float64) ([]Holding, error) {
	resp, err := c.search(ctx, IndexHoldings, map[string]any{
		"query": map[string]any{"term": map[string]any{"sector": sector}},
		"size":  100,
	})
	if err != nil {
		return nil, err
	}
	holdings, err := decodeHits[Holding](resp.Hits.Hits)
	if err != nil {
		return nil, err
	}
	out := holdings[:0]
	for _, h := range holdings {
		if h.Value() >= minValue {
			out = append(out, h)
		}
	}
	return out, nil
}

// ArticleByID fetches one news article, including its content.
func (c *Client) ArticleByID(ctx context.Context, articleID string) (*Article, error) {
	var art Article
	if err := c.get(ctx, IndexNews, articleID, &art); err != nil {
		return nil, err
	}
	if art.ID == "" {
		art.ID = articleID
	}
	return &art, nil
}

// ReportByID fetches one report, including its content.
func (c *Client) ReportByID(ctx context.Context, reportID string) (*Report, error) {
	var rep Report
	if err := c.get(ctx, IndexReports, reportID, &rep); err != nil {
		return nil, err
	}
	if rep.ID == "" {
		rep.ID = reportID
	}
	return &rep, nil
}

// SemanticHit is one scored document from a semantic search.
type SemanticHit struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Source map[string]any `json:"source"`
}

// SemanticSearch runs an ELSER text-expansion query against the semantic
// field of one index.
func (c *Client) SemanticSearch(ctx context.Context, index, field, query string) ([]SemanticHit, error) {
	if !knownIndices[index] {
		return nil, fmt.Errorf("unknown index %q", index)
	}
	resp, err := c.search(ctx, index, map[string]any{
		"query": map[string]any{
			"text_expansion": map[string]any{
				field: map[string]any{
					"model_id":   elserModel,
					"model_text": query,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	out := make([]SemanticHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var source map[string]any
		if err := json.Unmarshal(h.Source, &source); err != nil {
			return nil, err
		}
		out = append(out, SemanticHit{ID: h.ID, Score: h.Score, Source: source})
	}
	return out, nil
}

func (c *Client) articlesWithIDs(resp *searchResponse) ([]Article, error) {
	articles, err := decodeHits[Article](resp.Hits.Hits)
	if err != nil {
		return nil, err
	}
	for i := range articles {
		if articles[i].ID == "" {
			articles[i].ID = resp.Hits.Hits[i].ID
		}
	}
	return articles, nil
}

func (c *Client) reportsWithIDs(resp *searchResponse) ([]Report, error) {
	reports, err := decodeHits[Report](resp.Hits.Hits)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		if reports[i].ID == "" {
			reports[i].ID = resp.Hits.Hits[i].ID
		}
	}
	return reports, nil
}
