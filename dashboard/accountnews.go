package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/advisordesk/advisord/es"
	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/settings"
)

const (
	symbolLookupTool = "news_and_report_lookup_with_symbol_detail"

	// accountArticleLimit bounds the articles shown on an account page.
	accountArticleLimit = 20

	// DefaultLookbackHours is the news window when the caller does not give
	// one.
	DefaultLookbackHours = 72
)

// AccountArticle is one news article or report tied to an account holding.
type AccountArticle struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	Summary       string `json:"summary"`
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
	PublishedDate string `json:"published_date"`
	Source        string `json:"source"`
	Sentiment     string `json:"sentiment"`
	URL           string `json:"url"`
}

// AccountNewsResult is the per-account news and reports panel.
type AccountNewsResult struct {
	Status          string           `json:"status"`
	Message         string           `json:"message,omitempty"`
	ServerUsed      string           `json:"server_used,omitempty"`
	SymbolsSearched []string         `json:"symbols_searched,omitempty"`
	Articles        []AccountArticle `json:"articles"`
}

// AccountNews looks up recent news and reports for every symbol held by an
// account, via the designated MCP servers.
type AccountNews struct {
	settings *settings.Store
	exec     ToolExecutor
	data     *es.Client
	logger   zerolog.Logger
}

// NewAccountNews creates the account news lookup service.
func NewAccountNews(store *settings.Store, exec ToolExecutor, data *es.Client, logger zerolog.Logger) *AccountNews {
	return &AccountNews{
		settings: store,
		exec:     exec,
		data:     data,
		logger:   logger.With().Str("component", "accountNews").Logger(),
	}
}

// ForAccount returns recent articles covering the account's holdings,
// deduplicated by title. A non-positive period falls back to the default
// 72 hour window.
func (a *AccountNews) ForAccount(ctx context.Context, accountID string, period int, unit string) *AccountNewsResult {
	if period <= 0 {
		period = DefaultLookbackHours
	}
	if unit == "" {
		unit = "hours"
	}

	holdings, err := a.data.HoldingsByAccount(ctx, accountID)
	if err != nil {
		a.logger.Warn().Str("account_id", accountID).Err(err).Msg("Holdings lookup failed")
		return &AccountNewsResult{
			Status:  StatusError,
			Message: "Account not found or has no holdings",
		}
	}
	symbols := lo.Uniq(lo.FilterMap(holdings, func(h es.Holding, _ int) (string, bool) {
		s := strings.TrimSpace(h.Symbol)
		return s, s != ""
	}))
	if len(symbols) == 0 {
		return &AccountNewsResult{
			Status:  StatusNoData,
			Message: "No symbols found in account holdings",
		}
	}

	servers := a.settings.MainPageServers()
	if len(servers) == 0 {
		return &AccountNewsResult{
			Status:  StatusNoServers,
			Message: "No MCP servers configured for news/reports lookup",
		}
	}

	ids := lo.Keys(servers)
	sort.Strings(ids)

	hadTool := false
	for _, id := range ids {
		srv := servers[id]
		if _, ok := srv.Tools[symbolLookupTool]; !ok {
			a.logger.Warn().Str("server_id", id).Msg("Server does not advertise symbol lookup tool")
			continue
		}
		hadTool = true

		articles := a.articlesForSymbols(ctx, id, symbols, period, unit)
		if len(articles) == 0 {
			continue
		}
		if len(articles) > accountArticleLimit {
			articles = articles[:accountArticleLimit]
		}
		return &AccountNewsResult{
			Status:          StatusSuccess,
			ServerUsed:      srv.Name,
			SymbolsSearched: symbols,
			Articles:        articles,
		}
	}

	if !hadTool {
		return &AccountNewsResult{
			Status:  StatusToolNotAvailable,
			Message: fmt.Sprintf("Connected MCP servers do not support the %s tool", symbolLookupTool),
		}
	}
	return &AccountNewsResult{
		Status:  StatusNoData,
		Message: fmt.Sprintf("No news or reports found for account symbols in the last %d %s", period, unit),
	}
}

// articlesForSymbols runs one lookup per symbol and deduplicates the union
// by title.
func (a *AccountNews) articlesForSymbols(ctx context.Context, serverID string, symbols []string, period int, unit string) []AccountArticle {
	var all []AccountArticle
	for _, symbol := range symbols {
		res := a.exec.ExecuteTool(ctx, mcp.Invocation{
			ServerID: serverID,
			ToolName: symbolLookupTool,
			Args: map[string]any{
				"time_duration": fmt.Sprintf("%d %s", period, unit),
				"symbol":        symbol,
			},
		})
		if res.Result.IsError {
			a.logger.Warn().
				Str("server_id", serverID).
				Str("symbol", symbol).
				Str("error", res.Result.Content).
				Msg("Symbol lookup failed")
			continue
		}
		data, ok := decodePayload(res.Result)
		if !ok {
			a.logger.Warn().Str("symbol", symbol).Msg("Symbol lookup payload was not JSON")
			continue
		}
		all = append(all, parseArticles(data, symbol)...)
	}
	return dedupeByTitle(all)
}

// parseArticles accepts the payload shapes the lookup tool is known to emit:
// a search response, an ES|QL table, or a plain article array.
func parseArticles(data map[string]any, symbol string) []AccountArticle {
	if section, ok := resultSection(data); ok {
		if hits, ok := searchHits(section); ok {
			var articles []AccountArticle
			for _, hit := range hits {
				source, _ := hit["_source"].(map[string]any)
				if source == nil {
					continue
				}
				articles = append(articles, articleFromSource(source, strField(hit, "_id"), symbol))
			}
			return articles
		}
		if table, ok := esqlResult(section); ok {
			var articles []AccountArticle
			for _, row := range table.rows {
				if article, ok := articleFromRow(table, row, symbol); ok {
					articles = append(articles, article)
				}
			}
			return articles
		}
	}
	if items, ok := data["articles"].([]any); ok {
		var articles []AccountArticle
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				articles = append(articles, articleFromSource(m, strField(m, "id"), symbol))
			}
		}
		return articles
	}
	return nil
}

func articleFromSource(source map[string]any, docID, symbol string) AccountArticle {
	content := strField(source, "content", "full_text", "summary")
	summary := strField(source, "summary")
	if summary == "" {
		summary = truncate(content, 200)
	}
	docType := strField(source, "type", "document_type")
	if docType == "" {
		docType = "news"
	}
	return AccountArticle{
		ID:            docID,
		Title:         strField(source, "title", "news_title"),
		Content:       content,
		Summary:       summary,
		Symbol:        symbol,
		Type:          docType,
		PublishedDate: strField(source, "published_date", "date"),
		Source:        strField(source, "source", "news_source"),
		Sentiment:     strField(source, "sentiment", "news_sentiment"),
		URL:           strField(source, "url"),
	}
}

func articleFromRow(table *esqlTable, row []any, symbol string) (AccountArticle, bool) {
	title := toStr(table.col(row, "title", "news_title"))
	content := toStr(table.col(row, "content", "full_text", "summary"))
	if title == "" && content == "" {
		return AccountArticle{}, false
	}

	summary := toStr(table.col(row, "summary"))
	if summary == "" {
		summary = truncate(content, 200)
	}
	docType := toStr(table.col(row, "type", "document_type"))
	if docType == "" {
		docType = "news"
	}
	return AccountArticle{
		ID:            toStr(table.col(row, "_id", "id")),
		Title:         title,
		Content:       content,
		Summary:       summary,
		Symbol:        symbol,
		Type:          docType,
		PublishedDate: toStr(table.col(row, "published_date", "date")),
		Source:        toStr(table.col(row, "source", "news_source")),
		Sentiment:     toStr(table.col(row, "sentiment", "news_sentiment")),
		URL:           toStr(table.col(row, "url")),
	}, true
}

// dedupeByTitle keeps the first article for each distinct title, compared
// case-insensitively.
func dedupeByTitle(articles []AccountArticle) []AccountArticle {
	seen := make(map[string]struct{}, len(articles))
	out := articles[:0]
	for _, article := range articles {
		key := strings.ToLower(strings.TrimSpace(article.Title))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, article)
	}
	return out
}
