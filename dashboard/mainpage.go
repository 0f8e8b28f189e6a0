package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/settings"
)

const headlineLimit = 10

// ToolExecutor runs one tool invocation against a registered MCP server.
// Satisfied by *mcp.Manager.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, inv mcp.Invocation) *mcp.InvocationResult
}

// Story is one news or report headline on the dashboard.
type Story struct {
	Title         string `json:"title"`
	Symbol        string `json:"symbol"`
	PublishedDate string `json:"published_date"`
	Summary       string `json:"summary"`
	SummaryFull   string `json:"summary_full,omitempty"`
	DocumentID    string `json:"document_id,omitempty"`
	Index         string `json:"index,omitempty"`
}

// NewsSummary is the dashboard's latest-news panel.
type NewsSummary struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	ServerUsed string  `json:"server_used,omitempty"`
	Stories    []Story `json:"news_stories"`
}

// ReportsSummary is the dashboard's latest-reports panel.
type ReportsSummary struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	ServerUsed string  `json:"server_used,omitempty"`
	Reports    []Story `json:"reports"`
}

// headlineTopic parameterizes the search strategies for one document kind.
type headlineTopic struct {
	index       string
	label       string
	nlQuery     string
	searchTerm  string
	esqlQueries []string
}

var newsTopic = headlineTopic{
	index:      "financial_news",
	label:      "Financial News Story",
	nlQuery:    "latest financial news stories published in the last 7 days",
	searchTerm: "financial news",
	esqlQueries: []string{
		"FROM financial_news | SORT published_date DESC | LIMIT 10 | KEEP title, symbol, published_date, summary",
		"FROM financial_news | SORT @timestamp DESC | LIMIT 10 | KEEP title, symbol, published_date, summary",
		"FROM financial_news | LIMIT 10 | KEEP title, symbol, published_date, summary, content",
	},
}

var reportsTopic = headlineTopic{
	index:      "financial_reports",
	label:      "Financial Report",
	nlQuery:    "latest financial reports and analysis published in the last 30 days",
	searchTerm: "financial reports analysis",
	esqlQueries: []string{
		"FROM financial_reports | SORT published_date DESC | LIMIT 10 | KEEP title, symbol, published_date, summary",
		"FROM financial_reports | SORT @timestamp DESC | LIMIT 10 | KEEP title, symbol, published_date, summary",
		"FROM financial_reports | LIMIT 10 | KEEP title, symbol, published_date, summary, content",
	},
}

// MainPage sources news and report headlines from the MCP servers flagged for
// dashboard use, trying search strategies in order of reliability.
type MainPage struct {
	settings *settings.Store
	exec     ToolExecutor
	logger   zerolog.Logger
}

// NewMainPage creates the main-page headline service.
func NewMainPage(store *settings.Store, exec ToolExecutor, logger zerolog.Logger) *MainPage {
	return &MainPage{
		settings: store,
		exec:     exec,
		logger:   logger.With().Str("component", "mainPage").Logger(),
	}
}

// NewsSummary returns the latest news stories for the dashboard.
func (m *MainPage) NewsSummary(ctx context.Context) *NewsSummary {
	stories, serverUsed, status := m.fetchHeadlines(ctx, newsTopic)
	out := &NewsSummary{Status: status, ServerUsed: serverUsed, Stories: stories}
	switch status {
	case StatusNoServers:
		out.Message = "No MCP servers configured for main page data"
	case StatusNoData:
		out.Message = "MCP servers configured but unable to retrieve news data"
	}
	return out
}

// ReportsSummary returns the latest financial reports for the dashboard.
func (m *MainPage) ReportsSummary(ctx context.Context) *ReportsSummary {
	reports, serverUsed, status := m.fetchHeadlines(ctx, reportsTopic)
	out := &ReportsSummary{Status: status, ServerUsed: serverUsed, Reports: reports}
	switch status {
	case StatusNoServers:
		out.Message = "No MCP servers configured for main page data"
	case StatusNoData:
		out.Message = "MCP servers configured but unable to retrieve reports data"
	}
	return out
}

// fetchHeadlines walks the designated servers in stable order and returns the
// first non-empty result.
func (m *MainPage) fetchHeadlines(ctx context.Context, topic headlineTopic) ([]Story, string, string) {
	servers := m.settings.MainPageServers()
	if len(servers) == 0 {
		return nil, "", StatusNoServers
	}

	ids := lo.Keys(servers)
	sort.Strings(ids)
	for _, id := range ids {
		srv := servers[id]
		stories := m.headlinesFromServer(ctx, id, srv, topic)
		if len(stories) > 0 {
			if len(stories) > headlineLimit {
				stories = stories[:headlineLimit]
			}
			return stories, srv.Name, StatusSuccess
		}
	}
	return nil, "", StatusNoData
}

// headlinesFromServer tries the strategies the server's catalog supports:
// ES|QL first (most reliable against the Elasticsearch MCP server), then
// natural-language search, then relevance search.
func (m *MainPage) headlinesFromServer(ctx context.Context, serverID string, srv *settings.ServerConfig, topic headlineTopic) []Story {
	if _, ok := srv.Tools["execute_esql"]; ok {
		if stories := m.viaESQL(ctx, serverID, topic); len(stories) > 0 {
			return stories
		}
	}
	if _, ok := srv.Tools["nl_search"]; ok {
		args := map[string]any{
			"query":          topic.nlQuery,
			"index":          topic.index,
			"size":           headlineLimit,
			"include_source": true,
		}
		if stories := m.viaSearch(ctx, serverID, "nl_search", args, topic); len(stories) > 0 {
			return stories
		}
	}
	if _, ok := srv.Tools["relevance_search"]; ok {
		args := map[string]any{
			"term":  topic.searchTerm,
			"index": topic.index,
			"size":  headlineLimit,
		}
		if stories := m.viaSearch(ctx, serverID, "relevance_search", args, topic); len(stories) > 0 {
			return stories
		}
	}
	return nil
}

// viaESQL tries the topic's ES|QL queries in order until one yields rows.
func (m *MainPage) viaESQL(ctx context.Context, serverID string, topic headlineTopic) []Story {
	for _, query := range topic.esqlQueries {
		res := m.exec.ExecuteTool(ctx, mcp.Invocation{
			ServerID: serverID,
			ToolName: "execute_esql",
			Args:     map[string]any{"query": query},
		})
		if res.Result.IsError {
			m.logger.Warn().
				Str("server_id", serverID).
				Str("query", query).
				Msg("ES|QL headline query failed")
			continue
		}
		data, ok := decodePayload(res.Result)
		if !ok {
			continue
		}
		section, ok := resultSection(data)
		if !ok {
			continue
		}
		table, ok := esqlResult(section)
		if !ok {
			continue
		}
		var stories []Story
		for _, row := range table.rows {
			if len(row) < 3 {
				continue
			}
			title := truncate(toStr(row[0]), 100)
			if title == "" {
				title = topic.label
			}
			summary := ""
			if len(row) > 3 {
				summary = toStr(row[3])
			}
			if summary == "" && len(row) > 4 {
				summary = toStr(row[4])
			}
			if summary == "" {
				summary = "No summary available"
			}
			stories = append(stories, Story{
				Title:         title,
				Symbol:        toStr(row[1]),
				PublishedDate: toStr(row[2]),
				Summary:       truncate(summary, 200),
				SummaryFull:   summary,
				Index:         topic.index,
			})
		}
		if len(stories) > 0 {
			return stories
		}
	}
	return nil
}

// viaSearch runs one search tool and parses either the relevance-result shape
// (highlight snippets) or a standard search response.
func (m *MainPage) viaSearch(ctx context.Context, serverID, tool string, args map[string]any, topic headlineTopic) []Story {
	res := m.exec.ExecuteTool(ctx, mcp.Invocation{
		ServerID: serverID,
		ToolName: tool,
		Args:     args,
	})
	if res.Result.IsError {
		m.logger.Warn().Str("server_id", serverID).Str("tool", tool).Msg("Headline search failed")
		return nil
	}
	data, ok := decodePayload(res.Result)
	if !ok {
		return nil
	}
	section, ok := resultSection(data)
	if !ok {
		return nil
	}

	if results, ok := section["results"].([]any); ok {
		return storiesFromHighlights(results, topic)
	}
	if hits, ok := searchHits(section); ok {
		var stories []Story
		for _, hit := range hits {
			source, _ := hit["_source"].(map[string]any)
			if source == nil {
				continue
			}
			summary := strField(source, "summary", "content")
			if summary == "" {
				summary = "No summary available"
			}
			title := strField(source, "title")
			if title == "" {
				title = "No title"
			}
			stories = append(stories, Story{
				Title:         title,
				Symbol:        strField(source, "symbol"),
				PublishedDate: strField(source, "published_date"),
				Summary:       truncate(summary, 200),
				SummaryFull:   summary,
				DocumentID:    strField(hit, "_id"),
				Index:         topic.index,
			})
		}
		return stories
	}
	return nil
}

// storiesFromHighlights shapes relevance results, whose only text is a list
// of highlight snippets, into display stories. The title is lifted from the
// first snippet when it is long enough to read as one.
func storiesFromHighlights(results []any, topic headlineTopic) []Story {
	var stories []Story
	for i, r := range results {
		if i >= headlineLimit {
			break
		}
		item, ok := r.(map[string]any)
		if !ok {
			continue
		}
		var highlights []string
		if hs, ok := item["highlights"].([]any); ok {
			for _, h := range hs {
				if s, ok := h.(string); ok {
					highlights = append(highlights, s)
				}
			}
		}
		fullSummary := "No summary available"
		if len(highlights) > 0 {
			fullSummary = strings.Join(highlights, " ")
		}

		title := fmt.Sprintf("%s %d", topic.label, i+1)
		if len(highlights) > 0 {
			clean := strings.NewReplacer("<em>", "", "</em>", "").Replace(highlights[0])
			if len(clean) > 20 {
				title = truncate(clean, 60)
			}
		}

		index := strField(item, "index")
		if index == "" {
			index = topic.index
		}
		stories = append(stories, Story{
			Title:       title,
			Summary:     truncate(fullSummary, 100),
			SummaryFull: fullSummary,
			DocumentID:  strField(item, "id"),
			Index:       index,
		})
	}
	return stories
}
