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
	negNewsTool = "neg_news_reports_with_pos"

	// rawAlertLimit bounds how many per-position alerts feed the grouping.
	rawAlertLimit = 50
	// alertStoryLimit bounds the stories shown on the dashboard.
	alertStoryLimit = 10
)

// Severity levels for a negative news story.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

var (
	highSeverityKeywords   = []string{"fraud", "lawsuit", "investigation", "bankruptcy", "scandal", "criminal"}
	mediumSeverityKeywords = []string{"decline", "loss", "warning", "concern", "risk", "downturn"}
)

// mediumSeverityExposure is the position value above which otherwise neutral
// news is still worth flagging.
const mediumSeverityExposure = 100000

// Alert is one per-position negative news match from an MCP server.
type Alert struct {
	AccountID     string  `json:"account_id"`
	AccountName   string  `json:"account_name"`
	Symbol        string  `json:"symbol"`
	CompanyName   string  `json:"company_name"`
	PositionValue float64 `json:"position_value"`
	NewsTitle     string  `json:"news_title"`
	NewsSummary   string  `json:"news_summary"`
	Sentiment     string  `json:"sentiment"`
	PublishedDate string  `json:"published_date"`
	NewsSource    string  `json:"news_source"`
	DocumentID    string  `json:"document_id"`
	Severity      string  `json:"severity,omitempty"`
}

// AffectedPosition is one account's exposure inside a grouped story. The
// detail fields are filled from the holdings index when the position is
// found there.
type AffectedPosition struct {
	AccountID          string  `json:"account_id"`
	AccountName        string  `json:"account_name"`
	Symbol             string  `json:"symbol"`
	CompanyName        string  `json:"company_name"`
	BasicPositionValue float64 `json:"basic_position_value"`
	Quantity           float64 `json:"quantity,omitempty"`
	PurchasePrice      float64 `json:"purchase_price,omitempty"`
	CurrentValue       float64 `json:"current_value,omitempty"`
}

// AlertStory is one negative news story grouped across every affected
// position, ranked by total exposure.
type AlertStory struct {
	NewsTitle             string             `json:"news_title"`
	NewsSummary           string             `json:"news_summary"`
	Sentiment             string             `json:"sentiment"`
	PublishedDate         string             `json:"published_date"`
	NewsSource            string             `json:"news_source"`
	DocumentID            string             `json:"document_id"`
	Symbol                string             `json:"symbol"`
	Severity              string             `json:"severity"`
	TotalAccountsAffected int                `json:"total_accounts_affected"`
	TotalExposure         float64            `json:"total_exposure"`
	AffectedAccounts      []AffectedPosition `json:"affected_accounts"`
}

// AlertsResult is the dashboard's negative-news panel.
type AlertsResult struct {
	Status     string       `json:"status"`
	Message    string       `json:"message,omitempty"`
	ServerUsed string       `json:"server_used,omitempty"`
	Alerts     []AlertStory `json:"alerts"`
}

// Alerts surfaces negative news affecting client positions, sourced from the
// designated MCP servers and enriched with holding details.
type Alerts struct {
	settings *settings.Store
	exec     ToolExecutor
	data     *es.Client
	logger   zerolog.Logger
}

// NewAlerts creates the negative-news alert service.
func NewAlerts(store *settings.Store, exec ToolExecutor, data *es.Client, logger zerolog.Logger) *Alerts {
	return &Alerts{
		settings: store,
		exec:     exec,
		data:     data,
		logger:   logger.With().Str("component", "negativeNews").Logger(),
	}
}

// NegativeNews queries the designated servers for negative news in the given
// window and returns grouped stories ranked by total client exposure.
func (a *Alerts) NegativeNews(ctx context.Context, period int, unit string) *AlertsResult {
	servers := a.settings.MainPageServers()
	if len(servers) == 0 {
		return &AlertsResult{
			Status:  StatusNoServers,
			Message: "No MCP servers configured for main page data",
		}
	}

	ids := lo.Keys(servers)
	sort.Strings(ids)

	hadTool := false
	for _, id := range ids {
		srv := servers[id]
		if _, ok := srv.Tools[negNewsTool]; !ok {
			a.logger.Warn().Str("server_id", id).Msg("Server does not advertise negative news tool")
			continue
		}
		hadTool = true

		raw := a.rawAlertsFromServer(ctx, id, period, unit)
		if len(raw) == 0 {
			continue
		}
		if len(raw) > rawAlertLimit {
			raw = raw[:rawAlertLimit]
		}
		return &AlertsResult{
			Status:     StatusSuccess,
			ServerUsed: srv.Name,
			Alerts:     a.groupByTitle(ctx, raw),
		}
	}

	if !hadTool {
		return &AlertsResult{
			Status:  StatusToolNotAvailable,
			Message: fmt.Sprintf("Connected MCP servers do not support the %s tool", negNewsTool),
		}
	}
	return &AlertsResult{
		Status:  StatusNoData,
		Message: "No negative news found for client positions",
	}
}

// rawAlertsFromServer invokes the negative news tool and parses its payload.
func (a *Alerts) rawAlertsFromServer(ctx context.Context, serverID string, period int, unit string) []Alert {
	res := a.exec.ExecuteTool(ctx, mcp.Invocation{
		ServerID: serverID,
		ToolName: negNewsTool,
		Args: map[string]any{
			"time_duration": fmt.Sprintf("%d %s", period, unit),
		},
	})
	if res.Result.IsError {
		a.logger.Warn().
			Str("server_id", serverID).
			Str("error", res.Result.Content).
			Msg("Negative news lookup failed")
		return nil
	}
	data, ok := decodePayload(res.Result)
	if !ok {
		a.logger.Warn().Str("server_id", serverID).Msg("Negative news payload was not JSON")
		return nil
	}
	return parseAlerts(data)
}

// parseAlerts handles both payload shapes the Elasticsearch MCP server
// produces: a standard search response and an ES|QL columns/values table.
func parseAlerts(data map[string]any) []Alert {
	section, ok := resultSection(data)
	if !ok {
		return nil
	}

	if hits, ok := searchHits(section); ok {
		var alerts []Alert
		for _, hit := range hits {
			source, _ := hit["_source"].(map[string]any)
			if source == nil {
				continue
			}
			summary := strField(source, "news_summary", "summary")
			if summary != "" {
				summary = truncate(summary, 200)
			} else {
				summary = "No summary available"
			}
			sentiment := strField(source, "sentiment")
			if sentiment == "" {
				sentiment = "negative"
			}
			alert := Alert{
				AccountID:     strField(source, "account_id"),
				AccountName:   strField(source, "account_name", "account_holder_name"),
				Symbol:        strField(source, "symbol"),
				CompanyName:   strField(source, "company_name"),
				PositionValue: numField(source, "position_value"),
				NewsTitle:     strField(source, "news_title", "title"),
				NewsSummary:   summary,
				Sentiment:     sentiment,
				PublishedDate: strField(source, "published_date"),
				NewsSource:    strField(source, "news_source", "source"),
				DocumentID:    strField(hit, "_id"),
			}
			alert.Severity = severityFor(
				strField(source, "title")+" "+strField(source, "summary"),
				alert.PositionValue,
			)
			alerts = append(alerts, alert)
		}
		return alerts
	}

	if table, ok := esqlResult(section); ok {
		var alerts []Alert
		for _, row := range table.rows {
			alert, ok := alertFromRow(table, row)
			if ok {
				alerts = append(alerts, alert)
			}
		}
		return alerts
	}
	return nil
}

// alertFromRow maps one ES|QL row onto an alert, tolerating the column name
// variants the server emits. Rows with neither an account nor a symbol are
// dropped.
func alertFromRow(table *esqlTable, row []any) (Alert, bool) {
	accountID := toStr(table.col(row, "account_id", "account"))
	symbol := toStr(table.col(row, "symbol", "ticker"))
	if accountID == "" && symbol == "" {
		return Alert{}, false
	}

	title := toStr(table.col(row, "title", "news_title"))
	summary := toStr(table.col(row, "summary", "news_summary"))
	positionValue := toNum(table.col(row, "position_value"))

	sentiment := toStr(table.col(row, "sentiment"))
	if sentiment == "" {
		sentiment = "negative"
	}
	return Alert{
		AccountID:     accountID,
		AccountName:   toStr(table.col(row, "account_name", "account_holder_name")),
		Symbol:        symbol,
		CompanyName:   toStr(table.col(row, "company_name")),
		PositionValue: positionValue,
		NewsTitle:     title,
		NewsSummary:   truncate(summary, 200),
		Sentiment:     sentiment,
		PublishedDate: toStr(table.col(row, "published_date")),
		NewsSource:    toStr(table.col(row, "source", "news_source")),
		DocumentID:    toStr(table.col(row, "document_id", "_id")),
		Severity:      severityFor(title+" "+summary, positionValue),
	}, true
}

// severityFor classifies a story by keywords in its text, with a position
// value floor promoting otherwise unremarkable news to medium.
func severityFor(text string, positionValue float64) string {
	text = strings.ToLower(text)
	for _, kw := range highSeverityKeywords {
		if strings.Contains(text, kw) {
			return SeverityHigh
		}
	}
	for _, kw := range mediumSeverityKeywords {
		if strings.Contains(text, kw) {
			return SeverityMedium
		}
	}
	if positionValue > mediumSeverityExposure {
		return SeverityMedium
	}
	return SeverityLow
}

// groupByTitle folds per-position alerts into one story per news title,
// summing exposure across accounts and keeping the highest severity seen.
// Exposure prefers the live position value from the holdings index.
func (a *Alerts) groupByTitle(ctx context.Context, raw []Alert) []AlertStory {
	stories := make(map[string]*AlertStory)
	var order []string
	holdingsCache := make(map[string][]es.Holding)

	for _, alert := range raw {
		title := alert.NewsTitle
		if title == "" {
			title = "Unknown News"
		}
		story, ok := stories[title]
		if !ok {
			story = &AlertStory{
				NewsTitle:     title,
				NewsSummary:   alert.NewsSummary,
				Sentiment:     alert.Sentiment,
				PublishedDate: alert.PublishedDate,
				NewsSource:    alert.NewsSource,
				DocumentID:    alert.DocumentID,
				Symbol:        alert.Symbol,
				Severity:      alert.Severity,
			}
			stories[title] = story
			order = append(order, title)
		}

		position := AffectedPosition{
			AccountID:          alert.AccountID,
			AccountName:        alert.AccountName,
			Symbol:             alert.Symbol,
			CompanyName:        alert.CompanyName,
			BasicPositionValue: alert.PositionValue,
		}
		exposure := alert.PositionValue
		if holding, ok := a.lookupHolding(ctx, holdingsCache, alert.AccountID, alert.Symbol); ok {
			position.Quantity = holding.Quantity
			position.PurchasePrice = holding.PurchasePrice
			position.CurrentValue = holding.Value()
			exposure = holding.Value()
		}

		story.AffectedAccounts = append(story.AffectedAccounts, position)
		story.TotalAccountsAffected++
		story.TotalExposure += exposure
		if alert.Severity == SeverityHigh ||
			(alert.Severity == SeverityMedium && story.Severity == SeverityLow) {
			story.Severity = alert.Severity
		}
	}

	out := make([]AlertStory, 0, len(order))
	for _, title := range order {
		out = append(out, *stories[title])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalExposure > out[j].TotalExposure
	})
	if len(out) > alertStoryLimit {
		out = out[:alertStoryLimit]
	}
	return out
}

// lookupHolding finds the position for (account, symbol) in the holdings
// index, caching per-account results across one grouping pass.
func (a *Alerts) lookupHolding(ctx context.Context, cache map[string][]es.Holding, accountID, symbol string) (es.Holding, bool) {
	if a.data == nil || accountID == "" || symbol == "" {
		return es.Holding{}, false
	}
	holdings, ok := cache[accountID]
	if !ok {
		var err error
		holdings, err = a.data.HoldingsByAccount(ctx, accountID)
		if err != nil {
			a.logger.Warn().Str("account_id", accountID).Err(err).Msg("Holdings lookup failed")
			holdings = nil
		}
		cache[accountID] = holdings
	}
	for _, h := range holdings {
		if strings.EqualFold(h.Symbol, symbol) {
			return h, true
		}
	}
	return es.Holding{}, false
}
