package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/advisordesk/advisord/es"
	"github.com/advisordesk/advisord/llm"
	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/settings"
)

// emailSymbolLimit caps how many holdings are analyzed for an email so one
// draft does not fan out into dozens of tool calls.
const emailSymbolLimit = 5

// newsAnalysisTools are tried in order when picking a server for email
// insights.
var newsAnalysisTools = []string{
	symbolLookupTool,
	"search_financial_data",
	"news_analysis",
}

const emailSystemPrompt = "You are a financial advisor writing a personal update email to a client. " +
	"Write in a warm, professional tone. Reference the client's actual holdings and the market " +
	"developments provided. Keep the email concise, suggest a brief follow-up call, and do not " +
	"invent facts beyond the data given. Respond with the email body only."

// LLMSource resolves an LLM client for drafting. Satisfied by
// *agent.Gateway.
type LLMSource interface {
	ClientFor(modelOverride string) (llm.Client, string, error)
}

// Email is one drafted client email.
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Insight is one categorized market development tied to a holding.
type Insight struct {
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Symbol        string `json:"symbol"`
	PublishedDate string `json:"published_date"`
}

// Insights holds market developments for an account's symbols, categorized
// by sentiment.
type Insights struct {
	Negative          []Insight `json:"negative_news"`
	Positive          []Insight `json:"positive_news"`
	Neutral           []Insight `json:"neutral_news"`
	AnalysisPerformed bool      `json:"analysis_performed"`
}

// EmailDrafter writes contextual portfolio update emails: holdings and market
// insights are gathered first, then an LLM drafts the body, with a plain
// template standing in when no provider is available.
type EmailDrafter struct {
	settings *settings.Store
	exec     ToolExecutor
	data     *es.Client
	clients  LLMSource
	logger   zerolog.Logger
}

// NewEmailDrafter creates the email generation service.
func NewEmailDrafter(store *settings.Store, exec ToolExecutor, data *es.Client, clients LLMSource, logger zerolog.Logger) *EmailDrafter {
	return &EmailDrafter{
		settings: store,
		exec:     exec,
		data:     data,
		clients:  clients,
		logger:   logger.With().Str("component", "emailDrafter").Logger(),
	}
}

// Draft writes a portfolio update email for the account. A non-positive
// period falls back to the default 48 hour window. The only error returned
// is a failed account lookup; everything downstream degrades to the
// template.
func (e *EmailDrafter) Draft(ctx context.Context, accountID string, period int, unit string) (*Email, error) {
	if period <= 0 {
		period = DefaultActionItemHours
	}
	if unit == "" {
		unit = "hours"
	}

	account, err := e.data.AccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	holdings, err := e.data.HoldingsByAccount(ctx, accountID)
	if err != nil {
		e.logger.Warn().Str("account_id", accountID).Err(err).Msg("Holdings lookup failed")
		holdings = nil
	}

	symbols := lo.Uniq(lo.FilterMap(holdings, func(h es.Holding, _ int) (string, bool) {
		s := strings.TrimSpace(h.Symbol)
		return s, s != ""
	}))
	if len(symbols) > emailSymbolLimit {
		symbols = symbols[:emailSymbolLimit]
	}

	insights := e.marketInsights(ctx, symbols, period, unit)

	subject := fmt.Sprintf("Portfolio Update - %s", account.AccountHolderName)
	body, ok := e.draftWithLLM(ctx, account, holdings, insights)
	if !ok {
		body = templateBody(account, holdings, insights)
	}
	return &Email{Subject: subject, Body: body}, nil
}

// marketInsights gathers recent news for the symbols from the first enabled
// server advertising a news analysis tool, categorized by sentiment.
func (e *EmailDrafter) marketInsights(ctx context.Context, symbols []string, period int, unit string) *Insights {
	insights := &Insights{}

	servers := e.settings.EnabledServers()
	if len(servers) == 0 {
		e.logger.Warn().Msg("No MCP servers available for market analysis")
		return insights
	}

	serverID, tool := pickAnalysisTool(servers)
	if serverID == "" {
		e.logger.Warn().Msg("No suitable MCP tools found for news analysis")
		return insights
	}
	e.logger.Info().Str("server_id", serverID).Str("tool", tool).Msg("Analyzing holdings news")

	for _, symbol := range symbols {
		res := e.exec.ExecuteTool(ctx, mcp.Invocation{
			ServerID: serverID,
			ToolName: tool,
			Args: map[string]any{
				"symbol":      symbol,
				"time_period": period,
				"time_unit":   unit,
			},
		})
		if res.Result.IsError {
			e.logger.Warn().
				Str("symbol", symbol).
				Str("error", res.Result.Content).
				Msg("News analysis failed for symbol")
			continue
		}
		categorizeNews(insights, res.Result, symbol)
	}
	return insights
}

// pickAnalysisTool returns the first (server, tool) pair able to analyze
// news, walking servers in stable order and tools in preference order.
func pickAnalysisTool(servers map[string]*settings.ServerConfig) (string, string) {
	ids := lo.Keys(servers)
	sort.Strings(ids)
	for _, id := range ids {
		for _, tool := range newsAnalysisTools {
			if _, ok := servers[id].Tools[tool]; ok {
				return id, tool
			}
		}
	}
	return "", ""
}

// categorizeNews parses a tool result into the sentiment buckets. The payload
// is either an object with an "articles" array or a bare array.
func categorizeNews(insights *Insights, res *mcp.ToolResult, symbol string) {
	payload := res.Raw
	if payload == nil {
		if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
			return
		}
	}

	var items []any
	switch v := payload.(type) {
	case map[string]any:
		items, _ = v["articles"].([]any)
	case []any:
		items = v
	}

	for _, item := range items {
		article, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title := strField(article, "title")
		if title == "" {
			title = "Market Update"
		}
		insight := Insight{
			Title:         title,
			Summary:       truncate(strField(article, "summary"), 200),
			Symbol:        symbol,
			PublishedDate: strField(article, "published_date"),
		}
		sentiment := strings.ToLower(strField(article, "sentiment"))
		switch {
		case strings.Contains(sentiment, "negative"):
			insights.Negative = append(insights.Negative, insight)
		case strings.Contains(sentiment, "positive"):
			insights.Positive = append(insights.Positive, insight)
		default:
			insights.Neutral = append(insights.Neutral, insight)
		}
		insights.AnalysisPerformed = true
	}
}

// draftWithLLM asks the configured provider to write the email body. Returns
// false when no provider is configured or the call fails, so the caller can
// fall back to the template.
func (e *EmailDrafter) draftWithLLM(ctx context.Context, account *es.Account, holdings []es.Holding, insights *Insights) (string, bool) {
	if e.clients == nil {
		return "", false
	}
	client, model, err := e.clients.ClientFor("")
	if err != nil {
		e.logger.Warn().Err(err).Msg("No LLM provider for email drafting")
		return "", false
	}

	resp, err := client.Synchronous(ctx, &llm.Request{
		Model: model,
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleUser, emailPrompt(account, holdings, insights)),
		},
		System:      emailSystemPrompt,
		MaxTokens:   2000,
		Temperature: lo.ToPtr(0.7),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Email draft request failed")
		return "", false
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == llm.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}
	body := strings.TrimSpace(text.String())
	if body == "" {
		return "", false
	}
	return body, true
}

// emailPrompt serializes the account context for the drafting request.
func emailPrompt(account *es.Account, holdings []es.Holding, insights *Insights) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client: %s\n", account.AccountHolderName)
	fmt.Fprintf(&b, "Portfolio value: %s\n", formatUSD(account.TotalPortfolioValue))
	fmt.Fprintf(&b, "Risk profile: %s\n", account.RiskProfile)

	if len(holdings) > 0 {
		b.WriteString("\nHoldings:\n")
		for _, h := range topHoldings(holdings, 3) {
			fmt.Fprintf(&b, "- %s: %.0f shares worth %s\n", h.Symbol, h.Quantity, formatUSD(h.Value()))
		}
	}

	writeInsights := func(label string, items []Insight) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", label)
		for _, item := range firstN(items, 2) {
			fmt.Fprintf(&b, "- %s (%s): %s\n", item.Title, item.Symbol, item.Summary)
		}
	}
	writeInsights("Negative developments", insights.Negative)
	writeInsights("Positive developments", insights.Positive)

	if !insights.AnalysisPerformed {
		b.WriteString("\nNo recent market developments were found for the client's holdings.\n")
	}
	b.WriteString("\nDraft the portfolio update email for this client.")
	return b.String()
}

// templateBody is the non-LLM rendering of the update email.
func templateBody(account *es.Account, holdings []es.Holding, insights *Insights) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", account.AccountHolderName)
	b.WriteString("I hope this message finds you well. I wanted to provide you with a brief update on your portfolio and some relevant market developments that may impact your investments.\n\n")
	fmt.Fprintf(&b, "## Portfolio Summary\nYour current portfolio value stands at %s. As a %s risk profile investor, I've been closely monitoring market conditions that could affect your holdings.\n",
		formatUSD(account.TotalPortfolioValue), strings.ToLower(account.RiskProfile))

	if top := topHoldings(holdings, 3); len(top) > 0 {
		b.WriteString("\n## Your Key Holdings\nYour largest positions include:\n")
		for _, h := range top {
			fmt.Fprintf(&b, "- %s: %.0f shares worth %s\n", h.Symbol, h.Quantity, formatUSD(h.Value()))
		}
	}

	switch {
	case len(insights.Negative) > 0:
		b.WriteString("\n## Market Developments of Note\nI've identified some recent market developments that may be relevant to your portfolio:\n")
		for _, news := range firstN(insights.Negative, 2) {
			fmt.Fprintf(&b, "\n**%s - %s**\n%s\n", news.Symbol, news.Title, news.Summary)
		}
		b.WriteString("\nWhile these developments warrant attention, please remember that market volatility is normal and your portfolio is positioned for long-term growth.\n")
	case len(insights.Positive) > 0:
		b.WriteString("\n## Positive Market Developments\nI'm pleased to share some positive developments affecting your holdings:\n")
		for _, news := range firstN(insights.Positive, 2) {
			fmt.Fprintf(&b, "\n**%s - %s**\n%s\n", news.Symbol, news.Title, news.Summary)
		}
	case insights.AnalysisPerformed:
		b.WriteString("\n## Market Update\nThe markets have been relatively stable with no significant developments directly impacting your core holdings.\n")
	default:
		b.WriteString("\n## Market Update\nI continue to monitor market conditions and news that could impact your portfolio. Current market conditions appear stable for your investment strategy.\n")
	}

	b.WriteString("\n## Next Steps\nI recommend we schedule a brief 15-minute call this week to discuss these developments and review your portfolio performance. Please let me know your availability.\n\nBest regards,\nYour Financial Advisor\n")
	return b.String()
}

// topHoldings returns up to n holdings ordered by position value.
func topHoldings(holdings []es.Holding, n int) []es.Holding {
	sorted := make([]es.Holding, len(holdings))
	copy(sorted, holdings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value() > sorted[j].Value()
	})
	return firstN(sorted, n)
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
