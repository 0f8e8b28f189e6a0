package dashboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/advisordesk/advisord/es"
	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/settings"
)

const (
	// topAccountLimit is how many accounts the start-of-day review covers.
	topAccountLimit = 10

	// DefaultActionItemHours is the negative news window for the review.
	DefaultActionItemHours = 48
)

// TopAccount is one entry of the start-of-day account ranking.
type TopAccount struct {
	AccountID           string  `json:"account_id"`
	AccountName         string  `json:"account_name"`
	TotalPortfolioValue float64 `json:"total_portfolio_value"`
	AccountType         string  `json:"account_type"`
	State               string  `json:"state"`
	RiskProfile         string  `json:"risk_profile"`
}

// ActionItemResult is the advisor's start-of-day review: the largest accounts
// by portfolio value joined with any negative news touching their holdings.
type ActionItemResult struct {
	Status           string       `json:"status"`
	Message          string       `json:"message"`
	TopAccounts      []TopAccount `json:"top_accounts"`
	NegativeNews     []Alert      `json:"negative_news"`
	AffectedAccounts []TopAccount `json:"affected_accounts"`
	ServerUsed       string       `json:"server_used,omitempty"`
}

// ActionItems builds the start-of-day review.
type ActionItems struct {
	settings *settings.Store
	exec     ToolExecutor
	data     *es.Client
	logger   zerolog.Logger
}

// NewActionItems creates the start-of-day review service.
func NewActionItems(store *settings.Store, exec ToolExecutor, data *es.Client, logger zerolog.Logger) *ActionItems {
	return &ActionItems{
		settings: store,
		exec:     exec,
		data:     data,
		logger:   logger.With().Str("component", "actionItems").Logger(),
	}
}

// StartDay ranks the top accounts by portfolio value and flags those with
// negative news in the given window. A non-positive period falls back to the
// default 48 hour window.
func (s *ActionItems) StartDay(ctx context.Context, period int, unit string) *ActionItemResult {
	if period <= 0 {
		period = DefaultActionItemHours
	}
	if unit == "" {
		unit = "hours"
	}

	accounts, err := s.data.TopAccountsByValue(ctx, topAccountLimit)
	if err != nil || len(accounts) == 0 {
		if err != nil {
			s.logger.Error().Err(err).Msg("Top accounts lookup failed")
		}
		return &ActionItemResult{
			Status:  StatusError,
			Message: "Unable to retrieve top accounts",
		}
	}

	top := lo.Map(accounts, func(a es.Account, _ int) TopAccount {
		return TopAccount{
			AccountID:           a.ID,
			AccountName:         a.AccountHolderName,
			TotalPortfolioValue: a.TotalPortfolioValue,
			AccountType:         a.AccountType,
			State:               a.State,
			RiskProfile:         a.RiskProfile,
		}
	})
	totalValue := lo.SumBy(top, func(a TopAccount) float64 { return a.TotalPortfolioValue })

	alerts, serverUsed := s.negativeNewsFor(ctx, top, period, unit)
	if serverUsed == "" {
		serverUsed = "MCP Server"
	}

	if len(alerts) == 0 {
		return &ActionItemResult{
			Status: StatusNoNegativeNews,
			Message: fmt.Sprintf("No negative news found for your top %d accounts (%s total value)",
				len(top), formatUSD(totalValue)),
			TopAccounts: top,
			ServerUsed:  serverUsed,
		}
	}

	affectedIDs := lo.SliceToMap(alerts, func(a Alert) (string, struct{}) {
		return a.AccountID, struct{}{}
	})
	affected := lo.Filter(top, func(a TopAccount, _ int) bool {
		_, ok := affectedIDs[a.AccountID]
		return ok
	})

	return &ActionItemResult{
		Status: StatusSuccess,
		Message: fmt.Sprintf("Found negative news affecting %d of your top %d accounts (%s total value)",
			len(affected), len(top), formatUSD(totalValue)),
		TopAccounts:      top,
		NegativeNews:     alerts,
		AffectedAccounts: affected,
		ServerUsed:       serverUsed,
	}
}

// negativeNewsFor queries the designated servers for negative news and keeps
// only the alerts touching the given accounts.
func (s *ActionItems) negativeNewsFor(ctx context.Context, top []TopAccount, period int, unit string) ([]Alert, string) {
	servers := s.settings.MainPageServers()
	if len(servers) == 0 {
		s.logger.Warn().Msg("No MCP servers configured for main page data")
		return nil, ""
	}

	topIDs := lo.SliceToMap(top, func(a TopAccount) (string, struct{}) {
		return a.AccountID, struct{}{}
	})

	ids := lo.Keys(servers)
	sort.Strings(ids)
	for _, id := range ids {
		srv := servers[id]
		if _, ok := srv.Tools[negNewsTool]; !ok {
			s.logger.Warn().Str("server_id", id).Msg("Server does not advertise negative news tool")
			continue
		}

		res := s.exec.ExecuteTool(ctx, mcp.Invocation{
			ServerID: id,
			ToolName: negNewsTool,
			Args: map[string]any{
				"time_duration": fmt.Sprintf("%d %s", period, unit),
			},
		})
		if res.Result.IsError {
			s.logger.Warn().
				Str("server_id", id).
				Str("error", res.Result.Content).
				Msg("Negative news lookup failed")
			continue
		}
		data, ok := decodePayload(res.Result)
		if !ok {
			continue
		}

		alerts := lo.Filter(parseAlerts(data), func(a Alert, _ int) bool {
			_, ok := topIDs[a.AccountID]
			return ok
		})
		if len(alerts) > 0 {
			return alerts, srv.Name
		}
	}
	return nil, ""
}
