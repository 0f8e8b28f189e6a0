package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/advisordesk/advisord/es"
	"github.com/samber/lo"
)

const defaultMinPositionValue = 100000

// RegisterFinancialTools registers the built-in Elasticsearch query tools.
// Names must match the schemas package catalog.
func (r *Registry) RegisterFinancialTools(esClient *es.Client) {
	r.logger.Info().Msg("Registering financial tools in registry")

	r.Register("get_high_value_holdings_by_sector", func(ctx context.Context, args json.RawMessage) (any, error) {
		var payload struct {
			Sector   string  `json:"sector"`
			MinValue float64 `json:"min_value"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
		if payload.Sector == "" {
			return nil, fmt.Errorf("sector is required")
		}
		if payload.MinValue <= 0 {
			payload.MinValue = defaultMinPositionValue
		}

		holdings, err := esClient.HighValueHoldingsBySector(ctx, payload.Sector, payload.MinValue)
		if err != nil {
			return nil, err
		}
		sort.Slice(holdings, func(i, j int) bool {
			return holdings[i].Value() > holdings[j].Value()
		})
		return map[string]any{
			"sector":   payload.Sector,
			"holdings": holdings,
			"count":    len(holdings),
		}, nil
	})

	r.Register("get_accounts_by_state", func(ctx context.Context, args json.RawMessage) (any, error) {
		var payload struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
		if payload.State == "" {
			return nil, fmt.Errorf("state is required")
		}

		accounts, err := esClient.AccountsByState(ctx, payload.State)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"state":    payload.State,
			"accounts": accounts,
			"count":    len(accounts),
		}, nil
	})

	r.Register("get_all_news", func(ctx context.Context, args json.RawMessage) (any, error) {
		articles, err := esClient.AllNews(ctx, 50)
		if err != nil {
			return nil, err
		}
		return map[string]any{"articles": articles, "count": len(articles)}, nil
	})

	r.Register("get_all_reports", func(ctx context.Context, args json.RawMessage) (any, error) {
		reports, err := esClient.AllReports(ctx, 50)
		if err != nil {
			return nil, err
		}
		return map[string]any{"reports": reports, "count": len(reports)}, nil
	})

	r.Register("get_all_accounts", func(ctx context.Context, args json.RawMessage) (any, error) {
		accounts, err := esClient.AllAccounts(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"accounts": accounts, "count": len(accounts)}, nil
	})

	r.Register("get_account_details_by_id", func(ctx context.Context, args json.RawMessage) (any, error) {
		var payload struct {
			AccountID string `json:"account_id"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
		if payload.AccountID == "" {
			return nil, fmt.Errorf("account_id is required")
		}

		account, err := esClient.AccountByID(ctx, payload.AccountID)
		if err != nil {
			return nil, err
		}
		holdings, err := esClient.HoldingsByAccount(ctx, payload.AccountID)
		if err != nil {
			return nil, err
		}

		symbols := lo.Uniq(lo.FilterMap(holdings, func(h es.Holding, _ int) (string, bool) {
			return h.Symbol, h.Symbol != ""
		}))
		news, err := esClient.NewsBySymbols(ctx, symbols, 10)
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"account":       account,
			"holdings":      holdings,
			"relevant_news": news,
		}, nil
	})

	r.Register("get_news_by_asset", func(ctx context.Context, args json.RawMessage) (any, error) {
		var payload struct {
			Symbol string `json:"symbol"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
		if payload.Symbol == "" {
			return nil, fmt.Errorf("symbol is required")
		}

		articles, err := esClient.NewsBySymbols(ctx, []string{payload.Symbol}, 25)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"symbol":   payload.Symbol,
			"articles": articles,
			"count":    len(articles),
		}, nil
	})
}
