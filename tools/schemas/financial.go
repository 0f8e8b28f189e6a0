package schemas

// Financial returns schemas for the built-in Elasticsearch query tools.
// Names must match pattern ^[a-zA-Z0-9_-]{1,128}$ (no dots allowed).
func Financial() map[string]ToolSchema {
	return map[string]ToolSchema{
		"get_high_value_holdings_by_sector": {
			Description: "Get high value holdings in a given market sector. Returns holdings sorted by current value, highest first.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sector": map[string]any{
						"type":        "string",
						"description": "Market sector to filter holdings by (e.g. 'Technology', 'Healthcare')",
					},
					"min_value": map[string]any{
						"type":        "number",
						"description": "Optional minimum position value threshold (default: 100000)",
					},
				},
				"required": []string{"sector"},
			},
		},
		"get_accounts_by_state": {
			Description: "Get client accounts located in a given US state.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"state": map[string]any{
						"type":        "string",
						"description": "Two-letter state code or full state name",
					},
				},
				"required": []string{"state"},
			},
		},
		"get_all_news": {
			Description: "Get recent financial news articles, newest first.",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		"get_all_reports": {
			Description: "Get recent financial analyst reports, newest first.",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		"get_all_accounts": {
			Description: "Get all client accounts with holder name, state and total portfolio value.",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		"get_account_details_by_id": {
			Description: "Get account details by account ID, including holdings and relevant news for the account's positions.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"account_id": map[string]any{
						"type":        "string",
						"description": "The account identifier",
					},
				},
				"required": []string{"account_id"},
			},
		},
		"get_news_by_asset": {
			Description: "Get news articles mentioning a given asset symbol, newest first.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"symbol": map[string]any{
						"type":        "string",
						"description": "Ticker symbol of the asset (e.g. 'AAPL')",
					},
				},
				"required": []string{"symbol"},
			},
		},
	}
}
