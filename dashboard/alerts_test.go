package dashboard

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/advisordesk/advisord/mcp"
	"github.com/rs/zerolog"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		value    float64
		expected string
	}{
		{name: "fraud is high", text: "Company faces fraud charges", expected: SeverityHigh},
		{name: "lawsuit is high", text: "Class action LAWSUIT filed", expected: SeverityHigh},
		{name: "decline is medium", text: "Revenue decline continues", expected: SeverityMedium},
		{name: "risk is medium", text: "Analysts flag supply-chain risk", expected: SeverityMedium},
		{name: "large position promotes to medium", text: "Quarterly update", value: 150000, expected: SeverityMedium},
		{name: "threshold is exclusive", text: "Quarterly update", value: 100000, expected: SeverityLow},
		{name: "plain news is low", text: "Quarterly update", expected: SeverityLow},
		{name: "high wins over medium", text: "Investigation into losses", expected: SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := severityFor(tt.text, tt.value); got != tt.expected {
				t.Errorf("severityFor(%q, %v) = %q, want %q", tt.text, tt.value, got, tt.expected)
			}
		})
	}
}

func TestParseAlertsFromSearchHits(t *testing.T) {
	data := map[string]any{
		"result": map[string]any{
			"hits": map[string]any{
				"hits": []any{
					map[string]any{
						"_id": "doc-1",
						"_source": map[string]any{
							"account_id":     "ACC1",
							"account_name":   "Miller Trust",
							"symbol":         "ACME",
							"position_value": float64(250000),
							"news_title":     "ACME under investigation",
							"news_summary":   "Regulators opened an investigation.",
							"published_date": "2026-08-27",
						},
					},
					map[string]any{"_id": "doc-2"}, // no _source, dropped
				},
			},
		},
	}

	alerts := parseAlerts(data)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	alert := alerts[0]
	if alert.AccountID != "ACC1" || alert.Symbol != "ACME" {
		t.Errorf("alert identity = %s/%s, want ACC1/ACME", alert.AccountID, alert.Symbol)
	}
	if alert.DocumentID != "doc-1" {
		t.Errorf("document id = %q, want doc-1", alert.DocumentID)
	}
	if alert.Sentiment != "negative" {
		t.Errorf("sentiment should default to negative, got %q", alert.Sentiment)
	}
	// Severity keys off title/summary fields; this source only carries the
	// news_* variants, so the position value drives the rating.
	if alert.Severity != SeverityMedium {
		t.Errorf("severity = %q, want %q", alert.Severity, SeverityMedium)
	}
}

func TestParseAlertsFromESQL(t *testing.T) {
	data := map[string]any{
		"result": map[string]any{
			"columns": []any{
				map[string]any{"name": "account_id"},
				map[string]any{"name": "symbol"},
				map[string]any{"name": "title"},
				map[string]any{"name": "summary"},
				map[string]any{"name": "position_value"},
			},
			"values": []any{
				[]any{"ACC1", "ACME", "ACME bankruptcy looms", "Filing expected", float64(5000)},
				[]any{nil, nil, "Orphan story", "No positions", float64(0)},
			},
		},
	}

	alerts := parseAlerts(data)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1 (rows without account or symbol drop)", len(alerts))
	}
	if alerts[0].NewsTitle != "ACME bankruptcy looms" {
		t.Errorf("title = %q", alerts[0].NewsTitle)
	}
	if alerts[0].Severity != SeverityHigh {
		t.Errorf("severity = %q, want %q", alerts[0].Severity, SeverityHigh)
	}
}

func TestGroupByTitle(t *testing.T) {
	svc := NewAlerts(nil, nil, nil, zerolog.Nop())

	raw := []Alert{
		{AccountID: "ACC1", Symbol: "ACME", NewsTitle: "ACME investigation", PositionValue: 10000, Severity: SeverityLow},
		{AccountID: "ACC2", Symbol: "ACME", NewsTitle: "ACME investigation", PositionValue: 20000, Severity: SeverityHigh},
		{AccountID: "ACC3", Symbol: "GLOB", NewsTitle: "GLOB slips", PositionValue: 5000, Severity: SeverityMedium},
		{AccountID: "ACC4", Symbol: "MISC", PositionValue: 1, Severity: SeverityLow},
	}

	stories := svc.groupByTitle(context.Background(), raw)
	if len(stories) != 3 {
		t.Fatalf("got %d stories, want 3", len(stories))
	}

	// Sorted by total exposure, descending.
	if stories[0].NewsTitle != "ACME investigation" {
		t.Fatalf("top story = %q, want the highest-exposure title", stories[0].NewsTitle)
	}
	top := stories[0]
	if top.TotalAccountsAffected != 2 {
		t.Errorf("accounts affected = %d, want 2", top.TotalAccountsAffected)
	}
	if top.TotalExposure != 30000 {
		t.Errorf("total exposure = %v, want 30000", top.TotalExposure)
	}
	if top.Severity != SeverityHigh {
		t.Errorf("severity = %q, want upgraded to high", top.Severity)
	}
	if len(top.AffectedAccounts) != 2 {
		t.Errorf("affected positions = %d, want 2", len(top.AffectedAccounts))
	}

	// Untitled alerts fold under the placeholder title.
	if stories[2].NewsTitle != "Unknown News" {
		t.Errorf("placeholder title = %q, want %q", stories[2].NewsTitle, "Unknown News")
	}
}

func TestGroupByTitleCapsStories(t *testing.T) {
	svc := NewAlerts(nil, nil, nil, zerolog.Nop())

	raw := make([]Alert, 0, 15)
	for i := 0; i < 15; i++ {
		raw = append(raw, Alert{
			AccountID:     "ACC1",
			Symbol:        "SYM",
			NewsTitle:     fmt.Sprintf("Story %d", i),
			PositionValue: float64(i),
			Severity:      SeverityLow,
		})
	}

	stories := svc.groupByTitle(context.Background(), raw)
	if len(stories) != 10 {
		t.Fatalf("got %d stories, want the top 10", len(stories))
	}
	if stories[0].NewsTitle != "Story 14" {
		t.Errorf("top story = %q, want the highest exposure", stories[0].NewsTitle)
	}
}

func TestNegativeNewsStatuses(t *testing.T) {
	t.Run("no servers", func(t *testing.T) {
		svc := NewAlerts(emptyStore(t), &fakeExec{}, nil, zerolog.Nop())
		res := svc.NegativeNews(context.Background(), 72, "hours")
		if res.Status != StatusNoServers {
			t.Errorf("status = %q, want %q", res.Status, StatusNoServers)
		}
	})

	t.Run("tool not available", func(t *testing.T) {
		store := mainPageStore(t, "execute_esql")
		svc := NewAlerts(store, &fakeExec{}, nil, zerolog.Nop())
		res := svc.NegativeNews(context.Background(), 72, "hours")
		if res.Status != StatusToolNotAvailable {
			t.Errorf("status = %q, want %q", res.Status, StatusToolNotAvailable)
		}
		if !strings.Contains(res.Message, "neg_news_reports_with_pos") {
			t.Errorf("message should name the missing tool: %q", res.Message)
		}
	})

	t.Run("no data", func(t *testing.T) {
		store := mainPageStore(t, "neg_news_reports_with_pos")
		exec := &fakeExec{results: map[string]*mcp.InvocationResult{
			"neg_news_reports_with_pos": jsonResult(map[string]any{"result": map[string]any{}}),
		}}
		svc := NewAlerts(store, exec, nil, zerolog.Nop())
		res := svc.NegativeNews(context.Background(), 72, "hours")
		if res.Status != StatusNoData {
			t.Errorf("status = %q, want %q", res.Status, StatusNoData)
		}
	})

	t.Run("success", func(t *testing.T) {
		store := mainPageStore(t, "neg_news_reports_with_pos")
		exec := &fakeExec{results: map[string]*mcp.InvocationResult{
			"neg_news_reports_with_pos": jsonResult(map[string]any{
				"result": map[string]any{
					"hits": map[string]any{
						"hits": []any{
							map[string]any{
								"_id": "doc-1",
								"_source": map[string]any{
									"account_id": "ACC1",
									"symbol":     "ACME",
									"news_title": "ACME fraud inquiry",
								},
							},
						},
					},
				},
			}),
		}}
		svc := NewAlerts(store, exec, nil, zerolog.Nop())
		res := svc.NegativeNews(context.Background(), 48, "hours")
		if res.Status != StatusSuccess {
			t.Fatalf("status = %q, want %q", res.Status, StatusSuccess)
		}
		if res.ServerUsed != "Elasticsearch MCP" {
			t.Errorf("server used = %q", res.ServerUsed)
		}
		if len(res.Alerts) != 1 {
			t.Fatalf("got %d stories, want 1", len(res.Alerts))
		}

		// The lookback window is passed as a single duration string.
		if len(exec.calls) != 1 {
			t.Fatalf("got %d tool calls, want 1", len(exec.calls))
		}
		if got := exec.calls[0].Args["time_duration"]; got != "48 hours" {
			t.Errorf("time_duration = %v, want %q", got, "48 hours")
		}
	})
}
