// Package dashboard builds the advisor's main-page content from the MCP
// servers flagged for dashboard use: news and report headlines, negative news
// alerts ranked by exposure, per-account news lookups, start-of-day action
// items, and drafted client emails. Every service degrades to a typed status
// instead of an error so the page renders with whatever data is available.
package dashboard

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/advisordesk/advisord/mcp"
)

// Result statuses shared by the dashboard services.
const (
	StatusSuccess          = "success"
	StatusNoServers        = "no_servers"
	StatusNoData           = "no_data"
	StatusError            = "error"
	StatusToolNotAvailable = "tool_not_available"
	StatusNoNegativeNews   = "no_negative_news"
)

// decodePayload exposes a tool result as a JSON object. The structured Raw
// payload is preferred; otherwise the text content is parsed.
func decodePayload(res *mcp.ToolResult) (map[string]any, bool) {
	if res == nil {
		return nil, false
	}
	if m, ok := res.Raw.(map[string]any); ok {
		return m, true
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(res.Content), &m); err != nil {
		return nil, false
	}
	return m, true
}

// resultSection unwraps the "result" envelope the Elasticsearch MCP server
// puts around its payloads.
func resultSection(data map[string]any) (map[string]any, bool) {
	section, ok := data["result"].(map[string]any)
	return section, ok
}

// searchHits extracts the hit list from a standard Elasticsearch search
// response nested under the result envelope.
func searchHits(section map[string]any) ([]map[string]any, bool) {
	outer, ok := section["hits"].(map[string]any)
	if !ok {
		return nil, false
	}
	inner, ok := outer["hits"].([]any)
	if !ok {
		return nil, false
	}
	hits := make([]map[string]any, 0, len(inner))
	for _, h := range inner {
		if m, ok := h.(map[string]any); ok {
			hits = append(hits, m)
		}
	}
	return hits, true
}

// esqlTable is the columnar shape of an ES|QL response.
type esqlTable struct {
	cols map[string]int
	rows [][]any
}

// esqlResult extracts an ES|QL columns/values table from the result envelope.
func esqlResult(section map[string]any) (*esqlTable, bool) {
	values, ok := section["values"].([]any)
	if !ok {
		return nil, false
	}
	table := &esqlTable{cols: make(map[string]int)}
	if columns, ok := section["columns"].([]any); ok {
		for i, c := range columns {
			if col, ok := c.(map[string]any); ok {
				if name, ok := col["name"].(string); ok {
					table.cols[name] = i
				}
			}
		}
	}
	for _, v := range values {
		if row, ok := v.([]any); ok {
			table.rows = append(table.rows, row)
		}
	}
	return table, true
}

// col returns the row's value for the first matching column name.
func (t *esqlTable) col(row []any, names ...string) any {
	for _, name := range names {
		idx, ok := t.cols[name]
		if !ok || idx >= len(row) {
			continue
		}
		if row[idx] != nil {
			return row[idx]
		}
	}
	return nil
}

// strField returns the first non-empty string value among the named keys.
func strField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// numField returns the first numeric value among the named keys.
func numField(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return v
		case json.Number:
			f, err := v.Float64()
			if err == nil {
				return f
			}
		}
	}
	return 0
}

// toStr renders an arbitrary JSON value as a string.
func toStr(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// toNum renders an arbitrary JSON value as a float.
func toNum(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		var f float64
		if err := json.Unmarshal([]byte(val), &f); err == nil {
			return f
		}
	}
	return 0
}

// formatUSD renders a dollar amount with thousands separators and no cents,
// e.g. 1234567.8 -> "$1,234,568".
func formatUSD(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

// truncate shortens s to at most n runes, appending an ellipsis when cut.
// Counting runes keeps multi-byte characters in summaries intact.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
