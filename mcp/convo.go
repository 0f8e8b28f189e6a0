package mcp

import (
	"encoding/json"
	"fmt"
)

// ExtractConversationID searches a tool result payload for the named field and
// returns its value as a string. The search is recursive through objects and
// arrays, and string values are additionally tried as embedded JSON since some
// servers return JSON-in-string payloads.
func ExtractConversationID(payload any, field string) (string, bool) {
	if field == "" {
		return "", false
	}
	return searchNested(payload, field)
}

func searchNested(obj any, field string) (string, bool) {
	switch v := obj.(type) {
	case map[string]any:
		if val, ok := v[field]; ok {
			return stringify(val), true
		}
		for _, item := range v {
			if found, ok := searchNested(item, field); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range v {
			if found, ok := searchNested(item, field); ok {
				return found, true
			}
		}
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			// Avoid recursing on scalars; a bare string parses as itself.
			switch parsed.(type) {
			case map[string]any, []any:
				return searchNested(parsed, field)
			}
		}
	}
	return "", false
}

func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; ids are typically integral.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// InjectConversationID returns a copy of args with the conversation id added
// under the named field. The original map is left untouched.
func InjectConversationID(args map[string]any, field, conversationID string) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out[field] = conversationID
	return out
}
