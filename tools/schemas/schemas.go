// Package schemas contains tool schema definitions for the advisord built-in
// tool server. These schemas describe the input parameters of the local
// Elasticsearch query tools; they form the local server's cached catalog and
// are advertised to the LLM under the function-calling contract.
package schemas

// ToolSchema represents a tool's description and JSON schema.
type ToolSchema struct {
	Description string
	Schema      map[string]any
}

// All returns all tool schemas from all categories.
func All() map[string]ToolSchema {
	schemas := make(map[string]ToolSchema)

	for name, schema := range Financial() {
		schemas[name] = schema
	}

	return schemas
}
