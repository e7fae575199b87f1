package models

// ToolDefinition describes a tool that workflow steps may reference.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	Category    string         `json:"category,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// RequiredParameters lists the required input parameter names.
func (t ToolDefinition) RequiredParameters() []string {
	schema, _ := t.InputSchema["jsonSchema"].(map[string]any)
	raw, _ := schema["required"].([]any)
	var names []string
	for _, r := range raw {
		if s, ok := r.(string); ok {
			names = append(names, s)
		}
	}
	return names
}
