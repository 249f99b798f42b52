package llm

import "maps"

// Object builds a JSON schema object.
func Object(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func String(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func Integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func Number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func Boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func Array(items map[string]any, desc string) map[string]any {
	return map[string]any{"type": "array", "items": items, "description": desc}
}

func Enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": desc}
}

// Nullable marks a schema as accepting null in addition to its type.
func Nullable(s map[string]any) map[string]any {
	out := maps.Clone(s)
	if t, ok := s["type"].(string); ok {
		out["type"] = []string{t, "null"}
	}
	return out
}
