package tools

// Small builders for the JSON-schema parameter objects sent to the model.

type props map[string]any

func object(p props, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": map[string]any(p),
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}
