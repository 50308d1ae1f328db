package gemini

import "strings"

// ExtractJSON pulls a JSON payload out of a model reply. Models often wrap
// structured output in a fenced code block, so the extraction tries the
// ```json fence first, then a bare ``` fence, and finally falls back to the
// first balanced-looking object in the raw text.
func ExtractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	if body, ok := fencedBlock(trimmed, "```json"); ok {
		return body
	}
	if body, ok := fencedBlock(trimmed, "```"); ok {
		return body
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return trimmed
}

func fencedBlock(text, fence string) (string, bool) {
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(fence):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// StripQuotes removes one layer of surrounding single or double quotes, which
// models occasionally add around short free-text answers such as rewritten
// prompts.
func StripQuotes(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		}
	}
	return trimmed
}
