package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONArray decodes the JSON array embedded in text into v. Models
// tend to wrap the array in prose, so the slice from the first '[' to the
// last ']' is decoded; without brackets the whole text is tried.
func ExtractJSONArray(text string, v any) error {
	raw := text
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		raw = text[start : end+1]
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode json array: %w", err)
	}
	return nil
}

// StripCodeFence removes a surrounding markdown code fence, including its
// language tag line. Text that is not fenced is returned unchanged.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return text
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= 2 {
		return text
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
