package coach

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cleanModelJSON strips Markdown fences and any chatter around the outermost
// JSON value that starts with open and ends with close.
func cleanModelJSON(raw string, open, close byte) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.IndexByte(s, open); start != -1 {
		if end := strings.LastIndexByte(s, close); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}

// decodeObject parses a model reply that must be a single JSON object.
func decodeObject(raw string, v any) error {
	clean := cleanModelJSON(raw, '{', '}')
	if !strings.HasPrefix(clean, "{") {
		return fmt.Errorf("%w: reply is not a JSON object: %.80q", ErrMalformedResponse, raw)
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return fmt.Errorf("%w: unmarshal JSON: %v", ErrMalformedResponse, err)
	}
	return nil
}

// decodeArray parses a model reply that must be a JSON array.
func decodeArray(raw string, v any) error {
	clean := cleanModelJSON(raw, '[', ']')
	if !strings.HasPrefix(clean, "[") {
		return fmt.Errorf("%w: reply is not a JSON array: %.80q", ErrMalformedResponse, raw)
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return fmt.Errorf("%w: unmarshal JSON: %v", ErrMalformedResponse, err)
	}
	return nil
}
