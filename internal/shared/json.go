package shared

import (
	"bytes"
	"encoding/json"
)

// ParseOrDefault decodes raw JSON into T. Empty input, a JSON null or a
// malformed document yield def instead of an error.
func ParseOrDefault[T any](raw []byte, def T) T {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return def
	}
	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return def
	}
	return out
}
