package session

import (
	"fmt"
	"strings"
)

// SanitizeKeys normalizes map keys for backends that treat "." as a path
// separator: empty keys become "_empty", non-string keys are stringified,
// dots become underscores. The transformation recurses through nested maps
// and slices and is idempotent on already-sanitized input.
func SanitizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[sanitizeKey(k)] = SanitizeKeys(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[sanitizeKey(fmt.Sprintf("%v", k))] = SanitizeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = SanitizeKeys(val)
		}
		return out
	default:
		return v
	}
}

func sanitizeKey(k string) string {
	if k == "" {
		return "_empty"
	}
	return strings.ReplaceAll(k, ".", "_")
}
