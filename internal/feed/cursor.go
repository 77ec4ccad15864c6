package feed

import (
	"fmt"
	"strings"
)

// NormalizeCursor reduces the next-page cursor to a plain token. The feed API
// returns it either as a bare string or nested inside an object under an
// "offset" key; some responses use "0" or "null" to mean exhausted.
func NormalizeCursor(v any) string {
	switch cur := v.(type) {
	case nil:
		return ""
	case string:
		return cleanCursor(cur)
	case map[string]any:
		if inner, ok := cur["offset"]; ok {
			return NormalizeCursor(inner)
		}
		return ""
	case float64:
		if cur == 0 {
			return ""
		}
		return strings.TrimSuffix(fmt.Sprintf("%.0f", cur), ".")
	default:
		return cleanCursor(fmt.Sprintf("%v", cur))
	}
}

func cleanCursor(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "0", "null", "<nil>":
		return ""
	}
	return s
}
