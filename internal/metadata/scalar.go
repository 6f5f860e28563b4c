package metadata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// tagValue renders a stored attribute as tag text. Lists are joined with ","
// and nested maps with "k:v|k:v" in key order.
func tagValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int, int64, uint64, int32, uint32, int16, uint16, int8, uint8:
		return fmt.Sprintf("%d", x), true
	case []byte:
		return string(x), true
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := tagValue(item); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ","), true
	case []string:
		return strings.Join(x, ","), true
	case []float64:
		parts := make([]string, 0, len(x))
		for _, f := range x {
			parts = append(parts, strconv.FormatFloat(f, 'f', -1, 64))
		}
		return strings.Join(parts, ","), true
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := tagValue(x[k]); ok {
				parts = append(parts, k+":"+s)
			}
		}
		return strings.Join(parts, "|"), true
	default:
		return fmt.Sprintf("%v", x), true
	}
}

func toRecord(item map[string]any) Record {
	rec := make(Record, len(item))
	for k, v := range item {
		if s, ok := tagValue(v); ok {
			rec[k] = s
		}
	}
	return rec
}
