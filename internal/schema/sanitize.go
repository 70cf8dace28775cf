package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SanitizeMetadata returns a copy of metadata in which every value is a
// scalar the vector store accepts (string, int, float, bool). Nil values
// are dropped. Slices are joined into a comma-separated string, maps are
// JSON-encoded, and anything else is stringified. The input map is never
// modified.
func SanitizeMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return map[string]interface{}{}
	}
	clean := make(map[string]interface{}, len(metadata))
	for key, value := range metadata {
		if value == nil {
			continue
		}
		switch v := value.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			clean[key] = v
		case []string:
			clean[key] = strings.Join(v, ",")
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			clean[key] = strings.Join(parts, ",")
		case map[string]interface{}:
			encoded, err := json.Marshal(v)
			if err != nil {
				clean[key] = fmt.Sprintf("%v", v)
				continue
			}
			clean[key] = string(encoded)
		default:
			clean[key] = fmt.Sprintf("%v", v)
		}
	}
	return clean
}
