package vectorstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"Laira/internal/schema"
)

// Schema fields of every collection this store manages.
const (
	FieldID        = "id"
	FieldEmbedding = "embedding"
	FieldText      = "text"
	FieldMetadata  = "metadata"
)

// Result is one ranked match returned by Query, ordered by ascending
// distance (nearest first).
type Result struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
	Distance float32
}

// prepareRecords filters chunks down to storable rows: records without an
// embedding are dropped, metadata is sanitized to scalars and JSON-encoded,
// and the chunk_id becomes the primary key.
func prepareRecords(chunks []*schema.Chunk) (ids []string, vectors [][]float32, texts []string, metadatas [][]byte, err error) {
	for _, c := range chunks {
		if c == nil || len(c.Embedding) == 0 {
			continue
		}
		id, _ := c.Metadata[schema.MetadataKeyChunkID].(string)
		if id == "" {
			return nil, nil, nil, nil, fmt.Errorf("chunk is missing %s metadata", schema.MetadataKeyChunkID)
		}

		clean := schema.SanitizeMetadata(c.Metadata)
		encoded, mErr := json.Marshal(clean)
		if mErr != nil {
			return nil, nil, nil, nil, fmt.Errorf("encoding metadata for %s: %w", id, mErr)
		}

		ids = append(ids, id)
		vectors = append(vectors, c.Embedding)
		texts = append(texts, c.Text)
		metadatas = append(metadatas, encoded)
	}
	return ids, vectors, texts, metadatas, nil
}

// buildFilterExpr turns a metadata predicate map into a Milvus filter
// expression over the JSON metadata column. Keys are emitted in sorted
// order so the expression is deterministic.
func buildFilterExpr(filters map[string]interface{}) string {
	if len(filters) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, 0, len(keys))
	for _, key := range keys {
		switch v := filters[key].(type) {
		case string:
			escaped := strings.ReplaceAll(v, `"`, `\"`)
			conditions = append(conditions, fmt.Sprintf(`%s["%s"] == "%s"`, FieldMetadata, key, escaped))
		case bool:
			conditions = append(conditions, fmt.Sprintf(`%s["%s"] == %t`, FieldMetadata, key, v))
		case int, int32, int64:
			conditions = append(conditions, fmt.Sprintf(`%s["%s"] == %d`, FieldMetadata, key, v))
		case float32, float64:
			conditions = append(conditions, fmt.Sprintf(`%s["%s"] == %v`, FieldMetadata, key, v))
		default:
			conditions = append(conditions, fmt.Sprintf(`%s["%s"] == "%v"`, FieldMetadata, key, v))
		}
	}
	return strings.Join(conditions, " and ")
}

// idExpr builds the primary-key equality expression for one record id.
func idExpr(id string) string {
	return fmt.Sprintf(`%s == "%s"`, FieldID, strings.ReplaceAll(id, `"`, `\"`))
}
