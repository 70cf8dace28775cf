package chunk

import (
	"fmt"
	"strings"

	"Laira/internal/schema"
)

// MergeSmallChunks coalesces consecutive chunks below minSize into a
// running accumulator, flushing whenever the accumulator would exceed
// maxSize. Naive splitting can leave tiny trailing fragments that hurt
// retrieval quality; this post-pass removes them. Merged chunks record
// merged=true and the chunk_index values they absorbed.
func MergeSmallChunks(chunks []*schema.Chunk, minSize, maxSize int) []*schema.Chunk {
	if len(chunks) == 0 {
		return []*schema.Chunk{}
	}
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}

	var result []*schema.Chunk
	var current *schema.Chunk
	var mergedFrom []int

	for _, c := range chunks {
		if current == nil || len(current.Text)+len(c.Text) > maxSize {
			if current != nil && len(current.Text) >= minSize {
				finishMerged(current, mergedFrom)
				result = append(result, current)
			}
			current = &schema.Chunk{Text: c.Text, Metadata: copyMetadata(c.Metadata)}
			mergedFrom = nil
			if idx, ok := c.Metadata[schema.MetadataKeyChunkIndex].(int); ok {
				mergedFrom = []int{idx}
			}
			continue
		}

		current.Text += "\n\n" + c.Text
		current.Metadata[schema.MetadataKeyChunkEndChar] = c.Metadata[schema.MetadataKeyChunkEndChar]
		current.Metadata[schema.MetadataKeyChunkSizeChars] = len(current.Text)
		current.Metadata[schema.MetadataKeyEstimatedTokens] = EstimateTokens(current.Text)
		current.Metadata[schema.MetadataKeyMerged] = true
		if idx, ok := c.Metadata[schema.MetadataKeyChunkIndex].(int); ok {
			mergedFrom = append(mergedFrom, idx)
		}
	}

	if current != nil {
		finishMerged(current, mergedFrom)
		result = append(result, current)
	}

	return result
}

// finishMerged records the absorbed chunk indexes on a chunk that merged
// at least one sibling.
func finishMerged(c *schema.Chunk, mergedFrom []int) {
	merged, _ := c.Metadata[schema.MetadataKeyMerged].(bool)
	if !merged || len(mergedFrom) == 0 {
		return
	}
	parts := make([]string, len(mergedFrom))
	for i, idx := range mergedFrom {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	c.Metadata[schema.MetadataKeyMergedFrom] = strings.Join(parts, ",")
}
