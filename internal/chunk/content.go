package chunk

import (
	"fmt"

	"Laira/internal/extract"
	"Laira/internal/schema"
)

// SplitContent chunks extracted content with the named strategy. Flat
// text is chunked directly; page-structured content is chunked page by
// page with page metadata merged into every chunk, except for the layout
// strategy which chunks across section boundaries.
func (c *Chunker) SplitContent(content *extract.Content, strategy string, baseMetadata map[string]interface{}) ([]*schema.Chunk, error) {
	if content == nil || content.IsEmpty() {
		return []*schema.Chunk{}, nil
	}

	switch content.Kind {
	case extract.KindPages:
		return c.SplitPages(content.Pages, strategy, baseMetadata)
	default:
		return c.Split(content.Text, strategy, baseMetadata)
	}
}

// SplitPages chunks page units one page at a time, merging each page's
// number, section and type into the chunk metadata. The layout strategy
// instead groups pages into sections and bridges them with overlap.
func (c *Chunker) SplitPages(pages []extract.PageUnit, strategy string, baseMetadata map[string]interface{}) ([]*schema.Chunk, error) {
	if strategy == StrategyLayout {
		return c.splitLayout(pages, baseMetadata), nil
	}
	if strategy != StrategySize && strategy != StrategyParagraph && strategy != StrategyOverlap {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	var all []*schema.Chunk
	for _, page := range pages {
		if page.Text == "" {
			continue
		}
		meta := pageMetadata(baseMetadata, page)
		chunks, err := c.Split(page.Text, strategy, meta)
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// pageMetadata merges a page unit's fields over the base metadata.
func pageMetadata(baseMetadata map[string]interface{}, page extract.PageUnit) map[string]interface{} {
	meta := copyMetadata(baseMetadata)
	meta[schema.MetadataKeyPage] = page.Page
	meta[schema.MetadataKeyTotalPages] = page.TotalPages
	meta[schema.MetadataKeyChunkType] = page.Type
	if page.Section != "" {
		meta[schema.MetadataKeySection] = page.Section
	}
	if page.Type == schema.ChunkTypeFigure {
		meta[schema.MetadataKeyFigureIndex] = page.FigureIndex
	}
	return meta
}
