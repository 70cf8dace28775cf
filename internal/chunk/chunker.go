package chunk

import (
	"fmt"
	"strings"
	"unicode"

	"Laira/internal/schema"
	"Laira/pkg/logger"
)

// Default configuration values.
const (
	DefaultChunkSize    = 1000   // characters
	DefaultChunkOverlap = 200    // characters
	DefaultSeparator    = "\n\n" // paragraph separator
)

// Strategy names accepted by Split.
const (
	StrategySize      = "size"
	StrategyParagraph = "paragraph"
	StrategyOverlap   = "overlap"
	StrategyLayout    = "layout"
)

// Config holds the splitting parameters of a Chunker.
type Config struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int
	// ChunkOverlap is the overlap between consecutive chunks for the
	// overlap strategy, in characters.
	ChunkOverlap int
	// ParagraphSeparator splits text into paragraphs for the paragraph
	// and layout strategies.
	ParagraphSeparator string
	// MaxParagraphLength bounds the accumulated paragraph buffer before
	// it is flushed as a chunk. Defaults to ChunkSize.
	MaxParagraphLength int
}

// Chunker breaks text into bounded, addressable chunks using one of
// several splitting strategies.
type Chunker struct {
	config Config
	log    *logger.Logger
}

// NewChunker creates a Chunker, filling zero-valued config fields with
// defaults.
func NewChunker(config Config) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ParagraphSeparator == "" {
		config.ParagraphSeparator = DefaultSeparator
	}
	if config.MaxParagraphLength <= 0 {
		config.MaxParagraphLength = config.ChunkSize
	}
	return &Chunker{
		config: config,
		log:    logger.New("chunker"),
	}
}

// Split chunks text using the named strategy. Empty input yields an empty
// list, not an error. An unrecognized strategy name fails with
// ErrUnknownStrategy.
func (c *Chunker) Split(text, strategy string, baseMetadata map[string]interface{}) ([]*schema.Chunk, error) {
	if text == "" {
		return []*schema.Chunk{}, nil
	}
	switch strategy {
	case StrategySize:
		return c.SplitBySize(text, baseMetadata), nil
	case StrategyParagraph:
		return c.SplitByParagraph(text, baseMetadata), nil
	case StrategyOverlap:
		return c.SplitWithOverlap(text, baseMetadata), nil
	case StrategyLayout:
		// Plain text carries no page layout; paragraph splitting is the
		// closest equivalent. Page-structured input goes through
		// SplitPages instead.
		return c.SplitByParagraph(text, baseMetadata), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// SplitBySize splits text into fixed-width chunks. Each cut point is
// pulled backward to the nearest preceding whitespace so words are not
// split, unless the range contains no whitespace at all.
func (c *Chunker) SplitBySize(text string, baseMetadata map[string]interface{}) []*schema.Chunk {
	return c.splitByWidth(text, baseMetadata, StrategySize, 0)
}

// SplitWithOverlap splits like SplitBySize but starts each chunk
// ChunkOverlap characters before the previous chunk's end. Overlap is
// clamped below the chunk size, and forward progress is guaranteed even
// for pathological overlap/size combinations.
func (c *Chunker) SplitWithOverlap(text string, baseMetadata map[string]interface{}) []*schema.Chunk {
	overlap := c.config.ChunkOverlap
	if overlap >= c.config.ChunkSize {
		overlap = c.config.ChunkSize - 1
	}
	return c.splitByWidth(text, baseMetadata, StrategyOverlap, overlap)
}

func (c *Chunker) splitByWidth(text string, baseMetadata map[string]interface{}, strategy string, overlap int) []*schema.Chunk {
	runes := []rune(text)
	textLength := len(runes)
	size := c.config.ChunkSize

	var chunks []*schema.Chunk
	currentPos := 0
	chunkIndex := 0
	prevStart, prevEnd := -1, -1

	for currentPos < textLength {
		endPos := currentPos + size
		if endPos > textLength {
			endPos = textLength
		}

		// Pull the cut point back to whitespace so words stay intact.
		if endPos < textLength {
			adjusted := endPos
			for adjusted > currentPos && !unicode.IsSpace(runes[adjusted]) {
				adjusted--
			}
			if adjusted > currentPos {
				endPos = adjusted
			}
		}

		chunkText := strings.TrimSpace(string(runes[currentPos:endPos]))
		if chunkText != "" {
			metadata := copyMetadata(baseMetadata)
			metadata[schema.MetadataKeyChunkIndex] = chunkIndex
			metadata[schema.MetadataKeyChunkStartChar] = currentPos
			metadata[schema.MetadataKeyChunkEndChar] = endPos
			metadata[schema.MetadataKeyChunkStrategy] = strategy
			metadata[schema.MetadataKeyChunkSizeChars] = len(chunkText)
			metadata[schema.MetadataKeyEstimatedTokens] = EstimateTokens(chunkText)
			if strategy == StrategyOverlap {
				metadata["overlap_size_chars"] = overlap
			}
			chunks = append(chunks, &schema.Chunk{Text: chunkText, Metadata: metadata})
			chunkIndex++
		}

		prevStart, prevEnd = currentPos, endPos

		if endPos >= textLength {
			break
		}
		currentPos = endPos - overlap
		// Forward progress: never restart at or before the previous start.
		if currentPos <= prevStart {
			currentPos = prevEnd
		}
	}

	return chunks
}

// SplitByParagraph splits text on the paragraph separator, accumulating
// paragraphs into a buffer that is flushed whenever adding the next
// paragraph would exceed MaxParagraphLength. Paragraphs are atomic: a
// single oversized paragraph becomes one oversized chunk.
func (c *Chunker) SplitByParagraph(text string, baseMetadata map[string]interface{}) []*schema.Chunk {
	sep := c.config.ParagraphSeparator
	maxLength := c.config.MaxParagraphLength

	// Keep separators attached to the paragraph that follows them so
	// character offsets stay consistent with the source text.
	parts := strings.Split(text, sep)
	paragraphs := make([]string, 0, len(parts))
	for i, part := range parts {
		if i == 0 {
			paragraphs = append(paragraphs, part)
		} else {
			paragraphs = append(paragraphs, sep+part)
		}
	}

	var chunks []*schema.Chunk
	currentChunk := ""
	currentStart := 0
	chunkIndex := 0

	flush := func() {
		metadata := copyMetadata(baseMetadata)
		metadata[schema.MetadataKeyChunkIndex] = chunkIndex
		metadata[schema.MetadataKeyChunkStartChar] = currentStart
		metadata[schema.MetadataKeyChunkEndChar] = currentStart + len([]rune(currentChunk))
		metadata[schema.MetadataKeyChunkStrategy] = StrategyParagraph
		metadata[schema.MetadataKeyChunkSizeChars] = len(currentChunk)
		metadata[schema.MetadataKeyEstimatedTokens] = EstimateTokens(currentChunk)
		chunks = append(chunks, &schema.Chunk{Text: strings.TrimSpace(currentChunk), Metadata: metadata})
		currentStart += len([]rune(currentChunk))
		currentChunk = ""
		chunkIndex++
	}

	for _, paragraph := range paragraphs {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		if currentChunk != "" && len(currentChunk)+len(paragraph) > maxLength {
			flush()
		}
		currentChunk += paragraph
	}
	if currentChunk != "" {
		flush()
	}

	return chunks
}

func copyMetadata(md map[string]interface{}) map[string]interface{} {
	newMd := make(map[string]interface{}, len(md)+8)
	for k, v := range md {
		newMd[k] = v
	}
	return newMd
}
