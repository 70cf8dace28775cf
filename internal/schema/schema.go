package schema

const (
	// MetadataKeyDocumentID is the key for the stable per-document identifier.
	// It is generated once per processing run and threaded through all chunks.
	MetadataKeyDocumentID = "document_id"
	// MetadataKeyChunkID is the key for the globally unique chunk identifier.
	// Derived from document_id plus positional index, it is the vector store
	// primary key, so re-processing the same document overwrites in place.
	MetadataKeyChunkID = "chunk_id"
	// MetadataKeyFilename is the key for the source file name.
	MetadataKeyFilename = "filename"
	// MetadataKeyFilePath is the key for the absolute source file path.
	MetadataKeyFilePath = "file_path"
	// MetadataKeyChunkIndex is the key for the chunk's zero-based position
	// within its parent text unit.
	MetadataKeyChunkIndex = "chunk_index"
	// MetadataKeyChunkStartChar is the key for the chunk's start offset into
	// the parent text.
	MetadataKeyChunkStartChar = "chunk_start_char"
	// MetadataKeyChunkEndChar is the key for the chunk's end offset into the
	// parent text.
	MetadataKeyChunkEndChar = "chunk_end_char"
	// MetadataKeyChunkStrategy is the key for the splitting strategy name.
	MetadataKeyChunkStrategy = "chunk_strategy"
	// MetadataKeyChunkSizeChars is the key for the chunk's character count.
	MetadataKeyChunkSizeChars = "chunk_size_chars"
	// MetadataKeyEstimatedTokens is the key for the chunk's token estimate.
	MetadataKeyEstimatedTokens = "estimated_tokens"
	// MetadataKeyPage is the key for the one-based page number of PDF-derived
	// chunks.
	MetadataKeyPage = "page"
	// MetadataKeyTotalPages is the key for the page count of the source PDF.
	MetadataKeyTotalPages = "total_pages"
	// MetadataKeySection is the key for the coarse section label derived by
	// the heading heuristic.
	MetadataKeySection = "section"
	// MetadataKeyChunkType is the key distinguishing body text from figure
	// descriptions. Values: ChunkTypeText, ChunkTypeFigure.
	MetadataKeyChunkType = "chunk_type"
	// MetadataKeyFigureIndex is the key for the one-based index of a figure
	// within its page. Present only on figure chunks.
	MetadataKeyFigureIndex = "figure_index"
	// MetadataKeyMerged marks a chunk assembled by MergeSmallChunks.
	MetadataKeyMerged = "merged"
	// MetadataKeyMergedFrom lists the chunk_index values a merged chunk
	// absorbed, as a comma-separated string.
	MetadataKeyMergedFrom = "merged_from"
)

const (
	// ChunkTypeText marks a chunk produced from body text.
	ChunkTypeText = "text"
	// ChunkTypeFigure marks a chunk produced from a figure description.
	ChunkTypeFigure = "figure"
)

// Chunk is the central data structure representing a piece of text and its
// associated data. It is the primary data carrier throughout the pipeline.
type Chunk struct {
	// Text is the string content of the chunk.
	Text string

	// Embedding is the vector representation of the text. It is nil until
	// the embedding stage fills it in, and stays nil for chunks whose
	// embedding permanently failed.
	Embedding []float32

	// Metadata holds arbitrary data about the chunk. Values must be
	// sanitized to scalars before they reach the vector store.
	Metadata map[string]interface{}
}
