package embedding

import "context"

// Embedding defines the interface every embedding provider implements.
// Document and query embeddings are distinct operations because some
// providers optimize the vector for its retrieval role.
type Embedding interface {
	// EmbedDocument generates an embedding vector for one document text.
	EmbedDocument(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embedding vectors for a batch of document
	// texts in one provider call. The result has one vector per input,
	// in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding vector for a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
