package embedding

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleModel is a client for the Google GenAI Embedding API. It keeps
// two task-typed handles on the same model so document and query
// embeddings are generated with the retrieval role the provider expects.
type GoogleModel struct {
	docModel   *genai.EmbeddingModel
	queryModel *genai.EmbeddingModel
}

// NewGoogleModel creates a GoogleModel client for the named embedding
// model.
func NewGoogleModel(ctx context.Context, apiKey, modelName string) (*GoogleModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	docModel := client.EmbeddingModel(modelName)
	docModel.TaskType = genai.TaskTypeRetrievalDocument

	queryModel := client.EmbeddingModel(modelName)
	queryModel.TaskType = genai.TaskTypeRetrievalQuery

	return &GoogleModel{
		docModel:   docModel,
		queryModel: queryModel,
	}, nil
}

// EmbedDocument generates an embedding vector for one document text.
func (m *GoogleModel) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	res, err := m.docModel.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	return res.Embedding.Values, nil
}

// EmbedDocuments generates embedding vectors for a batch of document
// texts in one API call.
func (m *GoogleModel) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	batch := m.docModel.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := m.docModel.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		embeddings = append(embeddings, emb.Values)
	}
	return embeddings, nil
}

// EmbedQuery generates an embedding vector for a search query.
func (m *GoogleModel) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := m.queryModel.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	return res.Embedding.Values, nil
}

// compile-time check to ensure GoogleModel implements the Embedding interface
var _ Embedding = (*GoogleModel)(nil)
