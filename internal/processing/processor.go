package processing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"Laira/internal/chunk"
	"Laira/internal/extract"
	"Laira/internal/schema"
	"Laira/pkg/logger"
)

// defaultMaxConcurrency bounds parallel documents in a batch run.
const defaultMaxConcurrency = 10

// ErrStopped marks documents skipped because Stop was called.
var ErrStopped = errors.New("processing stopped")

// ContentExtractor pulls text and metadata out of a source file.
type ContentExtractor interface {
	Extract(ctx context.Context, path string) (*extract.Content, error)
	GetDocumentMetadata(path string) map[string]interface{}
}

// BatchEmbedder turns texts into vectors. A nil slot in the returned
// slice marks an input whose embedding permanently failed.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore persists embedded chunks into a named collection.
type ChunkStore interface {
	CreateCollection(ctx context.Context, name string) error
	Store(ctx context.Context, collection string, chunks []*schema.Chunk) (int, error)
}

// Config tunes one Processor.
type Config struct {
	// Collection is the collection used when a call names none.
	Collection string
	// Strategy selects the chunking strategy.
	Strategy string
	// MaxConcurrency bounds parallel documents in ProcessDocuments.
	MaxConcurrency int
	// MinChunkSize, when positive, merges adjacent undersized chunks
	// after splitting. MaxChunkSize caps the merged size.
	MinChunkSize int
	MaxChunkSize int
}

// Result reports the outcome of processing one document.
type Result struct {
	Path       string
	DocumentID string
	Success    bool
	Err        error
	Progress   Progress
}

// BatchResult aggregates the outcomes of one ProcessDocuments call.
// Results holds one entry per input path, in input order.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []*Result
}

// Processor drives a document through extraction, chunking, embedding
// and storage. A failure in any stage fails that document; in a batch it
// never takes the other documents down with it.
type Processor struct {
	extractor ContentExtractor
	chunker   *chunk.Chunker
	embedder  BatchEmbedder
	store     ChunkStore
	config    Config
	stopped   atomic.Bool
	log       *logger.Logger
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(extractor ContentExtractor, chunker *chunk.Chunker, embedder BatchEmbedder, store ChunkStore, config Config) *Processor {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaultMaxConcurrency
	}
	if config.Strategy == "" {
		config.Strategy = chunk.StrategyLayout
	}
	return &Processor{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		config:    config,
		log:       logger.New("processing"),
	}
}

// Stop makes the processor finish the documents already in flight and
// skip the rest. A stopped processor stays stopped.
func (p *Processor) Stop() {
	p.stopped.Store(true)
}

// ProcessDocument runs the full pipeline for one file into the named
// collection (the configured default when empty). metadata is merged
// over the extracted file metadata, caller keys winning, and stamped on
// every chunk. A caller-supplied document_id is honored, so re-running a
// document with the same id reproduces the same chunk ids and the store
// upserts in place; without one each run gets a fresh id and a new
// lineage. onProgress may be nil.
func (p *Processor) ProcessDocument(ctx context.Context, path, collection string, metadata map[string]interface{}, onProgress func(Progress)) *Result {
	if collection == "" {
		collection = p.config.Collection
	}
	tracker := NewTracker(path, onProgress)
	documentID := uuid.NewString()
	if id, ok := metadata[schema.MetadataKeyDocumentID].(string); ok && id != "" {
		documentID = id
	}
	tracker.SetDocumentID(documentID)

	result := &Result{Path: path, DocumentID: documentID}
	fail := func(err error) *Result {
		p.log.WithField("path", path).WithError(err).Error("document processing failed")
		tracker.Fail(err)
		result.Err = err
		result.Progress = tracker.Snapshot()
		return result
	}

	tracker.Update(StageExtracting, 10, "extracting content")
	content, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return fail(fmt.Errorf("extracting %s: %w", path, err))
	}
	tracker.SetStat("content_length", content.Length())
	if content.Kind == extract.KindPages {
		tracker.SetStat("page_count", len(content.Pages))
	}

	tracker.Update(StageChunking, 30, "splitting into chunks")
	docMeta := p.extractor.GetDocumentMetadata(path)
	for k, v := range metadata {
		docMeta[k] = v
	}
	docMeta[schema.MetadataKeyDocumentID] = documentID

	chunks, err := p.chunker.SplitContent(content, p.config.Strategy, docMeta)
	if err != nil {
		return fail(fmt.Errorf("chunking %s: %w", path, err))
	}
	if p.config.MinChunkSize > 0 {
		chunks = chunk.MergeSmallChunks(chunks, p.config.MinChunkSize, p.config.MaxChunkSize)
	}
	assignChunkIDs(documentID, chunks)
	tracker.SetStat("chunk_count", len(chunks))

	if len(chunks) == 0 {
		p.log.WithField("path", path).Warn("document produced no chunks")
		tracker.Update(StageCompleted, 100, "nothing to store")
		result.Success = true
		result.Progress = tracker.Snapshot()
		return result
	}

	tracker.Update(StageEmbedding, 50, "embedding chunks")
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(fmt.Errorf("embedding %s: %w", path, err))
	}
	embedded := 0
	for i, vec := range embeddings {
		if vec == nil {
			continue
		}
		chunks[i].Embedding = vec
		embedded++
	}
	tracker.SetStat("embedding_count", embedded)
	if embedded < len(chunks) {
		p.log.WithField("path", path).WithField("failed", len(chunks)-embedded).
			Warn("some chunks could not be embedded")
	}

	if embedded == 0 {
		tracker.SetStat("stored_count", 0)
		tracker.Update(StageCompleted, 100, "no embeddings to store")
		result.Success = true
		result.Progress = tracker.Snapshot()
		return result
	}

	tracker.Update(StageStoring, 80, "storing vectors")
	if err := p.store.CreateCollection(ctx, collection); err != nil {
		return fail(fmt.Errorf("preparing collection: %w", err))
	}
	stored, err := p.store.Store(ctx, collection, chunks)
	if err != nil {
		return fail(fmt.Errorf("storing %s: %w", path, err))
	}
	tracker.SetStat("stored_count", stored)

	tracker.Update(StageCompleted, 100, "done")
	result.Success = true
	result.Progress = tracker.Snapshot()
	return result
}

// ProcessDocuments runs the pipeline over many files. metadata is
// merged onto every document the way ProcessDocument does. With
// concurrent true documents run in parallel up to MaxConcurrency;
// otherwise they run one at a time in input order. One document failing
// does not stop the rest; only context cancellation or Stop ends the
// batch early, and already-finished documents keep their results.
func (p *Processor) ProcessDocuments(ctx context.Context, paths []string, collection string, metadata map[string]interface{}, concurrent bool, onProgress func(Progress)) *BatchResult {
	batch := &BatchResult{
		Total:   len(paths),
		Results: make([]*Result, len(paths)),
	}

	limit := p.config.MaxConcurrency
	if !concurrent {
		limit = 1
	}
	var group errgroup.Group
	group.SetLimit(limit)

	for i, path := range paths {
		if ctx.Err() != nil {
			batch.Results[i] = &Result{Path: path, Err: ctx.Err()}
			continue
		}
		if p.stopped.Load() {
			batch.Results[i] = &Result{Path: path, Err: ErrStopped}
			continue
		}
		i, path := i, path
		group.Go(func() error {
			batch.Results[i] = p.ProcessDocument(ctx, path, collection, metadata, onProgress)
			return nil
		})
	}
	group.Wait()

	for i, r := range batch.Results {
		if r == nil {
			batch.Results[i] = &Result{Path: paths[i], Err: ctx.Err()}
			r = batch.Results[i]
		}
		if r.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}

	p.log.WithField("total", batch.Total).WithField("succeeded", batch.Succeeded).
		WithField("failed", batch.Failed).Info("batch processing finished")
	return batch
}

// assignChunkIDs gives every chunk its primary key. Page-derived chunks
// carry the page number in the id so identical text on different pages
// never collides.
func assignChunkIDs(documentID string, chunks []*schema.Chunk) {
	flat := 0
	perPage := map[int]int{}
	for _, c := range chunks {
		if c.Metadata == nil {
			c.Metadata = map[string]interface{}{}
		}
		if page, ok := c.Metadata[schema.MetadataKeyPage].(int); ok {
			c.Metadata[schema.MetadataKeyChunkID] = fmt.Sprintf("%s_page_%d_chunk_%d", documentID, page, perPage[page])
			perPage[page]++
			continue
		}
		c.Metadata[schema.MetadataKeyChunkID] = fmt.Sprintf("%s_chunk_%d", documentID, flat)
		flat++
	}
}
