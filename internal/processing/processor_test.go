package processing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"Laira/internal/chunk"
	"Laira/internal/extract"
	"Laira/internal/schema"
)

type fakeExtractor struct {
	contents map[string]*extract.Content
	failures map[string]error
	delay    time.Duration
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (*extract.Content, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.failures[path]; ok {
		return nil, err
	}
	if c, ok := f.contents[path]; ok {
		return c, nil
	}
	return extract.TextContent(""), nil
}

func (f *fakeExtractor) GetDocumentMetadata(path string) map[string]interface{} {
	return map[string]interface{}{schema.MetadataKeyFilePath: path}
}

type fakeEmbedder struct {
	mutex    sync.Mutex
	calls    int
	seen     []string
	failText string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mutex.Lock()
	f.calls++
	if len(texts) > 0 {
		f.seen = append(f.seen, texts[0])
	}
	f.mutex.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failText != "" && strings.Contains(text, f.failText) {
			continue
		}
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

type fakeStore struct {
	mutex       sync.Mutex
	collections map[string]bool
	stored      []*schema.Chunk
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: map[string]bool{}}
}

func (f *fakeStore) CreateCollection(_ context.Context, name string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.collections[name] = true
	return nil
}

func (f *fakeStore) Store(_ context.Context, _ string, chunks []*schema.Chunk) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	n := 0
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		f.stored = append(f.stored, c)
		n++
	}
	return n, nil
}

func newTestProcessor(ex *fakeExtractor, store *fakeStore) *Processor {
	return NewProcessor(
		ex,
		chunk.NewChunker(chunk.Config{ChunkSize: 50, ChunkOverlap: 10}),
		&fakeEmbedder{},
		store,
		Config{Collection: "test", Strategy: chunk.StrategySize},
	)
}

func TestProcessDocumentSuccess(t *testing.T) {
	ex := &fakeExtractor{contents: map[string]*extract.Content{
		"/docs/a.txt": extract.TextContent(strings.Repeat("alpha beta gamma ", 20)),
	}}
	store := newFakeStore()
	p := newTestProcessor(ex, store)

	var stages []Stage
	result := p.ProcessDocument(context.Background(), "/docs/a.txt", "", nil, func(pr Progress) {
		stages = append(stages, pr.Stage)
	})

	if !result.Success {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}
	if result.DocumentID == "" {
		t.Error("document id not assigned")
	}
	want := []Stage{StageExtracting, StageChunking, StageEmbedding, StageStoring, StageCompleted}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages = %v, want %v", stages, want)
		}
	}

	stats := result.Progress.Stats
	if stats["chunk_count"].(int) == 0 {
		t.Error("chunk_count not recorded")
	}
	if stats["stored_count"].(int) != stats["chunk_count"].(int) {
		t.Errorf("stored %v of %v chunks", stats["stored_count"], stats["chunk_count"])
	}
	if len(store.stored) == 0 {
		t.Fatal("nothing reached the store")
	}
	for _, c := range store.stored {
		if c.Metadata[schema.MetadataKeyDocumentID] != result.DocumentID {
			t.Errorf("chunk missing document_id: %v", c.Metadata)
		}
		if id, _ := c.Metadata[schema.MetadataKeyChunkID].(string); !strings.HasPrefix(id, result.DocumentID+"_chunk_") {
			t.Errorf("unexpected chunk_id %q", id)
		}
	}
}

func TestProcessDocumentExtractFailure(t *testing.T) {
	ex := &fakeExtractor{failures: map[string]error{
		"/docs/broken.pdf": errors.New("unreadable"),
	}}
	p := newTestProcessor(ex, newFakeStore())

	result := p.ProcessDocument(context.Background(), "/docs/broken.pdf", "", nil, nil)
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Progress.Stage != StageFailed {
		t.Errorf("stage = %v, want %v", result.Progress.Stage, StageFailed)
	}
	if result.Err == nil || !strings.Contains(result.Err.Error(), "unreadable") {
		t.Errorf("err = %v, want extraction cause", result.Err)
	}
}

func TestProcessDocumentEmptyContent(t *testing.T) {
	ex := &fakeExtractor{contents: map[string]*extract.Content{
		"/docs/empty.txt": extract.TextContent("   "),
	}}
	store := newFakeStore()
	p := newTestProcessor(ex, store)

	result := p.ProcessDocument(context.Background(), "/docs/empty.txt", "", nil, nil)
	if !result.Success {
		t.Fatalf("empty document should complete, got %v", result.Err)
	}
	if result.Progress.Stage != StageCompleted {
		t.Errorf("stage = %v, want %v", result.Progress.Stage, StageCompleted)
	}
	if len(store.stored) != 0 {
		t.Errorf("store received %d chunks, want 0", len(store.stored))
	}
}

func TestProcessDocumentsIsolatesFailures(t *testing.T) {
	text := strings.Repeat("content ", 30)
	ex := &fakeExtractor{
		contents: map[string]*extract.Content{
			"/d/1.txt": extract.TextContent(text),
			"/d/2.txt": extract.TextContent(text),
			"/d/4.txt": extract.TextContent(text),
			"/d/5.txt": extract.TextContent(text),
		},
		failures: map[string]error{
			"/d/3.txt": errors.New("corrupt file"),
		},
	}
	p := newTestProcessor(ex, newFakeStore())

	paths := []string{"/d/1.txt", "/d/2.txt", "/d/3.txt", "/d/4.txt", "/d/5.txt"}
	batch := p.ProcessDocuments(context.Background(), paths, "", nil, true, nil)

	if batch.Total != 5 || batch.Succeeded != 4 || batch.Failed != 1 {
		t.Fatalf("batch = %d/%d/%d, want 5 total, 4 succeeded, 1 failed",
			batch.Total, batch.Succeeded, batch.Failed)
	}
	for i, r := range batch.Results {
		if r.Path != paths[i] {
			t.Errorf("result %d attributed to %q, want %q", i, r.Path, paths[i])
		}
	}
	if batch.Results[2].Success {
		t.Error("corrupt document reported as success")
	}
}

func TestProcessDocumentsStop(t *testing.T) {
	text := strings.Repeat("content ", 30)
	ex := &fakeExtractor{contents: map[string]*extract.Content{
		"/d/1.txt": extract.TextContent(text),
		"/d/2.txt": extract.TextContent(text),
	}}
	p := newTestProcessor(ex, newFakeStore())
	p.Stop()

	batch := p.ProcessDocuments(context.Background(), []string{"/d/1.txt", "/d/2.txt"}, "", nil, true, nil)
	if batch.Succeeded != 0 || batch.Failed != 2 {
		t.Fatalf("batch = %d succeeded, %d failed, want 0/2", batch.Succeeded, batch.Failed)
	}
	for _, r := range batch.Results {
		if !errors.Is(r.Err, ErrStopped) {
			t.Errorf("err = %v, want ErrStopped", r.Err)
		}
	}
}

func TestProcessDocumentMergesSmallChunks(t *testing.T) {
	ex := &fakeExtractor{contents: map[string]*extract.Content{
		"/d/short.txt": extract.TextContent("tiny one\n\ntiny two\n\ntiny three"),
	}}
	store := newFakeStore()
	p := NewProcessor(
		ex,
		chunk.NewChunker(chunk.Config{ChunkSize: 12, ChunkOverlap: 0}),
		&fakeEmbedder{},
		store,
		Config{Collection: "test", Strategy: chunk.StrategySize, MinChunkSize: 20, MaxChunkSize: 100},
	)

	result := p.ProcessDocument(context.Background(), "/d/short.txt", "", nil, nil)
	if !result.Success {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}
	for _, c := range store.stored {
		if len(c.Text) < 20 && c.Metadata[schema.MetadataKeyMerged] != true {
			t.Errorf("undersized unmerged chunk stored: %q", c.Text)
		}
	}
}

func TestProcessDocumentCallerMetadata(t *testing.T) {
	ex := &fakeExtractor{contents: map[string]*extract.Content{
		"/d/a.txt": extract.TextContent(strings.Repeat("alpha beta ", 20)),
	}}
	store := newFakeStore()
	p := newTestProcessor(ex, store)

	meta := map[string]interface{}{
		"project":                    "atlas",
		schema.MetadataKeyDocumentID: "doc-fixed",
	}
	result := p.ProcessDocument(context.Background(), "/d/a.txt", "", meta, nil)
	if !result.Success {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}
	if result.DocumentID != "doc-fixed" {
		t.Errorf("document id = %q, want caller-supplied doc-fixed", result.DocumentID)
	}
	if len(store.stored) == 0 {
		t.Fatal("nothing reached the store")
	}
	firstRun := make([]string, 0, len(store.stored))
	for _, c := range store.stored {
		if c.Metadata["project"] != "atlas" {
			t.Errorf("chunk missing caller metadata: %v", c.Metadata)
		}
		if c.Metadata[schema.MetadataKeyFilePath] != "/d/a.txt" {
			t.Errorf("extracted metadata lost: %v", c.Metadata)
		}
		id, _ := c.Metadata[schema.MetadataKeyChunkID].(string)
		if !strings.HasPrefix(id, "doc-fixed_chunk_") {
			t.Errorf("unexpected chunk_id %q", id)
		}
		firstRun = append(firstRun, id)
	}

	// A second run with the same document_id must reproduce the same
	// chunk ids so stored vectors are overwritten, not duplicated.
	store.stored = nil
	result = p.ProcessDocument(context.Background(), "/d/a.txt", "", meta, nil)
	if !result.Success {
		t.Fatalf("second run failed: %v", result.Err)
	}
	if len(store.stored) != len(firstRun) {
		t.Fatalf("second run stored %d chunks, want %d", len(store.stored), len(firstRun))
	}
	for i, c := range store.stored {
		if id := c.Metadata[schema.MetadataKeyChunkID]; id != firstRun[i] {
			t.Errorf("chunk %d id = %v, want %q", i, id, firstRun[i])
		}
	}
}

func TestProcessDocumentRecordsTiming(t *testing.T) {
	ex := &fakeExtractor{
		contents: map[string]*extract.Content{
			"/d/a.txt": extract.TextContent(strings.Repeat("alpha beta ", 20)),
		},
		delay: 2 * time.Millisecond,
	}
	p := newTestProcessor(ex, newFakeStore())

	result := p.ProcessDocument(context.Background(), "/d/a.txt", "", nil, nil)
	if !result.Success {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}
	if result.Progress.StartTime.IsZero() {
		t.Error("start time not recorded")
	}
	if result.Progress.ProcessingTime < 0.002 {
		t.Errorf("processing time = %v, want at least the extraction delay", result.Progress.ProcessingTime)
	}

	ex.failures = map[string]error{"/d/bad.txt": errors.New("corrupt")}
	failed := p.ProcessDocument(context.Background(), "/d/bad.txt", "", nil, nil)
	if failed.Success {
		t.Fatal("expected failure")
	}
	if failed.Progress.ProcessingTime <= 0 {
		t.Error("failed document has no processing time")
	}
}

func TestProcessDocumentsSequentialOrder(t *testing.T) {
	ex := &fakeExtractor{contents: map[string]*extract.Content{
		"/d/1.txt": extract.TextContent(strings.Repeat("first ", 10)),
		"/d/2.txt": extract.TextContent(strings.Repeat("second ", 10)),
		"/d/3.txt": extract.TextContent(strings.Repeat("third ", 10)),
	}}
	embedder := &fakeEmbedder{}
	p := NewProcessor(
		ex,
		chunk.NewChunker(chunk.Config{ChunkSize: 200, ChunkOverlap: 0}),
		embedder,
		newFakeStore(),
		Config{Collection: "test", Strategy: chunk.StrategySize, MaxConcurrency: 8},
	)

	batch := p.ProcessDocuments(context.Background(),
		[]string{"/d/1.txt", "/d/2.txt", "/d/3.txt"}, "", nil, false, nil)
	if batch.Succeeded != 3 {
		t.Fatalf("batch succeeded = %d, want 3", batch.Succeeded)
	}
	if len(embedder.seen) != 3 {
		t.Fatalf("embedder saw %d documents, want 3", len(embedder.seen))
	}
	for i, prefix := range []string{"first", "second", "third"} {
		if !strings.HasPrefix(embedder.seen[i], prefix) {
			t.Errorf("document %d embedded out of order: %q", i, embedder.seen[i])
		}
	}
}

func TestProcessDocumentsEmptyBatch(t *testing.T) {
	p := newTestProcessor(&fakeExtractor{}, newFakeStore())
	batch := p.ProcessDocuments(context.Background(), nil, "", nil, true, nil)
	if batch.Total != 0 || batch.Succeeded != 0 || batch.Failed != 0 {
		t.Errorf("empty batch = %+v", batch)
	}
}

func TestAssignChunkIDsPageAware(t *testing.T) {
	chunks := []*schema.Chunk{
		{Metadata: map[string]interface{}{schema.MetadataKeyPage: 1}},
		{Metadata: map[string]interface{}{schema.MetadataKeyPage: 1}},
		{Metadata: map[string]interface{}{schema.MetadataKeyPage: 2}},
		{Metadata: map[string]interface{}{}},
	}
	assignChunkIDs("doc", chunks)

	want := []string{"doc_page_1_chunk_0", "doc_page_1_chunk_1", "doc_page_2_chunk_0", "doc_chunk_0"}
	for i, w := range want {
		if got := chunks[i].Metadata[schema.MetadataKeyChunkID]; got != w {
			t.Errorf("chunk %d id = %v, want %q", i, got, w)
		}
	}
}
