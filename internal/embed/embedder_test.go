package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeProvider counts calls and fails according to its script.
type fakeProvider struct {
	embedCalls     int
	batchCalls     int
	queryCalls     int
	failText       string // texts equal to this fail permanently
	transientLeft  int    // number of leading calls that fail transiently
	failWholeBatch bool
}

func (f *fakeProvider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	if f.transientLeft > 0 {
		f.transientLeft--
		return nil, status.Error(codes.ResourceExhausted, "quota")
	}
	if text == f.failText {
		return nil, errors.New("invalid input")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.failWholeBatch {
		return nil, errors.New("batch rejected")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == f.failText {
			return nil, errors.New("invalid input in batch")
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.queryCalls++
	return []float32{float32(len(text)), 2}, nil
}

func testConfig() Config {
	return Config{
		RequestsPerMinute: 600000, // effectively unthrottled for tests
		BatchSize:         2,
		MaxRetries:        2,
		RetryBaseDelay:    time.Millisecond,
		CacheSize:         100,
	}
}

func TestEmbedCachesByContent(t *testing.T) {
	provider := &fakeProvider{}
	e, err := NewEmbedder(provider, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	first, err := e.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.embedCalls != 1 {
		t.Errorf("provider called %d times, want 1", provider.embedCalls)
	}
	if len(first) != len(second) {
		t.Error("cached vector differs from original")
	}
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	provider := &fakeProvider{transientLeft: 2}
	e, err := NewEmbedder(provider, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	vec, err := e.Embed(context.Background(), "retry me")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(vec) == 0 {
		t.Error("expected a vector")
	}
	if provider.embedCalls != 3 {
		t.Errorf("provider called %d times, want 3", provider.embedCalls)
	}
}

func TestEmbedDoesNotRetryPermanentErrors(t *testing.T) {
	provider := &fakeProvider{failText: "bad"}
	e, err := NewEmbedder(provider, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Embed(context.Background(), "bad")
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if provider.embedCalls != 1 {
		t.Errorf("provider called %d times, want 1 (no retry)", provider.embedCalls)
	}
}

func TestEmbedBatchIsolatesItemFailures(t *testing.T) {
	provider := &fakeProvider{failText: "poison"}
	e, err := NewEmbedder(provider, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	texts := []string{"alpha", "poison", "gamma", "delta"}
	results, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(results))
	}
	if results[0] == nil || results[2] == nil || results[3] == nil {
		t.Error("healthy items should have vectors")
	}
	if results[1] != nil {
		t.Error("failed item should leave a nil slot")
	}
}

func TestEmbedBatchFallsBackWhenBatchCallFails(t *testing.T) {
	provider := &fakeProvider{failWholeBatch: true}
	e, err := NewEmbedder(provider, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	results, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, vec := range results {
		if vec == nil {
			t.Errorf("slot %d is nil, per-item fallback should have filled it", i)
		}
	}
}

func TestEmbedBatchServesFromCache(t *testing.T) {
	provider := &fakeProvider{}
	e, err := NewEmbedder(provider, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := e.Embed(ctx, "shared"); err != nil {
		t.Fatal(err)
	}
	callsBefore := provider.embedCalls + provider.batchCalls

	results, err := e.EmbedBatch(ctx, []string{"shared", "shared"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0] == nil || results[1] == nil {
		t.Error("cached slots should be filled")
	}
	if got := provider.embedCalls + provider.batchCalls; got != callsBefore {
		t.Errorf("provider was called %d more times for cached text", got-callsBefore)
	}
}

func TestEmbedBatchHonorsCancellation(t *testing.T) {
	provider := &fakeProvider{}
	e, err := NewEmbedder(provider, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := e.EmbedBatch(ctx, []string{"one", "two"})
	if err == nil {
		t.Fatal("expected context error")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 slots regardless of cancellation, got %d", len(results))
	}
}

func TestEmbedQueryBypassesDocumentCache(t *testing.T) {
	provider := &fakeProvider{}
	e, err := NewEmbedder(provider, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := e.Embed(ctx, "same text"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.EmbedQuery(ctx, "same text"); err != nil {
		t.Fatal(err)
	}
	if provider.queryCalls != 1 {
		t.Errorf("query provider called %d times, want 1", provider.queryCalls)
	}
}
