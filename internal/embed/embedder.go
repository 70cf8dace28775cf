package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"Laira/internal/embedding"
	"Laira/pkg/logger"
	"Laira/pkg/ratelimiter"
	"Laira/pkg/util"
)

// ErrEmbedding is returned when an embedding cannot be produced after
// all retries.
var ErrEmbedding = errors.New("embedding failed")

// Config holds the Embedder's throttling, caching and retry settings.
type Config struct {
	// RequestsPerMinute bounds provider calls from this Embedder.
	RequestsPerMinute int
	// BatchSize is the number of texts per provider batch call.
	BatchSize int
	// MaxRetries is the retry ceiling per provider call.
	MaxRetries int
	// RetryBaseDelay is the initial backoff interval.
	RetryBaseDelay time.Duration
	// CacheSize is the embedding cache capacity in entries.
	CacheSize int
}

// Embedder converts text into fixed-length vectors through an embedding
// provider, adding a content-hash cache, a shared rate limiter and
// retry with exponential backoff for transient provider errors.
type Embedder struct {
	provider embedding.Embedding
	cache    *util.LRUCache[string, []float32]
	limiter  ratelimiter.BlockingLimiter
	config   Config
	log      *logger.Logger
}

// NewEmbedder creates an Embedder around a provider, filling zero-valued
// config fields with defaults.
func NewEmbedder(provider embedding.Embedding, config Config) (*Embedder, error) {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 100
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 2 * time.Second
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 1000
	}

	cache, err := util.NewLRU[string, []float32](config.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		provider: provider,
		cache:    cache,
		limiter:  ratelimiter.NewIntervalLimiter(config.RequestsPerMinute),
		config:   config,
		log:      logger.New("embedder"),
	}, nil
}

// cacheKey is a cryptographic hash of the exact text, so identical text
// across chunks and documents is embedded once per process lifetime.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the document embedding for text, consulting the cache
// first. Transient provider errors are retried with exponential backoff;
// permanent errors fail immediately as ErrEmbedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}

	var vec []float32
	err := e.callWithRetry(ctx, func() error {
		var callErr error
		vec, callErr = e.provider.EmbedDocument(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	e.cache.Put(key, vec)
	return vec, nil
}

// EmbedQuery returns the query embedding for text. Query vectors are
// task-typed differently from document vectors, so they bypass the
// document cache.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.callWithRetry(ctx, func() error {
		var callErr error
		vec, callErr = e.provider.EmbedQuery(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return vec, nil
}

// EmbedBatch embeds texts in provider batches of BatchSize. The result
// always has one slot per input; a slot is nil when that item failed
// permanently, and sibling items are unaffected. Context cancellation is
// honored between batches: the slots produced so far are returned with
// the context error.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		e.embedGroup(ctx, texts[start:end], results[start:end])
	}

	return results, nil
}

// embedGroup fills out with embeddings for one batch-sized group of
// texts. Cached texts are served locally; the rest go through one batch
// call, falling back to per-item calls when the batch fails so a single
// bad item cannot fail its siblings.
func (e *Embedder) embedGroup(ctx context.Context, texts []string, out [][]float32) {
	var missing []int
	for i, text := range texts {
		if vec, ok := e.cache.Get(cacheKey(text)); ok {
			out[i] = vec
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}

	var vectors [][]float32
	err := e.callWithRetry(ctx, func() error {
		var callErr error
		vectors, callErr = e.provider.EmbedDocuments(ctx, batch)
		return callErr
	})
	if err == nil && len(vectors) == len(missing) {
		for j, i := range missing {
			out[i] = vectors[j]
			e.cache.Put(cacheKey(texts[i]), vectors[j])
		}
		return
	}
	if err != nil {
		e.log.WithField("batch_size", len(batch)).WithError(err).
			Warn("batch embedding failed, falling back to per-item calls")
	}

	for _, i := range missing {
		vec, itemErr := e.Embed(ctx, texts[i])
		if itemErr != nil {
			e.log.WithField("index", i).WithError(itemErr).Warn("item embedding failed, leaving slot empty")
			continue
		}
		out[i] = vec
	}
}

// callWithRetry rate-limits and runs one provider call, retrying only
// transient errors with exponential backoff up to the configured attempt
// ceiling.
func (e *Embedder) callWithRetry(ctx context.Context, call func() error) error {
	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		if err := call(); err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.config.RetryBaseDelay
	return backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(e.config.MaxRetries)), ctx))
}

// isTransient reports whether a provider error is worth retrying:
// resource exhaustion and service unavailability are; everything else,
// including programming errors, is not.
func isTransient(err error) bool {
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded:
			return true
		}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 503:
			return true
		}
	}
	return false
}
