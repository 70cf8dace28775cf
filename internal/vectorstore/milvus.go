package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"Laira/internal/schema"
	"Laira/pkg/logger"
)

const (
	// storeBatchSize bounds one upsert call.
	storeBatchSize = 100
	// maxTextLength is the VarChar capacity of the text field.
	maxTextLength = 65535
	// maxIDLength is the VarChar capacity of the id field.
	maxIDLength = 512
	// indexNlist is the IVF_FLAT cluster count.
	indexNlist = 128
	// searchNprobe is the IVF_FLAT probe count per search.
	searchNprobe = 10
	// storeMaxRetries bounds transient-failure retries per batch.
	storeMaxRetries = 3
)

// MilvusStore persists (id, vector, text, metadata) tuples per named
// collection in Milvus and answers nearest-neighbor queries. Collection
// creation, switching and writes are serialized by a lock because
// schema-affecting operations are not safe to interleave.
type MilvusStore struct {
	client    client.Client
	vectorDim int

	mutex  sync.Mutex
	active string          // default collection for callers that pass ""
	known  map[string]bool // collections verified or created by this store

	log *logger.Logger
}

// NewMilvusStore wraps a connected Milvus client. vectorDim is the
// dimensionality of every collection this store creates; mixing
// embedding models within one collection corrupts similarity search, so
// callers keep one collection per model version.
func NewMilvusStore(cli client.Client, vectorDim int) *MilvusStore {
	return &MilvusStore{
		client:    cli,
		vectorDim: vectorDim,
		known:     map[string]bool{},
		log:       logger.New("vectorstore"),
	}
}

// Connect dials Milvus at address and returns a store over the
// connection.
func Connect(ctx context.Context, address string, vectorDim int) (*MilvusStore, error) {
	cli, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("connecting to milvus at %s: %w", address, err)
	}
	return NewMilvusStore(cli, vectorDim), nil
}

// Close releases the underlying connection.
func (s *MilvusStore) Close() error {
	return s.client.Close()
}

// CreateCollection creates the named collection if it does not exist and
// remembers it. Creation is lazy and idempotent.
func (s *MilvusStore) CreateCollection(ctx context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.ensureCollectionLocked(ctx, name)
}

// UseCollection switches the default collection. Unlike CreateCollection
// it fails with ErrCollectionNotFound when the target does not exist.
func (s *MilvusStore) UseCollection(ctx context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	exists, err := s.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %q: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	s.known[name] = true
	s.active = name
	return nil
}

// ListCollections returns the names of all collections.
func (s *MilvusStore) ListCollections(ctx context.Context) ([]string, error) {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name)
	}
	return names, nil
}

// DropCollection removes a collection and all its records.
func (s *MilvusStore) DropCollection(ctx context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.client.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}
	delete(s.known, name)
	if s.active == name {
		s.active = ""
	}
	return nil
}

// Store upserts chunks into the collection in batches. Chunks without an
// embedding are skipped. Upsert keyed by chunk_id makes re-processing
// idempotent: the same document overwrites its own records. Transient
// batch failures are retried; Store succeeds when at least one record
// across all batches was stored, returning the stored count.
func (s *MilvusStore) Store(ctx context.Context, collection string, chunks []*schema.Chunk) (int, error) {
	collection = s.resolve(collection)

	ids, vectors, texts, metadatas, err := prepareRecords(chunks)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(ids) == 0 {
		s.log.WithField("collection", collection).Warn("no records with embeddings to store")
		return 0, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.ensureCollectionLocked(ctx, collection); err != nil {
		return 0, err
	}

	stored := 0
	var lastErr error
	for start := 0; start < len(ids); start += storeBatchSize {
		end := start + storeBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		if err := s.upsertBatch(ctx, collection,
			ids[start:end], vectors[start:end], texts[start:end], metadatas[start:end]); err != nil {
			s.log.WithField("collection", collection).
				WithField("batch_start", start).WithError(err).Error("batch upsert failed")
			lastErr = err
			continue
		}
		stored += end - start
	}

	if stored == 0 {
		return 0, fmt.Errorf("%w: no batch succeeded: %v", ErrStorage, lastErr)
	}
	s.log.WithField("collection", collection).WithField("stored", stored).
		WithField("total", len(ids)).Info("stored records")
	return stored, nil
}

func (s *MilvusStore) upsertBatch(ctx context.Context, collection string, ids []string, vectors [][]float32, texts []string, metadatas [][]byte) error {
	operation := func() error {
		idCol := entity.NewColumnVarChar(FieldID, ids)
		vecCol := entity.NewColumnFloatVector(FieldEmbedding, s.vectorDim, vectors)
		textCol := entity.NewColumnVarChar(FieldText, texts)
		metaCol := entity.NewColumnJSONBytes(FieldMetadata, metadatas)

		_, err := s.client.Upsert(ctx, collection, "", idCol, vecCol, textCol, metaCol)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	return backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(b, storeMaxRetries), ctx))
}

// Query searches the collection for the topK nearest records, optionally
// restricted by a metadata predicate. Results come back nearest first.
func (s *MilvusStore) Query(ctx context.Context, collection string, vector []float32, topK int, filters map[string]interface{}) ([]Result, error) {
	collection = s.resolve(collection)

	if err := s.client.LoadCollection(ctx, collection, false); err != nil {
		return nil, fmt.Errorf("loading collection %q: %w", collection, err)
	}

	searchParams, _ := entity.NewIndexIvfFlatSearchParam(searchNprobe)
	expr := buildFilterExpr(filters)

	searchResults, err := s.client.Search(
		ctx, collection, []string{}, expr,
		[]string{FieldID, FieldText, FieldMetadata},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding, entity.L2, topK, searchParams,
	)
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", collection, err)
	}

	var results []Result
	for _, res := range searchResults {
		ids := varcharColumn(res.Fields, FieldID)
		texts := varcharColumn(res.Fields, FieldText)
		metadatas := jsonColumn(res.Fields, FieldMetadata)

		for i := 0; i < res.ResultCount; i++ {
			r := Result{Distance: res.Scores[i]}
			if i < len(ids) {
				r.ID = ids[i]
			}
			if i < len(texts) {
				r.Text = texts[i]
			}
			if i < len(metadatas) {
				r.Metadata = metadatas[i]
			}
			results = append(results, r)
		}
	}
	return results, nil
}

// Get fetches one record by id. A missing record is not an error; the
// boolean reports presence.
func (s *MilvusStore) Get(ctx context.Context, collection, id string) (*Result, bool, error) {
	collection = s.resolve(collection)

	if err := s.client.LoadCollection(ctx, collection, false); err != nil {
		return nil, false, fmt.Errorf("loading collection %q: %w", collection, err)
	}

	rs, err := s.client.Query(ctx, collection, []string{}, idExpr(id),
		[]string{FieldID, FieldText, FieldMetadata})
	if err != nil {
		return nil, false, fmt.Errorf("querying record %q: %w", id, err)
	}

	ids := varcharColumn(rs, FieldID)
	if len(ids) == 0 {
		return nil, false, nil
	}
	texts := varcharColumn(rs, FieldText)
	metadatas := jsonColumn(rs, FieldMetadata)

	r := &Result{ID: ids[0]}
	if len(texts) > 0 {
		r.Text = texts[0]
	}
	if len(metadatas) > 0 {
		r.Metadata = metadatas[0]
	}
	return r, true, nil
}

// Delete removes one record by id.
func (s *MilvusStore) Delete(ctx context.Context, collection, id string) error {
	collection = s.resolve(collection)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.client.Delete(ctx, collection, "", idExpr(id)); err != nil {
		return fmt.Errorf("deleting record %q: %w", id, err)
	}
	return nil
}

// DeleteByFilter removes every record matching the metadata predicate.
func (s *MilvusStore) DeleteByFilter(ctx context.Context, collection string, filters map[string]interface{}) error {
	collection = s.resolve(collection)

	expr := buildFilterExpr(filters)
	if expr == "" {
		return fmt.Errorf("refusing to delete with an empty filter")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.client.Delete(ctx, collection, "", expr); err != nil {
		return fmt.Errorf("deleting by filter: %w", err)
	}
	return nil
}

// Count returns the number of records matching the optional metadata
// predicate.
func (s *MilvusStore) Count(ctx context.Context, collection string, filters map[string]interface{}) (int, error) {
	collection = s.resolve(collection)

	if err := s.client.LoadCollection(ctx, collection, false); err != nil {
		return 0, fmt.Errorf("loading collection %q: %w", collection, err)
	}

	rs, err := s.client.Query(ctx, collection, []string{}, buildFilterExpr(filters),
		[]string{FieldID})
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return len(varcharColumn(rs, FieldID)), nil
}

// resolve substitutes the active collection for an empty name.
func (s *MilvusStore) resolve(collection string) string {
	if collection != "" {
		return collection
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.active
}

// ensureCollectionLocked creates the collection and its index on first
// use. The caller holds the lock.
func (s *MilvusStore) ensureCollectionLocked(ctx context.Context, name string) error {
	if s.known[name] {
		return nil
	}

	exists, err := s.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %q: %w", name, err)
	}
	if !exists {
		collSchema := entity.NewSchema().
			WithName(name).
			WithDescription("document chunks with embeddings").
			WithField(entity.NewField().WithName(FieldID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxIDLength).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.vectorDim))).
			WithField(entity.NewField().WithName(FieldText).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextLength)).
			WithField(entity.NewField().WithName(FieldMetadata).
				WithDataType(entity.FieldTypeJSON))

		if err := s.client.CreateCollection(ctx, collSchema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("creating collection %q: %w", name, err)
		}

		idx, err := entity.NewIndexIvfFlat(entity.L2, indexNlist)
		if err != nil {
			return fmt.Errorf("building index: %w", err)
		}
		if err := s.client.CreateIndex(ctx, name, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("creating index on %q: %w", name, err)
		}
		s.log.WithField("collection", name).Info("created collection")
	}

	s.known[name] = true
	return nil
}

// varcharColumn extracts the string data of a named column.
func varcharColumn(fields []entity.Column, name string) []string {
	for _, field := range fields {
		if field.Name() != name {
			continue
		}
		if col, ok := field.(*entity.ColumnVarChar); ok {
			return col.Data()
		}
	}
	return nil
}

// jsonColumn extracts and decodes the JSON data of a named column.
func jsonColumn(fields []entity.Column, name string) []map[string]interface{} {
	for _, field := range fields {
		if field.Name() != name {
			continue
		}
		col, ok := field.(*entity.ColumnJSONBytes)
		if !ok {
			return nil
		}
		out := make([]map[string]interface{}, 0, len(col.Data()))
		for _, raw := range col.Data() {
			var m map[string]interface{}
			if err := json.Unmarshal(raw, &m); err != nil {
				m = map[string]interface{}{}
			}
			out = append(out, m)
		}
		return out
	}
	return nil
}

// isTransient reports whether a storage error is worth retrying.
func isTransient(err error) bool {
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded:
			return true
		}
	}
	return false
}
