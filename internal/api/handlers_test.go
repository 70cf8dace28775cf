package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"Laira/internal/chat"
	"Laira/internal/llm"
	"Laira/internal/processing"
	"Laira/internal/schema"
	"Laira/internal/vectorstore"
)

type stubProcessor struct {
	mutex      sync.Mutex
	failPaths  map[string]bool
	metadata   map[string]interface{}
	concurrent []bool
}

func (s *stubProcessor) ProcessDocument(_ context.Context, path, _ string, _ map[string]interface{}, onProgress func(processing.Progress)) *processing.Result {
	if s.failPaths[path] {
		if onProgress != nil {
			onProgress(processing.Progress{DocumentPath: path, Stage: processing.StageFailed, Error: "corrupt file"})
		}
		return &processing.Result{Path: path, Err: errors.New("corrupt file")}
	}
	if onProgress != nil {
		onProgress(processing.Progress{DocumentPath: path, Stage: processing.StageCompleted, Percent: 100})
	}
	return &processing.Result{Path: path, Success: true}
}

func (s *stubProcessor) ProcessDocuments(ctx context.Context, paths []string, collection string, metadata map[string]interface{}, concurrent bool, onProgress func(processing.Progress)) *processing.BatchResult {
	s.mutex.Lock()
	s.metadata = metadata
	s.concurrent = append(s.concurrent, concurrent)
	s.mutex.Unlock()

	batch := &processing.BatchResult{Total: len(paths)}
	for _, p := range paths {
		r := s.ProcessDocument(ctx, p, collection, metadata, onProgress)
		batch.Results = append(batch.Results, r)
		if r.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}
	return batch
}

type stubStore struct {
	dropped string
}

func (s *stubStore) ListCollections(_ context.Context) ([]string, error) {
	return []string{"research"}, nil
}

func (s *stubStore) DropCollection(_ context.Context, name string) error {
	s.dropped = name
	return nil
}

func (s *stubStore) UseCollection(_ context.Context, name string) error {
	if name != "research" {
		return vectorstore.ErrCollectionNotFound
	}
	return nil
}

func (s *stubStore) Count(_ context.Context, _ string, _ map[string]interface{}) (int, error) {
	return 42, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{1}, nil
}

type stubRetriever struct{}

func (stubRetriever) UseCollection(_ context.Context, name string) error {
	if name != "research" {
		return vectorstore.ErrCollectionNotFound
	}
	return nil
}

func (stubRetriever) Query(_ context.Context, _ string, _ []float32, _ int, _ map[string]interface{}) ([]vectorstore.Result, error) {
	return []vectorstore.Result{{
		Text:     "stored fact",
		Metadata: map[string]interface{}{schema.MetadataKeyFilename: "doc.pdf"},
	}}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ string, _ llm.Params) (string, error) {
	return "an answer", nil
}

func (stubGenerator) AnalyzeFigure(_ context.Context, _ []byte) (string, error) { return "", nil }

func newTestRouter(t *testing.T) (*gin.Engine, *stubStore, *stubProcessor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	history, err := chat.NewFileHistoryStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	engine := chat.NewEngine(stubEmbedder{}, stubRetriever{}, stubGenerator{},
		chat.NewMemorySessionStore(history), history, chat.Config{Collection: "research"})

	store := &stubStore{}
	processor := &stubProcessor{}
	router := gin.New()
	RegisterRoutes(router, NewAPI(processor, engine, store), nil)
	return router, store, processor
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid response JSON: %v: %s", err, w.Body.String())
		}
	}
	return w, decoded
}

func TestProcessDocumentsAcceptedAndTracked(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/v1/projects/research/documents",
		`{"paths":["/tmp/a.txt","/tmp/b.txt"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if body["accepted"].(float64) != 2 {
		t.Errorf("accepted = %v", body["accepted"])
	}

	// The batch runs in the background; poll progress until it settles.
	deadline := time.Now().Add(2 * time.Second)
	for {
		w, body = doJSON(t, router, http.MethodGet, "/api/v1/projects/research/progress", "")
		if w.Code != http.StatusOK {
			t.Fatalf("progress status = %d", w.Code)
		}
		if body["running"] == false {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("batch never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if body["success_count"].(float64) != 2 || body["error_count"].(float64) != 0 {
		t.Errorf("progress = %v", body)
	}
	if body["current_step"].(float64) != 2 || body["total_steps"].(float64) != 2 {
		t.Errorf("steps = %v/%v, want 2/2", body["current_step"], body["total_steps"])
	}
	if body["start_time"] == nil {
		t.Error("no start_time on batch progress")
	}
	docs := body["documents"].(map[string]interface{})
	if len(docs) != 2 {
		t.Errorf("documents = %v, want snapshots for both paths", docs)
	}
}

func TestProcessDocumentsCountsErrors(t *testing.T) {
	router, _, processor := newTestRouter(t)
	processor.failPaths = map[string]bool{"/tmp/bad.txt": true}

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/projects/research/documents",
		`{"paths":["/tmp/good.txt","/tmp/bad.txt"],"metadata":{"project":"atlas"},"concurrent":false}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	var body map[string]interface{}
	for {
		_, body = doJSON(t, router, http.MethodGet, "/api/v1/projects/research/progress", "")
		if body["running"] == false {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("batch never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if body["success_count"].(float64) != 1 || body["error_count"].(float64) != 1 {
		t.Errorf("counts = %v/%v, want 1/1", body["success_count"], body["error_count"])
	}
	batchErrors := body["errors"].([]interface{})
	if len(batchErrors) != 1 {
		t.Fatalf("errors = %v, want one entry", batchErrors)
	}
	entry := batchErrors[0].(map[string]interface{})
	if entry["path"] != "/tmp/bad.txt" || entry["error"] != "corrupt file" {
		t.Errorf("error entry = %v", entry)
	}

	processor.mutex.Lock()
	defer processor.mutex.Unlock()
	if processor.metadata["project"] != "atlas" {
		t.Errorf("metadata not forwarded: %v", processor.metadata)
	}
	if len(processor.concurrent) != 1 || processor.concurrent[0] != false {
		t.Errorf("concurrent flag not forwarded: %v", processor.concurrent)
	}
}

func TestProcessDocumentsRejectsEmptyPaths(t *testing.T) {
	router, _, _ := newTestRouter(t)
	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/projects/research/documents", `{"paths":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestProgressUnknownProject(t *testing.T) {
	router, _, _ := newTestRouter(t)
	w, _ := doJSON(t, router, http.MethodGet, "/api/v1/projects/nothing/progress", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/api/v1/projects/research/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["chunk_count"].(float64) != 42 {
		t.Errorf("chunk_count = %v", body["chunk_count"])
	}

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/projects/missing/stats", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing project status = %d, want 404", w.Code)
	}
}

func TestChatHandlerGeneratesSessionID(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/v1/projects/research/chat",
		`{"question":"what is stored?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if body["session_id"].(string) == "" {
		t.Error("no session_id assigned")
	}
	if body["answer"].(string) != "an answer" {
		t.Errorf("answer = %v", body["answer"])
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
}

func TestChatHandlerMissingProject(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/v1/projects/unknown/chat",
		`{"question":"anything?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false for missing project", body["success"])
	}
}

func TestChatHandlerRejectsEmptyQuestion(t *testing.T) {
	router, _, _ := newTestRouter(t)
	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/projects/research/chat", `{"question":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChatHistoryAndReset(t *testing.T) {
	router, _, _ := newTestRouter(t)

	_, body := doJSON(t, router, http.MethodPost, "/api/v1/projects/research/chat",
		`{"session_id":"s1","question":"first?"}`)
	if body["success"] != true {
		t.Fatalf("chat failed: %v", body)
	}

	w, body := doJSON(t, router, http.MethodGet, "/api/v1/projects/research/chat/history?session_id=s1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	if msgs := body["messages"].([]interface{}); len(msgs) != 2 {
		t.Errorf("history has %d messages, want 2", len(msgs))
	}

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/projects/research/chat/reset", `{"session_id":"s1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}

	_, body = doJSON(t, router, http.MethodGet, "/api/v1/projects/research/chat/history?session_id=s1", "")
	if msgs := body["messages"]; msgs != nil && len(msgs.([]interface{})) != 0 {
		t.Errorf("history survived reset: %v", msgs)
	}
}

func TestCollectionHandlers(t *testing.T) {
	router, store, _ := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/api/v1/collections", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if names := body["collections"].([]interface{}); len(names) != 1 || names[0] != "research" {
		t.Errorf("collections = %v", names)
	}

	w, _ = doJSON(t, router, http.MethodDelete, "/api/v1/collections/old", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if store.dropped != "old" {
		t.Errorf("dropped = %q, want old", store.dropped)
	}
}
