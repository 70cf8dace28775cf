package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"Laira/internal/chat"
	"Laira/internal/processing"
	"Laira/internal/vectorstore"
	"Laira/pkg/logger"
)

// DocumentProcessor runs files through the ingestion pipeline.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, path, collection string, metadata map[string]interface{}, onProgress func(processing.Progress)) *processing.Result
	ProcessDocuments(ctx context.Context, paths []string, collection string, metadata map[string]interface{}, concurrent bool, onProgress func(processing.Progress)) *processing.BatchResult
}

// CollectionAdmin exposes the vector store operations the HTTP surface
// needs beyond ingestion and retrieval.
type CollectionAdmin interface {
	ListCollections(ctx context.Context) ([]string, error)
	DropCollection(ctx context.Context, name string) error
	UseCollection(ctx context.Context, name string) error
	Count(ctx context.Context, collection string, filters map[string]interface{}) (int, error)
}

// batchError attributes one failed document inside a batch.
type batchError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// batchState is the observable state of one project's latest ingestion
// batch. CurrentStep and the counters advance as documents finish, so a
// polling client sees them move while the batch is still running.
type batchState struct {
	Running        bool                           `json:"running"`
	CurrentStep    int                            `json:"current_step"`
	TotalSteps     int                            `json:"total_steps"`
	SuccessCount   int                            `json:"success_count"`
	ErrorCount     int                            `json:"error_count"`
	Errors         []batchError                   `json:"errors,omitempty"`
	StartTime      time.Time                      `json:"start_time"`
	ElapsedSeconds float64                        `json:"elapsed_seconds"`
	Documents      map[string]processing.Progress `json:"documents"`
}

// API provides the HTTP handlers of the document service. Ingestion is
// asynchronous; clients poll the progress endpoint.
type API struct {
	processor DocumentProcessor
	engine    *chat.Engine
	store     CollectionAdmin

	mutex   sync.Mutex
	batches map[string]*batchState // project -> latest batch

	log *logger.Logger
}

// NewAPI creates the handler set.
func NewAPI(processor DocumentProcessor, engine *chat.Engine, store CollectionAdmin) *API {
	return &API{
		processor: processor,
		engine:    engine,
		store:     store,
		batches:   map[string]*batchState{},
		log:       logger.New("api"),
	}
}

// HealthHandler reports liveness.
func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ProcessDocumentsHandler starts ingesting a batch of files into the
// project's collection. The batch runs in the background; partial
// failure is a normal outcome visible in the progress endpoint.
func (a *API) ProcessDocumentsHandler(c *gin.Context) {
	project := c.Param("project")

	var payload struct {
		Paths      []string               `json:"paths"`
		Metadata   map[string]interface{} `json:"metadata"`
		Concurrent *bool                  `json:"concurrent"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if len(payload.Paths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paths must not be empty"})
		return
	}
	concurrent := true
	if payload.Concurrent != nil {
		concurrent = *payload.Concurrent
	}

	a.mutex.Lock()
	if state, ok := a.batches[project]; ok && state.Running {
		a.mutex.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a batch is already running for this project"})
		return
	}
	state := &batchState{
		Running:    true,
		TotalSteps: len(payload.Paths),
		StartTime:  time.Now(),
		Documents:  map[string]processing.Progress{},
	}
	a.batches[project] = state
	a.mutex.Unlock()

	// The request context dies with the response; the batch must not.
	go a.runBatch(context.Background(), project, payload.Paths, payload.Metadata, concurrent, state)

	c.JSON(http.StatusAccepted, gin.H{"project": project, "accepted": len(payload.Paths)})
}

func (a *API) runBatch(ctx context.Context, project string, paths []string, metadata map[string]interface{}, concurrent bool, state *batchState) {
	counted := map[string]bool{}

	// Each document emits exactly one terminal stage; that is the step
	// boundary the live counters advance on.
	batch := a.processor.ProcessDocuments(ctx, paths, project, metadata, concurrent, func(p processing.Progress) {
		a.mutex.Lock()
		state.Documents[p.DocumentPath] = p
		switch p.Stage {
		case processing.StageCompleted:
			counted[p.DocumentPath] = true
			state.CurrentStep++
			state.SuccessCount++
		case processing.StageFailed:
			counted[p.DocumentPath] = true
			state.CurrentStep++
			state.ErrorCount++
			state.Errors = append(state.Errors, batchError{Path: p.DocumentPath, Error: p.Error})
		}
		a.mutex.Unlock()
	})

	a.mutex.Lock()
	// Documents skipped by Stop or cancellation never reached a tracker;
	// account for them here so the counters add up to the batch totals.
	for _, r := range batch.Results {
		if counted[r.Path] {
			continue
		}
		state.CurrentStep++
		if r.Success {
			state.SuccessCount++
			continue
		}
		state.ErrorCount++
		if r.Err != nil {
			state.Errors = append(state.Errors, batchError{Path: r.Path, Error: r.Err.Error()})
		}
	}
	state.Running = false
	state.ElapsedSeconds = time.Since(state.StartTime).Seconds()
	a.mutex.Unlock()

	a.log.WithField("project", project).WithField("succeeded", batch.Succeeded).
		WithField("failed", batch.Failed).Info("ingestion batch finished")
}

// ProgressHandler reports the state of the project's latest batch.
func (a *API) ProgressHandler(c *gin.Context) {
	project := c.Param("project")

	a.mutex.Lock()
	state, ok := a.batches[project]
	var snapshot batchState
	if ok {
		snapshot = *state
		if state.Running {
			snapshot.ElapsedSeconds = time.Since(state.StartTime).Seconds()
		}
		snapshot.Errors = append([]batchError(nil), state.Errors...)
		snapshot.Documents = make(map[string]processing.Progress, len(state.Documents))
		for k, v := range state.Documents {
			snapshot.Documents[k] = v
		}
	}
	a.mutex.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no batch has run for this project"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// StatsHandler reports how many chunks the project's collection holds.
func (a *API) StatsHandler(c *gin.Context) {
	project := c.Param("project")
	ctx := c.Request.Context()

	if err := a.store.UseCollection(ctx, project); err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		a.log.WithField("project", project).WithError(err).Error("stats lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read project stats"})
		return
	}

	count, err := a.store.Count(ctx, project, nil)
	if err != nil {
		a.log.WithField("project", project).WithError(err).Error("counting chunks failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read project stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project, "chunk_count": count})
}

// ListCollectionsHandler lists the vector store collections.
func (a *API) ListCollectionsHandler(c *gin.Context) {
	names, err := a.store.ListCollections(c.Request.Context())
	if err != nil {
		a.log.WithError(err).Error("listing collections failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list collections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": names})
}

// DropCollectionHandler removes a collection and everything in it.
func (a *API) DropCollectionHandler(c *gin.Context) {
	name := c.Param("name")
	if err := a.store.DropCollection(c.Request.Context(), name); err != nil {
		a.log.WithField("collection", name).WithError(err).Error("dropping collection failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to drop collection"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dropped": name})
}

// ChatHandler answers one question against the project's documents. A
// missing session_id starts a new session whose id comes back in the
// response.
func (a *API) ChatHandler(c *gin.Context) {
	project := c.Param("project")

	var payload struct {
		SessionID string `json:"session_id"`
		Question  string `json:"question"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if payload.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question must not be empty"})
		return
	}
	if payload.SessionID == "" {
		payload.SessionID = uuid.NewString()
	}

	answer, err := a.engine.Ask(c.Request.Context(), payload.SessionID, project, payload.Question)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": payload.SessionID,
		"answer":     answer.Answer,
		"sources":    answer.Sources,
		"success":    answer.Success,
	})
}

// ChatHistoryHandler returns a session's transcript.
func (a *API) ChatHistoryHandler(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	messages, err := a.engine.History(c.Request.Context(), sessionID)
	if err != nil {
		a.log.WithField("session", sessionID).WithError(err).Error("loading history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": messages})
}

// ResetSessionHandler discards a session and its history.
func (a *API) ResetSessionHandler(c *gin.Context) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	if err := a.engine.ResetSession(c.Request.Context(), payload.SessionID); err != nil {
		a.log.WithField("session", payload.SessionID).WithError(err).Error("resetting session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": payload.SessionID})
}
