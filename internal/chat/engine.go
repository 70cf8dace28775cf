package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Laira/internal/chunk"
	"Laira/internal/llm"
	"Laira/internal/schema"
	"Laira/internal/vectorstore"
	"Laira/pkg/logger"
)

const (
	// noInformationAnswer is returned when nothing relevant can be
	// retrieved for a question.
	noInformationAnswer = "I don't have any information about that in the documents available to me."
	// safetyBlockedAnswer is returned when the model refuses to answer.
	safetyBlockedAnswer = "I can't answer that question because the response was blocked by content safety settings. Try rephrasing your question."
	// internalErrorAnswer is returned when a pipeline stage fails.
	internalErrorAnswer = "Something went wrong while answering your question. Please try again."

	answerInstructions = `You are a helpful assistant answering questions about a collection of documents.
Answer the question using ONLY the context below. If the context does not contain the answer, say so plainly instead of guessing.
Cite the documents you used with [Source: filename] after the relevant statements.`
)

// QueryEmbedder embeds a search query into the same vector space as the
// stored documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever answers nearest-neighbor queries against a collection.
type Retriever interface {
	UseCollection(ctx context.Context, name string) error
	Query(ctx context.Context, collection string, vector []float32, topK int, filters map[string]interface{}) ([]vectorstore.Result, error)
}

// Config tunes the chat engine.
type Config struct {
	Collection         string
	NResults           int
	ContextTokenBudget int
	Params             llm.Params
}

// Answer is the engine's response to one question.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
	Success bool     `json:"success"`
}

// Engine answers questions by retrieving relevant chunks and binding the
// model's response to them.
type Engine struct {
	embedder  QueryEmbedder
	retriever Retriever
	generator llm.Generator
	sessions  SessionStore
	history   HistoryStore
	config    Config
	log       *logger.Logger
}

func NewEngine(embedder QueryEmbedder, retriever Retriever, generator llm.Generator, sessions SessionStore, history HistoryStore, config Config) *Engine {
	if config.NResults <= 0 {
		config.NResults = 5
	}
	if config.ContextTokenBudget <= 0 {
		config.ContextTokenBudget = 3000
	}
	return &Engine{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		sessions:  sessions,
		history:   history,
		config:    config,
		log:       logger.New("chat"),
	}
}

// Ask answers a question within a session. It errors only on invalid
// input: a missing collection, an empty retrieval or a failed pipeline
// stage all come back as a structured Answer, with Success marking
// whether document context actually informed it.
func (e *Engine) Ask(ctx context.Context, sessionID, collection, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if collection == "" {
		collection = e.config.Collection
	}

	e.sessions.GetOrCreate(sessionID)
	defer e.sessions.Touch(sessionID)

	if err := e.retriever.UseCollection(ctx, collection); err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			e.log.WithField("collection", collection).Warn("question against missing collection")
			return e.record(ctx, sessionID, question, &Answer{Answer: noInformationAnswer})
		}
		e.log.WithField("collection", collection).WithError(err).Error("selecting collection failed")
		return e.record(ctx, sessionID, question, &Answer{Answer: internalErrorAnswer})
	}

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		e.log.WithError(err).Error("embedding question failed")
		return e.record(ctx, sessionID, question, &Answer{Answer: internalErrorAnswer})
	}

	results, err := e.retriever.Query(ctx, collection, vector, e.config.NResults, nil)
	if err != nil {
		e.log.WithField("collection", collection).WithError(err).Error("retrieval failed")
		return e.record(ctx, sessionID, question, &Answer{Answer: internalErrorAnswer})
	}
	if len(results) == 0 {
		return e.record(ctx, sessionID, question, &Answer{Answer: noInformationAnswer})
	}

	contextText, sources := e.buildContext(results)
	prompt := e.buildPrompt(ctx, sessionID, question, contextText)

	text, err := e.generator.Generate(ctx, prompt, e.config.Params)
	if err != nil {
		if errors.Is(err, llm.ErrSafetyBlocked) {
			return e.record(ctx, sessionID, question, &Answer{Answer: safetyBlockedAnswer})
		}
		e.log.WithError(err).Error("generation failed")
		return e.record(ctx, sessionID, question, &Answer{Answer: internalErrorAnswer})
	}

	return e.record(ctx, sessionID, question, &Answer{
		Answer:  text,
		Sources: sources,
		Success: true,
	})
}

// ResetSession discards a session and its stored history.
func (e *Engine) ResetSession(ctx context.Context, sessionID string) error {
	return e.sessions.Reset(ctx, sessionID)
}

// History returns the stored transcript of a session.
func (e *Engine) History(ctx context.Context, sessionID string) ([]Message, error) {
	return e.history.Load(ctx, sessionID)
}

// buildContext assembles retrieved chunks into the prompt context under
// the token budget. Assembly stops at the first chunk that would overflow
// the budget, so only the leading chunks are included and none is
// truncated mid-sentence. Returns the context text and deduplicated
// source filenames in retrieval order.
func (e *Engine) buildContext(results []vectorstore.Result) (string, []string) {
	var blocks []string
	var sources []string
	seen := map[string]bool{}
	used := 0

	for i, r := range results {
		filename := "unknown"
		if r.Metadata != nil {
			if f, ok := r.Metadata[schema.MetadataKeyFilename].(string); ok && f != "" {
				filename = f
			}
		}
		block := fmt.Sprintf("[Document %d] From %s:\n%s", i+1, filename, r.Text)

		cost := chunk.EstimateTokens(block)
		if used+cost > e.config.ContextTokenBudget {
			e.log.WithField("document", i+1).WithField("tokens", cost).
				Debug("context budget reached, stopping assembly")
			break
		}
		used += cost
		blocks = append(blocks, block)
		if !seen[filename] && filename != "unknown" {
			seen[filename] = true
			sources = append(sources, filename)
		}
	}
	return strings.Join(blocks, "\n\n"), sources
}

// buildPrompt binds the instructions, recent conversation turns, the
// retrieved context and the question into one prompt. History failures
// degrade to a history-free prompt rather than failing the question.
func (e *Engine) buildPrompt(ctx context.Context, sessionID, question, contextText string) string {
	var b strings.Builder
	b.WriteString(answerInstructions)
	b.WriteString("\n\n")

	messages, err := e.history.Load(ctx, sessionID)
	if err != nil {
		e.log.WithField("session", sessionID).WithError(err).Warn("could not load history")
		messages = nil
	}
	if len(messages) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range recentMessages(messages, 6) {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Context:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// record persists the exchange and returns the answer. History write
// failures are logged, not surfaced; the user already has their answer.
func (e *Engine) record(ctx context.Context, sessionID, question string, answer *Answer) (*Answer, error) {
	now := time.Now()
	err := e.history.Append(ctx, sessionID,
		Message{Role: RoleUser, Content: question, Timestamp: now},
		Message{Role: RoleAssistant, Content: answer.Answer, Timestamp: now},
	)
	if err != nil {
		e.log.WithField("session", sessionID).WithError(err).Warn("could not persist history")
	}
	return answer, nil
}

// recentMessages returns the last n messages.
func recentMessages(messages []Message, n int) []Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
