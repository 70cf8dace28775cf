package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Role values for chat messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryStore persists conversation turns per session.
type HistoryStore interface {
	// Load returns the session's messages in order. An unknown session
	// yields an empty history, not an error.
	Load(ctx context.Context, sessionID string) ([]Message, error)
	// Append adds messages to the end of the session's history.
	Append(ctx context.Context, sessionID string, messages ...Message) error
	// Reset discards the session's history.
	Reset(ctx context.Context, sessionID string) error
}

// FileHistoryStore keeps each session's history as one JSON file under a
// base directory. Good enough for a single-process deployment; use the
// Redis backend when several instances share sessions.
type FileHistoryStore struct {
	dir   string
	mutex sync.Mutex
}

// NewFileHistoryStore creates the base directory if needed.
func NewFileHistoryStore(dir string) (*FileHistoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return &FileHistoryStore{dir: dir}, nil
}

func (s *FileHistoryStore) path(sessionID string) string {
	// Session ids come from clients; strip path separators so a crafted
	// id cannot escape the history directory.
	return filepath.Join(s.dir, filepath.Base(sessionID)+".json")
}

func (s *FileHistoryStore) Load(_ context.Context, sessionID string) ([]Message, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.loadLocked(sessionID)
}

func (s *FileHistoryStore) loadLocked(sessionID string) ([]Message, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history for %s: %w", sessionID, err)
	}
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decoding history for %s: %w", sessionID, err)
	}
	return messages, nil
}

func (s *FileHistoryStore) Append(_ context.Context, sessionID string, messages ...Message) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, err := s.loadLocked(sessionID)
	if err != nil {
		return err
	}
	existing = append(existing, messages...)

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history for %s: %w", sessionID, err)
	}
	tmp := s.path(sessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing history for %s: %w", sessionID, err)
	}
	return os.Rename(tmp, s.path(sessionID))
}

func (s *FileHistoryStore) Reset(_ context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing history for %s: %w", sessionID, err)
	}
	return nil
}

// RedisHistoryStore keeps each session's history as a Redis list of
// JSON-encoded messages.
type RedisHistoryStore struct {
	client *redis.Client
}

// NewRedisHistoryStore dials Redis and verifies the connection.
func NewRedisHistoryStore(ctx context.Context, address, password string, db int) (*RedisHistoryStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", address, err)
	}
	return &RedisHistoryStore{client: client}, nil
}

func historyKey(sessionID string) string {
	return "chat:history:" + sessionID
}

func (s *RedisHistoryStore) Load(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := s.client.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", sessionID, err)
	}
	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decoding history for %s: %w", sessionID, err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *RedisHistoryStore) Append(ctx context.Context, sessionID string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding message: %w", err)
		}
		values = append(values, data)
	}
	if err := s.client.RPush(ctx, historyKey(sessionID), values...).Err(); err != nil {
		return fmt.Errorf("appending history for %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisHistoryStore) Reset(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("resetting history for %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisHistoryStore) Close() error {
	return s.client.Close()
}

var (
	_ HistoryStore = (*FileHistoryStore)(nil)
	_ HistoryStore = (*RedisHistoryStore)(nil)
)
