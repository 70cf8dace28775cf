package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppInfo corresponds to the 'app' section and holds basic application info.
type AppInfo struct {
	Name        string `yaml:"name"`        // application name
	Version     string `yaml:"version"`     // application version
	Environment string `yaml:"environment"` // runtime environment (e.g. "development", "production")
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Level string `yaml:"level"` // log level (e.g. "info", "debug", "warn", "error")
}

// GeminiConfig holds the settings for a Gemini model.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // Gemini API key; falls back to GEMINI_API_KEY if empty
	Model  string `yaml:"model"`  // Gemini model name
}

// LLMConfig holds the generation model configuration.
type LLMConfig struct {
	Provider    string       `yaml:"provider"`    // LLM provider (currently "gemini")
	Gemini      GeminiConfig `yaml:"gemini"`      // Gemini model configuration
	VisionModel string       `yaml:"visionModel"` // model used for figure analysis; defaults to the chat model
}

// EmbeddingConfig holds the embedding model configuration along with the
// client-side throttling and caching knobs.
type EmbeddingConfig struct {
	Provider          string       `yaml:"provider"`          // embedding provider (currently "gemini")
	Gemini            GeminiConfig `yaml:"gemini"`            // Gemini embedding model configuration
	RequestsPerMinute int          `yaml:"requestsPerMinute"` // client-side rate limit, default 100
	BatchSize         int          `yaml:"batchSize"`         // texts per provider call, default 5
	MaxRetries        int          `yaml:"maxRetries"`        // retry attempts per batch, default 3
	RetryBaseDelay    string       `yaml:"retryBaseDelay"`    // initial backoff delay (e.g. "2s")
	CacheSize         int          `yaml:"cacheSize"`         // embedding cache capacity, default 1000
}

// MilvusConfig holds the Milvus connection and schema settings.
type MilvusConfig struct {
	Address           string `yaml:"address"`           // Milvus service address
	VectorDim         int    `yaml:"vectorDim"`         // embedding dimensionality, default 768
	DefaultCollection string `yaml:"defaultCollection"` // collection used when a request names none
}

// RedisConfig holds the Redis connection settings used by the chat
// history store when the "redis" backend is selected.
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis server address (e.g. "localhost:6379")
	Password string `yaml:"password"` // Redis password
	DB       int    `yaml:"db"`       // Redis database number
}

// ProcessingConfig configures the document ingestion pipeline.
type ProcessingConfig struct {
	MaxConcurrency int    `yaml:"maxConcurrency"` // documents processed in parallel, default 10
	ChunkSize      int    `yaml:"chunkSize"`      // default chunk size in characters, default 1000
	ChunkOverlap   int    `yaml:"chunkOverlap"`   // default overlap in characters, default 200
	ChunkStrategy  string `yaml:"chunkStrategy"`  // "size", "paragraph", "overlap" or "layout"
	MinChunkSize   int    `yaml:"minChunkSize"`   // merge adjacent chunks below this size; 0 disables
	MaxChunkSize   int    `yaml:"maxChunkSize"`   // cap for merged chunks, default 2x chunkSize
	AnalyzeFigures bool   `yaml:"analyzeFigures"` // run vision analysis on embedded page images
}

// ChatConfig configures the retrieval-augmented chat engine.
type ChatConfig struct {
	Temperature        float32 `yaml:"temperature"`        // sampling temperature, default 0.7
	TopP               float32 `yaml:"topP"`               // nucleus sampling, default 0.95
	TopK               int32   `yaml:"topK"`               // default 40
	MaxOutputTokens    int32   `yaml:"maxOutputTokens"`    // default 1024
	NResults           int     `yaml:"nResults"`           // retrieved chunks per question, default 5
	ContextTokenBudget int     `yaml:"contextTokenBudget"` // token budget for retrieved context, default 3000
	HistoryBackend     string  `yaml:"historyBackend"`     // "file" or "redis"
	HistoryDir         string  `yaml:"historyDir"`         // base directory for the file backend
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Address     string            `yaml:"address"`     // listen address (e.g. ":8080")
	RateLimiter RateLimiterConfig `yaml:"rateLimiter"` // per-instance request throttling
}

// RateLimiterConfig configures the token bucket guarding the HTTP surface.
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"` // tokens per second
	Capacity int     `yaml:"capacity"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Milvus     MilvusConfig     `yaml:"milvus"`
	Redis      RedisConfig      `yaml:"redis"`
	Processing ProcessingConfig `yaml:"processing"`
	Chat       ChatConfig       `yaml:"chat"`
	Server     ServerConfig     `yaml:"server"`
}

// LoadConfig loads and parses the YAML configuration file at path, then
// applies defaults and environment fallbacks.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read YAML file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse YAML file: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in zero-valued fields with sensible defaults and
// falls back to environment variables for secrets.
func (cfg *AppConfig) ApplyDefaults() {
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.Gemini.Model == "" {
		cfg.LLM.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.LLM.Gemini.APIKey == "" {
		cfg.LLM.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.LLM.VisionModel == "" {
		cfg.LLM.VisionModel = cfg.LLM.Gemini.Model
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "gemini"
	}
	if cfg.Embedding.Gemini.Model == "" {
		cfg.Embedding.Gemini.Model = "text-embedding-004"
	}
	if cfg.Embedding.Gemini.APIKey == "" {
		cfg.Embedding.Gemini.APIKey = cfg.LLM.Gemini.APIKey
	}
	if cfg.Embedding.RequestsPerMinute <= 0 {
		cfg.Embedding.RequestsPerMinute = 100
	}
	if cfg.Embedding.BatchSize <= 0 {
		cfg.Embedding.BatchSize = 5
	}
	if cfg.Embedding.MaxRetries <= 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.RetryBaseDelay == "" {
		cfg.Embedding.RetryBaseDelay = "2s"
	}
	if cfg.Embedding.CacheSize <= 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Milvus.Address == "" {
		cfg.Milvus.Address = "localhost:19530"
	}
	if cfg.Milvus.VectorDim <= 0 {
		cfg.Milvus.VectorDim = 768
	}
	if cfg.Milvus.DefaultCollection == "" {
		cfg.Milvus.DefaultCollection = "documents"
	}
	if cfg.Processing.MaxConcurrency <= 0 {
		cfg.Processing.MaxConcurrency = 10
	}
	if cfg.Processing.ChunkSize <= 0 {
		cfg.Processing.ChunkSize = 1000
	}
	if cfg.Processing.ChunkOverlap < 0 {
		cfg.Processing.ChunkOverlap = 0
	} else if cfg.Processing.ChunkOverlap == 0 {
		cfg.Processing.ChunkOverlap = 200
	}
	if cfg.Processing.MinChunkSize > 0 && cfg.Processing.MaxChunkSize <= 0 {
		cfg.Processing.MaxChunkSize = 2 * cfg.Processing.ChunkSize
	}
	if cfg.Processing.ChunkStrategy == "" {
		cfg.Processing.ChunkStrategy = "layout"
	}
	if cfg.Chat.Temperature <= 0 {
		cfg.Chat.Temperature = 0.7
	}
	if cfg.Chat.TopP <= 0 {
		cfg.Chat.TopP = 0.95
	}
	if cfg.Chat.TopK <= 0 {
		cfg.Chat.TopK = 40
	}
	if cfg.Chat.MaxOutputTokens <= 0 {
		cfg.Chat.MaxOutputTokens = 1024
	}
	if cfg.Chat.NResults <= 0 {
		cfg.Chat.NResults = 5
	}
	if cfg.Chat.ContextTokenBudget <= 0 {
		cfg.Chat.ContextTokenBudget = 3000
	}
	if cfg.Chat.HistoryBackend == "" {
		cfg.Chat.HistoryBackend = "file"
	}
	if cfg.Chat.HistoryDir == "" {
		cfg.Chat.HistoryDir = "data/chat_history"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
}

// RetryBaseDelayDuration parses the configured backoff delay, falling back
// to two seconds when the value is malformed.
func (e *EmbeddingConfig) RetryBaseDelayDuration() time.Duration {
	d, err := time.ParseDuration(e.RetryBaseDelay)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}
