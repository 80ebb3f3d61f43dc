package cli

import (
	"fmt"
	"log/slog"
	"os"

	"ragflow/config"
	"ragflow/internal/adapter/embedding"
	"ragflow/internal/adapter/llm"
	"ragflow/internal/adapter/runstore"
	vecbolt "ragflow/internal/adapter/vectorstore/bolt"
	vecmem "ragflow/internal/adapter/vectorstore/memory"
	"ragflow/internal/adapter/vectorstore/qdrant"
	"ragflow/internal/executor"
	"ragflow/internal/port"
)

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	e := cfg.Embedding
	switch e.Provider {
	case "gemini":
		return embedding.NewGeminiEmbedder(e.APIKeyEnv, e.Model, e.BaseURL)
	case "openai":
		if e.BaseURL != "" {
			return embedding.NewOpenAICompatibleEmbedder(e.APIKeyEnv, e.Model, e.BaseURL)
		}
		return embedding.NewOpenAIEmbedder(e.APIKeyEnv, e.Model)
	case "ollama":
		return embedding.NewOllamaEmbedder(e.Model, e.BaseURL)
	case "mock":
		return embedding.NewMockEmbedder(e.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", e.Provider)
	}
}

// newVectorStore builds the configured store. The returned closer is a no-op
// for stores without local resources.
func newVectorStore(cfg *config.Config, dir string) (port.VectorStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store.Backend {
	case "qdrant":
		st := qdrant.NewStore(qdrant.Config{
			URL:        cfg.Store.URL,
			APIKey:     cfg.Store.APIKey(),
			Collection: cfg.Store.Collection,
		})
		return st, noop, nil
	case "bolt":
		if err := config.EnsureStateDir(dir); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		st, err := vecbolt.NewStore(config.VectorDBPath(dir))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		return st, st.Close, nil
	case "memory":
		return vecmem.NewStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}

func newLLM(cfg *config.Config) (port.LLM, error) {
	l := cfg.LLM
	switch l.Provider {
	case "gemini":
		return llm.NewGeminiClient(l.APIKeyEnv, l.Model, l.BaseURL)
	case "openai":
		return llm.NewOpenAIClient(l.APIKeyEnv, l.Model, l.BaseURL)
	case "ollama":
		return llm.NewOllamaClient(l.Model, l.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", l.Provider)
	}
}

func newExecutor(cfg *config.Config, dir string, log *slog.Logger) (*executor.Executor, func() error, error) {
	if err := config.EnsureStateDir(dir); err != nil {
		return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	rs, err := runstore.NewBoltStore(config.RunDBPath(dir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return executor.New(rs, log), rs.Close, nil
}
