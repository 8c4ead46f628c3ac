package embed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/model"
)

// LangchainEmbedder wraps a langchaingo embedder with dimension validation.
type LangchainEmbedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

// New builds the embedding function described by cfg.
func New(cfg config.EmbeddingConfig, logger *slog.Logger) (model.Embedder, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	var (
		e   embeddings.Embedder
		err error
	)
	switch cfg.Provider {
	case "hash":
		return NewHashEmbedder(cfg.Model, cfg.Dimension), nil

	case "openai":
		llm, openaiErr := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(cfg.APIKey),
			openai.WithEmbeddingModel(cfg.Model),
			openai.WithHTTPClient(client),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		e, err = embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))

	case "ollama":
		llm, ollamaErr := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithHTTPClient(client),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		e, err = embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.Provider, err)
	}

	return &LangchainEmbedder{
		embedder:  e,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		logger:    logger.With("component", "embedder", "model", cfg.Model),
	}, nil
}

func (e *LangchainEmbedder) Model() string  { return e.model }
func (e *LangchainEmbedder) Dimension() int { return e.dimension }

// Embed generates one vector per text and checks every vector's dimension.
func (e *LangchainEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding failed", "count", len(texts), "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("embed: dimension mismatch for text %d: got %d, want %d", i, len(v), e.dimension)
		}
		Normalize(v)
	}
	e.logger.Debug("embedded texts", "count", len(texts), "duration_ms", time.Since(start).Milliseconds())
	return vectors, nil
}
