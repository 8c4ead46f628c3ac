package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/store"
)

// TextEmbedder produces a versioned vector for one text.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) (*model.Embedding, error)
}

// BackfillEmbeddings embeds up to limit active canonical jobs that have no
// vector for modelID. It stops quietly at the first embedding failure, since
// that usually means the provider is still down, and reports how many it stored.
func (l *Loader) BackfillEmbeddings(ctx context.Context, emb TextEmbedder, modelID string, limit int) (int, error) {
	jobs, err := l.store.Queries().MissingEmbeddings(ctx, modelID, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for i := range jobs {
		j := &jobs[i]
		text := j.Description
		if text == "" {
			text = j.Title
		}
		e, err := emb.EmbedText(ctx, text)
		if err != nil {
			var genErr *model.EmbeddingGenerationError
			if errors.As(err, &genErr) {
				l.logger.Warn("embedding backfill paused", "done", done, "remaining", len(jobs)-done, "error", err)
				return done, nil
			}
			return done, fmt.Errorf("embed canonical job %s: %w", j.ID, err)
		}
		if e.Model != modelID {
			return done, fmt.Errorf("embedder produced model %q, want %q", e.Model, modelID)
		}
		err = l.store.WithTx(ctx, func(q *store.Queries) error {
			return l.storeEmbedding(ctx, q, j.ID, e)
		})
		if err != nil {
			return done, err
		}
		done++
	}
	if done > 0 {
		l.logger.Info("embeddings backfilled", "count", done, "model", modelID)
	}
	return done, nil
}
