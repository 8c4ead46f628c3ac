package embed

import (
	"context"
	"hash/fnv"

	"github.com/amishk599/jobcatalog/internal/normalize"
)

// HashEmbedder is a deterministic, offline embedding function. Unigram and
// bigram features are hashed into signed buckets, so texts with overlapping
// vocabulary land close together. It needs no network and never fails.
type HashEmbedder struct {
	model     string
	dimension int
}

// NewHashEmbedder returns a hashing embedder tagged with model.
func NewHashEmbedder(model string, dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{model: model, dimension: dimension}
}

func (h *HashEmbedder) Model() string  { return h.model }
func (h *HashEmbedder) Dimension() int { return h.dimension }

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dimension)
	terms := normalize.Tokens(text)
	add := func(feature string, weight float32) {
		f := fnv.New64a()
		f.Write([]byte(feature))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dimension))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		v[idx] += weight
	}
	for i, t := range terms {
		add(t, 1)
		if i > 0 {
			add(terms[i-1]+" "+t, 0.5)
		}
	}
	return Normalize(v)
}
