package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"

	"ragchat/internal/models"
)

// DefaultTopK is the number of fragments merged into the system prompt.
const DefaultTopK = 3

// Index is an in-memory vector store over document fragments. Fragments are
// global across sessions; the index is additive only.
type Index struct {
	embedder embedding.Embedder
	logger   *zap.Logger

	mu        sync.RWMutex
	fragments []models.Fragment
}

// NewIndex creates an empty index backed by the given embedder.
func NewIndex(embedder embedding.Embedder, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		embedder: embedder,
		logger:   logger,
	}
}

// AddDocument chunks, embeds, and indexes a document's text. All fragments
// are embedded before the index is touched, so a failure leaves the index in
// its prior state. Returns the number of fragments added.
func (ix *Index) AddDocument(ctx context.Context, docID, text string) (int, error) {
	chunks := NewChunker(DefaultChunkSize, DefaultChunkOverlap).Chunk(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := ix.embedder.EmbedStrings(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("%w: embed fragments of %s: %v", ErrIndexing, docID, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: embedder returned %d vectors for %d fragments", ErrIndexing, len(vectors), len(chunks))
	}

	fragments := make([]models.Fragment, len(chunks))
	for i, chunk := range chunks {
		fragments[i] = models.Fragment{
			ID:         fmt.Sprintf("%s_%d", docID, i),
			DocumentID: docID,
			Content:    chunk,
			Index:      i,
			Embedding:  vectors[i],
		}
	}

	ix.mu.Lock()
	ix.fragments = append(ix.fragments, fragments...)
	total := len(ix.fragments)
	ix.mu.Unlock()

	ix.logger.Info("indexed document",
		zap.String("document_id", docID),
		zap.Int("fragments", len(fragments)),
		zap.Int("index_size", total),
	)
	return len(fragments), nil
}

// Query returns the text of at most k fragments ranked by cosine similarity
// to the query. An empty index returns an empty result, never an error.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]string, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if ix.Size() == 0 {
		return nil, nil
	}

	vectors, err := ix.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	query := vectors[0]

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]models.FragmentMatch, 0, len(ix.fragments))
	for _, frag := range ix.fragments {
		results = append(results, models.FragmentMatch{
			Fragment: frag,
			Score:    cosineSimilarity(query, frag.Embedding),
		})
	}
	// Stable sort keeps insertion order as the deterministic tie-break.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}

	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Fragment.Content
	}
	return contents, nil
}

// Size reports the number of indexed fragments.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.fragments)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
