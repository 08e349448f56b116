// Package vector provides the book embedding index and similarity search.
package vector

import "context"

// Index stores one embedding per book id and answers nearest-neighbor
// queries by cosine similarity. Implementations must make Put an atomic
// per-key upsert; a brute-force scan is acceptable for catalog sizes in
// the hundreds to thousands, and the interface leaves room for an ANN
// implementation later.
type Index interface {
	// Get returns the embedding stored for bookID, if any.
	Get(ctx context.Context, bookID string) ([]float32, bool)
	// Put upserts the embedding for bookID. Overwrites keep the id's
	// original insertion position for tie-breaking.
	Put(ctx context.Context, bookID string, embedding []float32) error
	// Remove deletes the embeddings for the given book ids.
	Remove(ctx context.Context, bookIDs []string) error
	// FindSimilar returns up to k books ordered by descending cosine
	// similarity to query, skipping ids in exclude. Ties preserve
	// insertion order. Fewer than k results are returned when fewer
	// candidates exist; an empty index yields an empty result.
	FindSimilar(ctx context.Context, query []float32, k int, exclude map[string]bool) ([]*Result, error)
	Size() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// Result is a single similarity hit.
type Result struct {
	BookID string
	Score  float64 // cosine similarity, unclamped
}
