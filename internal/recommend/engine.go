// Package recommend implements the book recommendation pipeline: reading
// history, embedding acquisition, similarity search, and chat refinement
// with graceful fallback.
package recommend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Jullian93/BookBuddy/internal/chat"
	"github.com/Jullian93/BookBuddy/internal/config"
	"github.com/Jullian93/BookBuddy/internal/embedding"
	"github.com/Jullian93/BookBuddy/internal/models"
	"github.com/Jullian93/BookBuddy/internal/storage"
	"github.com/Jullian93/BookBuddy/internal/vector"
)

// User-facing explanations for degraded results. The pipeline always
// returns a result with one of these rather than an error when a
// provider fails.
const (
	explanationNoHistory      = "Unable to generate recommendations as the student has no reading history."
	explanationTechnicalIssue = "Unable to generate recommendations due to a technical issue."
	explanationNoCandidates   = "No suitable recommendations found based on the student's reading history."
	explanationFallback       = "Recommendations based on books with similar themes and styles to your recent reads."
)

// Engine runs the recommendation pipeline. It is stateless across
// requests; all state lives in the store and the index.
type Engine struct {
	store    storage.Store
	embedder embedding.Embedder
	index    vector.Index
	chat     chat.Completer
	config   *config.RecommendConfig
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for pipeline events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a recommendation engine with the given dependencies.
// completer may be nil; refinement is then skipped and every request
// takes the similarity fallback path.
func NewEngine(
	store storage.Store,
	embedder embedding.Embedder,
	index vector.Index,
	completer chat.Completer,
	cfg *config.RecommendConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		store:    store,
		embedder: embedder,
		index:    index,
		chat:     completer,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recommend generates personalized recommendations for a user based on
// their reading history. numRecommendations <= 0 uses the configured
// default. The returned Recommendation is never nil: degraded outcomes
// (no history, provider failures, no candidates) produce an empty or
// heuristic list with an explanation instead of an error.
func (e *Engine) Recommend(ctx context.Context, userID string, numRecommendations int) (*models.Recommendation, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id must not be empty")
	}
	if numRecommendations <= 0 {
		numRecommendations = e.config.Recommendations
	}

	history, err := e.store.GetReadingHistory(ctx, userID, e.config.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch reading history: %w", err)
	}
	if len(history) == 0 {
		e.logger.Info("no reading history", zap.String("user_id", userID))
		return emptyRecommendation(explanationNoHistory), nil
	}

	seeds := history
	if len(seeds) > e.config.SeedBooks {
		seeds = seeds[:e.config.SeedBooks]
	}

	seedVectors := make([][]float32, 0, len(seeds))
	for _, entry := range seeds {
		vec, err := e.ensureEmbedding(ctx, entry.Book)
		if err != nil {
			// One failed seed is non-fatal; the preference vector is
			// built from whatever succeeded.
			e.logger.Warn("seed embedding failed",
				zap.String("book_id", entry.Book.ID), zap.Error(err))
			continue
		}
		seedVectors = append(seedVectors, vec)
	}
	if len(seedVectors) == 0 {
		e.logger.Warn("all seed embeddings failed", zap.String("user_id", userID))
		return emptyRecommendation(explanationTechnicalIssue), nil
	}

	preference, err := vector.Combine(seedVectors)
	if err != nil {
		e.logger.Error("combine seed embeddings failed", zap.Error(err))
		return emptyRecommendation(explanationTechnicalIssue), nil
	}

	// Exclude everything in the full history, not just the seeds, so a
	// user is never recommended a book they already read.
	exclude := make(map[string]bool, len(history))
	for _, entry := range history {
		exclude[entry.Book.ID] = true
	}

	hits, err := e.index.FindSimilar(ctx, preference, e.config.SimilarBooks, exclude)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	candidates, err := e.joinBooks(ctx, hits)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		e.logger.Info("no similar books found", zap.String("user_id", userID))
		return emptyRecommendation(explanationNoCandidates), nil
	}

	refined, err := e.refineWithChat(ctx, seeds, candidates, numRecommendations)
	if err != nil {
		// Terminal error boundary of the pipeline: any refinement
		// failure degrades to the raw similarity ranking.
		e.logger.Warn("chat refinement failed, using similarity fallback",
			zap.String("user_id", userID), zap.Error(err))
		return fallbackRecommendation(candidates, numRecommendations), nil
	}
	return refined, nil
}

// SimilarBooks returns books similar to the given book, ranked by raw
// cosine similarity with no chat refinement. The source book is never in
// the result. Unlike Recommend, a missing book or a failed embedding is
// an error: without a source vector there is nothing to rank by.
func (e *Engine) SimilarBooks(ctx context.Context, bookID string, limit int) ([]*models.RecommendedBook, error) {
	if limit <= 0 {
		limit = e.config.SimilarBooks
	}
	book, err := e.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	vec, err := e.ensureEmbedding(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("embedding for book %s: %w", bookID, err)
	}
	hits, err := e.index.FindSimilar(ctx, vec, limit, map[string]bool{bookID: true})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	similar, err := e.joinBooks(ctx, hits)
	if err != nil {
		return nil, err
	}
	for _, s := range similar {
		s.RecommendationReason = fmt.Sprintf("Similar to %s", book.Title)
	}
	return similar, nil
}

// ReadingHistory returns the user's recent borrow records joined with
// book details, newest first.
func (e *Engine) ReadingHistory(ctx context.Context, userID string) ([]*models.HistoryEntry, error) {
	return e.store.GetReadingHistory(ctx, userID, e.config.HistoryLimit)
}

// ensureEmbedding returns the embedding for a book, creating and
// persisting it on first use. Lookup order: in-memory index, store,
// provider. A freshly created embedding is written to both.
func (e *Engine) ensureEmbedding(ctx context.Context, book *models.Book) ([]float32, error) {
	if vec, ok := e.index.Get(ctx, book.ID); ok {
		return vec, nil
	}
	if vec, err := e.store.GetEmbedding(ctx, book.ID); err == nil {
		if putErr := e.index.Put(ctx, book.ID, vec); putErr != nil {
			e.logger.Warn("index put failed", zap.String("book_id", book.ID), zap.Error(putErr))
		}
		return vec, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, embedding.BookText(book))
	if err != nil {
		return nil, err
	}
	if err := e.store.PutEmbedding(ctx, book.ID, vec); err != nil {
		e.logger.Warn("persist embedding failed", zap.String("book_id", book.ID), zap.Error(err))
	}
	if err := e.index.Put(ctx, book.ID, vec); err != nil {
		e.logger.Warn("index put failed", zap.String("book_id", book.ID), zap.Error(err))
	}
	return vec, nil
}

// joinBooks resolves similarity hits to full book records with scores.
// Hits whose book has vanished from the catalog are skipped.
func (e *Engine) joinBooks(ctx context.Context, hits []*vector.Result) ([]*models.RecommendedBook, error) {
	out := make([]*models.RecommendedBook, 0, len(hits))
	for _, hit := range hits {
		book, err := e.store.GetBook(ctx, hit.BookID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				e.logger.Debug("indexed book missing from catalog", zap.String("book_id", hit.BookID))
				continue
			}
			return nil, err
		}
		out = append(out, &models.RecommendedBook{Book: book, SimilarityScore: hit.Score})
	}
	return out, nil
}

// refineWithChat asks the chat model to pick the final recommendations
// from the candidate list. Any failure (no completer, provider error,
// malformed JSON, no valid picks) is an error; the caller degrades to
// the similarity fallback.
func (e *Engine) refineWithChat(
	ctx context.Context,
	seeds []*models.HistoryEntry,
	candidates []*models.RecommendedBook,
	n int,
) (*models.Recommendation, error) {
	if e.chat == nil {
		return nil, fmt.Errorf("chat provider not configured")
	}

	prompt, err := buildRefinementPrompt(seeds, candidates, n)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	raw, err := e.chat.Complete(ctx, &chat.CompletionRequest{
		System:       refinementSystemPrompt,
		User:         prompt,
		Temperature:  e.config.ChatTemperature,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	parsed, err := parseRefinement(raw)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.RecommendedBook, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	picks := make([]*models.RecommendedBook, 0, len(parsed.Recommendations))
	for _, rec := range parsed.Recommendations {
		candidate, ok := byID[rec.ID]
		if !ok {
			// The model referenced a book outside the candidate set;
			// drop it rather than fabricate a record.
			e.logger.Debug("refinement referenced unknown book", zap.String("book_id", rec.ID))
			continue
		}
		picks = append(picks, &models.RecommendedBook{
			Book:                 candidate.Book,
			SimilarityScore:      candidate.SimilarityScore,
			RecommendationReason: rec.Reason,
		})
	}
	if len(picks) == 0 {
		return nil, fmt.Errorf("refinement produced no valid picks")
	}
	return &models.Recommendation{
		Recommendations: picks,
		Explanation:     parsed.Explanation,
	}, nil
}

func emptyRecommendation(explanation string) *models.Recommendation {
	return &models.Recommendation{
		Recommendations: []*models.RecommendedBook{},
		Explanation:     explanation,
	}
}

// fallbackRecommendation returns the top-n raw similarity candidates in
// rank order with the fixed fallback explanation. It never fails.
func fallbackRecommendation(candidates []*models.RecommendedBook, n int) *models.Recommendation {
	if n > len(candidates) {
		n = len(candidates)
	}
	return &models.Recommendation{
		Recommendations: candidates[:n],
		Explanation:     explanationFallback,
	}
}
