package recommend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Jullian93/BookBuddy/internal/chat"
	"github.com/Jullian93/BookBuddy/internal/config"
	"github.com/Jullian93/BookBuddy/internal/embedding"
	"github.com/Jullian93/BookBuddy/internal/models"
	"github.com/Jullian93/BookBuddy/internal/storage"
	"github.com/Jullian93/BookBuddy/internal/vector"
)

const testDimensions = 8

type stubCompleter struct {
	response string
	err      error
	lastReq  *chat.CompletionRequest
	calls    int
}

func (s *stubCompleter) Complete(ctx context.Context, req *chat.CompletionRequest) (string, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubCompleter) Close() error { return nil }

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("provider down")
}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func (failingEmbedder) Dimensions() int { return testDimensions }
func (failingEmbedder) Close() error    { return nil }

// selectiveEmbedder fails for texts containing failOn and delegates the
// rest to the mock embedder.
type selectiveEmbedder struct {
	*embedding.MockEmbedder
	failOn string
}

func (s *selectiveEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, s.failOn) {
		return nil, errors.New("provider down")
	}
	return s.MockEmbedder.Embed(ctx, text)
}

func testRecommendConfig() *config.RecommendConfig {
	return &config.RecommendConfig{
		SimilarBooks:    10,
		Recommendations: 3,
		HistoryLimit:    5,
		SeedBooks:       2,
		ChatTemperature: 0.7,
	}
}

func newTestEngine(t *testing.T, embedder embedding.Embedder, completer chat.Completer) (*Engine, storage.Store, *vector.MemoryIndex) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	index, err := vector.NewMemoryIndex(testDimensions)
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(store, embedder, index, completer, testRecommendConfig())
	return engine, store, index
}

func addBook(t *testing.T, store storage.Store, id, title string) *models.Book {
	t.Helper()
	book := &models.Book{
		ID:          id,
		Title:       title,
		Author:      "Author of " + title,
		Genre:       "Fiction",
		Description: "About " + title,
		Copies:      2,
	}
	if err := store.CreateBook(context.Background(), book); err != nil {
		t.Fatal(err)
	}
	return book
}

func addBorrow(t *testing.T, store storage.Store, userID, bookID string, when time.Time) {
	t.Helper()
	err := store.CreateBorrowRecord(context.Background(), &models.BorrowRecord{
		ID:         fmt.Sprintf("borrow-%s-%s", userID, bookID),
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: when,
		DueDate:    when.AddDate(0, 0, 14),
		Status:     models.StatusReturned,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func addUser(t *testing.T, store storage.Store, id string) {
	t.Helper()
	err := store.CreateUser(context.Background(), &models.User{
		ID:        id,
		Email:     id + "@school.edu",
		FirstName: "Test",
		LastName:  "Student",
		Role:      models.RoleStudent,
		JoinDate:  time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

// seedLibrary creates a user with three read books plus four unread
// catalog books, newest borrow first being "read-1". The unread books
// are indexed the way the catalog loader would index them; the read
// books are left for the pipeline to embed lazily.
func seedLibrary(t *testing.T, store storage.Store, index *vector.MemoryIndex) (userID string, readIDs, unreadIDs []string) {
	t.Helper()
	userID = "user-1"
	addUser(t, store, userID)
	now := time.Now()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("read-%d", i)
		addBook(t, store, id, "Read Book "+id)
		addBorrow(t, store, userID, id, now.Add(-time.Duration(i)*24*time.Hour))
		readIDs = append(readIDs, id)
	}
	mock := embedding.NewMockEmbedder(testDimensions)
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("unread-%d", i)
		book := addBook(t, store, id, "Unread Book "+id)
		vec, err := mock.Embed(context.Background(), embedding.BookText(book))
		if err != nil {
			t.Fatal(err)
		}
		if err := index.Put(context.Background(), id, vec); err != nil {
			t.Fatal(err)
		}
		unreadIDs = append(unreadIDs, id)
	}
	return userID, readIDs, unreadIDs
}

func TestRecommend_NoHistory(t *testing.T) {
	engine, store, _ := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), &stubCompleter{})
	addUser(t, store, "user-1")

	rec, err := engine.Recommend(context.Background(), "user-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Recommendations == nil || len(rec.Recommendations) != 0 {
		t.Errorf("expected empty recommendations, got %v", rec.Recommendations)
	}
	if rec.Explanation != "Unable to generate recommendations as the student has no reading history." {
		t.Errorf("explanation: got %q", rec.Explanation)
	}
}

func TestRecommend_ChatRefinement(t *testing.T) {
	completer := &stubCompleter{response: `{
		"recommendations": [
			{"id": "unread-2", "title": "Unread Book unread-2", "author": "A", "reason": "matches your taste"},
			{"id": "unread-1", "title": "Unread Book unread-1", "author": "A", "reason": "a classic pairing"}
		],
		"explanation": "Picked for your recent reads."
	}`}
	engine, store, index := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), completer)
	userID, _, _ := seedLibrary(t, store, index)

	rec, err := engine.Recommend(context.Background(), userID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Recommendations) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(rec.Recommendations))
	}
	if rec.Recommendations[0].ID != "unread-2" || rec.Recommendations[1].ID != "unread-1" {
		t.Errorf("order: got %s, %s", rec.Recommendations[0].ID, rec.Recommendations[1].ID)
	}
	if rec.Recommendations[0].RecommendationReason != "matches your taste" {
		t.Errorf("reason: got %q", rec.Recommendations[0].RecommendationReason)
	}
	if rec.Recommendations[0].SimilarityScore == 0 {
		t.Error("similarity score should be carried from the candidate")
	}
	if rec.Explanation != "Picked for your recent reads." {
		t.Errorf("explanation: got %q", rec.Explanation)
	}

	if completer.lastReq.Temperature != 0.7 {
		t.Errorf("temperature: got %v", completer.lastReq.Temperature)
	}
	if !completer.lastReq.JSONResponse {
		t.Error("refinement should request a JSON response")
	}
	if completer.lastReq.System != "You are a helpful librarian assistant." {
		t.Errorf("system prompt: got %q", completer.lastReq.System)
	}
}

func TestRecommend_DropsUnknownIDs(t *testing.T) {
	completer := &stubCompleter{response: `{
		"recommendations": [
			{"id": "unread-1", "title": "t", "author": "a", "reason": "good fit"},
			{"id": "hallucinated-book", "title": "t", "author": "a", "reason": "made up"}
		],
		"explanation": "done"
	}`}
	engine, store, index := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), completer)
	userID, _, _ := seedLibrary(t, store, index)

	rec, err := engine.Recommend(context.Background(), userID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Recommendations) != 1 || rec.Recommendations[0].ID != "unread-1" {
		t.Errorf("expected only the known candidate, got %+v", rec.Recommendations)
	}
}

func TestRecommend_FallbackOnChatError(t *testing.T) {
	completer := &stubCompleter{err: errors.New("rate limited")}
	engine, store, index := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), completer)
	userID, readIDs, _ := seedLibrary(t, store, index)

	rec, err := engine.Recommend(context.Background(), userID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Recommendations) != 3 {
		t.Fatalf("expected 3 fallback recommendations, got %d", len(rec.Recommendations))
	}
	if rec.Explanation != "Recommendations based on books with similar themes and styles to your recent reads." {
		t.Errorf("explanation: got %q", rec.Explanation)
	}
	for i := 1; i < len(rec.Recommendations); i++ {
		if rec.Recommendations[i].SimilarityScore > rec.Recommendations[i-1].SimilarityScore {
			t.Error("fallback recommendations should keep similarity order")
		}
	}
	read := make(map[string]bool)
	for _, id := range readIDs {
		read[id] = true
	}
	for _, r := range rec.Recommendations {
		if read[r.ID] {
			t.Errorf("recommended already-read book %s", r.ID)
		}
	}
}

func TestRecommend_FallbackOnMalformedJSON(t *testing.T) {
	completer := &stubCompleter{response: "I would recommend some lovely books!"}
	engine, store, index := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), completer)
	userID, _, _ := seedLibrary(t, store, index)

	rec, err := engine.Recommend(context.Background(), userID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Recommendations) != 3 {
		t.Errorf("expected fallback recommendations, got %d", len(rec.Recommendations))
	}
	if rec.Explanation != "Recommendations based on books with similar themes and styles to your recent reads." {
		t.Errorf("explanation: got %q", rec.Explanation)
	}
}

func TestRecommend_FallbackWhenNoValidPicks(t *testing.T) {
	completer := &stubCompleter{response: `{"recommendations": [{"id": "nope", "reason": "x"}], "explanation": "y"}`}
	engine, store, index := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), completer)
	userID, _, _ := seedLibrary(t, store, index)

	rec, err := engine.Recommend(context.Background(), userID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Explanation != "Recommendations based on books with similar themes and styles to your recent reads." {
		t.Errorf("expected fallback, got %q", rec.Explanation)
	}
}

func TestRecommend_NilCompleter(t *testing.T) {
	engine, store, index := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), nil)
	userID, _, _ := seedLibrary(t, store, index)

	rec, err := engine.Recommend(context.Background(), userID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Recommendations) != 3 {
		t.Errorf("expected fallback recommendations, got %d", len(rec.Recommendations))
	}
}

func TestRecommend_AllSeedEmbeddingsFail(t *testing.T) {
	engine, store, index := newTestEngine(t, failingEmbedder{}, &stubCompleter{})
	userID, _, _ := seedLibrary(t, store, index)

	rec, err := engine.Recommend(context.Background(), userID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Recommendations) != 0 {
		t.Errorf("expected no recommendations, got %d", len(rec.Recommendations))
	}
	if rec.Explanation != "Unable to generate recommendations due to a technical issue." {
		t.Errorf("explanation: got %q", rec.Explanation)
	}
}

func TestRecommend_OneSeedEmbeddingFails(t *testing.T) {
	// The newest seed cannot be embedded; the preference vector is built
	// from the surviving seed alone.
	embedder := &selectiveEmbedder{
		MockEmbedder: embedding.NewMockEmbedder(testDimensions),
		failOn:       "Read Book read-1",
	}
	engine, store, index := newTestEngine(t, embedder, nil)
	userID, readIDs, _ := seedLibrary(t, store, index)

	rec, err := engine.Recommend(context.Background(), userID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations from the surviving seed, got %d", len(rec.Recommendations))
	}
	if rec.Explanation == "Unable to generate recommendations due to a technical issue." {
		t.Error("one failed seed must not degrade to the technical-issue result")
	}
	// Only the surviving seed was embedded and persisted.
	if _, err := store.GetEmbedding(context.Background(), readIDs[0]); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("failed seed should have no stored embedding, got %v", err)
	}
	if _, err := store.GetEmbedding(context.Background(), readIDs[1]); err != nil {
		t.Errorf("surviving seed embedding not persisted: %v", err)
	}
}

func TestRecommend_NoCandidates(t *testing.T) {
	engine, store, _ := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), &stubCompleter{})
	userID := "user-1"
	addUser(t, store, userID)
	// The only catalog book is the one the user already read.
	addBook(t, store, "only", "The Only Book")
	addBorrow(t, store, userID, "only", time.Now())

	rec, err := engine.Recommend(context.Background(), userID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Recommendations) != 0 {
		t.Errorf("expected no recommendations, got %d", len(rec.Recommendations))
	}
	if rec.Explanation != "No suitable recommendations found based on the student's reading history." {
		t.Errorf("explanation: got %q", rec.Explanation)
	}
}

func TestRecommend_PersistsEmbeddings(t *testing.T) {
	engine, store, index := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), nil)
	userID, readIDs, unreadIDs := seedLibrary(t, store, index)

	if _, err := engine.Recommend(context.Background(), userID, 3); err != nil {
		t.Fatal(err)
	}
	// Seed books are embedded lazily and written to both the store and
	// the index. readIDs[0] is the most recent borrow.
	if _, err := store.GetEmbedding(context.Background(), readIDs[0]); err != nil {
		t.Errorf("seed embedding not persisted: %v", err)
	}
	if _, ok := index.Get(context.Background(), readIDs[0]); !ok {
		t.Error("seed embedding not in index")
	}
	// Unread books only enter the index when the catalog indexes them;
	// the pipeline itself must not have embedded them here.
	if _, err := store.GetEmbedding(context.Background(), unreadIDs[0]); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unexpected embedding for unread book: %v", err)
	}
}

func TestRecommend_UsesStoredEmbeddingBeforeProvider(t *testing.T) {
	// A failing provider is fine as long as every seed already has a
	// stored embedding.
	engine, store, index := newTestEngine(t, failingEmbedder{}, nil)
	userID, readIDs, unreadIDs := seedLibrary(t, store, index)

	mock := embedding.NewMockEmbedder(testDimensions)
	for _, id := range append(append([]string{}, readIDs...), unreadIDs...) {
		book, err := store.GetBook(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		vec, _ := mock.Embed(context.Background(), embedding.BookText(book))
		if err := store.PutEmbedding(context.Background(), id, vec); err != nil {
			t.Fatal(err)
		}
	}

	rec, err := engine.Recommend(context.Background(), userID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Recommendations) == 0 {
		t.Error("expected recommendations from stored embeddings")
	}
}

func TestRecommend_EmptyUserID(t *testing.T) {
	engine, _, _ := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), nil)
	if _, err := engine.Recommend(context.Background(), "", 3); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestSimilarBooks(t *testing.T) {
	engine, store, index := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), nil)
	mock := embedding.NewMockEmbedder(testDimensions)
	for i := 1; i <= 5; i++ {
		book := addBook(t, store, fmt.Sprintf("book-%d", i), fmt.Sprintf("Book %d", i))
		vec, err := mock.Embed(context.Background(), embedding.BookText(book))
		if err != nil {
			t.Fatal(err)
		}
		if err := index.Put(context.Background(), book.ID, vec); err != nil {
			t.Fatal(err)
		}
	}

	similar, err := engine.SimilarBooks(context.Background(), "book-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(similar) != 3 {
		t.Fatalf("expected 3 similar books, got %d", len(similar))
	}
	for _, s := range similar {
		if s.ID == "book-1" {
			t.Error("source book must not be in its own similar list")
		}
		if s.RecommendationReason != "Similar to Book 1" {
			t.Errorf("reason: got %q", s.RecommendationReason)
		}
	}
	for i := 1; i < len(similar); i++ {
		if similar[i].SimilarityScore > similar[i-1].SimilarityScore {
			t.Error("similar books should be in descending similarity order")
		}
	}
}

func TestSimilarBooks_NotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), nil)
	_, err := engine.SimilarBooks(context.Background(), "missing", 3)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSimilarBooks_EmbeddingFailure(t *testing.T) {
	engine, store, _ := newTestEngine(t, failingEmbedder{}, nil)
	addBook(t, store, "book-1", "Book 1")
	if _, err := engine.SimilarBooks(context.Background(), "book-1", 3); err == nil {
		t.Error("expected error when the source embedding cannot be produced")
	}
}

func TestReadingHistory(t *testing.T) {
	engine, store, index := newTestEngine(t, embedding.NewMockEmbedder(testDimensions), nil)
	userID, readIDs, _ := seedLibrary(t, store, index)

	history, err := engine.ReadingHistory(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != len(readIDs) {
		t.Fatalf("expected %d entries, got %d", len(readIDs), len(history))
	}
	if history[0].Book.ID != "read-1" {
		t.Errorf("newest borrow first: got %s", history[0].Book.ID)
	}
}
