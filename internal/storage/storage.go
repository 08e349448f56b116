// Package storage defines the persistence interface for the library catalog.
package storage

import (
	"context"
	"errors"

	"github.com/Jullian93/BookBuddy/internal/models"
)

// ErrNotFound is returned when a book, user, or embedding does not exist.
var ErrNotFound = errors.New("not found")

// BookEmbedding pairs a book id with its persisted embedding, used to
// warm the in-memory index at startup.
type BookEmbedding struct {
	BookID    string
	Embedding []float32
}

// Store defines catalog persistence: books, users, borrow records, and
// book embeddings. The recommendation pipeline depends only on this
// interface, never on a concrete backend.
type Store interface {
	// Book operations
	CreateBook(ctx context.Context, book *models.Book) error
	GetBook(ctx context.Context, id string) (*models.Book, error)
	UpdateBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, id string) error
	ListBooks(ctx context.Context, offset, limit int) ([]*models.Book, error)
	CountBooks(ctx context.Context) (int64, error)

	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Borrow records
	CreateBorrowRecord(ctx context.Context, rec *models.BorrowRecord) error
	// GetReadingHistory returns up to limit borrow records for the user,
	// newest borrow first, each joined with its book.
	GetReadingHistory(ctx context.Context, userID string, limit int) ([]*models.HistoryEntry, error)

	// Embeddings: at most one per book id, upsert semantics.
	GetEmbedding(ctx context.Context, bookID string) ([]float32, error)
	PutEmbedding(ctx context.Context, bookID string, embedding []float32) error
	ListEmbeddings(ctx context.Context) ([]*BookEmbedding, error)
	CountEmbeddings(ctx context.Context) (int64, error)

	Close() error
}
