// Package catalog loads book catalog files into the store and keeps the
// vector index in sync with them.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jullian93/BookBuddy/internal/embedding"
	"github.com/Jullian93/BookBuddy/internal/models"
	"github.com/Jullian93/BookBuddy/internal/storage"
	"github.com/Jullian93/BookBuddy/internal/vector"
)

// Loader imports catalog files and embeds books into the index.
type Loader struct {
	store    storage.Store
	embedder embedding.Embedder
	index    vector.Index
	logger   *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets a logger for load progress and per-book failures.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// NewLoader creates a catalog loader.
func NewLoader(store storage.Store, embedder embedding.Embedder, index vector.Index, opts ...LoaderOption) *Loader {
	ld := &Loader{
		store:    store,
		embedder: embedder,
		index:    index,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// LoadResult summarizes a catalog import.
type LoadResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// LoadFile imports a JSON array of books from path. Existing books
// (matched by id) are updated, new ones created and embedded. A book
// that fails to embed is still stored; the failure is counted and the
// load continues.
func (ld *Loader) LoadFile(ctx context.Context, path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var inputs []*models.BookInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	result := &LoadResult{}
	for _, input := range inputs {
		if input.Title == "" || input.Author == "" {
			ld.logger.Warn("skipping catalog entry without title or author")
			result.Failed++
			continue
		}
		book, created, err := ld.upsert(ctx, input)
		if err != nil {
			ld.logger.Warn("catalog upsert failed",
				zap.String("title", input.Title), zap.Error(err))
			result.Failed++
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		if err := ld.EmbedBook(ctx, book); err != nil {
			ld.logger.Warn("catalog embedding failed",
				zap.String("book_id", book.ID), zap.Error(err))
			result.Failed++
			continue
		}
		result.Embedded++
	}
	ld.logger.Info("catalog loaded",
		zap.String("path", path),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("embedded", result.Embedded),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (ld *Loader) upsert(ctx context.Context, input *models.BookInput) (*models.Book, bool, error) {
	copies := input.Copies
	if copies <= 0 {
		copies = 1
	}
	book := &models.Book{
		ID:              input.ID,
		Title:           input.Title,
		Author:          input.Author,
		ISBN:            input.ISBN,
		Genre:           input.Genre,
		PublicationYear: input.PublicationYear,
		Publisher:       input.Publisher,
		Description:     input.Description,
		Copies:          copies,
		CoverImage:      input.CoverImage,
	}
	if book.ID == "" {
		book.ID = uuid.NewString()
		return book, true, ld.store.CreateBook(ctx, book)
	}
	existing, err := ld.store.GetBook(ctx, book.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return book, true, ld.store.CreateBook(ctx, book)
	}
	if err != nil {
		return nil, false, err
	}
	// Keep availability; a catalog reload must not return borrowed copies.
	borrowed := existing.Copies - existing.CopiesAvailable
	book.CopiesAvailable = copies - borrowed
	if book.CopiesAvailable < 0 {
		book.CopiesAvailable = 0
	}
	return book, false, ld.store.UpdateBook(ctx, book)
}

// EmbedBook computes the book's embedding and writes it to the store and
// the index.
func (ld *Loader) EmbedBook(ctx context.Context, book *models.Book) error {
	vec, err := ld.embedder.Embed(ctx, embedding.BookText(book))
	if err != nil {
		return err
	}
	if err := ld.store.PutEmbedding(ctx, book.ID, vec); err != nil {
		return err
	}
	return ld.index.Put(ctx, book.ID, vec)
}

// WarmIndex loads every persisted embedding from the store into the
// index. Called at startup so searches work before any request embeds
// anything.
func (ld *Loader) WarmIndex(ctx context.Context) (int, error) {
	stored, err := ld.store.ListEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("list embeddings: %w", err)
	}
	loaded := 0
	for _, be := range stored {
		if err := ld.index.Put(ctx, be.BookID, be.Embedding); err != nil {
			ld.logger.Warn("skipping stored embedding",
				zap.String("book_id", be.BookID), zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded, nil
}

// EmbedMissing embeds every catalog book that has no stored embedding.
// Returns how many books were embedded.
func (ld *Loader) EmbedMissing(ctx context.Context) (int, error) {
	const pageSize = 200
	embedded := 0
	for offset := 0; ; offset += pageSize {
		books, err := ld.store.ListBooks(ctx, offset, pageSize)
		if err != nil {
			return embedded, fmt.Errorf("list books: %w", err)
		}
		if len(books) == 0 {
			return embedded, nil
		}
		for _, book := range books {
			if _, ok := ld.index.Get(ctx, book.ID); ok {
				continue
			}
			if _, err := ld.store.GetEmbedding(ctx, book.ID); err == nil {
				continue
			} else if !errors.Is(err, storage.ErrNotFound) {
				return embedded, err
			}
			if err := ld.EmbedBook(ctx, book); err != nil {
				ld.logger.Warn("embedding failed",
					zap.String("book_id", book.ID), zap.Error(err))
				continue
			}
			embedded++
		}
	}
}
