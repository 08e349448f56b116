package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Jullian93/BookBuddy/internal/models"
	"github.com/Jullian93/BookBuddy/internal/vector"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT,
		genre TEXT NOT NULL,
		publication_year INTEGER NOT NULL,
		publisher TEXT,
		description TEXT NOT NULL,
		copies INTEGER NOT NULL DEFAULT 1,
		copies_available INTEGER NOT NULL DEFAULT 1,
		cover_image TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_books_genre ON books(genre);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		role TEXT NOT NULL,
		student_id TEXT,
		department TEXT,
		join_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS borrow_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		book_id TEXT NOT NULL,
		borrow_date TIMESTAMP NOT NULL,
		due_date TIMESTAMP NOT NULL,
		return_date TIMESTAMP,
		status TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (book_id) REFERENCES books(id)
	);

	CREATE INDEX IF NOT EXISTS idx_borrow_user_date ON borrow_records(user_id, borrow_date DESC);

	CREATE TABLE IF NOT EXISTS book_embeddings (
		book_id TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateBook inserts a book.
func (s *SQLiteStore) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now
	if book.CopiesAvailable == 0 && book.Copies > 0 {
		book.CopiesAvailable = book.Copies
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (id, title, author, isbn, genre, publication_year, publisher,
		                    description, copies, copies_available, cover_image, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, book.ISBN, book.Genre, book.PublicationYear,
		book.Publisher, book.Description, book.Copies, book.CopiesAvailable, book.CoverImage,
		book.CreatedAt, book.UpdatedAt,
	)
	return err
}

// GetBook returns a book by ID.
func (s *SQLiteStore) GetBook(ctx context.Context, id string) (*models.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, author, isbn, genre, publication_year, publisher,
		        description, copies, copies_available, cover_image, created_at, updated_at
		 FROM books WHERE id = ?`, id,
	)
	book, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return book, nil
}

// UpdateBook updates an existing book.
func (s *SQLiteStore) UpdateBook(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, isbn = ?, genre = ?, publication_year = ?,
		        publisher = ?, description = ?, copies = ?, copies_available = ?, cover_image = ?, updated_at = ?
		 WHERE id = ?`,
		book.Title, book.Author, book.ISBN, book.Genre, book.PublicationYear,
		book.Publisher, book.Description, book.Copies, book.CopiesAvailable, book.CoverImage,
		book.UpdatedAt, book.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("book %s: %w", book.ID, ErrNotFound)
	}
	return nil
}

// DeleteBook removes a book by ID. Its embedding row is removed by cascade.
func (s *SQLiteStore) DeleteBook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListBooks returns books with offset and limit, newest first.
func (s *SQLiteStore) ListBooks(ctx context.Context, offset, limit int) ([]*models.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, author, isbn, genre, publication_year, publisher,
		        description, copies, copies_available, cover_image, created_at, updated_at
		 FROM books ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// CountBooks returns the total number of books.
func (s *SQLiteStore) CountBooks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&count)
	return count, err
}

// CreateUser inserts a user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.JoinDate.IsZero() {
		user.JoinDate = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, role, student_id, department, join_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.Role,
		user.StudentID, user.Department, user.JoinDate,
	)
	return err
}

// GetUser returns a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	var studentID, department sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, role, student_id, department, join_date
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &studentID, &department, &u.JoinDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	u.StudentID = studentID.String
	u.Department = department.String
	return &u, nil
}

// CountUsers returns the total number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateBorrowRecord inserts a borrow record.
func (s *SQLiteStore) CreateBorrowRecord(ctx context.Context, rec *models.BorrowRecord) error {
	var returnDate interface{}
	if rec.ReturnDate != nil {
		returnDate = *rec.ReturnDate
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO borrow_records (id, user_id, book_id, borrow_date, due_date, return_date, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.BookID, rec.BorrowDate, rec.DueDate, returnDate, rec.Status,
	)
	return err
}

// GetReadingHistory returns up to limit borrow records for the user,
// newest borrow first, joined with book details. Records whose book has
// been removed from the catalog are skipped.
func (s *SQLiteStore) GetReadingHistory(ctx context.Context, userID string, limit int) ([]*models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.user_id, r.book_id, r.borrow_date, r.due_date, r.return_date, r.status,
		        b.id, b.title, b.author, b.isbn, b.genre, b.publication_year, b.publisher,
		        b.description, b.copies, b.copies_available, b.cover_image, b.created_at, b.updated_at
		 FROM borrow_records r
		 JOIN books b ON b.id = r.book_id
		 WHERE r.user_id = ?
		 ORDER BY r.borrow_date DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		var book models.Book
		var returnDate sql.NullTime
		var bookISBN, bookPublisher, bookCover sql.NullString
		err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.BookID, &entry.BorrowDate, &entry.DueDate, &returnDate, &entry.Status,
			&book.ID, &book.Title, &book.Author, &bookISBN, &book.Genre, &book.PublicationYear, &bookPublisher,
			&book.Description, &book.Copies, &book.CopiesAvailable, &bookCover, &book.CreatedAt, &book.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if returnDate.Valid {
			t := returnDate.Time
			entry.ReturnDate = &t
		}
		book.ISBN = bookISBN.String
		book.Publisher = bookPublisher.String
		book.CoverImage = bookCover.String
		entry.Book = &book
		history = append(history, &entry)
	}
	return history, rows.Err()
}

// GetEmbedding returns the persisted embedding for a book, or ErrNotFound.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, bookID string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM book_embeddings WHERE book_id = ?`, bookID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("embedding for book %s: %w", bookID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return vector.DecodeFloat32(blob), nil
}

// PutEmbedding upserts the embedding for a book. At most one row exists
// per book id; a second put overwrites the first.
func (s *SQLiteStore) PutEmbedding(ctx context.Context, bookID string, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO book_embeddings (book_id, embedding, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(book_id) DO UPDATE SET embedding = excluded.embedding, updated_at = excluded.updated_at`,
		bookID, vector.EncodeFloat32(embedding), time.Now(),
	)
	return err
}

// ListEmbeddings returns every persisted embedding, used to warm the
// in-memory index at startup.
func (s *SQLiteStore) ListEmbeddings(ctx context.Context) ([]*BookEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id, embedding FROM book_embeddings ORDER BY rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BookEmbedding
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out = append(out, &BookEmbedding{BookID: id, Embedding: vector.DecodeFloat32(blob)})
	}
	return out, rows.Err()
}

// CountEmbeddings returns the number of persisted embeddings.
func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM book_embeddings`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBook(row rowScanner) (*models.Book, error) {
	var book models.Book
	var isbn, publisher, cover sql.NullString
	err := row.Scan(
		&book.ID, &book.Title, &book.Author, &isbn, &book.Genre, &book.PublicationYear,
		&publisher, &book.Description, &book.Copies, &book.CopiesAvailable, &cover,
		&book.CreatedAt, &book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	book.ISBN = isbn.String
	book.Publisher = publisher.String
	book.CoverImage = cover.String
	return &book, nil
}
