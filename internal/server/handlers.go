package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jullian93/BookBuddy/internal/models"
	"github.com/Jullian93/BookBuddy/internal/storage"
)

const defaultBorrowDays = 14

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	n := queryInt(r, "n", 0)
	s.logger.Debug("recommendations request", zap.String("user_id", userID), zap.Int("n", n))

	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rec, err := s.engine.Recommend(r.Context(), userID, n)
	if err != nil {
		s.logger.Error("recommendation failed", zap.String("user_id", userID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReadingHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	history, err := s.engine.ReadingHistory(r.Context(), userID)
	if err != nil {
		s.logger.Error("reading history failed", zap.String("user_id", userID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (s *Server) handleSimilarBooks(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 0)
	s.logger.Debug("similar books request", zap.String("book_id", bookID), zap.Int("limit", limit))

	similar, err := s.engine.SimilarBooks(r.Context(), bookID, limit)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "book not found")
			return
		}
		s.logger.Error("similar books failed", zap.String("book_id", bookID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"similar_books": similar})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}
	books, err := s.store.ListBooks(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.store.CountBooks(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"books":  books,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var input models.BookInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Title == "" || input.Author == "" {
		s.respondError(w, http.StatusBadRequest, "title and author are required")
		return
	}
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
	}
	if err := s.store.CreateBook(r.Context(), book); err != nil {
		s.logger.Error("create book failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Embedding is best effort; the book is usable without one and gets
	// embedded lazily on first recommendation touch.
	if err := s.loader.EmbedBook(r.Context(), book); err != nil {
		s.logger.Warn("embedding new book failed", zap.String("book_id", book.ID), zap.Error(err))
	}
	created, err := s.store.GetBook(r.Context(), book.ID)
	if err != nil {
		created = book
	}
	s.respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	book, err := s.store.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "book not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete book request", zap.String("id", id))
	if err := s.store.DeleteBook(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "book not found")
			return
		}
		s.logger.Error("delete book failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.index.Remove(r.Context(), []string{id}); err != nil {
		s.logger.Warn("index remove failed", zap.String("book_id", id), zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type createUserRequest struct {
	ID         string `json:"id,omitempty"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       string `json:"role,omitempty"`
	StudentID  string `json:"student_id,omitempty"`
	Department string `json:"department,omitempty"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		s.respondError(w, http.StatusBadRequest, "email is required")
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}
	if role != models.RoleStudent && role != models.RoleLibrarian {
		s.respondError(w, http.StatusBadRequest, "invalid role")
		return
	}
	user := &models.User{
		ID:         req.ID,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       role,
		StudentID:  req.StudentID,
		Department: req.Department,
		JoinDate:   time.Now().UTC(),
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.logger.Error("create user failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

type createBorrowRequest struct {
	UserID     string     `json:"user_id"`
	BookID     string     `json:"book_id"`
	BorrowDate *time.Time `json:"borrow_date,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Status     string     `json:"status,omitempty"`
}

func (s *Server) handleCreateBorrowRecord(w http.ResponseWriter, r *http.Request) {
	var req createBorrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.BookID == "" {
		s.respondError(w, http.StatusBadRequest, "user_id and book_id are required")
		return
	}
	if _, err := s.store.GetUser(r.Context(), req.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	book, err := s.store.GetBook(r.Context(), req.BookID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "book not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	borrowDate := time.Now().UTC()
	if req.BorrowDate != nil {
		borrowDate = *req.BorrowDate
	}
	dueDate := borrowDate.AddDate(0, 0, defaultBorrowDays)
	if req.DueDate != nil {
		dueDate = *req.DueDate
	}
	status := req.Status
	if status == "" {
		status = models.StatusBorrowed
	}
	if req.ReturnDate != nil && req.Status == "" {
		status = models.StatusReturned
	}
	switch status {
	case models.StatusBorrowed, models.StatusReturned, models.StatusOverdue:
	default:
		s.respondError(w, http.StatusBadRequest, "invalid status")
		return
	}
	// An active borrow takes a copy off the shelf. Returned records are
	// historical imports and leave availability alone.
	if status != models.StatusReturned {
		if !book.Available() {
			s.respondError(w, http.StatusConflict, "no copies available")
			return
		}
		book.CopiesAvailable--
		if err := s.store.UpdateBook(r.Context(), book); err != nil {
			s.logger.Error("update book availability failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	record := &models.BorrowRecord{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		BookID:     req.BookID,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		ReturnDate: req.ReturnDate,
		Status:     status,
	}
	if err := s.store.CreateBorrowRecord(r.Context(), record); err != nil {
		s.logger.Error("create borrow record failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, record)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bookCount, err := s.store.CountBooks(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	userCount, err := s.store.CountUsers(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	embeddingCount, err := s.store.CountEmbeddings(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"books":             bookCount,
		"users":             userCount,
		"embeddings":        embeddingCount,
		"vector_index_size": s.index.Size(),
	}
	if !s.started.IsZero() {
		resp["uptime_seconds"] = int64(time.Since(s.started).Seconds())
	}
	resp["config"] = map[string]interface{}{
		"embedding_model":      s.config.Provider.EmbeddingModel,
		"chat_model":           s.config.Provider.ChatModel,
		"embedding_dimensions": s.config.Provider.Dimensions,
		"database_path":        s.config.Storage.DatabasePath,
		"vector_index_path":    s.config.Storage.VectorIndexPath,
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.VectorIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
