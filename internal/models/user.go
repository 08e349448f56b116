package models

import "time"

// User roles.
const (
	RoleStudent   = "student"
	RoleLibrarian = "librarian"
)

// User represents a library member.
type User struct {
	ID         string    `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	Role       string    `json:"role" db:"role"`
	StudentID  string    `json:"student_id,omitempty" db:"student_id"`
	Department string    `json:"department,omitempty" db:"department"`
	JoinDate   time.Time `json:"join_date" db:"join_date"`
}

// Borrow record statuses.
const (
	StatusBorrowed = "borrowed"
	StatusReturned = "returned"
	StatusOverdue  = "overdue"
)

// BorrowRecord links a user and a book with borrow, due, and return dates.
type BorrowRecord struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"user_id" db:"user_id"`
	BookID     string     `json:"book_id" db:"book_id"`
	BorrowDate time.Time  `json:"borrow_date" db:"borrow_date"`
	DueDate    time.Time  `json:"due_date" db:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty" db:"return_date"`
	Status     string     `json:"status" db:"status"`
}

// HistoryEntry is a borrow record joined with its book, as returned by
// the reading-history query (newest borrow first).
type HistoryEntry struct {
	BorrowRecord
	Book *Book `json:"book"`
}
