// Package models defines core data structures for books, users, borrow records, and recommendations.
package models

import "time"

// Book represents a book in the library catalog.
type Book struct {
	ID              string `json:"id" db:"id"`
	Title           string `json:"title" db:"title"`
	Author          string `json:"author" db:"author"`
	ISBN            string `json:"isbn,omitempty" db:"isbn"`
	Genre           string `json:"genre" db:"genre"`
	PublicationYear int    `json:"publication_year" db:"publication_year"`
	Publisher       string `json:"publisher,omitempty" db:"publisher"`
	Description     string `json:"description" db:"description"`
	Copies          int    `json:"copies" db:"copies"`
	CopiesAvailable int    `json:"copies_available" db:"copies_available"`
	CoverImage      string `json:"cover_image,omitempty" db:"cover_image"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Available reports whether at least one copy can be borrowed.
func (b *Book) Available() bool {
	return b.CopiesAvailable > 0
}

// BookInput is the input for creating or updating a catalog book.
type BookInput struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn,omitempty"`
	Genre           string `json:"genre"`
	PublicationYear int    `json:"publication_year"`
	Publisher       string `json:"publisher,omitempty"`
	Description     string `json:"description"`
	Copies          int    `json:"copies,omitempty"`
	CoverImage      string `json:"cover_image,omitempty"`
}
