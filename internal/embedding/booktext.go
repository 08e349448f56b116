package embedding

import (
	"fmt"
	"strings"

	"github.com/Jullian93/BookBuddy/internal/models"
)

// BookText builds the deterministic text representation of a book used
// as embedding input. The same book always yields the same text, so
// re-embedding is idempotent.
func BookText(book *models.Book) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", book.Title)
	fmt.Fprintf(&b, "Author: %s\n", book.Author)
	fmt.Fprintf(&b, "Genre: %s\n", book.Genre)
	fmt.Fprintf(&b, "Publication Year: %d\n", book.PublicationYear)
	fmt.Fprintf(&b, "Description: %s", book.Description)
	return b.String()
}
