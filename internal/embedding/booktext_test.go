package embedding

import (
	"strings"
	"testing"

	"github.com/Jullian93/BookBuddy/internal/models"
)

func TestBookText(t *testing.T) {
	book := &models.Book{
		ID:              "b1",
		Title:           "The Left Hand of Darkness",
		Author:          "Ursula K. Le Guin",
		Genre:           "Science Fiction",
		PublicationYear: 1969,
		Description:     "An envoy on a planet of ambisexual people.",
	}
	text := BookText(book)
	for _, want := range []string{
		"Title: The Left Hand of Darkness",
		"Author: Ursula K. Le Guin",
		"Genre: Science Fiction",
		"Publication Year: 1969",
		"Description: An envoy",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("book text missing %q:\n%s", want, text)
		}
	}
	if text != BookText(book) {
		t.Error("book text is not deterministic")
	}
}
