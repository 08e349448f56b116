package recommend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Jullian93/BookBuddy/internal/models"
)

const refinementSystemPrompt = "You are a helpful librarian assistant."

// refinement is the JSON shape the chat model is asked to produce.
type refinement struct {
	Recommendations []refinementPick `json:"recommendations"`
	Explanation     string           `json:"explanation"`
}

type refinementPick struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Reason string `json:"reason"`
}

// promptBook is the book view given to the model. Only fields that
// help it choose; ids let us join the answer back to the catalog.
type promptBook struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre,omitempty"`
	Description string `json:"description,omitempty"`
}

// promptCandidate is a promptBook plus its similarity score, so the
// model sees the ranking signal. Recent reads carry no score.
type promptCandidate struct {
	promptBook
	SimilarityScore float64 `json:"similarity_score"`
}

// buildRefinementPrompt renders the user message for refinement: the
// books recently read, the candidate list, and the answer contract.
func buildRefinementPrompt(seeds []*models.HistoryEntry, candidates []*models.RecommendedBook, n int) (string, error) {
	recent := make([]promptBook, 0, len(seeds))
	for _, entry := range seeds {
		recent = append(recent, toPromptBook(entry.Book))
	}
	pool := make([]promptCandidate, 0, len(candidates))
	for _, c := range candidates {
		pool = append(pool, promptCandidate{
			promptBook:      toPromptBook(c.Book),
			SimilarityScore: c.SimilarityScore,
		})
	}

	recentJSON, err := json.MarshalIndent(recent, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal recent reads: %w", err)
	}
	poolJSON, err := json.MarshalIndent(pool, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A student recently read these books:\n%s\n\n", recentJSON)
	fmt.Fprintf(&b, "Here are candidate books from the library catalog, ranked by similarity:\n%s\n\n", poolJSON)
	fmt.Fprintf(&b, "Select the %d best recommendations for this student from the candidates.\n", n)
	b.WriteString("Only choose books from the candidate list, identified by their id.\n")
	b.WriteString("Respond with JSON in exactly this format:\n")
	b.WriteString(`{"recommendations": [{"id": "...", "title": "...", "author": "...", "reason": "..."}], "explanation": "..."}` + "\n")
	b.WriteString("Each reason should say, in one sentence, why the book fits this student's reading history. ")
	b.WriteString("The explanation should summarize the overall selection.")
	return b.String(), nil
}

func toPromptBook(book *models.Book) promptBook {
	return promptBook{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		Genre:       book.Genre,
		Description: book.Description,
	}
}

// parseRefinement decodes the model's JSON answer.
func parseRefinement(raw string) (*refinement, error) {
	var out refinement
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse refinement response: %w", err)
	}
	return &out, nil
}
