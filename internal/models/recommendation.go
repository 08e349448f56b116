package models

// RecommendedBook is a book annotated with its similarity score and a
// natural-language reason for recommending it.
type RecommendedBook struct {
	*Book
	SimilarityScore      float64 `json:"similarity_score"`
	RecommendationReason string  `json:"recommendation_reason,omitempty"`
}

// Recommendation is the result of the recommendation pipeline: an ordered
// list of books plus one overall explanation. The list may be empty; the
// explanation always says why.
type Recommendation struct {
	Recommendations []*RecommendedBook `json:"recommendations"`
	Explanation     string             `json:"explanation"`
}
