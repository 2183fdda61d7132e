package models

// Fragment is one overlapping chunk of an indexed source document.
type Fragment struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Index      int       `json:"index"`
	Embedding  []float64 `json:"-"`
}

// FragmentMatch pairs a fragment with its similarity score for one query.
type FragmentMatch struct {
	Fragment Fragment `json:"fragment"`
	Score    float64  `json:"score"`
}
