package models

import "time"

// Chunk represents a piece of an indexed document
type Chunk struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Source   string            `json:"source,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult represents a document chunk that matched a query
type SearchResult struct {
	Chunk       Chunk     `json:"chunk"`
	Score       float32   `json:"score"`
	RetrievedAt time.Time `json:"retrieved_at"`
}
