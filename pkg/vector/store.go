package vector

import (
	"context"

	"github.com/andrew/rag-chat/pkg/models"
)

// Store defines the read side of a vector database
type Store interface {
	// Search finds the most similar chunks to the given query vector
	Search(ctx context.Context, queryVector []float32, limit int) ([]models.SearchResult, error)

	// Close releases resources used by the vector store
	Close() error
}

// Payload fields written by the indexer for every point
const (
	PayloadText   = "text"
	PayloadSource = "source"
)
