package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/andrew/rag-chat/pkg/llm"
	"github.com/andrew/rag-chat/pkg/logging"
	"github.com/andrew/rag-chat/pkg/vector"
)

// Provider returns the text snippets most relevant to a query
type Provider interface {
	// Search returns at most k snippets, most relevant first. An empty
	// result is not an error.
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// Config contains configuration for a retrieval service
type Config struct {
	// ScoreThreshold is the minimum similarity score for results
	ScoreThreshold float32
}

// VectorProvider embeds the query and searches a vector store
type VectorProvider struct {
	embedder llm.Embedder
	store    vector.Store
	config   Config
}

var _ Provider = (*VectorProvider)(nil)

// NewVectorProvider creates a provider over embedder and store
func NewVectorProvider(embedder llm.Embedder, store vector.Store, config Config) *VectorProvider {
	return &VectorProvider{
		embedder: embedder,
		store:    store,
		config:   config,
	}
}

// Search embeds query and returns the matching chunk texts. Chunks carrying
// a source are prefixed with a "# SOURCE:" header.
func (p *VectorProvider) Search(ctx context.Context, query string, k int) ([]string, error) {
	embedding, err := p.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := p.store.Search(ctx, embedding, k)
	if err != nil {
		return nil, err
	}

	snippets := make([]string, 0, len(results))
	for i, r := range results {
		if r.Score < p.config.ScoreThreshold {
			continue
		}
		logging.Debugf("🔍 [%d] Source: %s, Score: %.4f", i+1, r.Chunk.Source, r.Score)

		if r.Chunk.Source != "" {
			snippets = append(snippets, fmt.Sprintf("# SOURCE: %s\n\n%s", r.Chunk.Source, r.Chunk.Content))
		} else {
			snippets = append(snippets, r.Chunk.Content)
		}
	}
	return snippets, nil
}

// JoinSnippets builds the retrieval context string for a prompt
func JoinSnippets(snippets []string) string {
	return strings.Join(snippets, "\n")
}
