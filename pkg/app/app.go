// Package app wires the configured providers and session store into a chat
// orchestrator for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/andrew/rag-chat/pkg/chat"
	"github.com/andrew/rag-chat/pkg/config"
	"github.com/andrew/rag-chat/pkg/llm"
	"github.com/andrew/rag-chat/pkg/logging"
	"github.com/andrew/rag-chat/pkg/retrieval"
	"github.com/andrew/rag-chat/pkg/session"
	"github.com/andrew/rag-chat/pkg/vector"
)

// App owns the long-lived resources behind the orchestrator.
type App struct {
	Chat *chat.Orchestrator

	store   session.Store
	vectors vector.Store
}

// Build connects to Ollama and Qdrant, opens the session store and returns
// the assembled App. Close must be called to release connections.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Embeddings always come from Ollama; the index was built with it.
	embedder, err := llm.NewOllamaClient(cfg.OllamaHost, cfg.OllamaModel, llm.DefaultModelConfig())
	if err != nil {
		return nil, err
	}
	embedder.WithEmbedModel(cfg.OllamaEmbedModel)

	logging.Debugf("🔄 Connecting to Ollama server at %s", cfg.OllamaHost)
	if err := embedder.Ping(ctx); err != nil {
		logging.Warnf("Make sure the Ollama server is running: ollama serve")
		return nil, err
	}
	logging.Debugf("✅ Successfully connected to Ollama server")

	completer, err := llm.NewCompleter(cfg)
	if err != nil {
		return nil, err
	}

	qdrant, err := vector.NewQdrantStore(cfg.QdrantAddr(), cfg.QdrantCollection)
	if err != nil {
		return nil, err
	}
	if err := qdrant.VerifyCollection(ctx); err != nil {
		qdrant.Close()
		return nil, fmt.Errorf("Qdrant collection issue: %w. Did you run the indexer first?", err)
	}
	logging.Debugf("✅ Connected to Qdrant at %s", cfg.QdrantAddr())

	store, err := session.Open(cfg.SessionStore, cfg.SessionDSN)
	if err != nil {
		qdrant.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	orchestrator := chat.New(
		store,
		retrieval.NewVectorProvider(embedder, qdrant, retrieval.Config{}),
		completer,
		chat.WithTopK(cfg.TopK),
		chat.WithHistoryWindow(cfg.HistoryWindow),
	)

	return &App{Chat: orchestrator, store: store, vectors: qdrant}, nil
}

// Close releases the session store and the vector store connection.
func (a *App) Close() error {
	return errors.Join(a.store.Close(), a.vectors.Close())
}
