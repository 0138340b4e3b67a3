// Package session keeps the per-session chat transcripts that are replayed
// into every prompt.
//
// A session is created lazily by its first Append and lives until it is
// cleared. Message order within a session is append-only; implementations
// serialize appends per session id so a multi-message Append is never
// interleaved with another caller's messages.
package session

import (
	"context"
	"fmt"

	"github.com/andrew/rag-chat/pkg/models"
)

// Store defines the operations on session transcripts.
type Store interface {
	// Append adds msgs to the end of the session, creating it if needed.
	Append(ctx context.Context, sessionID string, msgs ...models.Message) error

	// List returns a copy of the session's messages in chronological order.
	// Unknown sessions yield an empty slice.
	List(ctx context.Context, sessionID string) ([]models.Message, error)

	// Clear removes a session's history entirely.
	Clear(ctx context.Context, sessionID string) error

	// ClearAll resets the store to empty.
	ClearAll(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Open creates the store for the named backend. dsn is ignored by the
// memory backend.
func Open(backend, dsn string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(dsn)
	case BackendBolt:
		return NewBoltStore(dsn)
	default:
		return nil, fmt.Errorf("unknown session store backend: %s", backend)
	}
}
