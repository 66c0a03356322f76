// Package archive keeps a durable record of completed conversation turns.
//
// The live session only holds the current conversation; once cleared, its
// history is gone. The archive outlives clears and restarts so that past
// practice sessions can be reviewed. Two implementations are provided:
// [MemStore] for development and tests, and [PostgresStore] backed by a
// pgx connection pool.
package archive

import (
	"context"
	"time"
)

// Turn is one committed exchange.
type Turn struct {
	// SessionID identifies the conversation the turn belongs to. A new ID is
	// assigned every time the conversation is cleared.
	SessionID string

	// Index is the 1-based turn number within the session.
	Index int

	UserText      string
	AssistantText string

	// UserAudio and AssistantAudio are the file names of the persisted
	// recordings. The files themselves are removed on clear.
	UserAudio      string
	AssistantAudio string

	CreatedAt time.Time
}

// Store records and lists archived turns. Implementations must be safe for
// concurrent use.
type Store interface {
	// RecordTurn stores t. Recording the same (SessionID, Index) twice keeps
	// the latest values.
	RecordTurn(ctx context.Context, t Turn) error

	// Turns returns the turns of sessionID ordered by Index.
	Turns(ctx context.Context, sessionID string) ([]Turn, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases held resources.
	Close()
}
