// Package storage provides the durable key-value persistence surface used by
// the long-term memory tier. A record is one serialized memory entry keyed by
// its id; the full record set is enumerable so the in-memory index can be
// rebuilt at startup.
//
// Records are self-describing JSON with field names preserved, so a format
// change stays forward-compatible: decoders ignore unknown fields.
package storage

import (
	"context"

	"github.com/BaSui01/memflow/types"
)

// Store is the durable persistence surface consumed by the long-term tier.
type Store interface {
	// Write persists one entry, replacing any record with the same id.
	Write(ctx context.Context, entry *types.MemoryEntry) error

	// ReadAll enumerates every decodable record. Corrupt records are skipped,
	// not fatal; their count is reported so the operator surface can expose
	// it.
	ReadAll(ctx context.Context) (entries []*types.MemoryEntry, corrupt int, err error)

	// Delete removes the record with the given id. Deleting a missing id is
	// not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying resources. Writes after Close fail with
	// STORE_CLOSED.
	Close() error
}

// errClosed is returned by stores after Close.
func errClosed() *types.Error {
	return types.NewError(types.ErrStoreClosed, "storage backend is closed")
}

// persistenceErr wraps a backend failure in the engine taxonomy.
func persistenceErr(msg string, cause error) *types.Error {
	return types.NewError(types.ErrPersistenceFailure, msg).WithCause(cause).WithRetryable(true)
}
