package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// AccountStore abstracts durable account persistence. It is a plain
// key-value store with optimistic versioning; all invariant enforcement
// and serialization belongs to the ledger.
type AccountStore interface {
	// Get returns the stored bytes and version for a key.
	// ok is false when the key has never been written.
	Get(key string) (data []byte, version int64, ok bool, err error)

	// Put writes data for a key. expectedVersion must match the stored
	// version (0 for a first write) or ErrVersionConflict is returned.
	Put(key string, data []byte, expectedVersion int64) error

	// List returns all stored entries. Ordering is undefined.
	List() (map[string][]byte, error)

	Close() error
}

// ImageBackend abstracts the remote text-to-image capability exposed by a
// single endpoint address. The dispatcher fans one logical request across
// several addresses through this interface.
type ImageBackend interface {
	// Generate runs a text-to-image request against one endpoint.
	// Implementations must honor ctx cancellation and deadlines.
	Generate(ctx context.Context, address string, req GenerationRequest) ([][]byte, error)

	// ListModels returns the models installed on one endpoint.
	ListModels(ctx context.Context, address string) ([]ModelInfo, error)
}
