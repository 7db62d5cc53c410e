// Package store provides the shared durable key/value state store backing
// checkpoints, the mapping manifest, and build artifacts.
//
// Two backends exist behind one interface: a SurrealDB-backed durable store
// and an in-process map used as fallback when the database is unreachable.
// Backend selection is transparent to callers. All values are stored as JSON.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Store is the shared key/value state store.
//
// Get never returns an error on a miss; a missing or unreadable key is
// simply (nil, false). Keys are expected to be namespaced by job or source
// (e.g. "checkpoint/<source>/<phase>") so concurrent jobs do not collide.
type Store interface {
	// Set stores a JSON-serializable value. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get returns the raw JSON for key, or (nil, false) when absent.
	Get(ctx context.Context, key string) (json.RawMessage, bool)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeys returns all keys with the given prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Backend identifies the active backend ("surrealdb" or "memory").
	Backend() string
}

// Config holds connection settings for the durable backend.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// Open connects to the durable SurrealDB backend, falling back to the
// in-process store when the connection fails. The fallback is logged but not
// an error: a migration run with only in-memory state is still valid, it
// just cannot be resumed after a process restart.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := NewSurrealStore(ctx, cfg, logger)
	if err != nil {
		logger.Warn("durable state store unavailable, falling back to in-memory",
			"url", cfg.URL, "error", err)
		return NewMemoryStore()
	}

	logger.Info("state store connected", "backend", s.Backend(), "url", cfg.URL)
	return s
}

// GetJSON reads key and decodes it into T. A miss or decode failure returns
// (zero, false).
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool) {
	var out T
	raw, ok := s.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// UpdateMap merges updates into the map stored at key and writes it back.
//
// This is a read-modify-write: it is safe only under a single writer per
// key. The store provides no locking; callers must not mutate the same key
// from two phases or two jobs concurrently.
func UpdateMap(ctx context.Context, s Store, key string, updates map[string]any) (map[string]any, error) {
	current, _ := GetJSON[map[string]any](ctx, s, key)
	if current == nil {
		current = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		current[k] = v
	}
	if err := s.Set(ctx, key, current, 0); err != nil {
		return nil, fmt.Errorf("update map %q: %w", key, err)
	}
	return current, nil
}

// AppendList appends item to the list stored at key and returns the new
// length. Same single-writer-per-key constraint as UpdateMap.
func AppendList(ctx context.Context, s Store, key string, item any) (int, error) {
	current, _ := GetJSON[[]json.RawMessage](ctx, s, key)

	raw, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("marshal list item: %w", err)
	}
	current = append(current, raw)

	if err := s.Set(ctx, key, current, 0); err != nil {
		return 0, fmt.Errorf("append to list %q: %w", key, err)
	}
	return len(current), nil
}
