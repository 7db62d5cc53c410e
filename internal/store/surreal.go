package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// schemaSQL defines the single key/value table backing the state store.
// Values are stored as JSON strings; expiry is tracked as a unix timestamp
// and enforced on read.
const schemaSQL = `
DEFINE TABLE IF NOT EXISTS state SCHEMAFULL;
DEFINE FIELD IF NOT EXISTS key ON state TYPE string;
DEFINE FIELD IF NOT EXISTS value ON state TYPE string;
DEFINE FIELD IF NOT EXISTS expires_at ON state TYPE option<number>;
DEFINE INDEX IF NOT EXISTS state_key ON state FIELDS key UNIQUE;
`

// SurrealStore is the durable SurrealDB-backed state store.
type SurrealStore struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    Config
	logger *slog.Logger
}

// stateRow is the at-rest row shape for one key/value pair.
type stateRow struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`
}

// NewSurrealStore connects to SurrealDB with an auto-reconnecting WebSocket
// and initializes the state schema.
func NewSurrealStore(ctx context.Context, cfg Config, log *slog.Logger) (*SurrealStore, error) {
	var sdkLogger logger.Logger
	if log != nil {
		sdkLogger = logger.New(log.Handler())
	} else {
		sdkLogger = logger.New(slog.Default().Handler())
	}

	// surrealcbor handles SurrealDB custom CBOR tags
	codec := surrealcbor.New()

	// gorillaws requires the base URL without /rpc (it appends it itself)
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			ws := gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			})
			return ws, nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	if cfg.AuthLevel == "database" {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Namespace: cfg.Namespace,
			Database:  cfg.Database,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
	} else {
		// Default to root auth
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	s := &SurrealStore{conn: conn, db: db, cfg: cfg, logger: slog.Default()}
	if log != nil {
		s.logger = log
	}

	if _, err := surrealdb.Query[any](ctx, db, schemaSQL, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// Close closes the SurrealDB connection.
func (s *SurrealStore) Close(ctx context.Context) error {
	s.logger.Info("closing state store connection")
	return s.conn.Close(ctx)
}

// Backend identifies this store as the durable backend.
func (s *SurrealStore) Backend() string { return "surrealdb" }

// Set upserts a JSON-serialized value under key.
func (s *SurrealStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %q: %w", key, err)
	}

	vars := map[string]any{
		"key":   key,
		"value": string(raw),
	}
	sql := `UPSERT state SET key = $key, value = $value, expires_at = NONE WHERE key = $key`
	if ttl > 0 {
		vars["expires_at"] = time.Now().Add(ttl).Unix()
		sql = `UPSERT state SET key = $key, value = $value, expires_at = $expires_at WHERE key = $key`
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Get returns the stored JSON for key, or (nil, false) when absent, expired,
// or unreadable. Backend errors are logged, never surfaced.
func (s *SurrealStore) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	results, err := surrealdb.Query[[]stateRow](ctx, s.db, `
		SELECT key, value, expires_at FROM state WHERE key = $key LIMIT 1
	`, map[string]any{"key": key})
	if err != nil {
		s.logger.Warn("state store read failed", "key", key, "error", err)
		return nil, false
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, false
	}

	row := (*results)[0].Result[0]
	if row.ExpiresAt != nil && time.Now().Unix() >= *row.ExpiresAt {
		// Expired: lazy delete, report as a miss.
		_ = s.Delete(ctx, key)
		return nil, false
	}
	return json.RawMessage(row.Value), true
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *SurrealStore) Delete(ctx context.Context, key string) error {
	_, err := surrealdb.Query[any](ctx, s.db, `
		DELETE state WHERE key = $key
	`, map[string]any{"key": key})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// ListKeys returns all live keys with the given prefix.
func (s *SurrealStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	now := time.Now().Unix()
	results, err := surrealdb.Query[[]stateRow](ctx, s.db, `
		SELECT key, expires_at FROM state WHERE string::starts_with(key, $prefix)
	`, map[string]any{"prefix": prefix})
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}

	if results == nil || len(*results) == 0 {
		return []string{}, nil
	}

	keys := make([]string, 0, len((*results)[0].Result))
	for _, row := range (*results)[0].Result {
		if row.ExpiresAt != nil && now >= *row.ExpiresAt {
			continue
		}
		keys = append(keys, row.Key)
	}
	return keys, nil
}
