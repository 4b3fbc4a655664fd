package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// Keys under which the Core's fields are stored in the kv table.
const (
	KeyLastError            = "lastError"
	KeyLastCheck            = "lastCheck"
	KeyMuteConfiguration    = "muteConfiguration"
	KeyNotifiedPullRequests = "notifiedPullRequests"
)

// KVRepo stores opaque string values by key.
type KVRepo struct {
	db *DB
}

// NewKVRepo creates a new KVRepo backed by the given DB.
func NewKVRepo(db *DB) *KVRepo {
	return &KVRepo{db: db}
}

// Get returns the value stored under key. ok is false when nothing is stored.
func (r *KVRepo) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	const query = `SELECT value FROM kv WHERE key = ?`
	err = r.db.Reader.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (r *KVRepo) Put(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Delete removes key. No-op if the key does not exist.
func (r *KVRepo) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM kv WHERE key = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// JSONField is a driven.Store that keeps one JSON-encoded value in the kv
// table. Values that no longer decode (written by an older schema, or
// corrupted) load as the default instead of failing.
type JSONField[T any] struct {
	kv       *KVRepo
	key      string
	fallback func() T
}

// NewJSONField creates a field stored under key. fallback supplies the value
// returned when nothing (or nothing readable) is stored.
func NewJSONField[T any](kv *KVRepo, key string, fallback func() T) *JSONField[T] {
	return &JSONField[T]{kv: kv, key: key, fallback: fallback}
}

// Load returns the stored value, or the fallback.
func (f *JSONField[T]) Load(ctx context.Context) (T, error) {
	raw, ok, err := f.kv.Get(ctx, f.key)
	if err != nil {
		return f.fallback(), err
	}
	if !ok {
		return f.fallback(), nil
	}

	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		slog.Warn("stored value unreadable, using default", "key", f.key, "error", err)
		return f.fallback(), nil
	}
	return value, nil
}

// Save replaces the stored value.
func (f *JSONField[T]) Save(ctx context.Context, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", f.key, err)
	}
	return f.kv.Put(ctx, f.key, string(data))
}

// NewStores wires every persisted field of the Core to db. key is the
// AES-256 key of the token store; nil disables token storage.
func NewStores(db *DB, key []byte) driven.Stores {
	kv := NewKVRepo(db)
	return driven.Stores{
		Token:                NewTokenRepo(db, key),
		LastError:            NewJSONField(kv, KeyLastError, func() string { return "" }),
		LastCheck:            NewJSONField(kv, KeyLastCheck, func() *model.LoadedState { return nil }),
		MuteConfiguration:    NewMuteRepo(kv, time.Now),
		NotifiedPullRequests: NewJSONField(kv, KeyNotifiedPullRequests, func() []string { return []string{} }),
	}
}
