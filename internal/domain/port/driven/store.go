package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by the token store when
// PRMONITOR_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set PRMONITOR_SECRET_KEY")

// Store persists a single value. Load returns the field's default value when
// nothing has been saved yet, and should also return the default (with a nil
// error) when the persisted value can no longer be decoded.
type Store[T any] interface {
	Load(ctx context.Context) (T, error)
	Save(ctx context.Context, value T) error
}

// Stores bundles every persisted field the Core reads and writes.
type Stores struct {
	Token                Store[string]
	LastError            Store[string]
	LastCheck            Store[*model.LoadedState]
	MuteConfiguration    Store[model.MuteConfiguration]
	NotifiedPullRequests Store[[]string]
}
