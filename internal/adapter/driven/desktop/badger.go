// Package desktop implements the user-facing driven ports for a local
// process: badge state, terminal notifications and opening pull requests in
// the browser.
package desktop

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Badger = (*Badger)(nil)

// Badger keeps the last badge state so the HTTP API can serve it. Changes are
// logged; repeated identical updates are not.
type Badger struct {
	mu      sync.RWMutex
	current model.BadgeState
	set     bool
}

// NewBadger creates a Badger showing the initializing state.
func NewBadger() *Badger {
	return &Badger{current: model.BadgeState{Kind: model.BadgeInitializing}}
}

// Update records state.
func (b *Badger) Update(state model.BadgeState) {
	b.mu.Lock()
	changed := !b.set || b.current != state
	b.current = state
	b.set = true
	b.mu.Unlock()

	if changed {
		slog.Info("badge updated", "kind", state.Kind, "unreviewed", state.UnreviewedCount, "label", BadgeLabel(state))
	}
}

// Current returns the last recorded state.
func (b *Badger) Current() model.BadgeState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// BadgeLabel renders state the way a toolbar icon would: "!" for errors, "…"
// while initializing and the unreviewed count otherwise, empty when zero.
func BadgeLabel(state model.BadgeState) string {
	switch state.Kind {
	case model.BadgeError:
		return "!"
	case model.BadgeInitializing:
		return "…"
	default:
		if state.UnreviewedCount == 0 {
			return ""
		}
		return strconv.Itoa(state.UnreviewedCount)
	}
}
