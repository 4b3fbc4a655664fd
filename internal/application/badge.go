package application

import (
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// CoreState is the in-memory mirror of everything the Core persists, plus the
// transient refresh flag and lifecycle status.
type CoreState struct {
	Token      string
	Snapshot   *model.LoadedState
	Mutes      model.MuteConfiguration
	Notified   []string
	LastError  string
	Refreshing bool
	Status     model.OverallStatus
}

// EmptyCoreState returns the state of a Core that has not loaded anything.
func EmptyCoreState() CoreState {
	return CoreState{
		Mutes:    model.NothingMuted(),
		Notified: []string{},
		Status:   model.StatusLoading,
	}
}

// ComputeBadge projects s onto the badge. Precedence: error (an error is
// recorded or there is no token), initializing (no snapshot yet), reloading
// (refresh in flight), loaded.
func ComputeBadge(s CoreState, now time.Time) model.BadgeState {
	if s.LastError != "" || s.Token == "" {
		return model.BadgeState{Kind: model.BadgeError}
	}
	if s.Snapshot == nil {
		return model.BadgeState{Kind: model.BadgeInitializing}
	}
	count := len(UnreviewedPullRequests(s.Snapshot, s.Mutes, now))
	if s.Refreshing {
		return model.BadgeState{Kind: model.BadgeReloading, UnreviewedCount: count}
	}
	return model.BadgeState{Kind: model.BadgeLoaded, UnreviewedCount: count}
}
