package application

import (
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// Effect is a side effect requested by a state transition. The Core executes
// effects in order after committing the new state.
type Effect interface {
	isEffect()
}

// SaveSnapshotEffect persists the last loaded snapshot (nil clears it).
type SaveSnapshotEffect struct{ Snapshot *model.LoadedState }

// SaveErrorEffect persists the last error ("" clears it).
type SaveErrorEffect struct{ Message string }

// SaveMutesEffect persists the mute configuration.
type SaveMutesEffect struct{ Mutes model.MuteConfiguration }

// SaveNotifiedEffect persists the set of already notified PR URLs.
type SaveNotifiedEffect struct{ URLs []string }

// NotifyEffect asks the Notifier to show the unreviewed PRs it has not shown yet.
type NotifyEffect struct {
	Unreviewed      []model.PullRequest
	AlreadyNotified []string
}

// BadgeEffect pushes a badge state to the Badger.
type BadgeEffect struct{ Badge model.BadgeState }

// BroadcastEffect sends a message through the Messenger.
type BroadcastEffect struct{ Kind model.MessageKind }

func (SaveSnapshotEffect) isEffect() {}
func (SaveErrorEffect) isEffect()    {}
func (SaveMutesEffect) isEffect()    {}
func (SaveNotifiedEffect) isEffect() {}
func (NotifyEffect) isEffect()       {}
func (BadgeEffect) isEffect()        {}
func (BroadcastEffect) isEffect()    {}

// Transition is the result of applying an event to a CoreState.
type Transition struct {
	State   CoreState
	Effects []Effect
}

// StoredState is what Load read back from the stores.
type StoredState struct {
	Token     string
	LastError string
	Snapshot  *model.LoadedState
	Mutes     model.MuteConfiguration
	Notified  []string
}

// OnLoaded restores state from storage. Without a token every other field is
// reset so a logged-out state never shows data from a previous session. The
// refresh flag belongs to the running process and is kept.
func OnLoaded(current CoreState, stored StoredState, now time.Time) Transition {
	next := EmptyCoreState()
	next.Refreshing = current.Refreshing
	next.Status = model.StatusLoaded

	if stored.Token != "" {
		next.Token = stored.Token
		next.LastError = stored.LastError
		next.Snapshot = stored.Snapshot
		next.Mutes = stored.Mutes
		if stored.Notified != nil {
			next.Notified = stored.Notified
		}
	}

	return Transition{State: next, Effects: []Effect{BadgeEffect{ComputeBadge(next, now)}}}
}

// OnTokenChanged switches to a token that is already stored and clears
// everything that belonged to the previous one.
func OnTokenChanged(current CoreState, token string, now time.Time) Transition {
	next := EmptyCoreState()
	next.Token = token
	next.Refreshing = current.Refreshing
	next.Status = current.Status

	return Transition{
		State: next,
		Effects: []Effect{
			SaveErrorEffect{Message: ""},
			SaveNotifiedEffect{URLs: []string{}},
			SaveSnapshotEffect{Snapshot: nil},
			SaveMutesEffect{Mutes: model.NothingMuted()},
			BadgeEffect{ComputeBadge(next, now)},
		},
	}
}

// OnRefreshStarted marks a refresh in flight. The in-flight attempt
// supersedes any previous error until it completes.
func OnRefreshStarted(current CoreState, now time.Time) Transition {
	next := current
	next.Refreshing = true
	next.LastError = ""
	return Transition{State: next, Effects: []Effect{BadgeEffect{ComputeBadge(next, now)}}}
}

// OnRefreshSucceeded commits a new snapshot, notifies about PRs needing
// attention and records them as notified.
func OnRefreshSucceeded(current CoreState, snapshot *model.LoadedState, now time.Time) Transition {
	next := current
	next.Snapshot = snapshot
	next.Refreshing = false
	next.LastError = ""

	unreviewed := UnreviewedPullRequests(snapshot, next.Mutes, now)
	next.Notified = unionURLs(current.Notified, unreviewed)

	return Transition{
		State: next,
		Effects: []Effect{
			SaveSnapshotEffect{Snapshot: snapshot},
			NotifyEffect{Unreviewed: unreviewed, AlreadyNotified: current.Notified},
			SaveNotifiedEffect{URLs: next.Notified},
			SaveErrorEffect{Message: ""},
			BadgeEffect{ComputeBadge(next, now)},
			BroadcastEffect{Kind: model.MessageReload},
		},
	}
}

// OnRefreshFailed records the error. The previous snapshot is kept untouched.
func OnRefreshFailed(current CoreState, err error, now time.Time) Transition {
	next := current
	next.Refreshing = false
	next.LastError = err.Error()

	return Transition{
		State: next,
		Effects: []Effect{
			SaveErrorEffect{Message: next.LastError},
			BadgeEffect{ComputeBadge(next, now)},
			BroadcastEffect{Kind: model.MessageReload},
		},
	}
}

// OnMutesChanged commits a new mute configuration. The badge is recomputed
// right away so the unreviewed count changes without a refresh.
func OnMutesChanged(current CoreState, mutes model.MuteConfiguration, now time.Time) Transition {
	next := current
	next.Mutes = mutes
	return Transition{
		State: next,
		Effects: []Effect{
			SaveMutesEffect{Mutes: mutes},
			BadgeEffect{ComputeBadge(next, now)},
		},
	}
}

// unionURLs returns previous followed by any PR URL not already in it.
func unionURLs(previous []string, prs []model.PullRequest) []string {
	seen := make(map[string]struct{}, len(previous)+len(prs))
	out := make([]string, 0, len(previous)+len(prs))
	for _, url := range previous {
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	for _, pr := range prs {
		if _, ok := seen[pr.URL]; ok {
			continue
		}
		seen[pr.URL] = struct{}{}
		out = append(out, pr.URL)
	}
	return out
}
