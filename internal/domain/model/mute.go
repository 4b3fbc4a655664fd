package model

import "time"

// MutedUntilKind selects the expiry rule of a pull request mute.
type MutedUntilKind string

const (
	// MutedUntilNextUpdate expires as soon as the author comments, reviews
	// or pushes a commit after MutedAt.
	MutedUntilNextUpdate MutedUntilKind = "next-update"
	// MutedUntilNotDraft stays muted while the PR is a draft.
	MutedUntilNotDraft MutedUntilKind = "not-draft"
	// MutedUntilSpecificTime expires at UnmuteAt regardless of activity.
	MutedUntilSpecificTime MutedUntilKind = "specific-time"
	// MutedUntilForever only ends with an explicit unmute.
	MutedUntilForever MutedUntilKind = "forever"
)

// MutedUntil is the expiry rule of a mute entry. MutedAt is set for
// next-update, UnmuteAt for specific-time.
type MutedUntil struct {
	Kind     MutedUntilKind
	MutedAt  time.Time
	UnmuteAt time.Time
}

// MutedPullRequest is one mute entry. At most one entry exists per ref.
type MutedPullRequest struct {
	Ref   PullRequestRef
	Until MutedUntil
}

// IgnoreKind selects how much of an owner is ignored.
type IgnoreKind string

const (
	IgnoreAll  IgnoreKind = "ignore-all"
	IgnoreOnly IgnoreKind = "ignore-only"
)

// IgnoreConfiguration is the ignore rule for one repository owner.
// RepoNames is only used with IgnoreOnly.
type IgnoreConfiguration struct {
	Kind      IgnoreKind
	RepoNames []string
}

// NotificationSettings are the user preferences stored alongside mutes.
type NotificationSettings struct {
	NotifyNewCommits   bool
	OnlyDirectRequests bool
	WhitelistedTeams   []string
}

// MuteConfiguration is the persisted suppression document.
type MuteConfiguration struct {
	MutedPullRequests []MutedPullRequest
	Ignored           map[string]IgnoreConfiguration
	NotificationSettings
}

// NothingMuted returns the empty configuration used for logged-out or
// freshly installed state.
func NothingMuted() MuteConfiguration {
	return MuteConfiguration{
		MutedPullRequests: []MutedPullRequest{},
		Ignored:           map[string]IgnoreConfiguration{},
	}
}

// Clone returns a deep copy so callers can derive a new configuration
// without sharing slices or maps with the original.
func (c MuteConfiguration) Clone() MuteConfiguration {
	out := MuteConfiguration{
		MutedPullRequests: make([]MutedPullRequest, len(c.MutedPullRequests)),
		Ignored:           make(map[string]IgnoreConfiguration, len(c.Ignored)),
		NotificationSettings: NotificationSettings{
			NotifyNewCommits:   c.NotifyNewCommits,
			OnlyDirectRequests: c.OnlyDirectRequests,
			WhitelistedTeams:   append([]string(nil), c.WhitelistedTeams...),
		},
	}
	copy(out.MutedPullRequests, c.MutedPullRequests)
	for owner, ignore := range c.Ignored {
		out.Ignored[owner] = IgnoreConfiguration{
			Kind:      ignore.Kind,
			RepoNames: append([]string(nil), ignore.RepoNames...),
		}
	}
	return out
}

// MuteKind is the user-facing choice passed to AddMute.
type MuteKind string

const (
	MuteNextUpdate MuteKind = "next-update"
	MuteOneHour    MuteKind = "1-hour"
	MuteForever    MuteKind = "forever"
	MuteNotDraft   MuteKind = "not-draft"
	MuteRepo       MuteKind = "repo"
	MuteOwner      MuteKind = "owner"
)
