package application

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// ErrInvalidMuteKind is returned by AddMute for an unknown mute kind.
var ErrInvalidMuteKind = errors.New("invalid mute kind")

// oneHour is the duration of a MuteOneHour mute.
const oneHour = time.Hour

// AddMute returns a copy of cfg with a new mute of the given kind. PR-scoped
// kinds replace any existing entry for ref. MuteRepo and MuteOwner edit the
// ignore list instead; an owner already ignored entirely is left as is.
func AddMute(cfg model.MuteConfiguration, ref model.PullRequestRef, kind model.MuteKind, now time.Time) (model.MuteConfiguration, error) {
	out := cfg.Clone()

	var until model.MutedUntil
	switch kind {
	case model.MuteNextUpdate:
		until = model.MutedUntil{Kind: model.MutedUntilNextUpdate, MutedAt: now}
	case model.MuteOneHour:
		until = model.MutedUntil{Kind: model.MutedUntilSpecificTime, UnmuteAt: now.Add(oneHour)}
	case model.MuteForever:
		until = model.MutedUntil{Kind: model.MutedUntilForever}
	case model.MuteNotDraft:
		until = model.MutedUntil{Kind: model.MutedUntilNotDraft}
	case model.MuteRepo:
		addIgnoredRepo(out.Ignored, ref.Owner, ref.Name)
		return out, nil
	case model.MuteOwner:
		key, _, _ := lookupOwner(out.Ignored, ref.Owner)
		out.Ignored[key] = model.IgnoreConfiguration{Kind: model.IgnoreAll}
		return out, nil
	default:
		return cfg, fmt.Errorf("%w: %q", ErrInvalidMuteKind, kind)
	}

	out.MutedPullRequests = withoutRef(out.MutedPullRequests, ref)
	out.MutedPullRequests = append(out.MutedPullRequests, model.MutedPullRequest{Ref: ref, Until: until})
	return out, nil
}

// RemovePullRequestMute returns a copy of cfg without the mute entry for ref.
func RemovePullRequestMute(cfg model.MuteConfiguration, ref model.PullRequestRef) model.MuteConfiguration {
	out := cfg.Clone()
	out.MutedPullRequests = withoutRef(out.MutedPullRequests, ref)
	return out
}

// RemoveOwnerMute returns a copy of cfg without any ignore rule for owner.
func RemoveOwnerMute(cfg model.MuteConfiguration, owner string) model.MuteConfiguration {
	out := cfg.Clone()
	if key, _, ok := lookupOwner(out.Ignored, owner); ok {
		delete(out.Ignored, key)
	}
	return out
}

// RemoveRepositoryMute returns a copy of cfg that no longer ignores
// owner/repo. An ignore-all rule has no narrower form, so it is removed
// entirely; an ignore-only rule loses the repo and disappears once empty.
func RemoveRepositoryMute(cfg model.MuteConfiguration, owner, repo string) model.MuteConfiguration {
	out := cfg.Clone()
	key, ignore, ok := lookupOwner(out.Ignored, owner)
	if !ok {
		return out
	}
	if ignore.Kind == model.IgnoreAll {
		delete(out.Ignored, key)
		return out
	}

	remaining := make([]string, 0, len(ignore.RepoNames))
	for _, name := range ignore.RepoNames {
		if !strings.EqualFold(name, repo) {
			remaining = append(remaining, name)
		}
	}
	if len(remaining) == 0 {
		delete(out.Ignored, key)
		return out
	}
	out.Ignored[key] = model.IgnoreConfiguration{Kind: model.IgnoreOnly, RepoNames: remaining}
	return out
}

// UpdateSettings returns a copy of cfg with the notification settings replaced.
func UpdateSettings(cfg model.MuteConfiguration, settings model.NotificationSettings) model.MuteConfiguration {
	out := cfg.Clone()
	out.NotificationSettings = model.NotificationSettings{
		NotifyNewCommits:   settings.NotifyNewCommits,
		OnlyDirectRequests: settings.OnlyDirectRequests,
		WhitelistedTeams:   append([]string{}, settings.WhitelistedTeams...),
	}
	return out
}

// IsMuted reports whether a PR-scoped mute currently applies to pr. Expired
// mutes are detected here rather than pruned from the configuration.
func IsMuted(pr model.PullRequest, cfg model.MuteConfiguration, now time.Time) bool {
	ref := pr.Ref()
	for _, muted := range cfg.MutedPullRequests {
		if !sameRef(muted.Ref, ref) {
			continue
		}
		switch muted.Until.Kind {
		case model.MutedUntilNextUpdate:
			return !LastAuthorActivityTimestamp(pr).After(muted.Until.MutedAt)
		case model.MutedUntilNotDraft:
			return pr.Draft
		case model.MutedUntilSpecificTime:
			return now.Before(muted.Until.UnmuteAt)
		case model.MutedUntilForever:
			return true
		default:
			return false
		}
	}
	return false
}

// IsIgnored reports whether pr's owner or repository is on the ignore list.
func IsIgnored(pr model.PullRequest, cfg model.MuteConfiguration) bool {
	_, ignore, ok := lookupOwner(cfg.Ignored, pr.RepoOwner)
	if !ok {
		return false
	}
	switch ignore.Kind {
	case model.IgnoreAll:
		return true
	case model.IgnoreOnly:
		for _, name := range ignore.RepoNames {
			if strings.EqualFold(name, pr.RepoName) {
				return true
			}
		}
	}
	return false
}

func addIgnoredRepo(ignored map[string]model.IgnoreConfiguration, owner, repo string) {
	key, ignore, ok := lookupOwner(ignored, owner)
	if !ok {
		ignored[owner] = model.IgnoreConfiguration{Kind: model.IgnoreOnly, RepoNames: []string{repo}}
		return
	}
	if ignore.Kind == model.IgnoreAll {
		return
	}
	for _, name := range ignore.RepoNames {
		if strings.EqualFold(name, repo) {
			return
		}
	}
	ignored[key] = model.IgnoreConfiguration{
		Kind:      model.IgnoreOnly,
		RepoNames: append(ignore.RepoNames, repo),
	}
}

// lookupOwner finds the ignore rule for owner, ignoring case. It returns the
// map key to use for updates: the existing key when found, owner otherwise.
func lookupOwner(ignored map[string]model.IgnoreConfiguration, owner string) (string, model.IgnoreConfiguration, bool) {
	if ignore, ok := ignored[owner]; ok {
		return owner, ignore, true
	}
	for key, ignore := range ignored {
		if strings.EqualFold(key, owner) {
			return key, ignore, true
		}
	}
	return owner, model.IgnoreConfiguration{}, false
}

func withoutRef(entries []model.MutedPullRequest, ref model.PullRequestRef) []model.MutedPullRequest {
	out := make([]model.MutedPullRequest, 0, len(entries))
	for _, e := range entries {
		if !sameRef(e.Ref, ref) {
			out = append(out, e)
		}
	}
	return out
}

func sameRef(a, b model.PullRequestRef) bool {
	return a.Number == b.Number && strings.EqualFold(a.Owner, b.Owner) && strings.EqualFold(a.Name, b.Name)
}
