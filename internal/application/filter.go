package application

import (
	"strings"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// BucketsOf returns the filters pr is listed under for viewer. Buckets are
// mutually exclusive except for FilterMine combined with
// FilterNeedsRevision. An empty result means the PR needs no attention.
func BucketsOf(pr model.PullRequest, viewer string, cfg model.MuteConfiguration, now time.Time) []model.Filter {
	if IsIgnored(pr, cfg) {
		return []model.Filter{model.FilterIgnored}
	}

	state := Classify(pr, viewer)
	switch state.Kind {
	case model.StateOutgoing:
		if state.Outgoing.ChangesRequested {
			return []model.Filter{model.FilterMine, model.FilterNeedsRevision}
		}
		return []model.Filter{model.FilterMine}

	case model.StateIncoming:
		in := state.Incoming
		wantsReview := in.NewReviewRequested || in.AuthorResponded ||
			(cfg.NotifyNewCommits && in.NewCommit)
		if !wantsReview {
			return nil
		}
		if cfg.OnlyDirectRequests && !in.DirectlyAdded && !anyTeamWhitelisted(in.Teams, cfg.WhitelistedTeams) {
			return nil
		}
		if IsMuted(pr, cfg, now) {
			return []model.Filter{model.FilterMuted}
		}
		return []model.Filter{model.FilterNeedsReview}
	}

	return nil
}

// InBucket reports whether pr is listed under filter.
func InBucket(pr model.PullRequest, viewer string, cfg model.MuteConfiguration, filter model.Filter, now time.Time) bool {
	for _, f := range BucketsOf(pr, viewer, cfg, now) {
		if f == filter {
			return true
		}
	}
	return false
}

// FilterPullRequests returns the PRs of snapshot listed under filter, in
// snapshot order. A nil snapshot yields nil.
func FilterPullRequests(snapshot *model.LoadedState, cfg model.MuteConfiguration, filter model.Filter, now time.Time) []model.PullRequest {
	if snapshot == nil {
		return nil
	}
	var out []model.PullRequest
	for _, pr := range snapshot.PullRequests {
		if InBucket(pr, snapshot.ViewerLogin, cfg, filter, now) {
			out = append(out, pr)
		}
	}
	return out
}

// UnreviewedPullRequests returns the PRs that need the viewer's attention:
// those needing review plus the viewer's own PRs needing revision.
func UnreviewedPullRequests(snapshot *model.LoadedState, cfg model.MuteConfiguration, now time.Time) []model.PullRequest {
	if snapshot == nil {
		return nil
	}
	var out []model.PullRequest
	for _, pr := range snapshot.PullRequests {
		for _, f := range BucketsOf(pr, snapshot.ViewerLogin, cfg, now) {
			if f == model.FilterNeedsReview || f == model.FilterNeedsRevision {
				out = append(out, pr)
				break
			}
		}
	}
	return out
}

// CountByFilter returns how many PRs of snapshot fall under each filter.
func CountByFilter(snapshot *model.LoadedState, cfg model.MuteConfiguration, now time.Time) map[model.Filter]int {
	counts := make(map[model.Filter]int, len(model.AllFilters))
	for _, f := range model.AllFilters {
		counts[f] = 0
	}
	if snapshot == nil {
		return counts
	}
	for _, pr := range snapshot.PullRequests {
		for _, f := range BucketsOf(pr, snapshot.ViewerLogin, cfg, now) {
			counts[f]++
		}
	}
	return counts
}

func anyTeamWhitelisted(teams, whitelist []string) bool {
	for _, team := range teams {
		for _, allowed := range whitelist {
			if strings.EqualFold(team, allowed) {
				return true
			}
		}
	}
	return false
}
