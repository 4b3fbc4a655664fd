package application

import (
	"strings"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// LastUpdateTimestamp returns the most recent of the PR's UpdatedAt and every
// comment and submitted review time. It bounds how recently anything happened
// on the PR.
func LastUpdateTimestamp(pr model.PullRequest) time.Time {
	last := pr.UpdatedAt
	for _, c := range pr.Comments {
		last = latest(last, c.CreatedAt)
	}
	for _, r := range pr.Reviews {
		if r.SubmittedAt != nil {
			last = latest(last, *r.SubmittedAt)
		}
	}
	return last
}

// LastReviewOrCommentTimestamp returns the time of login's most recent
// submitted review or comment on the PR. PENDING reviews and reviews without
// a submitted time are ignored. The zero time means login never reviewed or
// commented and must not be compared as a real instant.
func LastReviewOrCommentTimestamp(pr model.PullRequest, login string) time.Time {
	var last time.Time
	for _, r := range pr.Reviews {
		if !sameLogin(r.Author, login) || !isSubmitted(r) {
			continue
		}
		last = latest(last, *r.SubmittedAt)
	}
	for _, c := range pr.Comments {
		if sameLogin(c.Author, login) {
			last = latest(last, c.CreatedAt)
		}
	}
	return last
}

// LastAuthorCommentTimestamp is LastReviewOrCommentTimestamp for the PR's
// author. It returns the zero time when the author is unknown.
func LastAuthorCommentTimestamp(pr model.PullRequest) time.Time {
	if pr.Author == "" {
		return time.Time{}
	}
	return LastReviewOrCommentTimestamp(pr, pr.Author)
}

// LastCommitTimestamp returns the time of the newest commit on the PR, or the
// zero time when the loader reported no commits.
func LastCommitTimestamp(pr model.PullRequest) time.Time {
	var last time.Time
	for _, c := range pr.Commits {
		last = latest(last, c.CommittedAt)
	}
	return last
}

// LastAuthorActivityTimestamp returns the newest of the author's own comments
// and reviews and the PR's last commit.
func LastAuthorActivityTimestamp(pr model.PullRequest) time.Time {
	return latest(LastAuthorCommentTimestamp(pr), LastCommitTimestamp(pr))
}

func isSubmitted(r model.Review) bool {
	return r.State != model.ReviewStatePending && r.SubmittedAt != nil && !r.SubmittedAt.IsZero()
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// sameLogin compares GitHub logins, which are case-insensitive. An empty login
// never matches.
func sameLogin(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

func foldLogin(login string) string {
	return strings.ToLower(login)
}

func containsLogin(logins []string, login string) bool {
	for _, l := range logins {
		if sameLogin(l, login) {
			return true
		}
	}
	return false
}
