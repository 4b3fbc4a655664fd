package application_test

import (
	"strconv"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// at returns baseTime shifted by the given number of minutes.
func at(minutes int) time.Time {
	return baseTime.Add(time.Duration(minutes) * time.Minute)
}

func atPtr(minutes int) *time.Time {
	t := at(minutes)
	return &t
}

func review(author string, state model.ReviewState, minutes int) model.Review {
	return model.Review{Author: author, State: state, SubmittedAt: atPtr(minutes)}
}

func comment(author string, minutes int) model.Comment {
	return model.Comment{Author: author, CreatedAt: at(minutes)}
}

func commit(sha string, minutes int) model.Commit {
	return model.Commit{SHA: sha, Author: "alice", CommittedAt: at(minutes)}
}

// incomingPR is a PR by alice that requests a review from bob.
func incomingPR(number int) model.PullRequest {
	return model.PullRequest{
		RepoOwner:          "acme",
		RepoName:           "widgets",
		Number:             number,
		URL:                prURL("acme", "widgets", number),
		Title:              "Add widget",
		Author:             "alice",
		UpdatedAt:          at(0),
		ReviewRequested:    true,
		RequestedReviewers: []string{"bob"},
	}
}

// outgoingPR is a PR by bob.
func outgoingPR(number int) model.PullRequest {
	return model.PullRequest{
		RepoOwner: "acme",
		RepoName:  "widgets",
		Number:    number,
		URL:       prURL("acme", "widgets", number),
		Title:     "Fix gadget",
		Author:    "bob",
		UpdatedAt: at(0),
	}
}

func prURL(owner, repo string, number int) string {
	return "https://github.com/" + owner + "/" + repo + "/pull/" + strconv.Itoa(number)
}

func snapshotOf(prs ...model.PullRequest) *model.LoadedState {
	return &model.LoadedState{ViewerLogin: "bob", PullRequests: prs, StartRefreshTimestamp: at(0)}
}
