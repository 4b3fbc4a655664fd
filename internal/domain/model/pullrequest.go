package model

import (
	"fmt"
	"time"
)

// PullRequestRef identifies a pull request across repositories.
type PullRequestRef struct {
	Owner  string
	Name   string
	Number int
}

// String returns the ref in owner/name#number form.
func (r PullRequestRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Name, r.Number)
}

// Comment is a PR-level comment. Only the author and time matter for
// classification.
type Comment struct {
	Author    string
	CreatedAt time.Time
}

// Review is a submitted (or pending) review. SubmittedAt is nil until GitHub
// reports the review as submitted.
type Review struct {
	Author      string
	State       ReviewState
	SubmittedAt *time.Time
}

// Commit is a commit on the PR head branch.
type Commit struct {
	SHA         string
	Author      string
	CommittedAt time.Time
}

// PullRequest is an immutable snapshot of a GitHub pull request as produced
// by the GitHubLoader. It is never mutated after loading, only reclassified.
type PullRequest struct {
	RepoOwner string
	RepoName  string
	Number    int
	NodeID    string // GraphQL node ID, stable across renames.
	URL       string
	Title     string
	Author    string // Empty when GitHub no longer knows the author (ghost user).
	Draft     bool
	Mergeable bool
	UpdatedAt time.Time

	// ReviewRequested is true when the viewer is requested directly or through
	// one of their teams. The loader computes it; team membership is not
	// visible from the PR alone.
	ReviewRequested    bool
	RequestedReviewers []string
	RequestedTeams     []string

	Comments []Comment
	Reviews  []Review
	Commits  []Commit
}

// Ref returns the identifying key of the pull request.
func (pr PullRequest) Ref() PullRequestRef {
	return PullRequestRef{Owner: pr.RepoOwner, Name: pr.RepoName, Number: pr.Number}
}

// RepoFullName returns the repository in owner/name form.
func (pr PullRequest) RepoFullName() string {
	return pr.RepoOwner + "/" + pr.RepoName
}

// LoadedState is one complete snapshot of the viewer's open pull requests.
// A successful refresh replaces the previous snapshot wholesale.
type LoadedState struct {
	ViewerLogin           string
	PullRequests          []PullRequest
	StartRefreshTimestamp time.Time
}
