package application

import (
	"sort"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// Classify computes the state of pr from the point of view of viewer. It is a
// pure function: the same snapshot and viewer always yield the same state.
func Classify(pr model.PullRequest, viewer string) model.PullRequestState {
	if sameLogin(pr.Author, viewer) {
		return model.PullRequestState{
			Kind:     model.StateOutgoing,
			Draft:    pr.Draft,
			Outgoing: outgoingState(pr, viewer),
		}
	}

	requested := pr.ReviewRequested || containsLogin(pr.RequestedReviewers, viewer)
	if !requested && LastReviewOrCommentTimestamp(pr, viewer).IsZero() {
		return model.PullRequestState{Kind: model.StateNotInvolved, Draft: pr.Draft}
	}

	return model.PullRequestState{
		Kind:     model.StateIncoming,
		Draft:    pr.Draft,
		Incoming: incomingState(pr, viewer),
	}
}

func incomingState(pr model.PullRequest, viewer string) *model.IncomingState {
	lastFromViewer := LastReviewOrCommentTimestamp(pr, viewer)
	hasReviewed := !lastFromViewer.IsZero()

	return &model.IncomingState{
		NewReviewRequested: !hasReviewed,
		AuthorResponded:    hasReviewed && LastAuthorCommentTimestamp(pr).After(lastFromViewer),
		NewCommit:          hasReviewed && LastCommitTimestamp(pr).After(lastFromViewer),
		DirectlyAdded:      containsLogin(pr.RequestedReviewers, viewer),
		Teams:              append([]string{}, pr.RequestedTeams...),
	}
}

func outgoingState(pr model.PullRequest, viewer string) *model.OutgoingState {
	states := reviewerStates(pr, viewer)

	changesRequested := false
	approvedByEveryone := len(states) > 0
	for _, s := range states {
		if s == model.ReviewStateChangesRequested {
			changesRequested = true
		}
		if s != model.ReviewStateApproved {
			approvedByEveryone = false
		}
	}

	return &model.OutgoingState{
		NoReviewers:        len(states) == 0,
		ChangesRequested:   changesRequested,
		Mergeable:          pr.Mergeable,
		ApprovedByEveryone: approvedByEveryone,
	}
}

// reviewerStates folds the review history into the current state of every
// reviewer other than the author, keyed by login as it first appeared.
func reviewerStates(pr model.PullRequest, author string) map[string]model.ReviewState {
	authorActivity := LastAuthorActivityTimestamp(pr)

	reviews := make([]model.Review, 0, len(pr.Reviews))
	for _, r := range pr.Reviews {
		if r.Author == "" || sameLogin(r.Author, author) || !isSubmitted(r) {
			continue
		}
		reviews = append(reviews, r)
	}
	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].SubmittedAt.Before(*reviews[j].SubmittedAt)
	})

	states := make(map[string]model.ReviewState)
	keys := make(map[string]string) // lowercased login -> first-seen spelling
	key := func(login string) string {
		folded := foldLogin(login)
		if k, ok := keys[folded]; ok {
			return k
		}
		keys[folded] = login
		return login
	}

	for _, r := range reviews {
		k := key(r.Author)
		switch r.State {
		case model.ReviewStateChangesRequested:
			// The author acted after the change request; it no longer stands
			// until the reviewer confirms it again.
			if r.SubmittedAt.Before(authorActivity) {
				states[k] = model.ReviewStatePending
				continue
			}
			states[k] = r.State
		case model.ReviewStateApproved:
			states[k] = r.State
		default:
			// Comments never retract an earlier verdict.
			if _, ok := states[k]; !ok {
				states[k] = model.ReviewStateCommented
			}
		}
	}

	for _, c := range pr.Comments {
		if c.Author == "" || sameLogin(c.Author, author) {
			continue
		}
		k := key(c.Author)
		if _, ok := states[k]; !ok {
			states[k] = model.ReviewStateCommented
		}
	}

	// A fresh review request resets the reviewer regardless of history.
	for _, reviewer := range pr.RequestedReviewers {
		if reviewer == "" || sameLogin(reviewer, author) {
			continue
		}
		states[key(reviewer)] = model.ReviewStatePending
	}

	return states
}
