package model

// PullRequestState is the classification of a pull request from the point of
// view of one user. Exactly one of Incoming and Outgoing is set when Kind is
// StateIncoming or StateOutgoing; both are nil for StateNotInvolved.
type PullRequestState struct {
	Kind     StateKind
	Draft    bool
	Incoming *IncomingState
	Outgoing *OutgoingState
}

// IncomingState describes a PR the viewer reviews (or has reviewed).
type IncomingState struct {
	// NewReviewRequested is true when the viewer never reviewed or commented.
	NewReviewRequested bool
	// AuthorResponded is true when the author commented or reviewed after the
	// viewer's last review or comment.
	AuthorResponded bool
	// NewCommit is true when a commit landed after the viewer's last review
	// or comment.
	NewCommit bool
	// DirectlyAdded is true when the viewer is listed by login, not only
	// reachable through a requested team.
	DirectlyAdded bool
	Teams         []string
}

// OutgoingState describes a PR authored by the viewer.
type OutgoingState struct {
	NoReviewers        bool
	ChangesRequested   bool
	Mergeable          bool
	ApprovedByEveryone bool
}
