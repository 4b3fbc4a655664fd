package model

// ReviewState represents the state of a review as reported by GitHub.
type ReviewState string

const (
	ReviewStatePending          ReviewState = "PENDING"
	ReviewStateCommented        ReviewState = "COMMENTED"
	ReviewStateChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewStateApproved         ReviewState = "APPROVED"
	ReviewStateDismissed        ReviewState = "DISMISSED"
)

// StateKind discriminates the variants of PullRequestState.
type StateKind string

const (
	StateIncoming    StateKind = "incoming"
	StateOutgoing    StateKind = "outgoing"
	StateNotInvolved StateKind = "not-involved"
)

// Filter names a bucket a pull request can be listed under.
type Filter string

const (
	FilterNeedsReview   Filter = "needs-review"
	FilterNeedsRevision Filter = "needs-revision"
	FilterMine          Filter = "mine"
	FilterMuted         Filter = "muted"
	FilterIgnored       Filter = "ignored"
)

// AllFilters lists every filter in display order.
var AllFilters = []Filter{
	FilterNeedsReview,
	FilterNeedsRevision,
	FilterMine,
	FilterMuted,
	FilterIgnored,
}

// ParseFilter returns the Filter matching s, or false if s is unknown.
func ParseFilter(s string) (Filter, bool) {
	for _, f := range AllFilters {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// OverallStatus is the lifecycle status of the Core.
type OverallStatus string

const (
	StatusLoading OverallStatus = "loading"
	StatusLoaded  OverallStatus = "loaded"
)

// BadgeKind is the variant of the badge shown to the user.
type BadgeKind string

const (
	BadgeError        BadgeKind = "error"
	BadgeInitializing BadgeKind = "initializing"
	BadgeReloading    BadgeKind = "reloading"
	BadgeLoaded       BadgeKind = "loaded"
)

// BadgeState is the projection pushed to the Badger. UnreviewedCount is only
// meaningful for BadgeReloading and BadgeLoaded.
type BadgeState struct {
	Kind            BadgeKind
	UnreviewedCount int
}

// MessageKind identifies a cross-context message.
type MessageKind string

const (
	MessageRefresh MessageKind = "refresh"
	MessageReload  MessageKind = "reload"
	MessageRestart MessageKind = "restart"
)

// Message is exchanged through the Messenger. ID is only used to correlate
// log lines between sender and receivers.
type Message struct {
	ID   string
	Kind MessageKind
}
