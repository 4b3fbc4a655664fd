package httphandler

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/application"
	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// AcceptedResponse acknowledges a request handled in the background.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// BadgeResponse is the JSON representation of the badge.
type BadgeResponse struct {
	Kind       string `json:"kind"`
	Unreviewed int    `json:"unreviewed"`
}

// StatusResponse summarizes the Core state.
type StatusResponse struct {
	Status      string         `json:"status"`
	Badge       BadgeResponse  `json:"badge"`
	HasToken    bool           `json:"has_token"`
	Refreshing  bool           `json:"refreshing"`
	LastError   string         `json:"last_error,omitempty"`
	Viewer      string         `json:"viewer,omitempty"`
	LastRefresh string         `json:"last_refresh,omitempty"`
	Counts      map[string]int `json:"counts"`
}

// PRResponse is the JSON representation of a pull request.
type PRResponse struct {
	Number     int      `json:"number"`
	Repository string   `json:"repository"`
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	URL        string   `json:"url"`
	IsDraft    bool     `json:"is_draft"`
	Mergeable  bool     `json:"mergeable"`
	UpdatedAt  string   `json:"updated_at"`
	State      string   `json:"state"`
	Buckets    []string `json:"buckets"`

	// Only one of these is set, depending on State.
	Incoming *IncomingResponse `json:"incoming,omitempty"`
	Outgoing *OutgoingResponse `json:"outgoing,omitempty"`
}

// IncomingResponse carries the flags of a PR the viewer reviews.
type IncomingResponse struct {
	NewReviewRequested bool     `json:"new_review_requested"`
	AuthorResponded    bool     `json:"author_responded"`
	NewCommit          bool     `json:"new_commit"`
	DirectlyAdded      bool     `json:"directly_added"`
	Teams              []string `json:"teams"`
}

// OutgoingResponse carries the flags of a PR the viewer authored.
type OutgoingResponse struct {
	NoReviewers        bool `json:"no_reviewers"`
	ChangesRequested   bool `json:"changes_requested"`
	Mergeable          bool `json:"mergeable"`
	ApprovedByEveryone bool `json:"approved_by_everyone"`
}

// MutedPRResponse is one pull request mute entry.
type MutedPRResponse struct {
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	Number   int    `json:"number"`
	Until    string `json:"until"`
	MutedAt  string `json:"muted_at,omitempty"`
	UnmuteAt string `json:"unmute_at,omitempty"`
}

// IgnoredOwnerResponse is the ignore rule of one owner.
type IgnoredOwnerResponse struct {
	Owner string   `json:"owner"`
	Kind  string   `json:"kind"`
	Repos []string `json:"repos,omitempty"`
}

// SettingsResponse is the JSON representation of the notification settings.
type SettingsResponse struct {
	NotifyNewCommits   bool     `json:"notify_new_commits"`
	OnlyDirectRequests bool     `json:"only_direct_requests"`
	WhitelistedTeams   []string `json:"whitelisted_teams"`
}

// MuteConfigurationResponse is the JSON representation of the mute configuration.
type MuteConfigurationResponse struct {
	MutedPullRequests []MutedPRResponse      `json:"muted_pull_requests"`
	Ignored           []IgnoredOwnerResponse `json:"ignored"`
	Settings          SettingsResponse       `json:"settings"`
}

// SetTokenRequest is the JSON body for the token endpoint.
type SetTokenRequest struct {
	Token string `json:"token"`
}

// AddMuteRequest is the JSON body for the add mute endpoint. Number is
// ignored for the repo and owner kinds; Repo is ignored for owner.
type AddMuteRequest struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
	Kind   string `json:"kind"`
}

// SettingsRequest is the JSON body for the settings endpoint.
type SettingsRequest struct {
	NotifyNewCommits   bool     `json:"notify_new_commits"`
	OnlyDirectRequests bool     `json:"only_direct_requests"`
	WhitelistedTeams   []string `json:"whitelisted_teams"`
}

// OpenPRRequest is the JSON body for the open endpoint.
type OpenPRRequest struct {
	URL string `json:"url"`
}

func toStatusResponse(state application.CoreState, badge model.BadgeState, counts map[model.Filter]int) StatusResponse {
	resp := StatusResponse{
		Status:     string(state.Status),
		Badge:      BadgeResponse{Kind: string(badge.Kind), Unreviewed: badge.UnreviewedCount},
		HasToken:   state.Token != "",
		Refreshing: state.Refreshing,
		LastError:  state.LastError,
		Counts:     make(map[string]int, len(model.AllFilters)),
	}
	for _, f := range model.AllFilters {
		resp.Counts[string(f)] = counts[f]
	}
	if state.Snapshot != nil {
		resp.Viewer = state.Snapshot.ViewerLogin
		resp.LastRefresh = formatTime(state.Snapshot.StartRefreshTimestamp)
	}
	return resp
}

// toPRResponse converts a domain PullRequest to its JSON response representation,
// classified from the viewer's point of view.
func toPRResponse(pr model.PullRequest, viewer string, mutes model.MuteConfiguration, now time.Time) PRResponse {
	prState := application.Classify(pr, viewer)

	buckets := application.BucketsOf(pr, viewer, mutes, now)
	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, string(b))
	}

	resp := PRResponse{
		Number:     pr.Number,
		Repository: pr.RepoFullName(),
		Title:      pr.Title,
		Author:     pr.Author,
		URL:        pr.URL,
		IsDraft:    pr.Draft,
		Mergeable:  pr.Mergeable,
		UpdatedAt:  formatTime(pr.UpdatedAt),
		State:      string(prState.Kind),
		Buckets:    names,
	}

	if in := prState.Incoming; in != nil {
		teams := in.Teams
		if teams == nil {
			teams = []string{}
		}
		resp.Incoming = &IncomingResponse{
			NewReviewRequested: in.NewReviewRequested,
			AuthorResponded:    in.AuthorResponded,
			NewCommit:          in.NewCommit,
			DirectlyAdded:      in.DirectlyAdded,
			Teams:              teams,
		}
	}
	if out := prState.Outgoing; out != nil {
		resp.Outgoing = &OutgoingResponse{
			NoReviewers:        out.NoReviewers,
			ChangesRequested:   out.ChangesRequested,
			Mergeable:          out.Mergeable,
			ApprovedByEveryone: out.ApprovedByEveryone,
		}
	}

	return resp
}

// toMuteConfigurationResponse converts the mute configuration. Ignored owners
// are sorted so the output is stable.
func toMuteConfigurationResponse(cfg model.MuteConfiguration) MuteConfigurationResponse {
	resp := MuteConfigurationResponse{
		MutedPullRequests: make([]MutedPRResponse, 0, len(cfg.MutedPullRequests)),
		Ignored:           make([]IgnoredOwnerResponse, 0, len(cfg.Ignored)),
		Settings: SettingsResponse{
			NotifyNewCommits:   cfg.NotifyNewCommits,
			OnlyDirectRequests: cfg.OnlyDirectRequests,
			WhitelistedTeams:   cfg.WhitelistedTeams,
		},
	}
	if resp.Settings.WhitelistedTeams == nil {
		resp.Settings.WhitelistedTeams = []string{}
	}

	for _, m := range cfg.MutedPullRequests {
		resp.MutedPullRequests = append(resp.MutedPullRequests, MutedPRResponse{
			Owner:    m.Ref.Owner,
			Repo:     m.Ref.Name,
			Number:   m.Ref.Number,
			Until:    string(m.Until.Kind),
			MutedAt:  formatTime(m.Until.MutedAt),
			UnmuteAt: formatTime(m.Until.UnmuteAt),
		})
	}

	for owner, ignore := range cfg.Ignored {
		resp.Ignored = append(resp.Ignored, IgnoredOwnerResponse{
			Owner: owner,
			Kind:  string(ignore.Kind),
			Repos: ignore.RepoNames,
		})
	}
	sort.Slice(resp.Ignored, func(i, j int) bool { return resp.Ignored[i].Owner < resp.Ignored[j].Owner })

	return resp
}

// formatTime renders t as RFC 3339 in UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
