// Package httphandler serves the local REST API over the Core.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/application"
	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// Monitor is the part of the Core the API drives.
type Monitor interface {
	State() application.CoreState
	Badge() model.BadgeState
	PullRequests(filter model.Filter) []model.PullRequest
	Counts() map[model.Filter]int
	SetNewToken(ctx context.Context, token string) error
	MutePullRequest(ctx context.Context, ref model.PullRequestRef, kind model.MuteKind) error
	UnmutePullRequest(ctx context.Context, ref model.PullRequestRef) error
	UnmuteRepository(ctx context.Context, owner, repo string) error
	UnmuteOwner(ctx context.Context, owner string) error
	UpdateSettings(ctx context.Context, settings model.NotificationSettings) error
	OpenPullRequest(ctx context.Context, url string) error
}

// Poller runs a refresh outside the poll schedule and waits for it.
type Poller interface {
	RefreshNow(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	monitor   Monitor
	messenger driven.Messenger
	poller    Poller
	now       func() time.Time
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(monitor Monitor, messenger driven.Messenger, poller Poller, logger *slog.Logger) *Handler {
	return &Handler{
		monitor:   monitor,
		messenger: messenger,
		poller:    poller,
		now:       time.Now,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("GET /api/v1/prs", h.ListPRs)
	mux.HandleFunc("POST /api/v1/prs/open", h.OpenPR)
	mux.HandleFunc("POST /api/v1/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/restart", h.Restart)
	mux.HandleFunc("PUT /api/v1/token", h.SetToken)
	mux.HandleFunc("GET /api/v1/mutes", h.ListMutes)
	mux.HandleFunc("POST /api/v1/mutes", h.AddMute)
	mux.HandleFunc("DELETE /api/v1/mutes/prs/{owner}/{repo}/{number}", h.UnmutePR)
	mux.HandleFunc("DELETE /api/v1/mutes/repos/{owner}/{repo}", h.UnmuteRepo)
	mux.HandleFunc("DELETE /api/v1/mutes/owners/{owner}", h.UnmuteOwner)
	mux.HandleFunc("PUT /api/v1/settings", h.UpdateSettings)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   h.now().UTC().Format(time.RFC3339),
	})
}

// Status returns the badge, refresh state and per-filter counts.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatusResponse(h.monitor.State(), h.monitor.Badge(), h.monitor.Counts()))
}

// ListPRs returns the pull requests of one filter, needs-review by default.
func (h *Handler) ListPRs(w http.ResponseWriter, r *http.Request) {
	filter := model.FilterNeedsReview
	if raw := r.URL.Query().Get("filter"); raw != "" {
		parsed, ok := model.ParseFilter(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown filter: "+raw)
			return
		}
		filter = parsed
	}

	state := h.monitor.State()
	viewer := ""
	if state.Snapshot != nil {
		viewer = state.Snapshot.ViewerLogin
	}

	prs := h.monitor.PullRequests(filter)
	resp := make([]PRResponse, 0, len(prs))
	for _, pr := range prs {
		resp = append(resp, toPRResponse(pr, viewer, state.Mutes, h.now()))
	}

	writeJSON(w, http.StatusOK, resp)
}

// OpenPR opens a pull request in the browser.
func (h *Handler) OpenPR(w http.ResponseWriter, r *http.Request) {
	var req OpenPRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.monitor.OpenPullRequest(r.Context(), req.URL); err != nil {
		h.logger.Warn("failed to open pull request", "url", req.URL, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refresh asks the Core for a background refresh. The outcome is visible
// through Status once it completes. With ?wait=true the request blocks until
// the refresh finishes and reports its outcome.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		if err := h.poller.RefreshNow(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toStatusResponse(h.monitor.State(), h.monitor.Badge(), h.monitor.Counts()))
		return
	}

	h.messenger.Send(model.Message{Kind: model.MessageRefresh})
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "refresh requested"})
}

// Restart resets the poll schedule and refreshes immediately.
func (h *Handler) Restart(w http.ResponseWriter, _ *http.Request) {
	h.messenger.Send(model.Message{Kind: model.MessageRestart})
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "restart requested"})
}

// SetToken replaces the GitHub token. An empty token logs out.
func (h *Handler) SetToken(w http.ResponseWriter, r *http.Request) {
	var req SetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.monitor.SetNewToken(r.Context(), req.Token); err != nil {
		if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
			writeError(w, http.StatusServiceUnavailable, driven.ErrEncryptionKeyNotSet.Error())
			return
		}
		h.logger.Error("failed to set token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMutes returns the current mute configuration.
func (h *Handler) ListMutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toMuteConfigurationResponse(h.monitor.State().Mutes))
}

// AddMute mutes a pull request or ignores a repository or owner.
func (h *Handler) AddMute(w http.ResponseWriter, r *http.Request) {
	var req AddMuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind := model.MuteKind(req.Kind)
	if !isValidName(req.Owner) {
		writeError(w, http.StatusBadRequest, "invalid owner")
		return
	}
	if kind != model.MuteOwner && !isValidName(req.Repo) {
		writeError(w, http.StatusBadRequest, "invalid repository name")
		return
	}
	if kind != model.MuteOwner && kind != model.MuteRepo && req.Number <= 0 {
		writeError(w, http.StatusBadRequest, "invalid PR number")
		return
	}

	ref := model.PullRequestRef{Owner: req.Owner, Name: req.Repo, Number: req.Number}
	if err := h.monitor.MutePullRequest(r.Context(), ref, kind); err != nil {
		if errors.Is(err, application.ErrInvalidMuteKind) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to mute", "ref", ref.String(), "kind", req.Kind, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toMuteConfigurationResponse(h.monitor.State().Mutes))
}

// UnmutePR removes the mute of one pull request.
func (h *Handler) UnmutePR(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, "invalid PR number")
		return
	}

	ref := model.PullRequestRef{Owner: r.PathValue("owner"), Name: r.PathValue("repo"), Number: number}
	h.respondMuteChange(w, "unmute pull request", h.monitor.UnmutePullRequest(r.Context(), ref))
}

// UnmuteRepo stops ignoring one repository.
func (h *Handler) UnmuteRepo(w http.ResponseWriter, r *http.Request) {
	err := h.monitor.UnmuteRepository(r.Context(), r.PathValue("owner"), r.PathValue("repo"))
	h.respondMuteChange(w, "unmute repository", err)
}

// UnmuteOwner stops ignoring every repository of an owner.
func (h *Handler) UnmuteOwner(w http.ResponseWriter, r *http.Request) {
	h.respondMuteChange(w, "unmute owner", h.monitor.UnmuteOwner(r.Context(), r.PathValue("owner")))
}

// UpdateSettings replaces the notification settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := model.NotificationSettings{
		NotifyNewCommits:   req.NotifyNewCommits,
		OnlyDirectRequests: req.OnlyDirectRequests,
		WhitelistedTeams:   req.WhitelistedTeams,
	}
	if settings.WhitelistedTeams == nil {
		settings.WhitelistedTeams = []string{}
	}

	if err := h.monitor.UpdateSettings(r.Context(), settings); err != nil {
		h.logger.Error("failed to update settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toMuteConfigurationResponse(h.monitor.State().Mutes).Settings)
}

func (h *Handler) respondMuteChange(w http.ResponseWriter, action string, err error) {
	if err != nil {
		h.logger.Error("failed to "+action, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// isValidName validates a repository owner or name: only alphanumeric
// characters, hyphens, dots, or underscores.
func isValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, ch := range name {
		if !isValidRepoChar(ch) {
			return false
		}
	}
	return true
}

// isValidRepoChar returns true if the rune is allowed in a repository owner or name.
func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
