package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// defaultRefreshTimeout bounds a single loader call so a hung request cannot
// leave the Core refreshing forever.
const defaultRefreshTimeout = 2 * time.Minute

// errNoSnapshot is recorded when the loader returns neither a snapshot nor an error.
var errNoSnapshot = errors.New("github loader returned no data")

// Core coordinates persisted state, refreshes, notifications and the badge.
// State changes are computed by the pure functions in transition.go and
// committed under mu; the loader is always called without holding mu.
type Core struct {
	loader    driven.GitHubLoader
	stores    driven.Stores
	notifier  driven.Notifier
	badger    driven.Badger
	messenger driven.Messenger
	opener    driven.TabOpener
	network   driven.Connectivity

	now            func() time.Time
	refreshTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	state    CoreState
	inFlight int // refreshes running, across all tokens
	flight   singleflight.Group
}

// CoreOption customizes a Core.
type CoreOption func(*Core)

// WithClock replaces the wall clock used for muting and classification.
func WithClock(now func() time.Time) CoreOption {
	return func(c *Core) { c.now = now }
}

// WithRefreshTimeout bounds each loader call. Non-positive values are ignored.
func WithRefreshTimeout(d time.Duration) CoreOption {
	return func(c *Core) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithLogger sets the logger used by the Core.
func WithLogger(logger *slog.Logger) CoreOption {
	return func(c *Core) { c.logger = logger }
}

// NewCore creates a Core in the loading state. Call Start (or Load) before use.
func NewCore(
	loader driven.GitHubLoader,
	stores driven.Stores,
	notifier driven.Notifier,
	badger driven.Badger,
	messenger driven.Messenger,
	opener driven.TabOpener,
	network driven.Connectivity,
	opts ...CoreOption,
) *Core {
	c := &Core{
		loader:         loader,
		stores:         stores,
		notifier:       notifier,
		badger:         badger,
		messenger:      messenger,
		opener:         opener,
		network:        network,
		now:            time.Now,
		refreshTimeout: defaultRefreshTimeout,
		logger:         slog.Default(),
		state:          EmptyCoreState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to messages and notification clicks, then loads the
// persisted state. Subscriptions end when ctx is canceled.
func (c *Core) Start(ctx context.Context) error {
	stopListening := c.messenger.Listen(func(msg model.Message) {
		c.handleMessage(ctx, msg)
	})
	go func() {
		<-ctx.Done()
		stopListening()
	}()

	c.notifier.RegisterClickListener(func(url string) {
		if err := c.OpenPullRequest(ctx, url); err != nil {
			c.logger.Error("open pull request from notification failed", "url", url, "error", err)
		}
	})

	return c.Load(ctx)
}

// handleMessage reacts to broadcasts. A reload re-reads storage; a refresh
// fetches from GitHub. The two must not be confused.
func (c *Core) handleMessage(ctx context.Context, msg model.Message) {
	switch msg.Kind {
	case model.MessageReload:
		if err := c.Load(ctx); err != nil {
			c.logger.Error("reload failed", "message_id", msg.ID, "error", err)
		}
	case model.MessageRefresh:
		if err := c.RefreshPullRequests(ctx); err != nil {
			c.logger.Error("refresh failed", "message_id", msg.ID, "error", err)
		}
	default:
		c.logger.Debug("message ignored by core", "kind", msg.Kind, "message_id", msg.ID)
	}
}

// Load reads every persisted field. Without a token all other fields reset to
// their defaults. Unreadable fields fall back to defaults. mu is held across
// the read so a concurrent mute cannot be overwritten by older stored values.
func (c *Core) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := c.readStored(ctx)
	return c.apply(ctx, OnLoaded(c.state, stored, c.now()))
}

// SetNewToken replaces the token, clears state tied to the old one, reloads
// and asks for an immediate refresh. When the token cannot be stored nothing
// else changes.
func (c *Core) SetNewToken(ctx context.Context, token string) error {
	if err := c.stores.Token.Save(ctx, token); err != nil {
		return fmt.Errorf("save new token: %w", err)
	}

	c.mu.Lock()
	err := c.apply(ctx, OnTokenChanged(c.state, token, c.now()))
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clear state of previous token: %w", err)
	}

	if err := c.Load(ctx); err != nil {
		return err
	}

	c.messenger.Send(model.Message{Kind: model.MessageRefresh})
	return nil
}

// RefreshPullRequests loads a new snapshot from GitHub. It silently does
// nothing without a token or without connectivity. Overlapping calls for the
// same token share a single loader call; a call made after a token change
// starts its own. A loader failure is recorded and returned.
func (c *Core) RefreshPullRequests(ctx context.Context) error {
	c.mu.Lock()
	token := c.state.Token
	c.mu.Unlock()

	if token == "" {
		c.logger.Debug("refresh skipped, no token")
		return nil
	}
	if !c.network.IsOnline(ctx) {
		c.logger.Info("refresh skipped, offline")
		return nil
	}

	_, err, shared := c.flight.Do("refresh:"+token, func() (any, error) {
		return nil, c.refresh(ctx, token)
	})
	if shared {
		c.logger.Debug("refresh joined in-flight refresh")
	}
	return err
}

func (c *Core) refresh(ctx context.Context, token string) error {
	start := time.Now()

	c.mu.Lock()
	if c.state.Token != token {
		c.mu.Unlock()
		c.logger.Debug("refresh skipped, token changed before start")
		return nil
	}
	c.inFlight++
	mutes := c.state.Mutes.Clone()
	previous := c.state.Snapshot
	startErr := c.apply(ctx, OnRefreshStarted(c.state, c.now()))
	c.mu.Unlock()
	if startErr != nil {
		c.logger.Warn("refresh start effects failed", "error", startErr)
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		// Reached only when the loader panicked.
		c.mu.Lock()
		defer c.mu.Unlock()
		c.inFlight--
		c.state.Refreshing = c.inFlight > 0
		c.badger.Update(ComputeBadge(c.state, c.now()))
		c.messenger.Send(model.Message{Kind: model.MessageReload})
	}()

	loadCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()
	snapshot, loadErr := c.loader.Load(loadCtx, token, mutes, previous)
	if loadErr == nil && snapshot == nil {
		loadErr = errNoSnapshot
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	completed = true
	c.inFlight--

	if c.state.Token != token {
		// The token changed while loading; the result belongs to the old one.
		// A refresh for the new token may still be running.
		c.logger.Info("refresh result discarded, token changed")
		c.state.Refreshing = c.inFlight > 0
		c.badger.Update(ComputeBadge(c.state, c.now()))
		c.messenger.Send(model.Message{Kind: model.MessageReload})
		return nil
	}

	if loadErr != nil {
		if err := c.apply(ctx, OnRefreshFailed(c.state, loadErr, c.now())); err != nil {
			c.logger.Error("persist refresh error failed", "error", err)
		}
		c.logger.Error("refresh failed",
			"error", loadErr,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		return loadErr
	}

	if err := c.apply(ctx, OnRefreshSucceeded(c.state, snapshot, c.now())); err != nil {
		return fmt.Errorf("commit refresh: %w", err)
	}

	c.logger.Info("refresh complete",
		"viewer", snapshot.ViewerLogin,
		"pull_requests", len(snapshot.PullRequests),
		"unreviewed", ComputeBadge(c.state, c.now()).UnreviewedCount,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// MutePullRequest applies a mute of the given kind to ref.
func (c *Core) MutePullRequest(ctx context.Context, ref model.PullRequestRef, kind model.MuteKind) error {
	return c.updateMutes(ctx, func(cfg model.MuteConfiguration, now time.Time) (model.MuteConfiguration, error) {
		return AddMute(cfg, ref, kind, now)
	})
}

// UnmutePullRequest removes the PR-scoped mute for ref, if any.
func (c *Core) UnmutePullRequest(ctx context.Context, ref model.PullRequestRef) error {
	return c.updateMutes(ctx, func(cfg model.MuteConfiguration, _ time.Time) (model.MuteConfiguration, error) {
		return RemovePullRequestMute(cfg, ref), nil
	})
}

// UnmuteRepository stops ignoring owner/repo.
func (c *Core) UnmuteRepository(ctx context.Context, owner, repo string) error {
	return c.updateMutes(ctx, func(cfg model.MuteConfiguration, _ time.Time) (model.MuteConfiguration, error) {
		return RemoveRepositoryMute(cfg, owner, repo), nil
	})
}

// UnmuteOwner stops ignoring every repository of owner.
func (c *Core) UnmuteOwner(ctx context.Context, owner string) error {
	return c.updateMutes(ctx, func(cfg model.MuteConfiguration, _ time.Time) (model.MuteConfiguration, error) {
		return RemoveOwnerMute(cfg, owner), nil
	})
}

// UpdateSettings replaces the notification settings.
func (c *Core) UpdateSettings(ctx context.Context, settings model.NotificationSettings) error {
	return c.updateMutes(ctx, func(cfg model.MuteConfiguration, _ time.Time) (model.MuteConfiguration, error) {
		return UpdateSettings(cfg, settings), nil
	})
}

func (c *Core) updateMutes(ctx context.Context, change func(model.MuteConfiguration, time.Time) (model.MuteConfiguration, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	mutes, err := change(c.state.Mutes, now)
	if err != nil {
		return err
	}
	return c.apply(ctx, OnMutesChanged(c.state, mutes, now))
}

// OpenPullRequest opens url for the user. It does not touch persisted state.
func (c *Core) OpenPullRequest(ctx context.Context, url string) error {
	return c.opener.OpenPullRequest(ctx, url)
}

// State returns a copy of the current state for consumers that poll.
func (c *Core) State() CoreState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	s.Mutes = c.state.Mutes.Clone()
	s.Notified = append([]string{}, c.state.Notified...)
	return s
}

// Badge returns the current badge projection.
func (c *Core) Badge() model.BadgeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ComputeBadge(c.state, c.now())
}

// PullRequests returns the PRs of the current snapshot listed under filter.
func (c *Core) PullRequests(filter model.Filter) []model.PullRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FilterPullRequests(c.state.Snapshot, c.state.Mutes, filter, c.now())
}

// Counts returns the number of PRs per filter in the current snapshot.
func (c *Core) Counts() map[model.Filter]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CountByFilter(c.state.Snapshot, c.state.Mutes, c.now())
}

// readStored loads every field. A failing store degrades to the field's
// default; without a token nothing else is read.
func (c *Core) readStored(ctx context.Context) StoredState {
	stored := StoredState{Mutes: model.NothingMuted(), Notified: []string{}}

	token, err := c.stores.Token.Load(ctx)
	if err != nil {
		c.logger.Warn("load token failed, treating as logged out", "error", err)
		return stored
	}
	if token == "" {
		return stored
	}
	stored.Token = token

	if msg, err := c.stores.LastError.Load(ctx); err != nil {
		c.logger.Warn("load last error failed, using default", "error", err)
	} else {
		stored.LastError = msg
	}

	if snapshot, err := c.stores.LastCheck.Load(ctx); err != nil {
		c.logger.Warn("load last check failed, using default", "error", err)
	} else {
		stored.Snapshot = snapshot
	}

	if mutes, err := c.stores.MuteConfiguration.Load(ctx); err != nil {
		c.logger.Warn("load mute configuration failed, using default", "error", err)
	} else {
		stored.Mutes = mutes
	}

	if notified, err := c.stores.NotifiedPullRequests.Load(ctx); err != nil {
		c.logger.Warn("load notified pull requests failed, using default", "error", err)
	} else if notified != nil {
		stored.Notified = notified
	}

	return stored
}

// apply commits t.State and runs t.Effects in order. Every effect runs even
// if an earlier persist fails, so listeners are always told to reload.
// The caller must hold c.mu.
func (c *Core) apply(ctx context.Context, t Transition) error {
	c.state = t.State

	var errs []error
	for _, effect := range t.Effects {
		switch e := effect.(type) {
		case SaveSnapshotEffect:
			errs = append(errs, wrapSave("last check", c.stores.LastCheck.Save(ctx, e.Snapshot)))
		case SaveErrorEffect:
			errs = append(errs, wrapSave("last error", c.stores.LastError.Save(ctx, e.Message)))
		case SaveMutesEffect:
			errs = append(errs, wrapSave("mute configuration", c.stores.MuteConfiguration.Save(ctx, e.Mutes)))
		case SaveNotifiedEffect:
			errs = append(errs, wrapSave("notified pull requests", c.stores.NotifiedPullRequests.Save(ctx, e.URLs)))
		case NotifyEffect:
			c.notifier.Notify(ctx, e.Unreviewed, e.AlreadyNotified)
		case BadgeEffect:
			c.badger.Update(e.Badge)
		case BroadcastEffect:
			c.messenger.Send(model.Message{Kind: e.Kind})
		}
	}
	return errors.Join(errs...)
}

func wrapSave(field string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("save %s: %w", field, err)
}
