// Package application contains use-case orchestration services.
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// Refresher is the part of the Core the poll service drives.
type Refresher interface {
	RefreshPullRequests(ctx context.Context) error
	State() CoreState
}

// refreshRequest represents a manual refresh trigger.
type refreshRequest struct {
	done chan error
}

// PollService periodically refreshes the Core. The delay between polls adapts
// to how recently the viewer's pull requests changed, capped at interval.
type PollService struct {
	core      Refresher
	messenger driven.Messenger
	interval  time.Duration
	now       func() time.Time
	refreshCh chan refreshRequest
	restartCh chan struct{}
}

// NewPollService creates a new PollService with all required dependencies.
func NewPollService(core Refresher, messenger driven.Messenger, interval time.Duration) *PollService {
	return &PollService{
		core:      core,
		messenger: messenger,
		interval:  interval,
		now:       time.Now,
		refreshCh: make(chan refreshRequest),
		restartCh: make(chan struct{}, 1),
	}
}

// Start begins the polling loop. It runs an immediate poll, then polls on the
// adaptive schedule. A restart message resets the schedule and polls at once.
// Start blocks until the context is canceled.
func (s *PollService) Start(ctx context.Context) {
	stopListening := s.messenger.Listen(func(msg model.Message) {
		if msg.Kind != model.MessageRestart {
			return
		}
		select {
		case s.restartCh <- struct{}{}:
		default:
		}
	})
	defer stopListening()

	s.poll(ctx, "initial")

	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll service stopped")
			return
		case <-timer.C:
			s.poll(ctx, "scheduled")
			timer.Reset(s.nextInterval())
		case <-s.restartCh:
			slog.Info("poll schedule restarted")
			s.poll(ctx, "restart")
			resetTimer(timer, s.nextInterval())
		case req := <-s.refreshCh:
			req.done <- s.core.RefreshPullRequests(ctx)
			resetTimer(timer, s.nextInterval())
		}
	}
}

// RefreshNow triggers a refresh outside the schedule and waits for its
// result. It blocks until the refresh completes or the context is canceled.
func (s *PollService) RefreshNow(ctx context.Context) error {
	done := make(chan error, 1)
	req := refreshRequest{done: done}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// poll runs one refresh. Failures are logged; the Core already recorded them.
func (s *PollService) poll(ctx context.Context, reason string) {
	if err := s.core.RefreshPullRequests(ctx); err != nil {
		slog.Error("poll cycle failed", "reason", reason, "error", err)
	}
}

func (s *PollService) nextInterval() time.Duration {
	snapshot := s.core.State().Snapshot
	next := nextPollInterval(snapshot, s.interval, s.now())
	slog.Debug("next poll scheduled",
		"in", next,
		"tier", classifyActivity(freshestActivity(snapshot), s.now()).String(),
	)
	return next
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
