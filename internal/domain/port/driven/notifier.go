package driven

import (
	"context"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// Notifier shows notifications for pull requests that need attention.
// Implementations must skip any pull request whose URL is in alreadyNotified.
type Notifier interface {
	Notify(ctx context.Context, unreviewed []model.PullRequest, alreadyNotified []string)
	// RegisterClickListener installs the callback invoked with the PR URL
	// when the user clicks a notification.
	RegisterClickListener(func(url string))
}

// Badger renders the badge state.
type Badger interface {
	Update(state model.BadgeState)
}

// TabOpener opens a pull request for the user.
type TabOpener interface {
	OpenPullRequest(ctx context.Context, url string) error
}
