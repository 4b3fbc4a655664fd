// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// GitHubLoader fetches a complete snapshot of the viewer's open pull requests.
// previous is the last committed snapshot (nil on first load) and may be used
// as a hint to skip unchanged pull requests. mutes lets the loader skip
// ignored repositories. Any fetch or authentication failure is returned as an
// error whose message is shown to the user verbatim.
type GitHubLoader interface {
	Load(ctx context.Context, token string, mutes model.MuteConfiguration, previous *model.LoadedState) (*model.LoadedState, error)
}
