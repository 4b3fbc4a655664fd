package desktop

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/cli/browser"

	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TabOpener = (*TabOpener)(nil)

// TabOpener opens pull requests in the default browser. When disabled it
// only logs the URL, which suits headless deployments.
type TabOpener struct {
	enabled bool
	open    func(url string) error
}

// NewTabOpener creates a TabOpener. enabled=false makes it log-only.
func NewTabOpener(enabled bool) *TabOpener {
	return &TabOpener{enabled: enabled, open: browser.OpenURL}
}

// OpenPullRequest opens rawURL. Only http and https URLs are accepted.
func (o *TabOpener) OpenPullRequest(_ context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("refusing to open %q: not an http(s) URL", rawURL)
	}

	if !o.enabled {
		slog.Info("open pull request", "url", rawURL)
		return nil
	}

	if err := o.open(rawURL); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}
	slog.Debug("opened pull request in browser", "url", rawURL)
	return nil
}
