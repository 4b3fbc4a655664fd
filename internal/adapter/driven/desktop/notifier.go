package desktop

import (
	"context"
	"html"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Notifier)(nil)

// Notifier prints one line per pull request that needs attention. Titles come
// from GitHub users and are stripped of markup and control characters before
// they reach the terminal.
type Notifier struct {
	out       io.Writer
	sanitizer *bluemonday.Policy
	repo      *color.Color
	title     *color.Color

	mu      sync.RWMutex
	onClick func(url string)
}

// NewNotifier creates a Notifier writing to out.
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{
		out:       out,
		sanitizer: bluemonday.StrictPolicy(),
		repo:      color.New(color.FgCyan, color.Bold),
		title:     color.New(color.FgYellow),
	}
}

// Notify prints every PR in unreviewed whose URL is not in alreadyNotified.
func (n *Notifier) Notify(_ context.Context, unreviewed []model.PullRequest, alreadyNotified []string) {
	seen := make(map[string]struct{}, len(alreadyNotified))
	for _, url := range alreadyNotified {
		seen[url] = struct{}{}
	}

	shown := 0
	for _, pr := range unreviewed {
		if _, ok := seen[pr.URL]; ok {
			continue
		}
		seen[pr.URL] = struct{}{}

		n.repo.Fprintf(n.out, "%s ", pr.Ref())
		n.title.Fprintf(n.out, "%s", n.cleanTitle(pr.Title))
		_, _ = io.WriteString(n.out, " "+pr.URL+"\n")
		shown++
	}

	if shown > 0 {
		slog.Info("notified pull requests", "count", shown, "skipped", len(unreviewed)-shown)
	}
}

// RegisterClickListener replaces the click callback.
func (n *Notifier) RegisterClickListener(fn func(url string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onClick = fn
}

// Click simulates the user clicking the notification for url. It reports
// whether a listener was registered.
func (n *Notifier) Click(url string) bool {
	n.mu.RLock()
	fn := n.onClick
	n.mu.RUnlock()

	if fn == nil {
		return false
	}
	fn(url)
	return true
}

func (n *Notifier) cleanTitle(title string) string {
	clean := html.UnescapeString(n.sanitizer.Sanitize(title))
	clean = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, clean)
	return strings.TrimSpace(clean)
}
