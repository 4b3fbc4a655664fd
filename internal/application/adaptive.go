package application

import (
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// ActivityTier represents the polling frequency classification of the
// viewer's pull requests based on how recently any of them changed.
type ActivityTier int

const (
	// TierHot indicates activity within the last hour. Polls every 2 minutes.
	TierHot ActivityTier = iota
	// TierActive indicates activity within the last day. Polls every 5 minutes.
	TierActive
	// TierWarm indicates activity within the last 7 days. Polls every 15 minutes.
	TierWarm
	// TierStale indicates no activity for 7+ days. Polls every 30 minutes.
	TierStale
)

// Polling intervals per activity tier.
const (
	intervalHot    = 2 * time.Minute
	intervalActive = 5 * time.Minute
	intervalWarm   = 15 * time.Minute
	intervalStale  = 30 * time.Minute
)

// String returns a human-readable name for the activity tier.
func (t ActivityTier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierActive:
		return "active"
	case TierWarm:
		return "warm"
	case TierStale:
		return "stale"
	default:
		return "unknown"
	}
}

// tierInterval returns the polling interval for the given activity tier.
func tierInterval(tier ActivityTier) time.Duration {
	switch tier {
	case TierHot:
		return intervalHot
	case TierActive:
		return intervalActive
	case TierWarm:
		return intervalWarm
	case TierStale:
		return intervalStale
	default:
		return intervalActive
	}
}

// classifyActivity determines the activity tier based on the time elapsed
// between lastActivity and now. A zero-value time is treated as TierStale.
func classifyActivity(lastActivity, now time.Time) ActivityTier {
	if lastActivity.IsZero() {
		return TierStale
	}

	elapsed := now.Sub(lastActivity)

	switch {
	case elapsed < 1*time.Hour:
		return TierHot
	case elapsed < 24*time.Hour:
		return TierActive
	case elapsed < 7*24*time.Hour:
		return TierWarm
	default:
		return TierStale
	}
}

// freshestActivity finds the most recent LastUpdateTimestamp across the
// snapshot. Returns the zero time for a nil or empty snapshot.
func freshestActivity(snapshot *model.LoadedState) time.Time {
	var newest time.Time
	if snapshot == nil {
		return newest
	}
	for _, pr := range snapshot.PullRequests {
		newest = latest(newest, LastUpdateTimestamp(pr))
	}
	return newest
}

// nextPollInterval returns the delay before the next poll: the tier interval
// of the freshest activity, never longer than base.
func nextPollInterval(snapshot *model.LoadedState, base time.Duration, now time.Time) time.Duration {
	interval := tierInterval(classifyActivity(freshestActivity(snapshot), now))
	if base > 0 && base < interval {
		return base
	}
	return interval
}
