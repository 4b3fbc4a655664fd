package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// muteDocumentVersion is the current on-disk layout of the mute configuration.
// Version 1 documents carry no version field; their entries have no expiry
// rule and the ignored map may be absent.
const muteDocumentVersion = 2

// Compile-time interface satisfaction check.
var _ driven.Store[model.MuteConfiguration] = (*MuteRepo)(nil)

// MuteRepo persists the mute configuration as a versioned JSON document.
// Older documents are migrated to the current layout when loaded.
type MuteRepo struct {
	kv  *KVRepo
	now func() time.Time
}

// NewMuteRepo creates a new MuteRepo. now stamps mutes migrated from
// documents that predate expiry rules.
func NewMuteRepo(kv *KVRepo, now func() time.Time) *MuteRepo {
	return &MuteRepo{kv: kv, now: now}
}

type muteDocument struct {
	Version           int                      `json:"version,omitempty"`
	MutedPullRequests []mutedPullRequestRecord `json:"mutedPullRequests"`
	Ignored           map[string]ignoreRecord  `json:"ignored,omitempty"`
	NotifyNewCommits  bool                     `json:"notifyNewCommits,omitempty"`
	OnlyDirect        bool                     `json:"onlyDirectRequests,omitempty"`
	WhitelistedTeams  []string                 `json:"whitelistedTeams,omitempty"`
}

type mutedPullRequestRecord struct {
	Repo   string       `json:"repo"`
	Owner  string       `json:"owner"`
	Number int          `json:"number"`
	Until  *untilRecord `json:"until,omitempty"`
}

type untilRecord struct {
	Kind     string `json:"kind"`
	MutedAt  int64  `json:"mutedAtTimestamp,omitempty"`
	UnmuteAt int64  `json:"unmuteAtTimestamp,omitempty"`
}

type ignoreRecord struct {
	Kind      string   `json:"kind"`
	RepoNames []string `json:"repoNames,omitempty"`
}

// Load returns the stored configuration, or NothingMuted when nothing is
// stored or the document cannot be read.
func (r *MuteRepo) Load(ctx context.Context) (model.MuteConfiguration, error) {
	raw, ok, err := r.kv.Get(ctx, KeyMuteConfiguration)
	if err != nil {
		return model.NothingMuted(), err
	}
	if !ok {
		return model.NothingMuted(), nil
	}

	var doc muteDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		slog.Warn("mute configuration unreadable, starting empty", "error", err)
		return model.NothingMuted(), nil
	}
	if doc.Version > muteDocumentVersion {
		slog.Warn("mute configuration written by a newer version, starting empty", "version", doc.Version)
		return model.NothingMuted(), nil
	}
	cfg, migrated := r.fromDocument(doc)
	if migrated > 0 {
		// Stamp the migration once; later loads must see the same mute time.
		if err := r.Save(ctx, cfg); err != nil {
			slog.Warn("persisting migrated mutes failed", "error", err)
		}
		slog.Info("migrated legacy mutes", "count", migrated)
	}
	return cfg, nil
}

// Save writes cfg in the current document layout.
func (r *MuteRepo) Save(ctx context.Context, cfg model.MuteConfiguration) error {
	data, err := json.Marshal(toDocument(cfg))
	if err != nil {
		return fmt.Errorf("marshal mute configuration: %w", err)
	}
	return r.kv.Put(ctx, KeyMuteConfiguration, string(data))
}

func toDocument(cfg model.MuteConfiguration) muteDocument {
	doc := muteDocument{
		Version:           muteDocumentVersion,
		MutedPullRequests: make([]mutedPullRequestRecord, 0, len(cfg.MutedPullRequests)),
		Ignored:           make(map[string]ignoreRecord, len(cfg.Ignored)),
		NotifyNewCommits:  cfg.NotifyNewCommits,
		OnlyDirect:        cfg.OnlyDirectRequests,
		WhitelistedTeams:  cfg.WhitelistedTeams,
	}
	for _, m := range cfg.MutedPullRequests {
		until := untilRecord{Kind: string(m.Until.Kind)}
		if !m.Until.MutedAt.IsZero() {
			until.MutedAt = m.Until.MutedAt.UnixMilli()
		}
		if !m.Until.UnmuteAt.IsZero() {
			until.UnmuteAt = m.Until.UnmuteAt.UnixMilli()
		}
		doc.MutedPullRequests = append(doc.MutedPullRequests, mutedPullRequestRecord{
			Repo:   m.Ref.Name,
			Owner:  m.Ref.Owner,
			Number: m.Ref.Number,
			Until:  &until,
		})
	}
	for owner, ignore := range cfg.Ignored {
		doc.Ignored[owner] = ignoreRecord{Kind: string(ignore.Kind), RepoNames: ignore.RepoNames}
	}
	return doc
}

// fromDocument converts a document of any known version, defaulting what
// older layouts lack and dropping entries it does not understand. It also
// returns how many entries were given a default expiry rule.
func (r *MuteRepo) fromDocument(doc muteDocument) (model.MuteConfiguration, int) {
	cfg := model.NothingMuted()
	cfg.NotifyNewCommits = doc.NotifyNewCommits
	cfg.OnlyDirectRequests = doc.OnlyDirect
	cfg.WhitelistedTeams = doc.WhitelistedTeams

	migrated := 0
	mutedAt := r.now().UTC().Truncate(time.Millisecond)
	for _, rec := range doc.MutedPullRequests {
		ref := model.PullRequestRef{Owner: rec.Owner, Name: rec.Repo, Number: rec.Number}
		var until model.MutedUntil
		if rec.Until == nil {
			until = model.MutedUntil{Kind: model.MutedUntilNextUpdate, MutedAt: mutedAt}
			migrated++
		} else {
			var ok bool
			until, ok = untilFromRecord(*rec.Until)
			if !ok {
				slog.Warn("dropping mute with unknown expiry", "pr", ref.String(), "kind", rec.Until.Kind)
				continue
			}
		}
		cfg.MutedPullRequests = append(withoutRef(cfg.MutedPullRequests, ref), model.MutedPullRequest{Ref: ref, Until: until})
	}
	for owner, rec := range doc.Ignored {
		switch model.IgnoreKind(rec.Kind) {
		case model.IgnoreAll:
			cfg.Ignored[owner] = model.IgnoreConfiguration{Kind: model.IgnoreAll}
		case model.IgnoreOnly:
			if len(rec.RepoNames) == 0 {
				continue
			}
			cfg.Ignored[owner] = model.IgnoreConfiguration{Kind: model.IgnoreOnly, RepoNames: rec.RepoNames}
		default:
			slog.Warn("dropping ignore rule with unknown kind", "owner", owner, "kind", rec.Kind)
		}
	}
	return cfg, migrated
}

func untilFromRecord(rec untilRecord) (model.MutedUntil, bool) {
	kind := model.MutedUntilKind(rec.Kind)
	switch kind {
	case model.MutedUntilNextUpdate:
		return model.MutedUntil{Kind: kind, MutedAt: fromMillis(rec.MutedAt)}, true
	case model.MutedUntilSpecificTime:
		return model.MutedUntil{Kind: kind, UnmuteAt: fromMillis(rec.UnmuteAt)}, true
	case model.MutedUntilNotDraft, model.MutedUntilForever:
		return model.MutedUntil{Kind: kind}, true
	default:
		return model.MutedUntil{}, false
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// withoutRef drops any earlier entry for ref so duplicate keys in a stored
// document collapse to the last one.
func withoutRef(mutes []model.MutedPullRequest, ref model.PullRequestRef) []model.MutedPullRequest {
	out := mutes[:0]
	for _, m := range mutes {
		if m.Ref != ref {
			out = append(out, m)
		}
	}
	return out
}
