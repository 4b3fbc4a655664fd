package application_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/prmonitor/internal/application"
	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// --- Mock implementations ---

type memStore[T any] struct {
	mu       sync.Mutex
	value    T
	saves    int
	loadErr  error
	saveErr  error
	loadHook func()
}

func (s *memStore[T]) Load(_ context.Context) (T, error) {
	if s.loadHook != nil {
		s.loadHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		var zero T
		return zero, s.loadErr
	}
	return s.value, nil
}

func (s *memStore[T]) Save(_ context.Context, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.value = value
	return nil
}

func (s *memStore[T]) get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

type testStores struct {
	token     *memStore[string]
	lastError *memStore[string]
	lastCheck *memStore[*model.LoadedState]
	mutes     *memStore[model.MuteConfiguration]
	notified  *memStore[[]string]
}

func newTestStores(token string) *testStores {
	return &testStores{
		token:     &memStore[string]{value: token},
		lastError: &memStore[string]{},
		lastCheck: &memStore[*model.LoadedState]{},
		mutes:     &memStore[model.MuteConfiguration]{value: model.NothingMuted()},
		notified:  &memStore[[]string]{value: []string{}},
	}
}

func (s *testStores) stores() driven.Stores {
	return driven.Stores{
		Token:                s.token,
		LastError:            s.lastError,
		LastCheck:            s.lastCheck,
		MuteConfiguration:    s.mutes,
		NotifiedPullRequests: s.notified,
	}
}

type mockLoader struct {
	calls  atomic.Int32
	mu     sync.Mutex
	tokens []string
	loadFn func(ctx context.Context, token string) (*model.LoadedState, error)
}

func (m *mockLoader) Load(ctx context.Context, token string, _ model.MuteConfiguration, _ *model.LoadedState) (*model.LoadedState, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()
	return m.loadFn(ctx, token)
}

func (m *mockLoader) usedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tokens...)
}

type notifyCall struct {
	unreviewed      []model.PullRequest
	alreadyNotified []string
}

type mockNotifier struct {
	mu      sync.Mutex
	calls   []notifyCall
	onClick func(url string)
}

func (m *mockNotifier) Notify(_ context.Context, unreviewed []model.PullRequest, alreadyNotified []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, notifyCall{unreviewed: unreviewed, alreadyNotified: alreadyNotified})
}

func (m *mockNotifier) RegisterClickListener(fn func(url string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClick = fn
}

func (m *mockNotifier) notifyCalls() []notifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifyCall(nil), m.calls...)
}

type mockBadger struct {
	mu      sync.Mutex
	updates []model.BadgeState
}

func (m *mockBadger) Update(state model.BadgeState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, state)
}

func (m *mockBadger) all() []model.BadgeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.BadgeState(nil), m.updates...)
}

func (m *mockBadger) last() model.BadgeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		return model.BadgeState{}
	}
	return m.updates[len(m.updates)-1]
}

// mockMessenger records sent messages. Listeners only run when deliver is
// called, so tests decide when the Core reacts.
type mockMessenger struct {
	mu        sync.Mutex
	sent      []model.Message
	listeners []func(model.Message)
}

func (m *mockMessenger) Listen(fn func(model.Message)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
	return func() {}
}

func (m *mockMessenger) Send(msg model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *mockMessenger) deliver(msg model.Message) {
	m.mu.Lock()
	listeners := append([]func(model.Message){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(msg)
	}
}

func (m *mockMessenger) kinds() []model.MessageKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]model.MessageKind, 0, len(m.sent))
	for _, msg := range m.sent {
		kinds = append(kinds, msg.Kind)
	}
	return kinds
}

type mockOpener struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (m *mockOpener) OpenPullRequest(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, url)
	return m.err
}

type mockNetwork struct {
	offline atomic.Bool
	checks  atomic.Int32
}

func (m *mockNetwork) IsOnline(_ context.Context) bool {
	m.checks.Add(1)
	return !m.offline.Load()
}

// --- Helpers ---

type coreFixture struct {
	core      *application.Core
	stores    *testStores
	loader    *mockLoader
	notifier  *mockNotifier
	badger    *mockBadger
	messenger *mockMessenger
	opener    *mockOpener
	network   *mockNetwork
}

func newCoreFixture(t *testing.T, token string, opts ...application.CoreOption) *coreFixture {
	t.Helper()

	f := &coreFixture{
		stores: newTestStores(token),
		loader: &mockLoader{loadFn: func(context.Context, string) (*model.LoadedState, error) {
			return snapshotOf(incomingPR(1), outgoingPR(2)), nil
		}},
		notifier:  &mockNotifier{},
		badger:    &mockBadger{},
		messenger: &mockMessenger{},
		opener:    &mockOpener{},
		network:   &mockNetwork{},
	}
	opts = append([]application.CoreOption{application.WithClock(func() time.Time { return at(100) })}, opts...)
	f.core = application.NewCore(f.loader, f.stores.stores(), f.notifier, f.badger, f.messenger, f.opener, f.network, opts...)
	require.NoError(t, f.core.Start(t.Context()))
	return f
}

// --- Tests ---

func TestCore_StartLoadsPersistedState(t *testing.T) {
	stores := newTestStores("t")
	stores.lastCheck.value = snapshotOf(incomingPR(1))
	stores.notified.value = []string{incomingPR(1).URL}

	badger := &mockBadger{}
	core := application.NewCore(&mockLoader{}, stores.stores(), &mockNotifier{}, badger,
		&mockMessenger{}, &mockOpener{}, &mockNetwork{},
		application.WithClock(func() time.Time { return at(100) }))

	assert.Equal(t, model.StatusLoading, core.State().Status)
	require.NoError(t, core.Start(t.Context()))

	state := core.State()
	assert.Equal(t, model.StatusLoaded, state.Status)
	assert.Equal(t, "t", state.Token)
	assert.Equal(t, stores.lastCheck.value, state.Snapshot)
	assert.Equal(t, []string{incomingPR(1).URL}, state.Notified)
	assert.Equal(t, model.BadgeState{Kind: model.BadgeLoaded, UnreviewedCount: 1}, badger.last())
}

func TestCore_LoadWithoutTokenIgnoresOtherFields(t *testing.T) {
	stores := newTestStores("")
	stores.lastCheck.value = snapshotOf(incomingPR(1))
	stores.lastError.value = "old"

	core := application.NewCore(&mockLoader{}, stores.stores(), &mockNotifier{}, &mockBadger{},
		&mockMessenger{}, &mockOpener{}, &mockNetwork{})
	require.NoError(t, core.Load(t.Context()))

	state := core.State()
	assert.Nil(t, state.Snapshot)
	assert.Empty(t, state.LastError)
	assert.Equal(t, model.BadgeState{Kind: model.BadgeError}, core.Badge())
}

func TestCore_LoadDegradesOnStoreFailure(t *testing.T) {
	stores := newTestStores("t")
	stores.mutes.loadErr = errors.New("corrupt")
	stores.lastCheck.value = snapshotOf(incomingPR(1))

	core := application.NewCore(&mockLoader{}, stores.stores(), &mockNotifier{}, &mockBadger{},
		&mockMessenger{}, &mockOpener{}, &mockNetwork{})
	require.NoError(t, core.Load(t.Context()))

	state := core.State()
	assert.Equal(t, "t", state.Token)
	assert.Equal(t, model.NothingMuted(), state.Mutes)
	assert.NotNil(t, state.Snapshot)
}

func TestCore_RefreshWithoutTokenIsNoop(t *testing.T) {
	f := newCoreFixture(t, "")

	require.NoError(t, f.core.RefreshPullRequests(t.Context()))
	assert.Zero(t, f.loader.calls.Load())
	assert.Zero(t, f.network.checks.Load())
}

func TestCore_RefreshOfflineIsNoop(t *testing.T) {
	f := newCoreFixture(t, "t")
	f.network.offline.Store(true)

	require.NoError(t, f.core.RefreshPullRequests(t.Context()))
	assert.Zero(t, f.loader.calls.Load())
	assert.False(t, f.core.State().Refreshing)
}

func TestCore_RefreshSuccess(t *testing.T) {
	f := newCoreFixture(t, "t")

	require.NoError(t, f.core.RefreshPullRequests(t.Context()))

	state := f.core.State()
	require.NotNil(t, state.Snapshot)
	assert.Len(t, state.Snapshot.PullRequests, 2)
	assert.False(t, state.Refreshing)
	assert.Empty(t, state.LastError)

	assert.Equal(t, state.Snapshot, f.stores.lastCheck.get())
	assert.Equal(t, []string{incomingPR(1).URL}, f.stores.notified.get())

	calls := f.notifier.notifyCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []model.PullRequest{incomingPR(1)}, calls[0].unreviewed)
	assert.Empty(t, calls[0].alreadyNotified)

	assert.Equal(t, model.BadgeState{Kind: model.BadgeLoaded, UnreviewedCount: 1}, f.badger.last())
	assert.Contains(t, f.messenger.kinds(), model.MessageReload)
}

func TestCore_RefreshNotifiesWithPreviousSet(t *testing.T) {
	f := newCoreFixture(t, "t")

	require.NoError(t, f.core.RefreshPullRequests(t.Context()))
	require.NoError(t, f.core.RefreshPullRequests(t.Context()))

	calls := f.notifier.notifyCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{incomingPR(1).URL}, calls[1].alreadyNotified)
	assert.Equal(t, []string{incomingPR(1).URL}, f.stores.notified.get())
}

func TestCore_RefreshFailureRecordsError(t *testing.T) {
	f := newCoreFixture(t, "t")
	require.NoError(t, f.core.RefreshPullRequests(t.Context()))
	previous := f.core.State().Snapshot

	f.loader.loadFn = func(context.Context, string) (*model.LoadedState, error) {
		return nil, errors.New("bad credentials")
	}
	err := f.core.RefreshPullRequests(t.Context())
	require.EqualError(t, err, "bad credentials")

	state := f.core.State()
	assert.Equal(t, "bad credentials", state.LastError)
	assert.Same(t, previous, state.Snapshot)
	assert.False(t, state.Refreshing)
	assert.Equal(t, "bad credentials", f.stores.lastError.get())
	assert.Equal(t, model.BadgeState{Kind: model.BadgeError}, f.badger.last())
}

func TestCore_RefreshWithoutDataIsAnError(t *testing.T) {
	f := newCoreFixture(t, "t")
	f.loader.loadFn = func(context.Context, string) (*model.LoadedState, error) { return nil, nil }

	err := f.core.RefreshPullRequests(t.Context())
	require.Error(t, err)
	assert.NotEmpty(t, f.core.State().LastError)
}

func TestCore_RefreshTimeout(t *testing.T) {
	f := newCoreFixture(t, "t", application.WithRefreshTimeout(20*time.Millisecond))
	f.loader.loadFn = func(ctx context.Context, _ string) (*model.LoadedState, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	err := f.core.RefreshPullRequests(t.Context())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.core.State().Refreshing)
}

func TestCore_ConcurrentRefreshesShareOneLoad(t *testing.T) {
	f := newCoreFixture(t, "t")

	release := make(chan struct{})
	f.loader.loadFn = func(context.Context, string) (*model.LoadedState, error) {
		<-release
		return snapshotOf(incomingPR(1)), nil
	}

	const callers = 5
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.core.RefreshPullRequests(t.Context()))
		}()
	}

	require.Eventually(t, func() bool {
		return f.network.checks.Load() == callers && f.loader.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, f.core.State().Refreshing)
	time.Sleep(20 * time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), f.loader.calls.Load())
	assert.False(t, f.core.State().Refreshing)
}

func TestCore_TokenChangeDiscardsInFlightResult(t *testing.T) {
	f := newCoreFixture(t, "old")

	started := make(chan struct{})
	release := make(chan struct{})
	f.loader.loadFn = func(context.Context, string) (*model.LoadedState, error) {
		close(started)
		<-release
		return snapshotOf(incomingPR(1)), nil
	}

	done := make(chan error, 1)
	go func() { done <- f.core.RefreshPullRequests(t.Context()) }()
	<-started

	require.NoError(t, f.core.SetNewToken(t.Context(), "new"))
	close(release)
	require.NoError(t, <-done)

	state := f.core.State()
	assert.Equal(t, "new", state.Token)
	assert.Nil(t, state.Snapshot)
	assert.False(t, state.Refreshing)
	assert.Nil(t, f.stores.lastCheck.get())
	assert.Empty(t, f.notifier.notifyCalls())
}

func TestCore_SetNewToken(t *testing.T) {
	f := newCoreFixture(t, "old")
	require.NoError(t, f.core.RefreshPullRequests(t.Context()))
	require.NoError(t, f.core.MutePullRequest(t.Context(), incomingPR(1).Ref(), model.MuteForever))

	require.NoError(t, f.core.SetNewToken(t.Context(), "new"))

	state := f.core.State()
	assert.Equal(t, "new", state.Token)
	assert.Nil(t, state.Snapshot)
	assert.Empty(t, state.Notified)
	assert.Empty(t, state.Mutes.MutedPullRequests)
	assert.Equal(t, "new", f.stores.token.get())
	assert.Nil(t, f.stores.lastCheck.get())

	kinds := f.messenger.kinds()
	assert.Equal(t, model.MessageRefresh, kinds[len(kinds)-1])
}

func TestCore_SetNewTokenSaveFailure(t *testing.T) {
	f := newCoreFixture(t, "old")
	require.NoError(t, f.core.RefreshPullRequests(t.Context()))
	require.NoError(t, f.core.MutePullRequest(t.Context(), incomingPR(1).Ref(), model.MuteForever))
	before := f.core.State()
	f.stores.token.saveErr = driven.ErrEncryptionKeyNotSet

	err := f.core.SetNewToken(t.Context(), "new")
	require.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
	assert.NotContains(t, f.messenger.kinds(), model.MessageRefresh)

	after := f.core.State()
	assert.Equal(t, "old", after.Token)
	assert.Equal(t, before, after)
	assert.Equal(t, "old", f.stores.token.get())
	assert.NotNil(t, f.stores.lastCheck.get())
	assert.Len(t, f.stores.mutes.get().MutedPullRequests, 1)
	assert.Equal(t, []string{incomingPR(1).URL}, f.stores.notified.get())
}

func TestCore_NewTokenRefreshRunsWhileOldRefreshInFlight(t *testing.T) {
	f := newCoreFixture(t, "old")

	started := make(chan struct{})
	release := make(chan struct{})
	f.loader.loadFn = func(_ context.Context, token string) (*model.LoadedState, error) {
		if token == "old" {
			close(started)
			<-release
			return snapshotOf(incomingPR(1)), nil
		}
		return snapshotOf(outgoingPR(2)), nil
	}

	done := make(chan error, 1)
	go func() { done <- f.core.RefreshPullRequests(t.Context()) }()
	<-started

	require.NoError(t, f.core.SetNewToken(t.Context(), "new"))
	f.messenger.deliver(model.Message{ID: "after-token", Kind: model.MessageRefresh})

	state := f.core.State()
	require.NotNil(t, state.Snapshot)
	assert.Equal(t, []model.PullRequest{outgoingPR(2)}, state.Snapshot.PullRequests)

	close(release)
	require.NoError(t, <-done)

	state = f.core.State()
	assert.Equal(t, []string{"old", "new"}, f.loader.usedTokens())
	require.NotNil(t, state.Snapshot)
	assert.Equal(t, []model.PullRequest{outgoingPR(2)}, state.Snapshot.PullRequests)
	assert.False(t, state.Refreshing)
	assert.Equal(t, state.Snapshot, f.stores.lastCheck.get())
}

func TestCore_RefreshAfterErrorBadgeSequence(t *testing.T) {
	stores := newTestStores("t")
	stores.lastError.value = "bad credentials"
	stores.lastCheck.value = snapshotOf()

	loader := &mockLoader{loadFn: func(context.Context, string) (*model.LoadedState, error) {
		return snapshotOf(), nil
	}}
	badger := &mockBadger{}
	core := application.NewCore(loader, stores.stores(), &mockNotifier{}, badger,
		&mockMessenger{}, &mockOpener{}, &mockNetwork{},
		application.WithClock(func() time.Time { return at(100) }))
	require.NoError(t, core.Start(t.Context()))

	require.NoError(t, core.RefreshPullRequests(t.Context()))

	assert.Equal(t, []model.BadgeState{
		{Kind: model.BadgeError},
		{Kind: model.BadgeReloading, UnreviewedCount: 0},
		{Kind: model.BadgeLoaded, UnreviewedCount: 0},
	}, badger.all())
	assert.Empty(t, stores.lastError.get())
	assert.Empty(t, core.State().LastError)
}

func TestCore_MuteDuringLoadIsKept(t *testing.T) {
	f := newCoreFixture(t, "t")

	loading := make(chan struct{})
	release := make(chan struct{})
	f.stores.mutes.loadHook = func() {
		close(loading)
		<-release
	}

	loaded := make(chan error, 1)
	go func() { loaded <- f.core.Load(t.Context()) }()
	<-loading

	muted := make(chan error, 1)
	go func() {
		muted <- f.core.MutePullRequest(t.Context(), incomingPR(1).Ref(), model.MuteForever)
	}()
	time.Sleep(20 * time.Millisecond)

	close(release)
	require.NoError(t, <-loaded)
	require.NoError(t, <-muted)

	assert.Len(t, f.core.State().Mutes.MutedPullRequests, 1)
	assert.Len(t, f.stores.mutes.get().MutedPullRequests, 1)
}

func TestCore_MuteUpdatesBadgeImmediately(t *testing.T) {
	f := newCoreFixture(t, "t")
	require.NoError(t, f.core.RefreshPullRequests(t.Context()))
	require.Equal(t, 1, f.core.Badge().UnreviewedCount)

	require.NoError(t, f.core.MutePullRequest(t.Context(), incomingPR(1).Ref(), model.MuteNextUpdate))

	assert.Equal(t, model.BadgeState{Kind: model.BadgeLoaded}, f.badger.last())
	assert.Equal(t, []model.PullRequest{incomingPR(1)}, f.core.PullRequests(model.FilterMuted))
	assert.Empty(t, f.core.PullRequests(model.FilterNeedsReview))
	require.Len(t, f.stores.mutes.get().MutedPullRequests, 1)
	assert.Equal(t, at(100), f.stores.mutes.get().MutedPullRequests[0].Until.MutedAt)

	require.NoError(t, f.core.UnmutePullRequest(t.Context(), incomingPR(1).Ref()))
	assert.Equal(t, 1, f.badger.last().UnreviewedCount)
}

func TestCore_MuteInvalidKind(t *testing.T) {
	f := newCoreFixture(t, "t")
	saves := f.stores.mutes.saves

	err := f.core.MutePullRequest(t.Context(), incomingPR(1).Ref(), "later")
	require.ErrorIs(t, err, application.ErrInvalidMuteKind)
	assert.Equal(t, saves, f.stores.mutes.saves)
}

func TestCore_IgnoreAndUnignore(t *testing.T) {
	f := newCoreFixture(t, "t")
	require.NoError(t, f.core.RefreshPullRequests(t.Context()))

	require.NoError(t, f.core.MutePullRequest(t.Context(), incomingPR(1).Ref(), model.MuteOwner))
	counts := f.core.Counts()
	assert.Equal(t, 2, counts[model.FilterIgnored])
	assert.Zero(t, counts[model.FilterNeedsReview])

	require.NoError(t, f.core.UnmuteOwner(t.Context(), "ACME"))
	assert.Zero(t, f.core.Counts()[model.FilterIgnored])

	require.NoError(t, f.core.MutePullRequest(t.Context(), incomingPR(1).Ref(), model.MuteRepo))
	assert.Equal(t, 2, f.core.Counts()[model.FilterIgnored])
	require.NoError(t, f.core.UnmuteRepository(t.Context(), "acme", "widgets"))
	assert.Zero(t, f.core.Counts()[model.FilterIgnored])
}

func TestCore_UpdateSettings(t *testing.T) {
	f := newCoreFixture(t, "t")

	settings := model.NotificationSettings{NotifyNewCommits: true, WhitelistedTeams: []string{"platform"}}
	require.NoError(t, f.core.UpdateSettings(t.Context(), settings))

	assert.Equal(t, settings, f.core.State().Mutes.NotificationSettings)
	assert.Equal(t, settings, f.stores.mutes.get().NotificationSettings)
}

func TestCore_HandlesMessages(t *testing.T) {
	f := newCoreFixture(t, "t")

	f.messenger.deliver(model.Message{ID: "1", Kind: model.MessageRefresh})
	assert.Equal(t, int32(1), f.loader.calls.Load())

	// Another context stored an error; a reload picks it up without loading.
	f.stores.lastError.value = "from elsewhere"
	f.messenger.deliver(model.Message{ID: "2", Kind: model.MessageReload})
	assert.Equal(t, int32(1), f.loader.calls.Load())
	assert.Equal(t, "from elsewhere", f.core.State().LastError)

	f.messenger.deliver(model.Message{ID: "3", Kind: model.MessageRestart})
	assert.Equal(t, int32(1), f.loader.calls.Load())
}

func TestCore_NotificationClickOpensPullRequest(t *testing.T) {
	f := newCoreFixture(t, "t")
	require.NotNil(t, f.notifier.onClick)

	f.notifier.onClick(incomingPR(1).URL)
	assert.Equal(t, []string{incomingPR(1).URL}, f.opener.opened)

	f.opener.err = errors.New("no browser")
	f.notifier.onClick(incomingPR(3).URL)
	assert.Len(t, f.opener.opened, 2)
}

func TestCore_StateIsACopy(t *testing.T) {
	f := newCoreFixture(t, "t")
	require.NoError(t, f.core.RefreshPullRequests(t.Context()))

	state := f.core.State()
	state.Notified[0] = "mutated"
	state.Mutes.Ignored["x"] = model.IgnoreConfiguration{Kind: model.IgnoreAll}

	assert.Equal(t, []string{incomingPR(1).URL}, f.core.State().Notified)
	assert.Empty(t, f.core.State().Mutes.Ignored)
}
