package service

import (
	"context"
	"fmt"
	mrand "math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-builders/giveaway-engine/internal/common/async"
	"github.com/open-builders/giveaway-engine/internal/common/cache"
	"github.com/open-builders/giveaway-engine/internal/common/config"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

type memStore[K comparable, V any] struct {
	mu      sync.Mutex
	data    map[K]V
	loadErr error
}

func newMemStore[K comparable, V any]() *memStore[K, V] {
	return &memStore[K, V]{data: make(map[K]V)}
}

func (s *memStore[K, V]) Load(_ context.Context, key K) (V, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		var zero V
		return zero, false, s.loadErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore[K, V]) LoadAll(_ context.Context) ([]V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]V, 0, len(s.data))
	for _, v := range s.data {
		out = append(out, v)
	}
	return out, nil
}

func (s *memStore[K, V]) Save(_ context.Context, key K, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore[K, V]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore[K, V]) failLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

func (s *memStore[K, V]) get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *memStore[K, V]) has(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

type memFinished struct {
	mu    sync.Mutex
	saved []*models.FinishedGiveaway
}

func (s *memFinished) Save(_ context.Context, g *models.FinishedGiveaway) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, g)
	return nil
}

func (s *memFinished) Load(_ context.Context, sourceID string) (*models.FinishedGiveaway, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.saved {
		if g.SourceID == sourceID {
			return g, true, nil
		}
	}
	return nil, false, nil
}

func (s *memFinished) ListByCommunity(_ context.Context, communityID int64, limit int) ([]*models.FinishedGiveaway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.FinishedGiveaway
	for i := len(s.saved) - 1; i >= 0 && len(out) < limit; i-- {
		if s.saved[i].CommunityID == communityID {
			out = append(out, s.saved[i])
		}
	}
	return out, nil
}

func (s *memFinished) all() []*models.FinishedGiveaway {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.FinishedGiveaway(nil), s.saved...)
}

type fakePlatform struct {
	mu        sync.Mutex
	nextID    int
	posts     map[string]string
	published []string
	deleted   []string
	edits     map[string]int
	reactions map[string]string

	permErr       error
	affordanceErr error
	editErr       error
	retrieveErr   error
	publishDelay  time.Duration
	// onEdit runs before an edit is applied, outside the lock.
	onEdit func(postID, text string)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		posts:     make(map[string]string),
		edits:     make(map[string]int),
		reactions: make(map[string]string),
	}
}

func (p *fakePlatform) PublishPost(_ context.Context, channelID int64, text string) (string, error) {
	p.mu.Lock()
	delay := p.publishDelay
	p.mu.Unlock()
	time.Sleep(delay)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("%d:%d", channelID, p.nextID)
	p.posts[id] = text
	p.published = append(p.published, id)
	return id, nil
}

func (p *fakePlatform) EditPost(_ context.Context, postID, text string) error {
	p.mu.Lock()
	hook := p.onEdit
	p.mu.Unlock()
	if hook != nil {
		hook(postID, text)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.editErr != nil {
		return p.editErr
	}
	if _, ok := p.posts[postID]; !ok {
		return ErrPostNotFound
	}
	p.posts[postID] = text
	p.edits[postID]++
	return nil
}

func (p *fakePlatform) RetrievePost(_ context.Context, postID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retrieveErr != nil {
		return false, p.retrieveErr
	}
	_, ok := p.posts[postID]
	return ok, nil
}

func (p *fakePlatform) AddEntryAffordance(_ context.Context, postID, emoji string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.affordanceErr != nil {
		return p.affordanceErr
	}
	p.reactions[postID] = emoji
	return nil
}

func (p *fakePlatform) DeletePost(_ context.Context, postID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.posts, postID)
	p.deleted = append(p.deleted, postID)
	return nil
}

func (p *fakePlatform) CheckPermissions(_ context.Context, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permErr
}

// addPost registers a post that exists on the platform.
func (p *fakePlatform) addPost(id, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts[id] = text
}

func (p *fakePlatform) text(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.posts[id]
}

func (p *fakePlatform) editCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.edits[id]
}

func (p *fakePlatform) publishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *fakePlatform) deletedPosts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deleted...)
}

type fakeProbe struct {
	mu     sync.Mutex
	usable bool
}

func (p *fakeProbe) Usable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usable
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	ctrl        *Controller
	pipeline    *Pipeline
	caches      *Caches
	platform    *fakePlatform
	probe       *fakeProbe
	clock       *fakeClock
	giveaways   *memStore[string, *models.ActiveGiveaway]
	communities *memStore[int64, *models.Community]
	users       *memStore[models.UserKey, *models.User]
	scheduled   *memStore[string, *models.ScheduledGiveaway]
	finished    *memFinished

	timersMu sync.Mutex
	armed    []time.Duration
}

func defaultPreset() models.Preset {
	return models.Preset{
		Name:                 models.DefaultPresetName,
		EnableReactToEnter:   true,
		ReactToEnterEmoji:    "🎉",
		EnableMessageEntries: true,
		EntriesPerMessage:    1,
		EnableInviteEntries:  true,
		EntriesPerInvite:     250,
		MaxEntries:           1000,
		PingWinners:          true,
	}
}

func testConfig() config.GiveawayConfig {
	return config.GiveawayConfig{
		FreeQuota:            5,
		PremiumQuota:         10,
		RefreshInterval:      30 * time.Second,
		IdleTTL:              10 * time.Minute,
		ReconcileConcurrency: 2,
	}
}

func newHarness(t *testing.T, mutate ...func(*config.GiveawayConfig)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	h := &harness{
		platform:    newFakePlatform(),
		probe:       &fakeProbe{usable: true},
		clock:       &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		giveaways:   newMemStore[string, *models.ActiveGiveaway](),
		communities: newMemStore[int64, *models.Community](),
		users:       newMemStore[models.UserKey, *models.User](),
		scheduled:   newMemStore[string, *models.ScheduledGiveaway](),
		finished:    &memFinished{},
	}

	pools := async.NewPools(2, 2, 2)
	t.Cleanup(func() { _ = pools.Close(context.Background()) })

	stores := Stores{
		Giveaways:   h.giveaways,
		Communities: h.communities,
		Users:       h.users,
		Scheduled:   h.scheduled,
		Finished:    h.finished,
	}
	h.caches = NewCaches(stores, pools.Storage, cfg.IdleTTL, cache.WithClock(h.clock.Now))

	h.ctrl = NewController(Deps{
		Config:        cfg,
		DefaultPreset: defaultPreset(),
		Caches:        h.caches,
		Stores:        stores,
		Platform:      h.platform,
		Probe:         h.probe,
		Pools:         pools,
		Selector:      NewSelector(mrand.New(mrand.NewSource(7))),
	})
	h.ctrl.now = h.clock.Now
	h.ctrl.afterFunc = func(_ time.Duration, f func()) *time.Timer {
		return time.AfterFunc(365*24*time.Hour, f)
	}

	h.pipeline = NewPipeline(h.caches, pools.Storage, defaultPreset())
	h.pipeline.now = h.clock.Now
	return h
}

// recordTimers makes the controller record the delay of every armed timer.
func (h *harness) recordTimers(t *testing.T) {
	t.Helper()
	h.ctrl.afterFunc = func(d time.Duration, f func()) *time.Timer {
		h.timersMu.Lock()
		defer h.timersMu.Unlock()
		h.armed = append(h.armed, d)
		return time.AfterFunc(365*24*time.Hour, f)
	}
}

func (h *harness) armedDelays() []time.Duration {
	h.timersMu.Lock()
	defer h.timersMu.Unlock()
	return append([]time.Duration(nil), h.armed...)
}

func (h *harness) create(t *testing.T, communityID int64, d time.Duration, winners int) *models.ActiveGiveaway {
	t.Helper()
	g, err := h.ctrl.Create(context.Background(), CreateRequest{
		CommunityID: communityID,
		ChannelID:   100,
		Duration:    d,
		WinnerCount: winners,
		Prize:       "Nitro",
	})
	require.NoError(t, err)
	return g
}

func (h *harness) enter(t *testing.T, ev models.EntryEvent) int {
	t.Helper()
	n, err := h.pipeline.Process(context.Background(), ev)
	require.NoError(t, err)
	return n
}

func react(communityID, userID int64) models.EntryEvent {
	return models.EntryEvent{Type: models.EntryTypeReaction, CommunityID: communityID, UserID: userID, Emoji: "🎉"}
}
