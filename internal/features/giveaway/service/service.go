package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/open-builders/giveaway-engine/internal/common/async"
	"github.com/open-builders/giveaway-engine/internal/common/config"
	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
	"github.com/open-builders/giveaway-engine/internal/common/logger"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

// CreateRequest describes a giveaway to start. EndTime wins over Duration when set.
type CreateRequest struct {
	CommunityID int64
	ChannelID   int64
	HostID      int64
	Duration    time.Duration
	EndTime     time.Time
	WinnerCount int
	PresetName  string
	Prize       string
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Config        config.GiveawayConfig
	DefaultPreset models.Preset
	Caches        *Caches
	Stores        Stores
	Platform      Platform
	Probe         LatencyProbe
	Pools         *async.Pools
	Selector      *Selector
}

// Controller drives giveaways through their lifecycle: creation, restart
// reconciliation, periodic refresh, expiry and deletion.
type Controller struct {
	cfg           config.GiveawayConfig
	defaultPreset models.Preset
	caches        *Caches
	stores        Stores
	platform      Platform
	probe         LatencyProbe
	pools         *async.Pools
	selector      *Selector
	logger        zerolog.Logger

	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer

	// Expiry timers of running giveaways and start timers of scheduled ones.
	timersMu sync.Mutex
	timers   map[string]*time.Timer

	// Serializes the window check and the save of scheduled giveaways.
	scheduleMu sync.Mutex

	draining atomic.Bool
	ticks    atomic.Int64

	cron *cron.Cron
}

func NewController(d Deps) *Controller {
	selector := d.Selector
	if selector == nil {
		selector = NewSelector(nil)
	}
	return &Controller{
		cfg:           d.Config,
		defaultPreset: d.DefaultPreset,
		caches:        d.Caches,
		stores:        d.Stores,
		platform:      d.Platform,
		probe:         d.Probe,
		pools:         d.Pools,
		selector:      selector,
		logger:        logger.Component("controller"),
		now:           time.Now,
		afterFunc:     time.AfterFunc,
		timers:        make(map[string]*time.Timer),
	}
}

// Create validates and publishes a giveaway, then schedules its expiry.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (*models.ActiveGiveaway, error) {
	if c.draining.Load() {
		return nil, ErrDraining
	}

	now := c.now()
	end := req.EndTime
	if end.IsZero() {
		end = now.Add(req.Duration)
	}
	draft := models.NewActiveGiveaway("pending", req.ChannelID, req.CommunityID, now, end, req.WinnerCount, req.PresetName, req.Prize)
	if err := draft.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	community, err := c.community(ctx, req.CommunityID)
	if err != nil {
		return nil, err
	}

	limit := c.quota(community)
	if !community.TryReserve(limit) {
		return nil, apperrors.Wrapf(ErrQuotaExceeded, apperrors.ErrCodeQuotaExceeded,
			"community %d already runs %d giveaways", req.CommunityID, limit).WithDetail("limit", limit)
	}
	committed := false
	defer func() {
		if !committed {
			community.ReleaseReservation()
		}
	}()

	if err := c.platform.CheckPermissions(ctx, req.ChannelID); err != nil {
		return nil, err
	}

	preset, ok := community.Preset(req.PresetName, c.defaultPreset)
	if !ok {
		return nil, apperrors.Wrapf(ErrUnknownPreset, apperrors.ErrCodeUnknownPreset, "preset %q does not exist", req.PresetName)
	}

	postID, err := c.platform.PublishPost(ctx, req.ChannelID, renderActive(draft, preset, now))
	if err != nil {
		return nil, err
	}

	if emoji := preset.Affordance(); emoji != "" {
		if err := c.platform.AddEntryAffordance(ctx, postID, emoji); err != nil {
			if derr := c.platform.DeletePost(ctx, postID); derr != nil {
				c.logger.Warn().Err(derr).Str("giveaway_id", postID).Msg("Failed to retract post")
			}
			return nil, err
		}
	}

	g := models.NewActiveGiveaway(postID, req.ChannelID, req.CommunityID, now, end, req.WinnerCount, req.PresetName, req.Prize)
	g.HostID = req.HostID
	if err := c.stores.Giveaways.Save(ctx, g.ID, g); err != nil {
		if derr := c.platform.DeletePost(ctx, postID); derr != nil {
			c.logger.Warn().Err(derr).Str("giveaway_id", postID).Msg("Failed to retract post")
		}
		return nil, apperrors.NewStorageError("save giveaway", err)
	}
	g.Activate()
	c.caches.Giveaways.Set(g.ID, g)
	community.Commit(g.ID)
	committed = true
	c.schedule(g)

	c.logger.Info().
		Str("giveaway_id", g.ID).
		Int64("community_id", g.CommunityID).
		Time("end_time", g.EndTime).
		Int("winners", g.WinnerCount).
		Msg("Giveaway created")
	return g, nil
}

func (c *Controller) quota(community *models.Community) int {
	if community.IsPremium() {
		return c.cfg.PremiumQuota
	}
	return c.cfg.FreeQuota
}

func (c *Controller) community(ctx context.Context, id int64) (*models.Community, error) {
	community, err := c.caches.Communities.GetOrSet(ctx, id, func() *models.Community {
		return models.NewCommunity(id)
	})
	if err != nil {
		return nil, apperrors.NewStorageError("load community", err)
	}
	return community, nil
}

// Start reconciles the stored giveaways and the scheduled ones, then starts
// the idle sweeps and the refresh schedule.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.reconcile(ctx); err != nil {
		return err
	}
	if err := c.reconcileScheduled(ctx); err != nil {
		return err
	}

	c.caches.Communities.Start(ctx)
	c.caches.Users.Start(ctx)

	c.cron = cron.New()
	spec := fmt.Sprintf("@every %s", c.cfg.RefreshInterval)
	if _, err := c.cron.AddFunc(spec, func() { c.refreshTick(context.Background()) }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	c.cron.Start()

	c.logger.Info().Dur("refresh_interval", c.cfg.RefreshInterval).Msg("Controller started")
	return nil
}

// reconcile restores every stored giveaway: a missing post deletes it, an
// elapsed one expires right away without being cached, the rest are cached
// and rescheduled for their remaining time.
func (c *Controller) reconcile(ctx context.Context) error {
	records, err := c.stores.Giveaways.LoadAll(ctx)
	if err != nil {
		return apperrors.NewStorageError("load giveaways", err)
	}

	p := pool.New().WithMaxGoroutines(max(c.cfg.ReconcileConcurrency, 1)).WithContext(ctx)
	var deleted, expired, restored atomic.Int32
	for _, g := range records {
		g := g
		p.Go(func(ctx context.Context) error {
			log := c.logger.With().Str("giveaway_id", g.ID).Int64("community_id", g.CommunityID).Logger()
			g.Activate()

			exists, err := c.platform.RetrievePost(ctx, g.ID)
			if err != nil && !errors.Is(err, ErrPostNotFound) {
				log.Warn().Err(err).Msg("Could not check post, keeping giveaway")
				exists = true
			}
			if !exists {
				if g.Claim(models.StateDeleted) {
					c.cleanup(ctx, g, models.StateDeleted)
					deleted.Add(1)
				}
				return nil
			}

			if g.IsOverdue(c.now()) {
				c.expire(ctx, g)
				expired.Add(1)
				return nil
			}

			c.caches.Giveaways.Set(g.ID, g)
			c.schedule(g)
			restored.Add(1)
			community, err := c.community(ctx, g.CommunityID)
			if err != nil {
				return fmt.Errorf("giveaway %s: %w", g.ID, err)
			}
			community.AddActive(g.ID)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		c.logger.Error().Err(err).Msg("Some giveaways were restored without their community")
	}

	c.logger.Info().
		Int("loaded", len(records)).
		Int32("restored", restored.Load()).
		Int32("expired", expired.Load()).
		Int32("deleted", deleted.Load()).
		Msg("Giveaways reconciled")
	return nil
}

// Get returns a running giveaway.
func (c *Controller) Get(ctx context.Context, id string) (*models.ActiveGiveaway, error) {
	g, ok := c.caches.Giveaways.Get(ctx, id)
	if !ok || g.IsRetired() {
		return nil, apperrors.NewNotFoundError("giveaway", id)
	}
	return g, nil
}

// History lists the finished giveaways of a community, newest first.
func (c *Controller) History(ctx context.Context, communityID int64, limit int) ([]*models.FinishedGiveaway, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	list, err := c.stores.Finished.ListByCommunity(ctx, communityID, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("list finished giveaways", err)
	}
	return list, nil
}

// SetBan sets the ban flags of a community member.
func (c *Controller) SetBan(ctx context.Context, communityID, userID int64, banned, shadow bool) error {
	key := models.UserKey{CommunityID: communityID, UserID: userID}
	u, err := c.caches.Users.GetOrSet(ctx, key, func() *models.User {
		return models.NewUser(communityID, userID)
	})
	if err != nil {
		return apperrors.NewStorageError("load user", err)
	}
	u.SetBanned(banned, shadow)
	return nil
}

// Delete removes a giveaway without drawing winners and cancels its timer.
// Deleting a giveaway that is already being settled is a no-op.
func (c *Controller) Delete(ctx context.Context, id string) error {
	g, ok := c.caches.Giveaways.Get(ctx, id)
	if !ok {
		c.cancelTimer(id)
		return apperrors.NewNotFoundError("giveaway", id)
	}
	if !g.Claim(models.StateDeleted) {
		return nil
	}
	c.cleanup(ctx, g, models.StateDeleted)
	return nil
}

// GiveawayCountAt returns the peak number of the community giveaways, running
// or scheduled, that overlap at some instant within [start, end].
func (c *Controller) GiveawayCountAt(ctx context.Context, communityID int64, start, end time.Time) (int, error) {
	community, ok := c.caches.Communities.Get(ctx, communityID)
	if !ok {
		return 0, nil
	}
	return peakConcurrent(c.spans(ctx, community), start, end), nil
}

// span is the running window of a giveaway.
type span struct {
	start, end time.Time
}

// spans collects the windows of the running and scheduled giveaways of community.
func (c *Controller) spans(ctx context.Context, community *models.Community) []span {
	var spans []span
	for _, id := range community.ActiveIDs() {
		if g, ok := c.caches.Giveaways.Get(ctx, id); ok {
			spans = append(spans, span{start: g.StartTime, end: g.EndTime})
		}
	}
	for _, id := range community.ScheduledIDs() {
		if s, ok := c.caches.Scheduled.Get(ctx, id); ok {
			spans = append(spans, span{start: s.StartTime, end: s.EndTime})
		}
	}
	return spans
}

func peakConcurrent(spans []span, start, end time.Time) int {
	checkpoints := []time.Time{start, end}
	for _, s := range spans {
		if !s.start.Before(start) && !s.start.After(end) {
			checkpoints = append(checkpoints, s.start)
		}
		if !s.end.After(end) && !s.end.Before(start) {
			checkpoints = append(checkpoints, s.end)
		}
	}
	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i].Before(checkpoints[j]) })

	peak := 0
	for _, cp := range checkpoints {
		n := 0
		for _, s := range spans {
			if !s.start.After(cp) && !s.end.Before(cp) {
				n++
			}
		}
		peak = max(peak, n)
	}
	return peak
}

// Shutdown stops scheduling and drains every cache, waiting for the writes.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.draining.Store(true)

	if c.cron != nil {
		select {
		case <-c.cron.Stop().Done():
		case <-ctx.Done():
		}
	}

	c.timersMu.Lock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.timersMu.Unlock()

	c.caches.Communities.Stop()
	c.caches.Users.Stop()

	futures := c.caches.Giveaways.Shutdown(ctx)
	futures = append(futures, c.caches.Scheduled.Shutdown(ctx)...)
	futures = append(futures, c.caches.Users.Shutdown(ctx)...)
	futures = append(futures, c.caches.Communities.Shutdown(ctx)...)
	err := async.AwaitAll(ctx, futures)

	c.logger.Info().Int("writes", len(futures)).Err(err).Msg("Controller drained")
	return err
}

// schedule arms the expiry timer of g for its remaining time.
func (c *Controller) schedule(g *models.ActiveGiveaway) {
	c.scheduleIn(g, g.Remaining(c.now()))
}

// scheduleIn arms the expiry timer of g, replacing any earlier timer.
func (c *Controller) scheduleIn(g *models.ActiveGiveaway, d time.Duration) {
	c.armTimer(g.ID, d, func() { c.expire(context.Background(), g) })
}

// armTimer runs fn on the scheduler pool after d. A timer already armed for
// id is replaced.
func (c *Controller) armTimer(id string, d time.Duration, fn func()) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if old, ok := c.timers[id]; ok {
		old.Stop()
	}
	c.timers[id] = c.afterFunc(d, func() {
		if err := c.pools.Scheduler.Submit(fn); err != nil {
			c.logger.Error().Err(err).Str("id", id).Msg("Failed to submit timer task")
		}
	})
}

func (c *Controller) cancelTimer(id string) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Controller) pendingTimers() int {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	return len(c.timers)
}
