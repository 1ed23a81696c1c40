package service

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

// refreshTick is one run of the periodic refresh. It is skipped while the
// platform is slow or the controller drains.
func (c *Controller) refreshTick(ctx context.Context) {
	if c.draining.Load() {
		return
	}
	if c.probe != nil && !c.probe.Usable() {
		c.logger.Debug().Msg("Platform latency too high, skipping refresh")
		return
	}

	tick := c.ticks.Add(1)
	now := c.now()
	for _, g := range c.caches.Giveaways.Values() {
		if !shouldRefresh(tick, g.Remaining(now)) {
			continue
		}
		g := g
		if err := c.pools.Platform.Submit(func() { c.refresh(ctx, g) }); err != nil {
			c.logger.Warn().Err(err).Str("giveaway_id", g.ID).Msg("Failed to submit refresh")
		}
	}
}

// shouldRefresh buckets giveaways by remaining time: a week or more refreshes
// every 2880 ticks, down to every tick in the last minutes. Under a minute
// the post is left alone until expiry.
func shouldRefresh(tick int64, remaining time.Duration) bool {
	switch {
	case remaining >= week:
		return tick%weekRefreshTicks == 0
	case remaining >= day:
		return tick%dayRefreshTicks == 0
	case remaining >= time.Hour:
		return tick%hourRefreshTicks == 0
	case remaining >= 30*time.Minute:
		return tick%halfHourRefreshTicks == 0
	case remaining >= 5*time.Minute:
		return tick%fiveMinRefreshTicks == 0
	case remaining >= time.Minute:
		return true
	default:
		return false
	}
}

// refresh re-renders the post of g. It gives way to an expiry or deletion
// that claimed the giveaway first.
func (c *Controller) refresh(ctx context.Context, g *models.ActiveGiveaway) {
	unlock := g.LockPost()
	defer unlock()
	if g.State() != models.StateActive {
		return
	}

	preset := c.defaultPreset
	if community, ok := c.caches.Communities.Get(ctx, g.CommunityID); ok {
		if p, found := community.Preset(g.PresetName, c.defaultPreset); found {
			preset = p
		}
	}

	err := c.platform.EditPost(ctx, g.ID, renderActive(g, preset, c.now()))
	switch {
	case err == nil:
	case isPostNotFound(err):
		c.logger.Info().Str("giveaway_id", g.ID).Msg("Post is gone, deleting giveaway")
		if derr := c.Delete(ctx, g.ID); derr != nil && !errors.Is(derr, ErrNotFound) {
			c.logger.Error().Err(derr).Str("giveaway_id", g.ID).Msg("Failed to delete giveaway")
		}
	case isRetryable(err):
		c.logger.Warn().Err(err).Str("giveaway_id", g.ID).Msg("Transient failure, skipping refresh")
	default:
		c.logger.Error().Err(err).Str("giveaway_id", g.ID).Msg("Failed to refresh post")
	}
}

func isPostNotFound(err error) bool {
	return errors.Is(err, ErrPostNotFound)
}

func isRetryable(err error) bool {
	appErr, ok := apperrors.AsAppError(err)
	return ok && appErr.IsRetryable()
}
