package service

import (
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

// expire draws the winners of g, publishes them and retires the record.
// It runs at most once per giveaway; a platform failure while locating the
// post releases the claim and retries later. The post lock keeps a refresh
// from overwriting the winners.
func (c *Controller) expire(ctx context.Context, g *models.ActiveGiveaway) {
	if !g.Claim(models.StateExpiring) {
		return
	}
	c.cancelTimer(g.ID)
	unlock := g.LockPost()
	defer unlock()

	log := c.logger.With().Str("giveaway_id", g.ID).Int64("community_id", g.CommunityID).Logger()

	exists, err := c.platform.RetrievePost(ctx, g.ID)
	if err != nil && !isPostNotFound(err) {
		log.Warn().Err(err).Dur("retry_in", expiryRetry).Msg("Could not locate post, retrying expiry")
		g.Release()
		if !c.draining.Load() {
			c.scheduleIn(g, expiryRetry)
		}
		return
	}
	if !exists {
		log.Info().Msg("Post is gone, deleting giveaway")
		c.cleanup(ctx, g, models.StateDeleted)
		return
	}

	total, weights := c.collectWeights(ctx, g, log)

	var winners []int64
	if total.Sign() > 0 && len(weights) > 0 {
		winners, err = c.selector.Select(g.WinnerCount, total, weights)
		if err != nil {
			log.Error().Err(err).Msg("Failed to draw winners")
			winners = nil
		}
	}

	if err := c.platform.EditPost(ctx, g.ID, renderFinished(g, winners)); err != nil {
		log.Error().Err(err).Msg("Failed to publish winners")
	}
	if len(winners) > 0 {
		c.pingWinners(ctx, g, winners, log)
	}

	snapshot := models.NewFinishedGiveaway(g, total, weights, winners, c.now())
	c.persistSnapshot(ctx, snapshot, log)
	c.cleanup(ctx, g, models.StateFinished)

	log.Info().
		Str("total_weight", total.String()).
		Int("entrants", len(weights)).
		Ints64("winners", winners).
		Msg("Giveaway finished")
}

// collectWeights sums the entrants' ledgers for g. Banned and shadow-banned
// members cannot win; their weight counts toward the total only when
// CountExcludedWeight is set.
func (c *Controller) collectWeights(ctx context.Context, g *models.ActiveGiveaway, log zerolog.Logger) (*big.Int, map[int64]*big.Int) {
	total := new(big.Int)
	weights := make(map[int64]*big.Int)

	for _, id := range g.Entrants() {
		u, ok := c.caches.Users.Get(ctx, models.UserKey{CommunityID: g.CommunityID, UserID: id})
		if !ok {
			log.Warn().Int64("user_id", id).Msg("Entrant has no ledger")
			continue
		}
		w := u.Weight(g.ID)
		if w <= 0 {
			continue
		}

		weight := big.NewInt(w)
		if u.IsExcluded() {
			if c.cfg.CountExcludedWeight {
				total.Add(total, weight)
			}
			continue
		}
		weights[id] = weight
		total.Add(total, weight)
	}
	return total, weights
}

// pingWinners sends a transient mention of the winners and retracts it.
func (c *Controller) pingWinners(ctx context.Context, g *models.ActiveGiveaway, winners []int64, log zerolog.Logger) {
	community, ok := c.caches.Communities.Get(ctx, g.CommunityID)
	preset := c.defaultPreset
	if ok {
		if p, found := community.Preset(g.PresetName, c.defaultPreset); found {
			preset = p
		}
	}
	if !preset.PingWinners {
		return
	}

	pingID, err := c.platform.PublishPost(ctx, g.ChannelID, renderPing(g, winners))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to ping winners")
		return
	}
	if err := c.platform.DeletePost(ctx, pingID); err != nil {
		log.Warn().Err(err).Str("ping_id", pingID).Msg("Failed to retract winner ping")
	}
}

func (c *Controller) persistSnapshot(ctx context.Context, f *models.FinishedGiveaway, log zerolog.Logger) {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = c.stores.Finished.Save(ctx, f); err == nil {
			return
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Failed to save finished giveaway")
		if attempt < maxRetries {
			select {
			case <-time.After(retryInterval):
			case <-ctx.Done():
				return
			}
		}
	}
	log.Error().Err(err).Msg("Finished giveaway was not persisted")
}

// cleanup retires g and removes every trace of it from the active state:
// timer, cache, community active set, entrant ledgers and the store.
func (c *Controller) cleanup(ctx context.Context, g *models.ActiveGiveaway, state models.LifecycleState) {
	g.Retire(state)
	c.cancelTimer(g.ID)
	c.caches.Giveaways.Invalidate(ctx, g.ID, false)

	if community, ok := c.caches.Communities.Get(ctx, g.CommunityID); ok {
		community.RemoveActive(g.ID)
	}
	for _, id := range g.Entrants() {
		if u, ok := c.caches.Users.Get(ctx, models.UserKey{CommunityID: g.CommunityID, UserID: id}); ok {
			u.RemoveGiveaway(g.ID)
		}
	}

	if err := c.stores.Giveaways.Delete(ctx, g.ID); err != nil {
		c.logger.Error().Err(err).Str("giveaway_id", g.ID).Msg("Failed to delete giveaway record")
	}
}
