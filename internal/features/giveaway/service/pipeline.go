package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/open-builders/giveaway-engine/internal/common/async"
	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
	"github.com/open-builders/giveaway-engine/internal/common/logger"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

// Pipeline turns member actions into entry ledger credits.
type Pipeline struct {
	caches        *Caches
	pool          *async.Pool
	defaultPreset models.Preset
	now           func() time.Time
	logger        zerolog.Logger
}

func NewPipeline(caches *Caches, pool *async.Pool, defaultPreset models.Preset) *Pipeline {
	return &Pipeline{
		caches:        caches,
		pool:          pool,
		defaultPreset: defaultPreset,
		now:           time.Now,
		logger:        logger.Component("pipeline"),
	}
}

// Submit processes the event on the storage pool. The future carries the
// number of giveaways that credited the event.
func (p *Pipeline) Submit(ev models.EntryEvent) *async.Future[int] {
	return async.Go(p.pool, func() (int, error) {
		return p.Process(context.Background(), ev)
	})
}

// Process credits ev to every eligible active giveaway of the community, or
// only to ev.GiveawayID when set. Failures of one giveaway are logged and do
// not stop the others.
func (p *Pipeline) Process(ctx context.Context, ev models.EntryEvent) (int, error) {
	if _, err := models.ParseEntryType(string(ev.Type)); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid entry event")
	}

	community, ok := p.caches.Communities.Get(ctx, ev.CommunityID)
	if !ok || community.ActiveCount() == 0 {
		return 0, nil
	}

	ids := community.ActiveIDs()
	if ev.GiveawayID != "" {
		if !community.IsActive(ev.GiveawayID) {
			return 0, ErrNotFound
		}
		ids = []string{ev.GiveawayID}
	}

	key := models.UserKey{CommunityID: ev.CommunityID, UserID: ev.UserID}
	user, err := p.caches.Users.GetOrSet(ctx, key, func() *models.User {
		return models.NewUser(ev.CommunityID, ev.UserID)
	})
	if err != nil {
		return 0, apperrors.NewStorageError(fmt.Sprintf("load user %s", key), err)
	}
	if user.IsBanned() {
		return 0, nil
	}

	now := p.now()
	credited := 0
	for _, id := range ids {
		log := p.logger.With().
			Str("giveaway_id", id).
			Int64("community_id", ev.CommunityID).
			Int64("user_id", ev.UserID).
			Str("type", string(ev.Type)).
			Logger()

		g, ok := p.caches.Giveaways.Get(ctx, id)
		if !ok {
			log.Warn().Msg("Active giveaway not resident")
			continue
		}
		if g.IsOverdue(now) {
			continue
		}

		preset, ok := community.Preset(g.PresetName, p.defaultPreset)
		if !ok {
			log.Error().Str("preset", g.PresetName).Msg("Giveaway references an unknown preset")
			continue
		}
		if ev.Type == models.EntryTypeReaction && ev.Emoji != preset.ReactToEnterEmoji {
			continue
		}

		rule, ok := preset.Rule(ev.Type)
		if !ok {
			continue
		}
		n := user.Apply(id, rule)
		if n <= 0 {
			continue
		}
		if !g.AddEntrant(ev.UserID) {
			// expiry or deletion claimed the giveaway after the overdue check
			user.Revoke(id, rule.Type, n)
			log.Debug().Msg("Giveaway closed, entry revoked")
			continue
		}
		credited++
		log.Debug().Int64("entries", n).Msg("Entry credited")
	}
	return credited, nil
}
