package service

import (
	"time"

	"github.com/open-builders/giveaway-engine/internal/common/async"
	"github.com/open-builders/giveaway-engine/internal/common/cache"
	"github.com/open-builders/giveaway-engine/internal/common/logger"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/repository"
)

// Stores are the durable backings of the engine state.
type Stores struct {
	Giveaways   repository.GiveawayStore
	Communities repository.CommunityStore
	Users       repository.UserStore
	Scheduled   repository.ScheduledStore
	Finished    repository.FinishedStore
}

// Caches hold the shared mutable state. Running giveaways stay resident until
// they finish; communities and members are evicted when idle.
type Caches struct {
	Giveaways   *cache.Cache[string, *models.ActiveGiveaway]
	Communities *cache.ExpiringCache[int64, *models.Community]
	Users       *cache.ExpiringCache[models.UserKey, *models.User]
	// Scheduled giveaways stay resident until they start or are cancelled.
	Scheduled *cache.Cache[string, *models.ScheduledGiveaway]
}

func NewCaches(stores Stores, pool *async.Pool, idleTTL time.Duration, opts ...cache.Option) *Caches {
	c := &Caches{
		Giveaways:   cache.New("giveaways", stores.Giveaways, pool, opts...),
		Communities: cache.NewExpiring("communities", stores.Communities, pool, idleTTL, opts...),
		Users:       cache.NewExpiring("users", stores.Users, pool, idleTTL, opts...),
		Scheduled:   cache.New("scheduled", stores.Scheduled, pool, opts...),
	}

	log := logger.Component("caches")
	c.Users.OnExpiry(func(key models.UserKey, u *models.User) {
		log.Debug().
			Int64("community_id", key.CommunityID).
			Int64("user_id", key.UserID).
			Int("giveaways", len(u.Giveaways())).
			Msg("Member evicted")
	})
	c.Communities.OnExpiry(func(id int64, community *models.Community) {
		log.Debug().
			Int64("community_id", id).
			Int("active_giveaways", community.ActiveCount()).
			Msg("Community evicted")
	})
	return c
}
