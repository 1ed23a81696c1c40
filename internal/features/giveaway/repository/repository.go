package repository

import (
	"context"
	"errors"

	"github.com/open-builders/giveaway-engine/internal/common/cache"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

var ErrGiveawayNotFound = errors.New("giveaway not found")

// GiveawayStore persists running giveaways keyed by post id.
type GiveawayStore = cache.Store[string, *models.ActiveGiveaway]

// CommunityStore persists communities keyed by community id.
type CommunityStore = cache.Store[int64, *models.Community]

// UserStore persists members and their entry ledgers.
type UserStore = cache.Store[models.UserKey, *models.User]

// ScheduledStore persists giveaways waiting for their start time.
type ScheduledStore = cache.Store[string, *models.ScheduledGiveaway]

// FinishedStore is the write-once history of finished giveaways.
type FinishedStore interface {
	Save(ctx context.Context, g *models.FinishedGiveaway) error
	Load(ctx context.Context, sourceID string) (*models.FinishedGiveaway, bool, error)
	ListByCommunity(ctx context.Context, communityID int64, limit int) ([]*models.FinishedGiveaway, error)
}
