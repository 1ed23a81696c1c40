package service

import (
	"context"

	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

// Presets returns the presets a community can start giveaways with. The
// configured default is listed unless the community overrides it.
func (c *Controller) Presets(ctx context.Context, communityID int64) ([]models.Preset, error) {
	community, err := c.community(ctx, communityID)
	if err != nil {
		return nil, err
	}
	presets := community.Presets()
	if !hasPreset(presets, models.DefaultPresetName) {
		presets = append([]models.Preset{c.defaultPreset}, presets...)
	}
	return presets, nil
}

// SetPreset creates or replaces a community preset. A preset used by a
// running or scheduled giveaway cannot change.
func (c *Controller) SetPreset(ctx context.Context, communityID int64, p models.Preset) error {
	if err := p.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	community, err := c.community(ctx, communityID)
	if err != nil {
		return err
	}
	if c.presetInUse(ctx, community, p.Name) {
		return apperrors.Wrapf(ErrPresetInUse, apperrors.ErrCodeConflict, "preset %q is in use", p.Name)
	}

	community.SetPreset(p)
	return c.saveCommunity(ctx, community)
}

// DeletePreset removes a community preset. Removing the default override
// restores the configured default.
func (c *Controller) DeletePreset(ctx context.Context, communityID int64, name string) error {
	community, err := c.community(ctx, communityID)
	if err != nil {
		return err
	}
	if c.presetInUse(ctx, community, name) {
		return apperrors.Wrapf(ErrPresetInUse, apperrors.ErrCodeConflict, "preset %q is in use", name)
	}
	if !community.RemovePreset(name) {
		return apperrors.NewNotFoundError("preset", name)
	}
	return c.saveCommunity(ctx, community)
}

// SetPremium switches the community between the free and premium quotas.
// Giveaways already running are kept when the quota shrinks.
func (c *Controller) SetPremium(ctx context.Context, communityID int64, premium bool) error {
	community, err := c.community(ctx, communityID)
	if err != nil {
		return err
	}
	community.SetPremium(premium)
	return c.saveCommunity(ctx, community)
}

func (c *Controller) saveCommunity(ctx context.Context, community *models.Community) error {
	if err := c.stores.Communities.Save(ctx, community.ID, community); err != nil {
		return apperrors.NewStorageError("save community", err)
	}
	c.logger.Info().
		Int64("community_id", community.ID).
		Bool("premium", community.IsPremium()).
		Int("presets", len(community.Presets())).
		Msg("Community updated")
	return nil
}

func (c *Controller) presetInUse(ctx context.Context, community *models.Community, name string) bool {
	for _, id := range community.ActiveIDs() {
		if g, ok := c.caches.Giveaways.Get(ctx, id); ok && presetName(g.PresetName) == name {
			return true
		}
	}
	for _, id := range community.ScheduledIDs() {
		if s, ok := c.caches.Scheduled.Get(ctx, id); ok && presetName(s.PresetName) == name {
			return true
		}
	}
	return false
}

func presetName(name string) string {
	if name == "" {
		return models.DefaultPresetName
	}
	return name
}

func hasPreset(presets []models.Preset, name string) bool {
	for _, p := range presets {
		if p.Name == name {
			return true
		}
	}
	return false
}
