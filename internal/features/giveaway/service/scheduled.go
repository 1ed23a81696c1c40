package service

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

// ScheduleRequest describes a giveaway to start later.
type ScheduleRequest struct {
	CommunityID int64
	ChannelID   int64
	HostID      int64
	StartTime   time.Time
	Duration    time.Duration
	WinnerCount int
	PresetName  string
	Prize       string
}

// Schedule stores a giveaway that starts at req.StartTime. It is refused when
// the community quota would be full at some instant of its window, counting
// running and other scheduled giveaways.
func (c *Controller) Schedule(ctx context.Context, req ScheduleRequest) (*models.ScheduledGiveaway, error) {
	if c.draining.Load() {
		return nil, ErrDraining
	}

	s := models.NewScheduledGiveaway(req.CommunityID, req.ChannelID, req.HostID,
		req.StartTime, req.StartTime.Add(req.Duration), req.WinnerCount, req.PresetName, req.Prize)
	if err := s.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	if !s.StartTime.After(c.now()) {
		return nil, apperrors.NewValidationError("start_time", "must be in the future")
	}

	community, err := c.community(ctx, req.CommunityID)
	if err != nil {
		return nil, err
	}
	if _, ok := community.Preset(req.PresetName, c.defaultPreset); !ok {
		return nil, apperrors.Wrapf(ErrUnknownPreset, apperrors.ErrCodeUnknownPreset, "preset %q does not exist", req.PresetName)
	}

	c.scheduleMu.Lock()
	defer c.scheduleMu.Unlock()

	limit := c.quota(community)
	if peak := peakConcurrent(c.spans(ctx, community), s.StartTime, s.EndTime); peak >= limit {
		return nil, apperrors.Wrapf(ErrScheduleConflict, apperrors.ErrCodeQuotaExceeded,
			"community %d already has %d giveaways during that window", req.CommunityID, peak).WithDetail("limit", limit)
	}

	if err := c.stores.Scheduled.Save(ctx, s.ID, s); err != nil {
		return nil, apperrors.NewStorageError("save scheduled giveaway", err)
	}
	c.caches.Scheduled.Set(s.ID, s)
	community.AddScheduled(s.ID)
	c.armStart(s)

	c.logger.Info().
		Str("scheduled_id", s.ID).
		Int64("community_id", s.CommunityID).
		Time("start_time", s.StartTime).
		Time("end_time", s.EndTime).
		Msg("Giveaway scheduled")
	return s, nil
}

// CancelScheduled drops a scheduled giveaway before it starts.
func (c *Controller) CancelScheduled(ctx context.Context, id string) error {
	if _, ok := c.takeScheduled(ctx, id); !ok {
		return apperrors.NewNotFoundError("scheduled giveaway", id)
	}
	return nil
}

// ListScheduled returns the scheduled giveaways of a community by start time.
func (c *Controller) ListScheduled(ctx context.Context, communityID int64) ([]*models.ScheduledGiveaway, error) {
	community, ok := c.caches.Communities.Get(ctx, communityID)
	if !ok {
		return nil, nil
	}

	var list []*models.ScheduledGiveaway
	for _, id := range community.ScheduledIDs() {
		if s, ok := c.caches.Scheduled.Get(ctx, id); ok {
			list = append(list, s)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	return list, nil
}

// reconcileScheduled restores the stored scheduled giveaways. Those whose
// window has passed are dropped; the rest are armed, starting at once when
// their start time went by while the process was down.
func (c *Controller) reconcileScheduled(ctx context.Context) error {
	records, err := c.stores.Scheduled.LoadAll(ctx)
	if err != nil {
		return apperrors.NewStorageError("load scheduled giveaways", err)
	}

	now := c.now()
	var restored, dropped int
	for _, s := range records {
		if !now.Before(s.EndTime) {
			c.dropScheduled(ctx, s)
			dropped++
			continue
		}
		c.caches.Scheduled.Set(s.ID, s)
		community, err := c.community(ctx, s.CommunityID)
		if err != nil {
			c.logger.Error().Err(err).Str("scheduled_id", s.ID).Msg("Failed to load community")
		} else {
			community.AddScheduled(s.ID)
		}
		c.armStart(s)
		restored++
	}

	c.logger.Info().
		Int("loaded", len(records)).
		Int("restored", restored).
		Int("dropped", dropped).
		Msg("Scheduled giveaways reconciled")
	return nil
}

func (c *Controller) armStart(s *models.ScheduledGiveaway) {
	d := s.StartTime.Sub(c.now())
	if d < 0 {
		d = 0
	}
	id := s.ID
	c.armTimer(id, d, func() { c.startScheduled(context.Background(), id) })
}

// startScheduled turns a scheduled giveaway into a running one. The record is
// dropped whether or not the start succeeds.
func (c *Controller) startScheduled(ctx context.Context, id string) {
	s, ok := c.takeScheduled(ctx, id)
	if !ok {
		return
	}

	log := c.logger.With().Str("scheduled_id", s.ID).Int64("community_id", s.CommunityID).Logger()
	g, err := c.Create(ctx, CreateRequest{
		CommunityID: s.CommunityID,
		ChannelID:   s.ChannelID,
		HostID:      s.HostID,
		EndTime:     s.EndTime,
		WinnerCount: s.WinnerCount,
		PresetName:  s.PresetName,
		Prize:       s.Prize,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to start scheduled giveaway")
		return
	}
	log.Info().Str("giveaway_id", g.ID).Msg("Scheduled giveaway started")
}

// takeScheduled removes a scheduled giveaway from every index. Of a start and
// a cancel racing for the same id, only one gets the record.
func (c *Controller) takeScheduled(ctx context.Context, id string) (*models.ScheduledGiveaway, bool) {
	c.scheduleMu.Lock()
	defer c.scheduleMu.Unlock()

	c.cancelTimer(id)
	s, ok := c.caches.Scheduled.Invalidate(ctx, id, false)
	if !ok {
		return nil, false
	}
	c.dropScheduled(ctx, s)
	return s, true
}

func (c *Controller) dropScheduled(ctx context.Context, s *models.ScheduledGiveaway) {
	if community, ok := c.caches.Communities.Get(ctx, s.CommunityID); ok {
		community.RemoveScheduled(s.ID)
	}
	if err := c.stores.Scheduled.Delete(ctx, s.ID); err != nil {
		c.logger.Error().Err(err).Str("scheduled_id", s.ID).Msg("Failed to delete scheduled giveaway")
	}
}
