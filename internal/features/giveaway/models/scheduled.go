package models

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/open-builders/giveaway-engine/internal/common/validation"
)

var ErrMissingStartTime = errors.New("start time must be set")

// ScheduledGiveaway is a giveaway waiting for its start time. It holds no
// post yet, so it is keyed by a generated id.
type ScheduledGiveaway struct {
	ID          string    `json:"id"`
	CommunityID int64     `json:"community_id"`
	ChannelID   int64     `json:"channel_id"`
	HostID      int64     `json:"host_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	WinnerCount int       `json:"winner_count"`
	PresetName  string    `json:"preset_name"`
	Prize       string    `json:"prize"`
}

func NewScheduledGiveaway(communityID, channelID, hostID int64, start, end time.Time, winners int, preset, prize string) *ScheduledGiveaway {
	return &ScheduledGiveaway{
		ID:          uuid.NewString(),
		CommunityID: communityID,
		ChannelID:   channelID,
		HostID:      hostID,
		StartTime:   start,
		EndTime:     end,
		WinnerCount: winners,
		PresetName:  preset,
		Prize:       prize,
	}
}

func (s *ScheduledGiveaway) Validate() error {
	switch {
	case s.StartTime.IsZero():
		return ErrMissingStartTime
	case !s.EndTime.After(s.StartTime):
		return ErrInvalidEndTime
	case s.WinnerCount < 1:
		return ErrInvalidWinnersCount
	case s.Prize == "":
		return ErrEmptyPrize
	case validation.ValidatePrize(s.Prize) != nil:
		return ErrInvalidPrize
	}
	return nil
}

// Duration is how long the giveaway runs once started.
func (s *ScheduledGiveaway) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
