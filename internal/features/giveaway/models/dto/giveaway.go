package dto

import (
	"sort"
	"time"

	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

// GiveawayCreateRequest represents the request body for creating a new giveaway
type GiveawayCreateRequest struct {
	CommunityID int64  `json:"community_id" binding:"required"`
	ChannelID   int64  `json:"channel_id" binding:"required"`
	HostID      int64  `json:"host_id"`
	Duration    int64  `json:"duration" binding:"required,min=1"` // in seconds
	WinnerCount int    `json:"winner_count" binding:"required,min=1"`
	PresetName  string `json:"preset_name"`
	Prize       string `json:"prize" binding:"required,min=1,max=256"`
}

// ScheduleRequest represents the request body for scheduling a giveaway
type ScheduleRequest struct {
	CommunityID int64     `json:"community_id" binding:"required"`
	ChannelID   int64     `json:"channel_id" binding:"required"`
	HostID      int64     `json:"host_id"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	Duration    int64     `json:"duration" binding:"required,min=1"` // in seconds
	WinnerCount int       `json:"winner_count" binding:"required,min=1"`
	PresetName  string    `json:"preset_name"`
	Prize       string    `json:"prize" binding:"required,min=1,max=256"`
}

// PresetRequest represents the rules of a community preset. The name comes from the path.
type PresetRequest struct {
	EnableReactToEnter   bool   `json:"enable_react_to_enter"`
	ReactToEnterEmoji    string `json:"react_to_enter_emoji"`
	EnableMessageEntries bool   `json:"enable_message_entries"`
	EntriesPerMessage    int64  `json:"entries_per_message"`
	EnableInviteEntries  bool   `json:"enable_invite_entries"`
	EntriesPerInvite     int64  `json:"entries_per_invite"`
	MaxEntries           int64  `json:"max_entries" binding:"required,min=1"`
	PingWinners          bool   `json:"ping_winners"`
}

func (r PresetRequest) Preset(name string) models.Preset {
	return models.Preset{
		Name:                 name,
		EnableReactToEnter:   r.EnableReactToEnter,
		ReactToEnterEmoji:    r.ReactToEnterEmoji,
		EnableMessageEntries: r.EnableMessageEntries,
		EntriesPerMessage:    r.EntriesPerMessage,
		EnableInviteEntries:  r.EnableInviteEntries,
		EntriesPerInvite:     r.EntriesPerInvite,
		MaxEntries:           r.MaxEntries,
		PingWinners:          r.PingWinners,
	}
}

// PremiumRequest switches a community between the free and premium quotas
type PremiumRequest struct {
	Premium bool `json:"premium"`
}

// EntryRequest represents a member action reported by the chat gateway
type EntryRequest struct {
	Type        string `json:"type" binding:"required,oneof=reaction message invite"`
	CommunityID int64  `json:"community_id" binding:"required"`
	UserID      int64  `json:"user_id" binding:"required"`
	GiveawayID  string `json:"giveaway_id"`
	Emoji       string `json:"emoji"`
}

// BanRequest sets the ban flags of a community member
type BanRequest struct {
	Banned       bool `json:"banned"`
	ShadowBanned bool `json:"shadow_banned"`
}

// GiveawayResponse represents an active giveaway
type GiveawayResponse struct {
	ID           string    `json:"id"`
	CommunityID  int64     `json:"community_id"`
	ChannelID    int64     `json:"channel_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	WinnerCount  int       `json:"winner_count"`
	PresetName   string    `json:"preset_name"`
	Prize        string    `json:"prize"`
	EntrantCount int       `json:"entrant_count"`
	State        string    `json:"state"`
}

func NewGiveawayResponse(g *models.ActiveGiveaway) GiveawayResponse {
	return GiveawayResponse{
		ID:           g.ID,
		CommunityID:  g.CommunityID,
		ChannelID:    g.ChannelID,
		StartTime:    g.StartTime,
		EndTime:      g.EndTime,
		WinnerCount:  g.WinnerCount,
		PresetName:   g.PresetName,
		Prize:        g.Prize,
		EntrantCount: g.EntrantCount(),
		State:        string(g.State()),
	}
}

// ScheduledGiveawayResponse represents a giveaway waiting for its start time
type ScheduledGiveawayResponse struct {
	ID          string    `json:"id"`
	CommunityID int64     `json:"community_id"`
	ChannelID   int64     `json:"channel_id"`
	HostID      int64     `json:"host_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	WinnerCount int       `json:"winner_count"`
	PresetName  string    `json:"preset_name"`
	Prize       string    `json:"prize"`
}

func NewScheduledGiveawayResponse(s *models.ScheduledGiveaway) ScheduledGiveawayResponse {
	return ScheduledGiveawayResponse{
		ID:          s.ID,
		CommunityID: s.CommunityID,
		ChannelID:   s.ChannelID,
		HostID:      s.HostID,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		WinnerCount: s.WinnerCount,
		PresetName:  s.PresetName,
		Prize:       s.Prize,
	}
}

// FinishedGiveawayResponse represents a completed giveaway. Weights are decimal strings.
type FinishedGiveawayResponse struct {
	SourceID    string    `json:"source_id"`
	Prize       string    `json:"prize"`
	TotalWeight string    `json:"total_weight"`
	Entrants    int       `json:"entrants"`
	Winners     []int64   `json:"winners"`
	CompletedAt time.Time `json:"completed_at"`
}

func NewFinishedGiveawayResponse(f *models.FinishedGiveaway) FinishedGiveawayResponse {
	winners := append([]int64(nil), f.Winners...)
	sort.Slice(winners, func(i, j int) bool { return winners[i] < winners[j] })
	total := "0"
	if f.TotalWeight != nil {
		total = f.TotalWeight.String()
	}
	return FinishedGiveawayResponse{
		SourceID:    f.SourceID,
		Prize:       f.Prize,
		TotalWeight: total,
		Entrants:    len(f.UserWeights),
		Winners:     winners,
		CompletedAt: f.CompletedAt,
	}
}

// EntryResponse reports how many giveaways credited an entry
type EntryResponse struct {
	Credited int `json:"credited"`
}

// CountResponse reports the peak number of concurrent giveaways in a window
type CountResponse struct {
	CommunityID int64 `json:"community_id"`
	Count       int   `json:"count"`
}
