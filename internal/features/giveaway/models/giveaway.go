package models

import (
	"encoding/json"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/open-builders/giveaway-engine/internal/common/validation"
)

var (
	ErrEmptyGiveawayID     = errors.New("giveaway id must not be empty")
	ErrInvalidEndTime      = errors.New("end time must be after start time")
	ErrInvalidWinnersCount = errors.New("winners count must be at least 1")
	ErrEmptyPrize          = errors.New("prize must not be empty")
	ErrInvalidPrize        = errors.New("prize must be 1 to 256 characters")
)

// LifecycleState is the position of a giveaway in its lifecycle.
type LifecycleState string

const (
	StateCreated  LifecycleState = "created"
	StateActive   LifecycleState = "active"
	StateExpiring LifecycleState = "expiring"
	StateFinished LifecycleState = "finished"
	StateDeleted  LifecycleState = "deleted"
)

// ActiveGiveaway is a running giveaway. ID is the id of its public post.
type ActiveGiveaway struct {
	ID          string
	ChannelID   int64
	CommunityID int64
	HostID      int64
	StartTime   time.Time
	EndTime     time.Time
	WinnerCount int
	PresetName  string
	Prize       string

	mu       sync.RWMutex
	state    LifecycleState
	entrants map[int64]struct{}

	// post serializes edits of the public post.
	post sync.Mutex
}

func NewActiveGiveaway(id string, channelID, communityID int64, start, end time.Time, winners int, preset, prize string) *ActiveGiveaway {
	return &ActiveGiveaway{
		ID:          id,
		ChannelID:   channelID,
		CommunityID: communityID,
		StartTime:   start,
		EndTime:     end,
		WinnerCount: winners,
		PresetName:  preset,
		Prize:       prize,
		state:       StateCreated,
		entrants:    make(map[int64]struct{}),
	}
}

// Validate checks the record invariants.
func (g *ActiveGiveaway) Validate() error {
	switch {
	case g.ID == "":
		return ErrEmptyGiveawayID
	case !g.EndTime.After(g.StartTime):
		return ErrInvalidEndTime
	case g.WinnerCount < 1:
		return ErrInvalidWinnersCount
	case g.Prize == "":
		return ErrEmptyPrize
	case validation.ValidatePrize(g.Prize) != nil:
		return ErrInvalidPrize
	}
	return nil
}

// Remaining is the time left until expiry, never negative.
func (g *ActiveGiveaway) Remaining(now time.Time) time.Duration {
	if d := g.EndTime.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (g *ActiveGiveaway) IsOverdue(now time.Time) bool {
	return !now.Before(g.EndTime)
}

func (g *ActiveGiveaway) State() LifecycleState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Activate moves a created giveaway to active. Other states are kept.
func (g *ActiveGiveaway) Activate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateCreated {
		g.state = StateActive
	}
}

// Claim moves an active giveaway to next and reports whether the caller won
// the transition. Only one of expire and delete can claim a giveaway.
func (g *ActiveGiveaway) Claim(next LifecycleState) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateActive {
		return false
	}
	g.state = next
	return true
}

// Release returns an expiring giveaway to active so expiry can be retried.
func (g *ActiveGiveaway) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateExpiring {
		g.state = StateActive
	}
}

// Retire records the final state.
func (g *ActiveGiveaway) Retire(final LifecycleState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = final
}

func (g *ActiveGiveaway) IsRetired() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateFinished || g.state == StateDeleted
}

// LockPost locks the public post against concurrent edits and returns the
// unlock func.
func (g *ActiveGiveaway) LockPost() func() {
	g.post.Lock()
	return g.post.Unlock
}

// AddEntrant records the user. It reports false once the giveaway has been
// claimed for expiry or deletion.
func (g *ActiveGiveaway) AddEntrant(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateCreated && g.state != StateActive {
		return false
	}
	if g.entrants == nil {
		g.entrants = make(map[int64]struct{})
	}
	g.entrants[userID] = struct{}{}
	return true
}

func (g *ActiveGiveaway) HasEntrant(userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.entrants[userID]
	return ok
}

// Entrants returns the entrant ids in ascending order.
func (g *ActiveGiveaway) Entrants() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]int64, 0, len(g.entrants))
	for id := range g.entrants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *ActiveGiveaway) EntrantCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entrants)
}

type activeGiveawayJSON struct {
	ID          string    `json:"id"`
	ChannelID   int64     `json:"channel_id"`
	CommunityID int64     `json:"community_id"`
	HostID      int64     `json:"host_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	WinnerCount int       `json:"winner_count"`
	PresetName  string    `json:"preset_name"`
	Prize       string    `json:"prize"`
	Entrants    []int64   `json:"entrants"`
}

// MarshalJSON implements json.Marshaler
func (g *ActiveGiveaway) MarshalJSON() ([]byte, error) {
	return json.Marshal(activeGiveawayJSON{
		ID:          g.ID,
		ChannelID:   g.ChannelID,
		CommunityID: g.CommunityID,
		HostID:      g.HostID,
		StartTime:   g.StartTime,
		EndTime:     g.EndTime,
		WinnerCount: g.WinnerCount,
		PresetName:  g.PresetName,
		Prize:       g.Prize,
		Entrants:    g.Entrants(),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (g *ActiveGiveaway) UnmarshalJSON(data []byte) error {
	var raw activeGiveawayJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.ID = raw.ID
	g.ChannelID = raw.ChannelID
	g.CommunityID = raw.CommunityID
	g.HostID = raw.HostID
	g.StartTime = raw.StartTime
	g.EndTime = raw.EndTime
	g.WinnerCount = raw.WinnerCount
	g.PresetName = raw.PresetName
	g.Prize = raw.Prize
	// stored records belong to published giveaways
	g.state = StateActive
	g.entrants = make(map[int64]struct{}, len(raw.Entrants))
	for _, id := range raw.Entrants {
		g.entrants[id] = struct{}{}
	}
	return nil
}

// FinishedGiveaway is the immutable result of an expired giveaway.
type FinishedGiveaway struct {
	SourceID    string             `json:"source_id"`
	CommunityID int64              `json:"community_id"`
	ChannelID   int64              `json:"channel_id"`
	Prize       string             `json:"prize"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
	WinnerCount int                `json:"winner_count"`
	TotalWeight *big.Int           `json:"total_weight"`
	UserWeights map[int64]*big.Int `json:"user_weights"`
	Winners     []int64            `json:"winners"`
	CompletedAt time.Time          `json:"completed_at"`
}

// NewFinishedGiveaway snapshots g. Winners is never nil.
func NewFinishedGiveaway(g *ActiveGiveaway, total *big.Int, weights map[int64]*big.Int, winners []int64, completedAt time.Time) *FinishedGiveaway {
	if total == nil {
		total = new(big.Int)
	}
	if weights == nil {
		weights = make(map[int64]*big.Int)
	}
	if winners == nil {
		winners = []int64{}
	}
	return &FinishedGiveaway{
		SourceID:    g.ID,
		CommunityID: g.CommunityID,
		ChannelID:   g.ChannelID,
		Prize:       g.Prize,
		StartTime:   g.StartTime,
		EndTime:     g.EndTime,
		WinnerCount: g.WinnerCount,
		TotalWeight: new(big.Int).Set(total),
		UserWeights: weights,
		Winners:     winners,
		CompletedAt: completedAt,
	}
}
