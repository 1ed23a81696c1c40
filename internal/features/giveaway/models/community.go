package models

import (
	"encoding/json"
	"sort"
	"sync"
)

// Community is a chat community hosting giveaways.
type Community struct {
	ID int64

	mu        sync.RWMutex
	premium   bool
	presets   map[string]Preset
	active    map[string]struct{}
	scheduled map[string]struct{}
	// reserved counts quota slots held by giveaways still being created.
	reserved int
}

func NewCommunity(id int64) *Community {
	return &Community{
		ID:      id,
		presets:   make(map[string]Preset),
		active:    make(map[string]struct{}),
		scheduled: make(map[string]struct{}),
	}
}

func (c *Community) IsPremium() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.premium
}

func (c *Community) SetPremium(premium bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.premium = premium
}

// Preset resolves name against the community presets. An empty name or the
// default name falls back to def unless the community overrides it.
func (c *Community) Preset(name string, def Preset) (Preset, bool) {
	if name == "" {
		name = DefaultPresetName
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.presets[name]; ok {
		return p, true
	}
	if name == DefaultPresetName {
		return def, true
	}
	return Preset{}, false
}

func (c *Community) SetPreset(p Preset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.presets == nil {
		c.presets = make(map[string]Preset)
	}
	c.presets[p.Name] = p
}

// RemovePreset reports whether the community had a preset named name.
func (c *Community) RemovePreset(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.presets[name]; !ok {
		return false
	}
	delete(c.presets, name)
	return true
}

// Presets returns the community presets ordered by name.
func (c *Community) Presets() []Preset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	presets := make([]Preset, 0, len(c.presets))
	for _, p := range c.presets {
		presets = append(presets, p)
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return presets
}

// TryReserve takes a quota slot for a giveaway being created. It fails when
// active and reserved giveaways already reach limit.
func (c *Community) TryReserve(limit int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.active)+c.reserved >= limit {
		return false
	}
	c.reserved++
	return true
}

// Commit turns a reservation into the active giveaway.
func (c *Community) Commit(giveawayID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved > 0 {
		c.reserved--
	}
	if c.active == nil {
		c.active = make(map[string]struct{})
	}
	c.active[giveawayID] = struct{}{}
}

// ReleaseReservation gives back a slot taken by TryReserve.
func (c *Community) ReleaseReservation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved > 0 {
		c.reserved--
	}
}

func (c *Community) AddActive(giveawayID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		c.active = make(map[string]struct{})
	}
	c.active[giveawayID] = struct{}{}
}

// RemoveActive reports whether the giveaway was in the active set.
func (c *Community) RemoveActive(giveawayID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[giveawayID]; !ok {
		return false
	}
	delete(c.active, giveawayID)
	return true
}

func (c *Community) IsActive(giveawayID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.active[giveawayID]
	return ok
}

func (c *Community) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}

// ActiveIDs returns the active giveaway ids in ascending order.
func (c *Community) ActiveIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Community) AddScheduled(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduled == nil {
		c.scheduled = make(map[string]struct{})
	}
	c.scheduled[id] = struct{}{}
}

func (c *Community) RemoveScheduled(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scheduled[id]; !ok {
		return false
	}
	delete(c.scheduled, id)
	return true
}

// ScheduledIDs returns the scheduled giveaway ids in ascending order.
func (c *Community) ScheduledIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.scheduled))
	for id := range c.scheduled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type communityJSON struct {
	ID              int64             `json:"id"`
	Premium         bool              `json:"premium"`
	Presets         map[string]Preset `json:"presets"`
	ActiveGiveaways []string          `json:"active_giveaways"`
	Scheduled       []string          `json:"scheduled_giveaways"`
}

// MarshalJSON implements json.Marshaler
func (c *Community) MarshalJSON() ([]byte, error) {
	ids := c.ActiveIDs()
	scheduled := c.ScheduledIDs()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(communityJSON{
		ID:              c.ID,
		Premium:         c.premium,
		Presets:         c.presets,
		ActiveGiveaways: ids,
		Scheduled:       scheduled,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Community) UnmarshalJSON(data []byte) error {
	var raw communityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ID = raw.ID
	c.premium = raw.Premium
	c.presets = raw.Presets
	if c.presets == nil {
		c.presets = make(map[string]Preset)
	}
	c.active = make(map[string]struct{}, len(raw.ActiveGiveaways))
	for _, id := range raw.ActiveGiveaways {
		c.active[id] = struct{}{}
	}
	c.scheduled = make(map[string]struct{}, len(raw.Scheduled))
	for _, id := range raw.Scheduled {
		c.scheduled[id] = struct{}{}
	}
	return nil
}
