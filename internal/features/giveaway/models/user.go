package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// EntryType tags the member action that earned an entry.
type EntryType string

const (
	EntryTypeReaction EntryType = "reaction"
	EntryTypeMessage  EntryType = "message"
	EntryTypeInvite   EntryType = "invite"
)

func ParseEntryType(s string) (EntryType, error) {
	switch t := EntryType(s); t {
	case EntryTypeReaction, EntryTypeMessage, EntryTypeInvite:
		return t, nil
	}
	return "", fmt.Errorf("unknown entry type %q", s)
}

// UserKey identifies a member within a community.
type UserKey struct {
	CommunityID int64
	UserID      int64
}

func (k UserKey) String() string {
	return fmt.Sprintf("%d:%d", k.CommunityID, k.UserID)
}

// User is a community member and its entry ledger: per giveaway, the count
// earned for every entry type.
type User struct {
	ID          int64
	CommunityID int64

	mu           sync.RWMutex
	banned       bool
	shadowBanned bool
	entries      map[string]map[EntryType]int64
}

func NewUser(communityID, userID int64) *User {
	return &User{
		ID:          userID,
		CommunityID: communityID,
		entries:     make(map[string]map[EntryType]int64),
	}
}

func (u *User) Key() UserKey {
	return UserKey{CommunityID: u.CommunityID, UserID: u.ID}
}

func (u *User) SetBanned(banned, shadow bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.banned = banned
	u.shadowBanned = shadow
}

func (u *User) IsBanned() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.banned
}

// IsExcluded reports whether the user may not win: banned or shadow-banned.
func (u *User) IsExcluded() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.banned || u.shadowBanned
}

// EntryRule describes how one action of Type is credited.
type EntryRule struct {
	Type   EntryType
	Amount int64
	// Limit caps the total weight of a user in one giveaway; 0 is unlimited.
	Limit int64
	// Once allows a single credit of this type per giveaway.
	Once bool
	// Requires names an entry type the user must already hold; "" for none.
	Requires EntryType
}

// Apply credits the rule for the giveaway and returns the amount credited,
// 0 when the rule does not allow it. The check and the credit are atomic.
func (u *User) Apply(giveawayID string, r EntryRule) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.entries == nil {
		u.entries = make(map[string]map[EntryType]int64)
	}
	ledger := u.entries[giveawayID]
	if r.Once && ledger[r.Type] > 0 {
		return 0
	}
	if r.Requires != "" && ledger[r.Requires] <= 0 {
		return 0
	}

	n := r.Amount
	var weight int64
	for _, c := range ledger {
		weight += c
	}
	if r.Limit > 0 && weight+n > r.Limit {
		n = r.Limit - weight
	}
	if n <= 0 {
		return 0
	}

	if ledger == nil {
		ledger = make(map[EntryType]int64)
		u.entries[giveawayID] = ledger
	}
	ledger[r.Type] += n
	return n
}

// Revoke takes back n entries of type t credited by Apply. A ledger left
// empty is dropped.
func (u *User) Revoke(giveawayID string, t EntryType, n int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ledger, ok := u.entries[giveawayID]
	if !ok {
		return
	}
	ledger[t] -= n
	if ledger[t] <= 0 {
		delete(ledger, t)
	}
	if len(ledger) == 0 {
		delete(u.entries, giveawayID)
	}
}

// Weight is the sum of the user's entries for the giveaway.
func (u *User) Weight(giveawayID string) int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var weight int64
	for _, c := range u.entries[giveawayID] {
		weight += c
	}
	return weight
}

// RemoveGiveaway strips the giveaway from the ledger.
func (u *User) RemoveGiveaway(giveawayID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.entries, giveawayID)
}

// Giveaways returns the ids of the giveaways the user holds entries for.
func (u *User) Giveaways() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	ids := make([]string, 0, len(u.entries))
	for id := range u.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type userJSON struct {
	ID           int64                           `json:"id"`
	CommunityID  int64                           `json:"community_id"`
	Banned       bool                            `json:"banned"`
	ShadowBanned bool                            `json:"shadow_banned"`
	Entries      map[string]map[EntryType]int64 `json:"entries"`
}

// MarshalJSON implements json.Marshaler
func (u *User) MarshalJSON() ([]byte, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return json.Marshal(userJSON{
		ID:           u.ID,
		CommunityID:  u.CommunityID,
		Banned:       u.banned,
		ShadowBanned: u.shadowBanned,
		Entries:      u.entries,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (u *User) UnmarshalJSON(data []byte) error {
	var raw userJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.ID = raw.ID
	u.CommunityID = raw.CommunityID
	u.banned = raw.Banned
	u.shadowBanned = raw.ShadowBanned
	u.entries = raw.Entries
	if u.entries == nil {
		u.entries = make(map[string]map[EntryType]int64)
	}
	return nil
}
