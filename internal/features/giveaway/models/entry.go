package models

// EntryEvent is a member action that may earn entries. GiveawayID narrows the
// event to one giveaway; empty means every active giveaway of the community.
type EntryEvent struct {
	Type        EntryType `json:"type"`
	CommunityID int64     `json:"community_id"`
	UserID      int64     `json:"user_id"`
	GiveawayID  string    `json:"giveaway_id,omitempty"`
	Emoji       string    `json:"emoji,omitempty"`
}
