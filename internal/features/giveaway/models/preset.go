package models

import (
	"errors"

	"github.com/open-builders/giveaway-engine/internal/common/validation"
)

// DefaultPresetName names the preset every community has.
const DefaultPresetName = "default"

var ErrInvalidPreset = errors.New("invalid preset")

// Preset is a named bundle of giveaway rules. It is never modified once a
// giveaway using it has been published.
type Preset struct {
	Name                 string `json:"name"`
	EnableReactToEnter   bool   `json:"enable_react_to_enter"`
	ReactToEnterEmoji    string `json:"react_to_enter_emoji"`
	EnableMessageEntries bool   `json:"enable_message_entries"`
	EntriesPerMessage    int64  `json:"entries_per_message"`
	EnableInviteEntries  bool   `json:"enable_invite_entries"`
	EntriesPerInvite     int64  `json:"entries_per_invite"`
	MaxEntries           int64  `json:"max_entries"`
	PingWinners          bool   `json:"ping_winners"`
}

func (p Preset) Validate() error {
	if validation.ValidatePresetName(p.Name) != nil || validation.ValidatePositiveInt(p.MaxEntries, "max_entries") != nil {
		return ErrInvalidPreset
	}
	if validation.ValidateNonNegativeInt(p.EntriesPerMessage, "entries_per_message") != nil ||
		validation.ValidateNonNegativeInt(p.EntriesPerInvite, "entries_per_invite") != nil {
		return ErrInvalidPreset
	}
	if p.EnableReactToEnter && p.ReactToEnterEmoji == "" {
		return ErrInvalidPreset
	}
	return nil
}

// Enabled reports whether the entry type earns entries under this preset.
func (p Preset) Enabled(t EntryType) bool {
	switch t {
	case EntryTypeReaction:
		return p.EnableReactToEnter
	case EntryTypeMessage:
		return p.EnableMessageEntries && p.EntriesPerMessage > 0
	case EntryTypeInvite:
		return p.EnableInviteEntries && p.EntriesPerInvite > 0
	}
	return false
}

// EntriesFor is the number of entries one action of type t earns.
func (p Preset) EntriesFor(t EntryType) int64 {
	switch t {
	case EntryTypeReaction:
		return 1
	case EntryTypeMessage:
		return p.EntriesPerMessage
	case EntryTypeInvite:
		return p.EntriesPerInvite
	}
	return 0
}

// Rule returns the crediting rule for t, or false when t is disabled. With
// react-to-enter, other entry types only count once the user has reacted, and
// a reaction only counts once.
func (p Preset) Rule(t EntryType) (EntryRule, bool) {
	if !p.Enabled(t) {
		return EntryRule{}, false
	}
	r := EntryRule{Type: t, Amount: p.EntriesFor(t), Limit: p.MaxEntries}
	if t == EntryTypeReaction {
		r.Once = true
	} else if p.EnableReactToEnter {
		r.Requires = EntryTypeReaction
	}
	return r, true
}

// Affordance is the reaction attached to the post, or "" when entry is not
// by reaction.
func (p Preset) Affordance() string {
	if !p.EnableReactToEnter {
		return ""
	}
	return p.ReactToEnterEmoji
}
