package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

func weightOf(t *testing.T, h *harness, communityID, userID int64, giveawayID string) int64 {
	t.Helper()
	u, ok := h.caches.Users.Get(context.Background(), models.UserKey{CommunityID: communityID, UserID: userID})
	require.True(t, ok)
	return u.Weight(giveawayID)
}

func TestPipeline_ReactionCountsOnce(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, 1, time.Hour, 1)

	assert.Equal(t, 1, h.enter(t, react(1, 10)))
	assert.Equal(t, 0, h.enter(t, react(1, 10)))

	assert.EqualValues(t, 1, weightOf(t, h, 1, 10, g.ID))
	assert.Equal(t, []int64{10}, g.Entrants())
}

func TestPipeline_WrongEmojiIgnored(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, 1, time.Hour, 1)

	ev := react(1, 10)
	ev.Emoji = "👍"
	assert.Equal(t, 0, h.enter(t, ev))
	assert.Zero(t, g.EntrantCount())
}

func TestPipeline_MessagesRequireReaction(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, 1, time.Hour, 1)
	msg := models.EntryEvent{Type: models.EntryTypeMessage, CommunityID: 1, UserID: 10}

	assert.Equal(t, 0, h.enter(t, msg))
	assert.Zero(t, g.EntrantCount())

	h.enter(t, react(1, 10))
	assert.Equal(t, 1, h.enter(t, msg))
	assert.Equal(t, 1, h.enter(t, msg))
	assert.EqualValues(t, 3, weightOf(t, h, 1, 10, g.ID))
}

func TestPipeline_WithoutReactToEnter(t *testing.T) {
	h := newHarness(t)
	community, err := h.caches.Communities.GetOrSet(context.Background(), 1, func() *models.Community {
		return models.NewCommunity(1)
	})
	require.NoError(t, err)
	community.SetPreset(models.Preset{
		Name:                 "chatty",
		EnableMessageEntries: true,
		EntriesPerMessage:    2,
		MaxEntries:           10,
	})

	g, err := h.ctrl.Create(context.Background(), CreateRequest{
		CommunityID: 1,
		ChannelID:   100,
		Duration:    time.Hour,
		WinnerCount: 1,
		PresetName:  "chatty",
		Prize:       "Nitro",
	})
	require.NoError(t, err)

	msg := models.EntryEvent{Type: models.EntryTypeMessage, CommunityID: 1, UserID: 10}
	assert.Equal(t, 1, h.enter(t, msg))
	assert.Equal(t, 0, h.enter(t, react(1, 10)))
	assert.EqualValues(t, 2, weightOf(t, h, 1, 10, g.ID))
}

func TestPipeline_WeightClampedToMaxEntries(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, 1, time.Hour, 1)
	invite := models.EntryEvent{Type: models.EntryTypeInvite, CommunityID: 1, UserID: 10}

	h.enter(t, react(1, 10))
	for i := 0; i < 4; i++ {
		assert.Equal(t, 1, h.enter(t, invite))
	}
	assert.EqualValues(t, 1000, weightOf(t, h, 1, 10, g.ID))

	assert.Equal(t, 0, h.enter(t, invite))
	assert.EqualValues(t, 1000, weightOf(t, h, 1, 10, g.ID))
}

func TestPipeline_BannedMemberIgnored(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, 1, time.Hour, 1)
	require.NoError(t, h.ctrl.SetBan(context.Background(), 1, 10, true, false))

	assert.Equal(t, 0, h.enter(t, react(1, 10)))
	assert.Zero(t, g.EntrantCount())
}

func TestPipeline_ShadowBannedMemberStillEnters(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, 1, time.Hour, 1)
	require.NoError(t, h.ctrl.SetBan(context.Background(), 1, 10, false, true))

	assert.Equal(t, 1, h.enter(t, react(1, 10)))
	assert.Equal(t, []int64{10}, g.Entrants())
}

func TestPipeline_CreditsEveryActiveGiveaway(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, 1, time.Hour, 1)
	b := h.create(t, 1, 2*time.Hour, 1)
	other := h.create(t, 2, time.Hour, 1)

	assert.Equal(t, 2, h.enter(t, react(1, 10)))
	assert.True(t, a.HasEntrant(10))
	assert.True(t, b.HasEntrant(10))
	assert.False(t, other.HasEntrant(10))
}

func TestPipeline_TargetedGiveaway(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, 1, time.Hour, 1)
	b := h.create(t, 1, time.Hour, 1)

	ev := react(1, 10)
	ev.GiveawayID = b.ID
	assert.Equal(t, 1, h.enter(t, ev))
	assert.False(t, a.HasEntrant(10))
	assert.True(t, b.HasEntrant(10))

	ev.GiveawayID = "missing"
	_, err := h.pipeline.Process(context.Background(), ev)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPipeline_OverdueGiveawayNotCredited(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, 1, time.Minute, 1)
	h.clock.Advance(2 * time.Minute)

	assert.Equal(t, 0, h.enter(t, react(1, 10)))
	assert.Zero(t, g.EntrantCount())
}

func TestPipeline_ClaimedGiveawayRevokesEntry(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, 1, time.Hour, 1)
	require.Equal(t, 1, h.enter(t, react(1, 10)))

	// expiry has claimed the giveaway but not yet cleaned it up
	require.True(t, g.Claim(models.StateExpiring))

	msg := models.EntryEvent{Type: models.EntryTypeMessage, CommunityID: 1, UserID: 10}
	assert.Equal(t, 0, h.enter(t, msg))
	assert.Equal(t, 0, h.enter(t, react(1, 11)))

	assert.EqualValues(t, 1, weightOf(t, h, 1, 10, g.ID), "earlier entries survive")
	u, ok := h.caches.Users.Get(context.Background(), models.UserKey{CommunityID: 1, UserID: 11})
	require.True(t, ok)
	assert.Empty(t, u.Giveaways(), "no ledger entry without a recorded entrant")
	assert.Equal(t, []int64{10}, g.Entrants())
}

func TestPipeline_UnknownCommunityIsNoop(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 0, h.enter(t, react(42, 10)))
	assert.False(t, h.users.has(models.UserKey{CommunityID: 42, UserID: 10}))
}

func TestPipeline_InvalidType(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline.Process(context.Background(), models.EntryEvent{Type: "boost", CommunityID: 1, UserID: 10})
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
}

func TestPipeline_SubmitResolvesFuture(t *testing.T) {
	h := newHarness(t)
	h.create(t, 1, time.Hour, 1)

	n, err := h.pipeline.Submit(react(1, 10)).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
