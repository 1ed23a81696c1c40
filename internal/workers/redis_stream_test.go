package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-builders/giveaway-engine/internal/common/async"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

type recordingSubmitter struct {
	mu     sync.Mutex
	events []models.EntryEvent
	err    error
}

func (s *recordingSubmitter) Submit(ev models.EntryEvent) *async.Future[int] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if s.err != nil {
		return async.Failed[int](s.err)
	}
	return async.Resolved(1)
}

func (s *recordingSubmitter) received() []models.EntryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EntryEvent(nil), s.events...)
}

func setupWorker(t *testing.T, sub EntrySubmitter) (*RedisStreamWorker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	w := NewRedisStreamWorker(client, sub, StreamConfig{
		Stream:   "bot:events",
		Group:    "engine",
		Consumer: "engine_1",
		Block:    10 * time.Millisecond,
	})
	require.NoError(t, w.EnsureGroup(context.Background()))
	return w, client
}

func publish(t *testing.T, client *redis.Client, values map[string]interface{}) {
	t.Helper()
	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "bot:events",
		Values: values,
	}).Err())
}

func TestRedisStreamWorker_PollSubmitsEntries(t *testing.T) {
	sub := &recordingSubmitter{}
	w, client := setupWorker(t, sub)
	ctx := context.Background()

	publish(t, client, map[string]interface{}{"type": "reaction", "community_id": "1", "user_id": "10", "emoji": "🎉"})
	publish(t, client, map[string]interface{}{"type": "invite", "community_id": "1", "user_id": "11", "giveaway_id": "100:5"})

	n, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []models.EntryEvent{
		{Type: models.EntryTypeReaction, CommunityID: 1, UserID: 10, Emoji: "🎉"},
		{Type: models.EntryTypeInvite, CommunityID: 1, UserID: 11, GiveawayID: "100:5"},
	}, sub.received())

	pending, err := client.XPending(ctx, "bot:events", "engine").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestRedisStreamWorker_MalformedEventsAreAcked(t *testing.T) {
	sub := &recordingSubmitter{}
	w, client := setupWorker(t, sub)
	ctx := context.Background()

	publish(t, client, map[string]interface{}{"type": "boost", "community_id": "1", "user_id": "10"})
	publish(t, client, map[string]interface{}{"type": "message", "community_id": "x", "user_id": "10"})
	publish(t, client, map[string]interface{}{"type": "message", "community_id": "1"})

	n, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, sub.received())

	pending, err := client.XPending(ctx, "bot:events", "engine").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestRedisStreamWorker_FailedEntryIsStillAcked(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("storage down")}
	w, client := setupWorker(t, sub)

	publish(t, client, map[string]interface{}{"type": "message", "community_id": "1", "user_id": "10"})

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, sub.received(), 1)
}

func TestRedisStreamWorker_EnsureGroupIsIdempotent(t *testing.T) {
	w, _ := setupWorker(t, &recordingSubmitter{})
	assert.NoError(t, w.EnsureGroup(context.Background()))
}

func TestParseEntryEvent(t *testing.T) {
	ev, err := parseEntryEvent(map[string]interface{}{"type": "message", "community_id": "-5", "user_id": "7"})
	require.NoError(t, err)
	assert.Equal(t, models.EntryEvent{Type: models.EntryTypeMessage, CommunityID: -5, UserID: 7}, ev)

	_, err = parseEntryEvent(map[string]interface{}{"community_id": "1", "user_id": "7"})
	assert.Error(t, err)
}
