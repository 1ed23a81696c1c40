package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/open-builders/giveaway-engine/internal/common/async"
	"github.com/open-builders/giveaway-engine/internal/common/logger"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

// EntrySubmitter accepts member actions for crediting.
type EntrySubmitter interface {
	Submit(ev models.EntryEvent) *async.Future[int]
}

// StreamConfig names the stream and the consumer identity.
type StreamConfig struct {
	Stream   string
	Group    string
	Consumer string
	Batch    int64
	Block    time.Duration
}

// RedisStreamWorker consumes member actions published by the chat gateway
// and feeds them to the entry pipeline. Messages are acknowledged once
// processed, malformed ones immediately.
type RedisStreamWorker struct {
	rdb     redis.UniversalClient
	entries EntrySubmitter
	cfg     StreamConfig
	logger  zerolog.Logger
}

func NewRedisStreamWorker(rdb redis.UniversalClient, entries EntrySubmitter, cfg StreamConfig) *RedisStreamWorker {
	if cfg.Batch <= 0 {
		cfg.Batch = 16
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &RedisStreamWorker{
		rdb:     rdb,
		entries: entries,
		cfg:     cfg,
		logger:  logger.Component("stream_worker"),
	}
}

// EnsureGroup creates the consumer group, and the stream with it.
func (w *RedisStreamWorker) EnsureGroup(ctx context.Context) error {
	err := w.rdb.XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Start reads the stream until ctx is done.
func (w *RedisStreamWorker) Start(ctx context.Context) {
	if err := w.EnsureGroup(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Failed to prepare stream")
	}
	w.logger.Info().Str("stream", w.cfg.Stream).Str("group", w.cfg.Group).Msg("Stream worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stream worker stopped")
			return
		default:
		}

		if _, err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error().Err(err).Msg("Failed to read stream")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
	}
}

// Poll reads one batch, processes it and returns the number of messages
// handled. An empty read is not an error.
func (w *RedisStreamWorker) Poll(ctx context.Context) (int, error) {
	streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    w.cfg.Group,
		Consumer: w.cfg.Consumer,
		Streams:  []string{w.cfg.Stream, ">"},
		Count:    w.cfg.Batch,
		Block:    w.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			w.processMessage(ctx, msg)
			if err := w.rdb.XAck(ctx, w.cfg.Stream, w.cfg.Group, msg.ID).Err(); err != nil {
				w.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to ack message")
			}
			handled++
		}
	}
	return handled, nil
}

func (w *RedisStreamWorker) processMessage(ctx context.Context, msg redis.XMessage) {
	ev, err := parseEntryEvent(msg.Values)
	if err != nil {
		w.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed event")
		return
	}

	credited, err := w.entries.Submit(ev).Await(ctx)
	if err != nil {
		w.logger.Error().Err(err).
			Str("message_id", msg.ID).
			Int64("community_id", ev.CommunityID).
			Int64("user_id", ev.UserID).
			Msg("Failed to process entry")
		return
	}
	w.logger.Debug().
		Str("message_id", msg.ID).
		Str("type", string(ev.Type)).
		Int("credited", credited).
		Msg("Entry processed")
}

func parseEntryEvent(values map[string]interface{}) (models.EntryEvent, error) {
	raw, _ := values["type"].(string)
	t, err := models.ParseEntryType(raw)
	if err != nil {
		return models.EntryEvent{}, err
	}

	communityID, err := int64Field(values, "community_id")
	if err != nil {
		return models.EntryEvent{}, err
	}
	userID, err := int64Field(values, "user_id")
	if err != nil {
		return models.EntryEvent{}, err
	}

	ev := models.EntryEvent{Type: t, CommunityID: communityID, UserID: userID}
	ev.GiveawayID, _ = values["giveaway_id"].(string)
	ev.Emoji, _ = values["emoji"].(string)
	return ev, nil
}

func int64Field(values map[string]interface{}, key string) (int64, error) {
	s, ok := values[key].(string)
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
