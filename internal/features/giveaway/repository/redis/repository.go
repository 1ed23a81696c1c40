package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/open-builders/giveaway-engine/internal/common/logger"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

const (
	keyPrefixGiveaway  = "giveaway:active:"
	keyActiveGiveaways = "giveaways:active"
	keyPrefixCommunity = "community:"
	keyCommunities     = "communities"
	keyUsers           = "community:users"
	keyPrefixScheduled = "giveaway:scheduled:"
	keyScheduled       = "giveaways:scheduled"
)

// JSONStore keeps JSON documents under prefixed keys and tracks every stored
// key in an index set so LoadAll does not need KEYS or SCAN.
type JSONStore[K comparable, V any] struct {
	client   redis.UniversalClient
	index    string
	keyOf    func(K) string
	newValue func() V
}

func NewJSONStore[K comparable, V any](client redis.UniversalClient, index string, keyOf func(K) string, newValue func() V) *JSONStore[K, V] {
	return &JSONStore[K, V]{
		client:   client,
		index:    index,
		keyOf:    keyOf,
		newValue: newValue,
	}
}

func NewGiveawayStore(client redis.UniversalClient) *JSONStore[string, *models.ActiveGiveaway] {
	return NewJSONStore(client, keyActiveGiveaways, makeGiveawayKey, func() *models.ActiveGiveaway {
		return &models.ActiveGiveaway{}
	})
}

func NewCommunityStore(client redis.UniversalClient) *JSONStore[int64, *models.Community] {
	return NewJSONStore(client, keyCommunities, makeCommunityKey, func() *models.Community {
		return &models.Community{}
	})
}

func NewUserStore(client redis.UniversalClient) *JSONStore[models.UserKey, *models.User] {
	return NewJSONStore(client, keyUsers, makeUserKey, func() *models.User {
		return &models.User{}
	})
}

func NewScheduledStore(client redis.UniversalClient) *JSONStore[string, *models.ScheduledGiveaway] {
	return NewJSONStore(client, keyScheduled, makeScheduledKey, func() *models.ScheduledGiveaway {
		return &models.ScheduledGiveaway{}
	})
}

func makeScheduledKey(id string) string {
	return keyPrefixScheduled + id
}

func makeGiveawayKey(id string) string {
	return keyPrefixGiveaway + id
}

func makeCommunityKey(id int64) string {
	return keyPrefixCommunity + strconv.FormatInt(id, 10)
}

func makeUserKey(k models.UserKey) string {
	return fmt.Sprintf("%s%d:user:%d", keyPrefixCommunity, k.CommunityID, k.UserID)
}

func (s *JSONStore[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	var zero V
	data, err := s.client.Get(ctx, s.keyOf(key)).Bytes()
	if err == redis.Nil {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get %s: %w", s.keyOf(key), err)
	}

	v := s.newValue()
	if err := json.Unmarshal(data, v); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal %s: %w", s.keyOf(key), err)
	}
	return v, true, nil
}

// LoadAll returns every indexed document. Index members whose document is
// gone are dropped from the index.
func (s *JSONStore[K, V]) LoadAll(ctx context.Context) ([]V, error) {
	keys, err := s.client.SMembers(ctx, s.index).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get index %s: %w", s.index, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load %s documents: %w", s.index, err)
	}

	values := make([]V, 0, len(keys))
	var orphans []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			orphans = append(orphans, keys[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", keys[i], err)
		}

		v := s.newValue()
		if err := json.Unmarshal(data, v); err != nil {
			logger.Error().Err(err).Str("key", keys[i]).Msg("Skipping malformed document")
			continue
		}
		values = append(values, v)
	}

	if len(orphans) > 0 {
		if err := s.client.SRem(ctx, s.index, orphans...).Err(); err != nil {
			logger.Warn().Err(err).Str("index", s.index).Msg("Failed to drop orphaned index members")
		}
	}
	return values, nil
}

func (s *JSONStore[K, V]) Save(ctx context.Context, key K, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.keyOf(key), err)
	}

	k := s.keyOf(key)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, k, data, 0)
	pipe.SAdd(ctx, s.index, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save %s: %w", k, err)
	}
	return nil
}

func (s *JSONStore[K, V]) Delete(ctx context.Context, key K) error {
	k := s.keyOf(key)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.SRem(ctx, s.index, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", k, err)
	}
	return nil
}
