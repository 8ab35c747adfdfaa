package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/server/models"
)

// RedisStore keeps pending challenges in Redis with a TTL. Consume uses
// GETDEL, so a challenge can be handed out to exactly one verification
// attempt even across server replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func challengeKey(deviceID string) string {
	return "challenge:" + deviceID
}

func (s *RedisStore) Put(ctx context.Context, ch *models.Challenge) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	ttl := time.Until(ch.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.client.Set(ctx, challengeKey(ch.DeviceID), data, ttl).Err()
}

func (s *RedisStore) Consume(ctx context.Context, deviceID string) (*models.Challenge, error) {
	value, err := s.client.GetDel(ctx, challengeKey(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrChallengeExpiredOrUnknown
	}
	if err != nil {
		return nil, err
	}
	var ch models.Challenge
	if err := json.Unmarshal([]byte(value), &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}
