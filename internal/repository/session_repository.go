// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"amazing-kissan-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// 会话状态在 Redis 中的保留时间。
const sessionTTL = 7 * 24 * time.Hour

// SessionRepository 定义了会话状态的读写接口。
// 会话状态整体序列化为 JSON 存入 Redis，请求开始时取出，结束时写回。
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (*model.SessionState, error)
	Save(ctx context.Context, state *model.SessionState) error
	Delete(ctx context.Context, sessionID string) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// Get 从 Redis 取出会话状态；不存在时返回 (nil, nil)，由调用方创建默认状态。
func (r *redisSessionRepository) Get(ctx context.Context, sessionID string) (*model.SessionState, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session state: %w", err)
	}
	var state model.SessionState
	if err := json.Unmarshal([]byte(jsonData), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}
	return &state, nil
}

// Save 将会话状态写回 Redis 并续期。
func (r *redisSessionRepository) Save(ctx context.Context, state *model.SessionState) error {
	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKey(state.SessionID), jsonData, sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session state: %w", err)
	}
	return nil
}

// Delete 丢弃会话状态（登出或显式结束会话时调用）。
func (r *redisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.redisClient.Del(ctx, sessionKey(sessionID)).Err()
}
