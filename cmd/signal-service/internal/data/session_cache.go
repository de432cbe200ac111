package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "signal:session:"

// SessionCache 基于 Redis 的会话快照缓存。
// 快照用于展示层快速读取与跨实例恢复，不承载业务状态。
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *log.Helper
}

// NewSessionCache 创建会话快照缓存
func NewSessionCache(client *redis.Client, ttl time.Duration, logger log.Logger) *SessionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionCache{
		client: client,
		ttl:    ttl,
		log:    log.NewHelper(log.With(logger, "module", "session-cache")),
	}
}

func snapshotKey(sessionID string) string {
	return snapshotKeyPrefix + sessionID
}

// SaveSnapshot 序列化并写入快照，刷新 TTL
func (c *SessionCache) SaveSnapshot(ctx context.Context, snapshot *domain.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := c.client.Set(ctx, snapshotKey(snapshot.SessionID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	c.log.WithContext(ctx).Debugf("snapshot saved: %s (%d bytes)", snapshot.SessionID, len(data))
	return nil
}

// GetSnapshot 读取快照，键不存在时返回 (nil, nil)
func (c *SessionCache) GetSnapshot(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snapshot domain.SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteSnapshot 删除快照，键不存在不算错误
func (c *SessionCache) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, snapshotKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Ping 就绪检查
func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
