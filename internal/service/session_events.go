package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"yuzu/internal/model"
	"yuzu/internal/pkg/cache"
)

// SessionNotifier 基于 Redis 的会话事件通知器
// 发布事件的同时失效该用户的对话列表缓存
type SessionNotifier struct {
	cache *cache.RedisCache
}

// NewSessionNotifier 创建会话事件通知器
func NewSessionNotifier(c *cache.RedisCache) *SessionNotifier {
	return &SessionNotifier{cache: c}
}

// Publish 发布会话事件
// 通知是尽力而为的：失败只记日志，不影响对话主流程
func (n *SessionNotifier) Publish(ctx context.Context, userID string, event model.SessionEvent) {
	if err := n.cache.Delete(ctx, cache.ConversationListKey(userID)); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to invalidate conversation list cache")
	}
	if err := n.cache.Publish(ctx, cache.SessionEventChannel(userID), event); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("event", event.Type).Msg("failed to publish session event")
	}
}
