package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"yuzu/internal/ai"
	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
	"yuzu/internal/pkg/cache"
	"yuzu/internal/pkg/ctxutil"
	"yuzu/internal/repository"
)

const conversationListLimit = 100

// ConversationService 对话管理服务（创建/列表/删除）
type ConversationService struct {
	convRepo     *repository.ConversationRepo
	msgRepo      *repository.MessageRepo
	cache        *cache.RedisCache // 可为 nil
	notifier     Notifier          // 可为 nil
	defaultModel string
}

// NewConversationService 创建对话管理服务
func NewConversationService(convRepo *repository.ConversationRepo, msgRepo *repository.MessageRepo, c *cache.RedisCache, notifier Notifier, defaultModel string) *ConversationService {
	return &ConversationService{
		convRepo:     convRepo,
		msgRepo:      msgRepo,
		cache:        c,
		notifier:     notifier,
		defaultModel: defaultModel,
	}
}

// Create 创建对话（占位标题，首轮完成后自动改名）
func (s *ConversationService) Create(ctx context.Context, req *model.CreateConversationRequest) (*model.Conversation, error) {
	principal, ok := ctxutil.GetPrincipal(ctx)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}

	modelID := req.Model
	if modelID == "" {
		modelID = s.defaultModel
	}
	if _, err := ai.Resolve(modelID); err != nil {
		return nil, err
	}

	conv := &model.Conversation{
		UserID: principal.UserID,
		Title:  model.TitleSentinel,
		Model:  modelID,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, errors.Join(apperr.ErrPersistenceFailure, err)
	}

	if s.notifier != nil {
		s.notifier.Publish(ctx, principal.UserID, model.SessionEvent{
			Type:           "created",
			ConversationID: conv.ID.Hex(),
			Title:          conv.Title,
			OccurredAt:     time.Now(),
		})
	}
	return conv, nil
}

// List 查询当前用户的对话列表（新的在前，带消息数）
// 结果在 Redis 缓存 5 分钟，会话事件发布时失效
func (s *ConversationService) List(ctx context.Context) ([]*model.ConversationSummary, error) {
	principal, ok := ctxutil.GetPrincipal(ctx)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}

	if s.cache != nil {
		var cached []*model.ConversationSummary
		if err := s.cache.Get(ctx, cache.ConversationListKey(principal.UserID), &cached); err == nil {
			return cached, nil
		}
	}

	convs, err := s.convRepo.ListByUserID(ctx, principal.UserID, conversationListLimit, 0)
	if err != nil {
		return nil, err
	}

	summaries := make([]*model.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		count, err := s.msgRepo.CountByConversation(ctx, conv.ID.Hex())
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID.Hex()).Msg("failed to count messages")
		}
		summaries = append(summaries, &model.ConversationSummary{
			ID:           conv.ID.Hex(),
			Title:        conv.Title,
			Model:        conv.Model,
			MessageCount: count,
			CreatedAt:    conv.CreatedAt,
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.ConversationListKey(principal.UserID), summaries, cache.ConversationListTTL); err != nil {
			log.Warn().Err(err).Msg("failed to cache conversation list")
		}
	}
	return summaries, nil
}

// Delete 删除对话及其全部消息（仅所有者或管理员）
func (s *ConversationService) Delete(ctx context.Context, conversationID string) error {
	principal, ok := ctxutil.GetPrincipal(ctx)
	if !ok {
		return apperr.ErrUnauthenticated
	}

	conv, err := s.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.UserID != principal.UserID && !principal.IsAdmin {
		return apperr.ErrForbidden
	}

	// 先删消息再删对话：中途失败时对话仍在，可重试
	if err := s.msgRepo.DeleteByConversation(ctx, conversationID); err != nil {
		return errors.Join(apperr.ErrPersistenceFailure, err)
	}
	if err := s.convRepo.Delete(ctx, conversationID); err != nil {
		return errors.Join(apperr.ErrPersistenceFailure, err)
	}

	if s.notifier != nil {
		s.notifier.Publish(ctx, conv.UserID, model.SessionEvent{
			Type:           "deleted",
			ConversationID: conversationID,
			OccurredAt:     time.Now(),
		})
	}
	return nil
}
