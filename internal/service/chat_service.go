package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"yuzu/internal/ai"
	"yuzu/internal/ai/provider"
	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
	"yuzu/internal/pkg/ctxutil"
)

// Generator AI 能力层（便于测试替换）
type Generator interface {
	Generate(ctx context.Context, msgs []model.ChatMessage, cfg model.ChatConfig) (*provider.Result, error)
	Stream(ctx context.Context, msgs []model.ChatMessage, cfg model.ChatConfig) (provider.FragmentStream, error)
}

// ConversationStore 对话存储（持久层边界）
type ConversationStore interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	RenameIfUntitled(ctx context.Context, id string, title string) error
	Touch(ctx context.Context, id string) error
}

// MessageStore 消息存储（持久层边界，只追加）
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]*model.Message, error)
}

// Notifier 会话事件通知（完成/改名时驱动客户端刷新会话列表）
type Notifier interface {
	Publish(ctx context.Context, userID string, event model.SessionEvent)
}

// ChatService 对话服务 - 流式中继的核心
// 职责: 校验 -> 持久化用户消息 -> 分发 Provider -> 边转发边累积 -> 终端块 -> 整条持久化
// 每个对话同一时刻至多一个活跃生成，新提交会先取消旧的
type ChatService struct {
	aiClient     Generator
	convs        ConversationStore
	msgs         MessageStore
	notifier     Notifier // 可为 nil（Redis 未配置时）
	defaultModel string
	flights      *flightTable
}

// NewChatService 创建对话服务
func NewChatService(aiClient Generator, convs ConversationStore, msgs MessageStore, notifier Notifier, defaultModel string) *ChatService {
	return &ChatService{
		aiClient:     aiClient,
		convs:        convs,
		msgs:         msgs,
		notifier:     notifier,
		defaultModel: defaultModel,
		flights:      newFlightTable(),
	}
}

// validated 提交请求校验通过后的上下文
type validated struct {
	conv    *model.Conversation
	cfg     model.ChatConfig
	history []model.ChatMessage // 含新提交的这一轮
	userMsg *model.Message
}

// validate 请求校验阶段：认证 -> 所有权 -> 模型解析
// 任何校验失败都发生在持久化之前，不产生部分状态
func (s *ChatService) validate(ctx context.Context, conversationID string, req *model.SubmitChatRequest) (*validated, error) {
	principal, ok := ctxutil.GetPrincipal(ctx)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}

	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != principal.UserID && !principal.IsAdmin {
		return nil, apperr.ErrForbidden
	}

	modelID := req.Model
	if modelID == "" {
		modelID = conv.Model
	}
	if modelID == "" {
		modelID = s.defaultModel
	}
	// 未注册模型在触发任何生成和持久化之前拒绝
	if _, err := ai.Resolve(modelID); err != nil {
		return nil, err
	}

	cfg := model.ChatConfig{
		Model:  modelID,
		Effort: model.ReasoningEffort(req.ReasoningEffort),
	}

	stored, err := s.msgs.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]model.ChatMessage, 0, len(stored)+1)
	for _, m := range stored {
		history = append(history, model.ChatMessage{Role: m.Role, Content: m.Content})
	}
	history = append(history, model.ChatMessage{Role: model.RoleUser, Content: req.Message})

	return &validated{conv: conv, cfg: cfg, history: history}, nil
}

// persistUserMessage 同步持久化用户消息
// 生成随后失败也不回滚：用户消息留存属于预期终态
func (s *ChatService) persistUserMessage(ctx context.Context, v *validated, content string) error {
	userMsg := &model.Message{
		ConversationID: v.conv.ID,
		Role:           model.RoleUser,
		Content:        content,
	}
	if err := s.msgs.Create(ctx, userMsg); err != nil {
		return errors.Join(apperr.ErrPersistenceFailure, err)
	}
	v.userMsg = userMsg
	return nil
}

// Stream 流式对话
// 校验和用户消息持久化同步完成后返回输出通道；通道按生成顺序输出增量块，
// 以恰好一个终端块收尾（取消时例外：静默关闭，不产出终端块）
func (s *ChatService) Stream(ctx context.Context, conversationID string, req *model.SubmitChatRequest) (<-chan *model.StreamChunk, error) {
	v, err := s.validate(ctx, conversationID, req)
	if err != nil {
		return nil, err
	}

	// 同一对话的旧流先取消并等它完全退出，再开新流
	fctx, endFlight := s.flights.begin(ctx, conversationID)

	if err := s.persistUserMessage(ctx, v, req.Message); err != nil {
		endFlight()
		return nil, err
	}

	out := make(chan *model.StreamChunk, 8)
	go s.run(fctx, endFlight, out, conversationID, v, req.Message)
	return out, nil
}

// run 流式生成主循环：Dispatched -> Streaming -> Finalizing
func (s *ChatService) run(ctx context.Context, endFlight func(), out chan<- *model.StreamChunk, conversationID string, v *validated, userInput string) {
	defer endFlight()
	defer close(out)

	logger := log.With().
		Str("conversation_id", conversationID).
		Str("model", v.cfg.Model).
		Logger()

	stream, err := s.aiClient.Stream(ctx, v.history, v.cfg)
	if err != nil {
		if isAborted(ctx, err) {
			logger.Info().Msg("stream aborted before dispatch")
			return
		}
		logger.Error().Err(err).Msg("failed to dispatch provider stream")
		s.emit(ctx, out, errorChunk(err))
		return
	}
	defer stream.Close()

	// 请求级累积器，流结束后整条写入
	var accumulator strings.Builder

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isAborted(ctx, err) {
				// 取消：丢弃累积内容，不写入任何 assistant 消息
				logger.Info().Int("accumulated", accumulator.Len()).Msg("stream aborted")
				return
			}
			logger.Error().Err(err).Msg("provider stream failed")
			s.emit(ctx, out, errorChunk(err))
			return
		}

		accumulator.WriteString(fragment)
		// 立即转发，不重排不合并
		if !s.emit(ctx, out, &model.StreamChunk{Content: fragment}) {
			logger.Info().Msg("client gone, stream aborted")
			return
		}
	}

	// Finalizing: 片段序列已完整走完，持久化不再受取消影响
	// （完整回答不是部分状态，丢弃反而造成客户端已见内容与存储不一致）
	finalizeCtx := context.WithoutCancel(ctx)
	meta := stream.Metadata()
	if meta == nil {
		meta = &model.GenerationMetadata{Model: v.cfg.Model}
	}

	terminal := &model.StreamChunk{IsLast: true, Metadata: meta}
	if err := s.persistAssistantMessage(finalizeCtx, v, accumulator.String(), meta); err != nil {
		// 持久化失败单独标识：客户端应只重试保存，不要重新生成
		logger.Error().Err(err).Msg("failed to persist assistant message")
		terminal.Error = "persistence_failure"
		s.emit(ctx, out, terminal)
		return
	}

	s.finishExchange(finalizeCtx, conversationID, v, userInput, logger)
	s.emit(ctx, out, terminal)

	logger.Info().
		Int("prompt_tokens", meta.Usage.PromptTokens).
		Int("completion_tokens", meta.Usage.CompletionTokens).
		Msg("stream completed")
}

// persistAssistantMessage 整条写入 assistant 消息
func (s *ChatService) persistAssistantMessage(ctx context.Context, v *validated, content string, meta *model.GenerationMetadata) error {
	assistantMsg := &model.Message{
		ConversationID: v.conv.ID,
		Role:           model.RoleAssistant,
		Content:        content,
		Metadata:       meta,
	}
	return s.msgs.Create(ctx, assistantMsg)
}

// finishExchange 一轮对话完成后的收尾：条件改名、touch、会话事件
func (s *ChatService) finishExchange(ctx context.Context, conversationID string, v *validated, userInput string, logger zerolog.Logger) {
	if v.conv.Title == model.TitleSentinel {
		// 标题取用户原始输入的前缀，不是模型回答
		title := TitleFromMessage(userInput)
		if err := s.convs.RenameIfUntitled(ctx, conversationID, title); err != nil {
			logger.Warn().Err(err).Msg("failed to rename conversation")
		} else {
			s.notify(ctx, v.conv.UserID, model.SessionEvent{
				Type:           "renamed",
				ConversationID: conversationID,
				Title:          title,
				OccurredAt:     time.Now(),
			})
		}
	}

	if err := s.convs.Touch(ctx, conversationID); err != nil {
		logger.Warn().Err(err).Msg("failed to touch conversation")
	}

	s.notify(ctx, v.conv.UserID, model.SessionEvent{
		Type:           "completed",
		ConversationID: conversationID,
		OccurredAt:     time.Now(),
	})
}

// Complete 非流式对话
// 同样的持久化规则折叠为单步：用户消息 -> 生成 -> assistant 消息 -> 条件改名
func (s *ChatService) Complete(ctx context.Context, conversationID string, req *model.SubmitChatRequest) (*model.ChatResponse, error) {
	v, err := s.validate(ctx, conversationID, req)
	if err != nil {
		return nil, err
	}

	fctx, endFlight := s.flights.begin(ctx, conversationID)
	defer endFlight()

	if err := s.persistUserMessage(ctx, v, req.Message); err != nil {
		return nil, err
	}

	result, err := s.aiClient.Generate(fctx, v.history, v.cfg)
	if err != nil {
		if isAborted(fctx, err) {
			return nil, apperr.ErrAborted
		}
		return nil, err
	}

	finalizeCtx := context.WithoutCancel(fctx)
	meta := result.Metadata
	if err := s.persistAssistantMessage(finalizeCtx, v, result.Content, &meta); err != nil {
		return nil, errors.Join(apperr.ErrPersistenceFailure, err)
	}

	logger := log.With().Str("conversation_id", conversationID).Str("model", v.cfg.Model).Logger()
	s.finishExchange(finalizeCtx, conversationID, v, req.Message, logger)

	assistantMsg := &model.Message{
		ConversationID: v.conv.ID,
		Role:           model.RoleAssistant,
		Content:        result.Content,
		Metadata:       &meta,
	}
	return &model.ChatResponse{
		Content:          result.Content,
		IsLast:           true,
		Metadata:         &meta,
		UserMessage:      v.userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// SaveAssistantMessage 保存 assistant 消息
// 流式完成但持久化失败时的独立重试路径，不重新触发生成
func (s *ChatService) SaveAssistantMessage(ctx context.Context, conversationID string, content string) (*model.Message, error) {
	principal, ok := ctxutil.GetPrincipal(ctx)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}

	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != principal.UserID && !principal.IsAdmin {
		return nil, apperr.ErrForbidden
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        content,
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		return nil, errors.Join(apperr.ErrPersistenceFailure, err)
	}

	if err := s.convs.Touch(ctx, conversationID); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to touch conversation")
	}
	return msg, nil
}

// ListMessages 按创建时间升序返回对话消息
func (s *ChatService) ListMessages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	principal, ok := ctxutil.GetPrincipal(ctx)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}

	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != principal.UserID && !principal.IsAdmin {
		return nil, apperr.ErrForbidden
	}

	return s.msgs.ListByConversation(ctx, conversationID)
}

// emit 带取消检查的转发；返回 false 表示流已被取消
func (s *ChatService) emit(ctx context.Context, out chan<- *model.StreamChunk, chunk *model.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *ChatService) notify(ctx context.Context, userID string, event model.SessionEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, userID, event)
}

// errorChunk 将流中错误转换为终端错误块
func errorChunk(err error) *model.StreamChunk {
	chunk := &model.StreamChunk{IsLast: true}
	switch {
	case errors.Is(err, apperr.ErrRateLimited):
		chunk.Error = "rate_limited"
	default:
		chunk.Error = "upstream_unavailable"
	}
	return chunk
}

// isAborted 判断错误是否由取消引起
func isAborted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
