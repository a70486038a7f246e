package model

import "time"

// StreamChunk 流式输出的线上单元（NDJSON，每行一个）
// 非终端块只携带增量文本；终端块唯一，携带完成标记和诊断信息
// 持久化失败时终端块的 Error 置为区分性错误标识，客户端据此只重试保存
type StreamChunk struct {
	Content  string              `json:"content"`
	IsLast   bool                `json:"isLast"`
	Metadata *GenerationMetadata `json:"debugInfo,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// ChatResponse 非流式对话响应
type ChatResponse struct {
	Content          string              `json:"content"`
	IsLast           bool                `json:"isLast"`
	Metadata         *GenerationMetadata `json:"debugInfo,omitempty"`
	UserMessage      *Message            `json:"userMessage,omitempty"`
	AssistantMessage *Message            `json:"assistantMessage,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"` // 秒，仅限流错误携带
}

// ConversationSummary 对话列表项（不含消息内容）
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	Username     string    `json:"username,omitempty"` // 仅管理端列表填充
	MessageCount int64     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionEvent 会话事件（完成/改名等触发的刷新信号）
// 通过 Redis Pub/Sub 推给在线客户端，驱动会话列表刷新
type SessionEvent struct {
	Type           string    `json:"type"` // completed / renamed / created / deleted
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ModelInfo 模型列表项（前端模型选择器用）
type ModelInfo struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	SupportsEffort bool   `json:"supports_reasoning_effort"`
}
