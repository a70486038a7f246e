package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TitleSentinel 新建对话的占位标题
// 首轮对话完成后被替换为用户首条消息的前缀，此后不再自动改动
const TitleSentinel = "新規チャット"

// TitleMaxRunes 自动命名时取用户首条消息的前多少个字符
const TitleMaxRunes = 50

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation 对话实体
// 标题只会从占位标题自动改名一次，消息单独存放在 messages 集合
type Conversation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Title     string             `bson:"title" json:"title"`
	Model     string             `bson:"model" json:"model"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Message 消息实体
// 追加后内容不可变；assistant 消息只在流结束后整条写入，绝不写入部分内容
type Message struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID  `bson:"conversation_id" json:"conversation_id"`
	Role           string              `bson:"role" json:"role"`
	Content        string              `bson:"content" json:"content"`
	Metadata       *GenerationMetadata `bson:"metadata,omitempty" json:"debugInfo,omitempty"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
}

// GenerationMetadata 单次生成的诊断信息
// 只挂在 assistant 消息上，缺失不影响正确性，纯观测用途
type GenerationMetadata struct {
	ResponseID        string     `bson:"response_id" json:"id"`
	Model             string     `bson:"model" json:"model"`
	Usage             TokenUsage `bson:"usage" json:"usage"`
	ServiceTier       string     `bson:"service_tier" json:"service_tier"`
	SystemFingerprint string     `bson:"system_fingerprint" json:"system_fingerprint"`
}

// TokenUsage Token 使用统计
// 上游未提供的细分项保持零值
type TokenUsage struct {
	PromptTokens            int                     `bson:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens        int                     `bson:"completion_tokens" json:"completion_tokens"`
	TotalTokens             int                     `bson:"total_tokens" json:"total_tokens"`
	CompletionTokensDetails CompletionTokensDetails `bson:"completion_tokens_details" json:"completion_tokens_details"`
	PromptTokensDetails     PromptTokensDetails     `bson:"prompt_tokens_details" json:"prompt_tokens_details"`
}

// CompletionTokensDetails 输出 token 细分
type CompletionTokensDetails struct {
	AcceptedPredictionTokens int `bson:"accepted_prediction_tokens" json:"accepted_prediction_tokens"`
	AudioTokens              int `bson:"audio_tokens" json:"audio_tokens"`
	ReasoningTokens          int `bson:"reasoning_tokens" json:"reasoning_tokens"`
	RejectedPredictionTokens int `bson:"rejected_prediction_tokens" json:"rejected_prediction_tokens"`
}

// PromptTokensDetails 输入 token 细分
type PromptTokensDetails struct {
	AudioTokens  int `bson:"audio_tokens" json:"audio_tokens"`
	CachedTokens int `bson:"cached_tokens" json:"cached_tokens"`
}

// ChatMessage 传给 Provider 的对话消息（与存储实体解耦）
type ChatMessage struct {
	Role    string
	Content string
}

// ReasoningEffort 推理强度档位
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

// IsValid 检查档位是否有效，空值视为未指定
func (e ReasoningEffort) IsValid() bool {
	return e == "" || e == EffortLow || e == EffortMedium || e == EffortHigh
}

// ChatConfig 请求级生成配置，不持久化
// Effort 只在模型能力允许时生效，否则在进入 Provider 前被剥离
type ChatConfig struct {
	Model  string
	Effort ReasoningEffort
}
