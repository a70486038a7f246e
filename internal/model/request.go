package model

// SubmitChatRequest 对话提交请求（流式和非流式共用）
type SubmitChatRequest struct {
	Message         string `json:"message" binding:"required"`
	Model           string `json:"model,omitempty"`
	ReasoningEffort string `json:"reasoningEffort,omitempty" binding:"omitempty,oneof=low medium high"` // 仅部分模型支持
}

// SaveMessageRequest 保存 assistant 消息请求
// 流式完成后持久化失败时，客户端通过该接口只重试保存，不重新生成
type SaveMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateConversationRequest 创建对话请求
type CreateConversationRequest struct {
	Model string `json:"model,omitempty"`
}

// CreateUserRequest 管理员创建用户请求
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}
