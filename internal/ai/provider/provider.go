package provider

import (
	"context"

	"yuzu/internal/model"
)

// SystemDirective 固定的语气/语言策略指令，由 Provider 注入到对话最前面
const SystemDirective = "Formatting re-enabled\nあなたは丁寧で優しい口調の日本語で回答するAIアシスタントです。"

// FallbackContent 上游返回空内容时的兜底回复
const FallbackContent = "回答を生成できませんでした。"

// Options 单次生成的 Provider 级参数
// 由注册表条目和请求配置共同决定，Provider 不关心对外模型标识
type Options struct {
	Model           string                // 上游模型名
	Effort          model.ReasoningEffort // 空值表示不传
	Reasoning       bool                  // 推理模型使用 max_completion_tokens
	MaxOutputTokens int
}

// Result 非流式生成结果
type Result struct {
	Content  string
	Metadata model.GenerationMetadata
}

// FragmentStream 归一化的片段序列
// 有限、单次消费、不可重放；Recv 在序列结束时返回 io.EOF，
// 之后 Metadata 返回累计到的诊断信息（上游未提供的字段保持零值）
type FragmentStream interface {
	// Recv 返回下一个非空文本增量，序列结束返回 io.EOF
	Recv() (string, error)

	// Metadata 返回诊断信息，在 Recv 返回 io.EOF 之后有效
	Metadata() *model.GenerationMetadata

	// Close 释放底层连接，可重复调用
	Close() error
}

// Provider 上游模型服务的统一能力
// 实现必须无状态：同一实例可被多个对话并发调用
// 各家上游的 chunk 形态差异（增量 delta / 整段输出）全部在实现内部抹平
type Provider interface {
	// Generate 同步生成完整回答
	Generate(ctx context.Context, msgs []model.ChatMessage, opts Options) (*Result, error)

	// Stream 发起流式生成，返回归一化的片段序列
	Stream(ctx context.Context, msgs []model.ChatMessage, opts Options) (FragmentStream, error)
}
