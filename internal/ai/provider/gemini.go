package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"yuzu/internal/config"
	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
)

// GeminiProvider Gemini 对话 Provider
// 上游是整段输出的 chunk 形态，这里统一归一化为片段序列
// 通过 Eino 的 ChatModel 组件调用，genai 客户端可复用，ChatModel 按调用创建（无状态）
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider 创建 Gemini Provider
func NewGeminiProvider(ctx context.Context, cfg *config.GeminiConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// chatModel 按调用创建 ChatModel，模型名由注册表条目决定
func (p *GeminiProvider) chatModel(ctx context.Context, opts Options) (einomodel.BaseChatModel, error) {
	maxTokens := opts.MaxOutputTokens
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:    p.client,
		Model:     opts.Model,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return cm, nil
}

// buildMessages Gemini 不走系统指令，把全部历史拼成单轮输入（与上游整段形态匹配）
func buildGeminiMessages(msgs []model.ChatMessage) []*schema.Message {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	return []*schema.Message{
		schema.UserMessage(strings.Join(parts, "\n\n")),
	}
}

// Generate 同步生成完整回答
func (p *GeminiProvider) Generate(ctx context.Context, msgs []model.ChatMessage, opts Options) (*Result, error) {
	cm, err := p.chatModel(ctx, opts)
	if err != nil {
		return nil, err
	}

	resp, err := cm.Generate(ctx, buildGeminiMessages(msgs))
	if err != nil {
		return nil, mapGeminiError(err)
	}

	content := resp.Content
	if content == "" {
		content = FallbackContent
	}

	meta := geminiMetadata(opts.Model)
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		meta.Usage = model.TokenUsage{
			PromptTokens:     resp.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: resp.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      resp.ResponseMeta.Usage.TotalTokens,
		}
	}
	return &Result{Content: content, Metadata: meta}, nil
}

// Stream 发起流式生成
func (p *GeminiProvider) Stream(ctx context.Context, msgs []model.ChatMessage, opts Options) (FragmentStream, error) {
	cm, err := p.chatModel(ctx, opts)
	if err != nil {
		return nil, err
	}

	reader, err := cm.Stream(ctx, buildGeminiMessages(msgs))
	if err != nil {
		return nil, mapGeminiError(err)
	}
	return &geminiStream{reader: reader, meta: geminiMetadata(opts.Model)}, nil
}

// geminiStream 将 Eino StreamReader 归一化为片段序列
type geminiStream struct {
	reader *schema.StreamReader[*schema.Message]
	meta   model.GenerationMetadata
}

func (s *geminiStream) Recv() (string, error) {
	for {
		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", mapGeminiError(err)
		}

		if chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
			s.meta.Usage = model.TokenUsage{
				PromptTokens:     chunk.ResponseMeta.Usage.PromptTokens,
				CompletionTokens: chunk.ResponseMeta.Usage.CompletionTokens,
				TotalTokens:      chunk.ResponseMeta.Usage.TotalTokens,
			}
		}
		if chunk.Content != "" {
			return chunk.Content, nil
		}
	}
}

func (s *geminiStream) Metadata() *model.GenerationMetadata {
	meta := s.meta
	return &meta
}

func (s *geminiStream) Close() error {
	s.reader.Close()
	return nil
}

// geminiMetadata Gemini 不返回响应 ID 等字段，按固定形式填充
func geminiMetadata(modelName string) model.GenerationMetadata {
	return model.GenerationMetadata{
		ResponseID:        fmt.Sprintf("gemini-%d", time.Now().UnixMilli()),
		Model:             modelName,
		ServiceTier:       "gemini",
		SystemFingerprint: "gemini-2.0",
	}
}

// mapGeminiError 将上游错误映射到业务错误
// 429 区分为限流，并尽量从错误详情里带出建议的重试间隔
func mapGeminiError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return &apperr.RateLimitError{
			RetryAfter: parseRetryDelay(msg),
			Message:    msg,
		}
	}
	return apperr.Upstream(err)
}

// parseRetryDelay 从错误文本中提取 retryDelay（形如 "retryDelay":"37s"），拿不到返回 0
func parseRetryDelay(msg string) time.Duration {
	idx := strings.Index(msg, "retryDelay")
	if idx < 0 {
		return 0
	}
	rest := msg[idx:]
	start := strings.IndexAny(rest, "0123456789")
	if start < 0 {
		return 0
	}
	end := start
	for end < len(rest) && (rest[end] >= '0' && rest[end] <= '9' || rest[end] == '.') {
		end++
	}
	if end < len(rest) && rest[end] == 's' {
		end++
	}
	d, err := time.ParseDuration(rest[start:end])
	if err != nil {
		return 0
	}
	return d
}
