package provider

import (
	"context"
	"errors"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"yuzu/internal/config"
	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
)

// OpenAIProvider OpenAI 对话 Provider
// 同时服务推理模型（o3-mini，增量 delta 流）和普通模型（gpt-4o）
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider 创建 OpenAI Provider
func NewOpenAIProvider(cfg *config.OpenAIConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// buildRequest 构建上游请求
// 固定系统指令置于对话最前；推理模型走 max_completion_tokens 和 reasoning_effort
func (p *OpenAIProvider) buildRequest(msgs []model.ChatMessage, opts Options) openai.ChatCompletionRequest {
	formatted := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	formatted = append(formatted, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemDirective,
	})
	for _, m := range msgs {
		formatted = append(formatted, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    opts.Model,
		Messages: formatted,
	}
	if opts.Reasoning {
		req.MaxCompletionTokens = opts.MaxOutputTokens
		if opts.Effort != "" {
			req.ReasoningEffort = string(opts.Effort)
		}
	} else {
		req.MaxTokens = opts.MaxOutputTokens
	}
	return req
}

// Generate 同步生成完整回答
func (p *OpenAIProvider) Generate(ctx context.Context, msgs []model.ChatMessage, opts Options) (*Result, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(msgs, opts))
	if err != nil {
		return nil, mapOpenAIError(err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	if content == "" {
		content = FallbackContent
	}

	meta := model.GenerationMetadata{
		ResponseID:        resp.ID,
		Model:             resp.Model,
		Usage:             convertUsage(&resp.Usage),
		ServiceTier:       "default",
		SystemFingerprint: resp.SystemFingerprint,
	}
	return &Result{Content: content, Metadata: meta}, nil
}

// Stream 发起流式生成
func (p *OpenAIProvider) Stream(ctx context.Context, msgs []model.ChatMessage, opts Options) (FragmentStream, error) {
	req := p.buildRequest(msgs, opts)
	// 要求上游在末尾 chunk 携带 usage
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	return &openaiStream{stream: stream}, nil
}

// openaiStream 将 OpenAI 的增量 delta chunk 归一化为片段序列
type openaiStream struct {
	stream *openai.ChatCompletionStream
	meta   model.GenerationMetadata
}

func (s *openaiStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", mapOpenAIError(err)
		}

		// 响应级字段每个 chunk 都带，末尾 usage chunk 的 choices 为空
		if resp.ID != "" {
			s.meta.ResponseID = resp.ID
		}
		if resp.Model != "" {
			s.meta.Model = resp.Model
		}
		if resp.SystemFingerprint != "" {
			s.meta.SystemFingerprint = resp.SystemFingerprint
		}
		if resp.Usage != nil {
			s.meta.Usage = convertUsage(resp.Usage)
		}

		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

func (s *openaiStream) Metadata() *model.GenerationMetadata {
	meta := s.meta
	if meta.ServiceTier == "" {
		meta.ServiceTier = "default"
	}
	return &meta
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}

// convertUsage 转换 token 统计，上游缺失的细分项保持零值
func convertUsage(u *openai.Usage) model.TokenUsage {
	if u == nil {
		return model.TokenUsage{}
	}
	usage := model.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.CompletionTokensDetails != nil {
		usage.CompletionTokensDetails = model.CompletionTokensDetails{
			AcceptedPredictionTokens: u.CompletionTokensDetails.AcceptedPredictionTokens,
			AudioTokens:              u.CompletionTokensDetails.AudioTokens,
			ReasoningTokens:          u.CompletionTokensDetails.ReasoningTokens,
			RejectedPredictionTokens: u.CompletionTokensDetails.RejectedPredictionTokens,
		}
	}
	if u.PromptTokensDetails != nil {
		usage.PromptTokensDetails = model.PromptTokensDetails{
			AudioTokens:  u.PromptTokensDetails.AudioTokens,
			CachedTokens: u.PromptTokensDetails.CachedTokens,
		}
	}
	return usage
}

// mapOpenAIError 将上游错误映射到业务错误
// 限流（429）区分出来并尽量保留建议的重试间隔，其余归为上游不可用
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			// OpenAI 的 429 错误体没有结构化的 retry-after 字段
			return &apperr.RateLimitError{Message: apiErr.Message}
		}
		return apperr.Upstream(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &apperr.RateLimitError{Message: reqErr.Error()}
		}
		return apperr.Upstream(err)
	}
	return apperr.Upstream(err)
}
