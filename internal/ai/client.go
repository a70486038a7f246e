package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"yuzu/internal/ai/provider"
	"yuzu/internal/config"
	"yuzu/internal/model"
)

// Client AI 能力层客户端
// 职责: 按注册表把请求路由到对应 Provider，剥离模型不支持的选项
type Client struct {
	providers map[string]provider.Provider
}

// NewClient 创建 AI 客户端
func NewClient(ctx context.Context, cfg *config.AIConfig) (*Client, error) {
	providers := make(map[string]provider.Provider)

	if cfg.OpenAI.APIKey != "" {
		providers[ProviderOpenAI] = provider.NewOpenAIProvider(&cfg.OpenAI)
	} else {
		log.Warn().Msg("OpenAI API key not configured, openai models unavailable")
	}

	if cfg.Gemini.APIKey != "" {
		gp, err := provider.NewGeminiProvider(ctx, &cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini provider: %w", err)
		}
		providers[ProviderGemini] = gp
	} else {
		log.Warn().Msg("Gemini API key not configured, gemini models unavailable")
	}

	return &Client{providers: providers}, nil
}

// resolve 解析注册表条目和对应的 Provider，并按能力剥离选项
func (c *Client) resolve(msgs []model.ChatMessage, cfg model.ChatConfig) (provider.Provider, provider.Options, error) {
	if len(msgs) == 0 {
		return nil, provider.Options{}, errors.New("conversation must not be empty")
	}

	spec, err := Resolve(cfg.Model)
	if err != nil {
		return nil, provider.Options{}, err
	}

	p, ok := c.providers[spec.Provider]
	if !ok {
		return nil, provider.Options{}, fmt.Errorf("provider %s is not configured", spec.Provider)
	}

	opts := provider.Options{
		Model:           spec.UpstreamModel,
		Reasoning:       spec.Reasoning,
		MaxOutputTokens: spec.MaxOutputTokens,
	}
	// 模型不支持推理档位时剥离，避免把选项透传给上游
	if spec.SupportsEffort {
		opts.Effort = cfg.Effort
	}
	return p, opts, nil
}

// Generate 同步对话
func (c *Client) Generate(ctx context.Context, msgs []model.ChatMessage, cfg model.ChatConfig) (*provider.Result, error) {
	p, opts, err := c.resolve(msgs, cfg)
	if err != nil {
		return nil, err
	}
	return p.Generate(ctx, msgs, opts)
}

// Stream 流式对话
func (c *Client) Stream(ctx context.Context, msgs []model.ChatMessage, cfg model.ChatConfig) (provider.FragmentStream, error) {
	p, opts, err := c.resolve(msgs, cfg)
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, msgs, opts)
}
