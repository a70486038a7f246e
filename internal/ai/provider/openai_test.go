package provider

import (
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	. "github.com/smartystreets/goconvey/convey"

	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
)

func TestBuildRequest(t *testing.T) {
	Convey("OpenAI 请求构建", t, func() {
		p := &OpenAIProvider{}
		msgs := []model.ChatMessage{
			{Role: model.RoleUser, Content: "こんにちは"},
			{Role: model.RoleAssistant, Content: "はい"},
			{Role: model.RoleUser, Content: "続けて"},
		}

		Convey("系统指令固定在最前，历史按原顺序跟随", func() {
			req := p.buildRequest(msgs, Options{Model: "gpt-4o", MaxOutputTokens: 4096})
			So(len(req.Messages), ShouldEqual, 4)
			So(req.Messages[0].Role, ShouldEqual, openai.ChatMessageRoleSystem)
			So(req.Messages[0].Content, ShouldEqual, SystemDirective)
			So(req.Messages[1].Content, ShouldEqual, "こんにちは")
			So(req.Messages[3].Content, ShouldEqual, "続けて")
		})

		Convey("普通模型走 max_tokens", func() {
			req := p.buildRequest(msgs, Options{Model: "gpt-4o", MaxOutputTokens: 4096})
			So(req.MaxTokens, ShouldEqual, 4096)
			So(req.MaxCompletionTokens, ShouldEqual, 0)
			So(req.ReasoningEffort, ShouldBeEmpty)
		})

		Convey("推理模型走 max_completion_tokens 和 reasoning_effort", func() {
			req := p.buildRequest(msgs, Options{
				Model:           "o3-mini",
				Reasoning:       true,
				Effort:          model.EffortHigh,
				MaxOutputTokens: 25000,
			})
			So(req.MaxCompletionTokens, ShouldEqual, 25000)
			So(req.MaxTokens, ShouldEqual, 0)
			So(req.ReasoningEffort, ShouldEqual, "high")
		})

		Convey("未指定档位时不传 reasoning_effort", func() {
			req := p.buildRequest(msgs, Options{Model: "o3-mini", Reasoning: true, MaxOutputTokens: 25000})
			So(req.ReasoningEffort, ShouldBeEmpty)
		})
	})
}

func TestConvertUsage(t *testing.T) {
	Convey("Token 统计转换", t, func() {
		Convey("nil 输入返回零值", func() {
			So(convertUsage(nil), ShouldResemble, model.TokenUsage{})
		})

		Convey("细分项缺失时保持零值", func() {
			usage := convertUsage(&openai.Usage{
				PromptTokens:     12,
				CompletionTokens: 34,
				TotalTokens:      46,
			})
			So(usage.PromptTokens, ShouldEqual, 12)
			So(usage.TotalTokens, ShouldEqual, 46)
			So(usage.CompletionTokensDetails.ReasoningTokens, ShouldEqual, 0)
		})

		Convey("细分项齐全时逐项转换", func() {
			usage := convertUsage(&openai.Usage{
				PromptTokens:     100,
				CompletionTokens: 200,
				TotalTokens:      300,
				CompletionTokensDetails: &openai.CompletionTokensDetails{
					ReasoningTokens: 150,
					AudioTokens:     1,
				},
				PromptTokensDetails: &openai.PromptTokensDetails{
					CachedTokens: 64,
				},
			})
			So(usage.CompletionTokensDetails.ReasoningTokens, ShouldEqual, 150)
			So(usage.PromptTokensDetails.CachedTokens, ShouldEqual, 64)
		})
	})
}

func TestMapOpenAIError(t *testing.T) {
	Convey("OpenAI 错误映射", t, func() {
		Convey("429 映射为限流错误", func() {
			err := mapOpenAIError(&openai.APIError{
				HTTPStatusCode: http.StatusTooManyRequests,
				Message:        "Rate limit reached",
			})
			So(errors.Is(err, apperr.ErrRateLimited), ShouldBeTrue)

			var rl *apperr.RateLimitError
			So(errors.As(err, &rl), ShouldBeTrue)
			So(rl.Message, ShouldEqual, "Rate limit reached")
		})

		Convey("其他上游错误归为上游不可用", func() {
			err := mapOpenAIError(&openai.APIError{
				HTTPStatusCode: http.StatusInternalServerError,
				Message:        "server error",
			})
			So(errors.Is(err, apperr.ErrUpstreamUnavailable), ShouldBeTrue)
			So(errors.Is(err, apperr.ErrRateLimited), ShouldBeFalse)
		})

		Convey("非 API 错误也归为上游不可用", func() {
			err := mapOpenAIError(errors.New("dial tcp: timeout"))
			So(errors.Is(err, apperr.ErrUpstreamUnavailable), ShouldBeTrue)
		})
	})
}
