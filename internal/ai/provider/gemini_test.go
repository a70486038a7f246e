package provider

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
)

func TestBuildGeminiMessages(t *testing.T) {
	Convey("Gemini 消息组装", t, func() {
		Convey("全部历史拼成单轮用户输入", func() {
			msgs := buildGeminiMessages([]model.ChatMessage{
				{Role: model.RoleUser, Content: "質問1"},
				{Role: model.RoleAssistant, Content: "回答1"},
				{Role: model.RoleUser, Content: "質問2"},
			})
			So(len(msgs), ShouldEqual, 1)
			So(msgs[0].Content, ShouldEqual, "質問1\n\n回答1\n\n質問2")
		})

		Convey("单条消息不加分隔", func() {
			msgs := buildGeminiMessages([]model.ChatMessage{
				{Role: model.RoleUser, Content: "hello"},
			})
			So(msgs[0].Content, ShouldEqual, "hello")
		})
	})
}

func TestMapGeminiError(t *testing.T) {
	Convey("Gemini 错误映射", t, func() {
		Convey("429 和 RESOURCE_EXHAUSTED 映射为限流", func() {
			err := mapGeminiError(errors.New("googleapi: Error 429: quota exceeded"))
			So(errors.Is(err, apperr.ErrRateLimited), ShouldBeTrue)

			err = mapGeminiError(errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED"))
			So(errors.Is(err, apperr.ErrRateLimited), ShouldBeTrue)
		})

		Convey("限流错误带出建议的重试间隔", func() {
			err := mapGeminiError(errors.New(`Error 429: {"retryDelay":"37s"}`))
			var rl *apperr.RateLimitError
			So(errors.As(err, &rl), ShouldBeTrue)
			So(rl.RetryAfter, ShouldEqual, 37*time.Second)
		})

		Convey("其他错误归为上游不可用", func() {
			err := mapGeminiError(errors.New("context deadline exceeded"))
			So(errors.Is(err, apperr.ErrUpstreamUnavailable), ShouldBeTrue)
		})
	})
}

func TestParseRetryDelay(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want time.Duration
	}{
		{"整数秒", `"retryDelay":"37s"`, 37 * time.Second},
		{"小数秒", `"retryDelay":"2.5s"`, 2500 * time.Millisecond},
		{"字段缺失", "quota exceeded", 0},
		{"数字缺失", "retryDelay: soon", 0},
		{"单位缺失时解析失败", `"retryDelay":"37"`, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseRetryDelay(tc.msg); got != tc.want {
				t.Errorf("parseRetryDelay(%q) = %v, want %v", tc.msg, got, tc.want)
			}
		})
	}
}
