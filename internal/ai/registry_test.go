package ai

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"yuzu/internal/pkg/apperr"
)

func TestResolve(t *testing.T) {
	Convey("模型注册表解析", t, func() {
		Convey("已注册模型返回完整条目", func() {
			spec, err := Resolve("o3-mini")
			So(err, ShouldBeNil)
			So(spec.Provider, ShouldEqual, ProviderOpenAI)
			So(spec.Reasoning, ShouldBeTrue)
			So(spec.SupportsEffort, ShouldBeTrue)
			So(spec.MaxOutputTokens, ShouldEqual, 25000)

			spec, err = Resolve("gpt-4o")
			So(err, ShouldBeNil)
			So(spec.Reasoning, ShouldBeFalse)
			So(spec.SupportsEffort, ShouldBeFalse)
			So(spec.MaxOutputTokens, ShouldEqual, 4096)

			spec, err = Resolve("gemini-2.0-flash")
			So(err, ShouldBeNil)
			So(spec.Provider, ShouldEqual, ProviderGemini)
		})

		Convey("未注册模型返回 ErrUnknownModel", func() {
			_, err := Resolve("gpt-5")
			So(errors.Is(err, apperr.ErrUnknownModel), ShouldBeTrue)

			_, err = Resolve("")
			So(errors.Is(err, apperr.ErrUnknownModel), ShouldBeTrue)
		})
	})
}

func TestList(t *testing.T) {
	Convey("模型列表", t, func() {
		models := List()
		So(len(models), ShouldEqual, 3)

		Convey("按 ID 排序且标记推理档位支持", func() {
			So(models[0].ID, ShouldEqual, "gemini-2.0-flash")
			So(models[1].ID, ShouldEqual, "gpt-4o")
			So(models[2].ID, ShouldEqual, "o3-mini")
			So(models[2].SupportsEffort, ShouldBeTrue)
			So(models[1].SupportsEffort, ShouldBeFalse)
		})
	})
}
