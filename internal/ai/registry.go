package ai

import (
	"sort"

	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
)

// Provider 名称常量，注册表条目路由到对应的 Provider 实现
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ModelSpec 模型注册表条目
// 静态配置：新增模型属于部署时变更，不支持运行时修改
type ModelSpec struct {
	ID              string // 对外模型标识
	DisplayName     string
	Provider        string // openai / gemini
	UpstreamModel   string // 上游 API 使用的模型名
	SupportsEffort  bool   // 是否支持推理强度档位
	Reasoning       bool   // 推理模型使用 max_completion_tokens 而非 max_tokens
	MaxOutputTokens int    // 输出长度上限
}

// registry 静态模型注册表
var registry = map[string]ModelSpec{
	"o3-mini": {
		ID:              "o3-mini",
		DisplayName:     "o3-mini",
		Provider:        ProviderOpenAI,
		UpstreamModel:   "o3-mini",
		SupportsEffort:  true,
		Reasoning:       true,
		MaxOutputTokens: 25000,
	},
	"gpt-4o": {
		ID:              "gpt-4o",
		DisplayName:     "gpt-4o",
		Provider:        ProviderOpenAI,
		UpstreamModel:   "gpt-4o",
		MaxOutputTokens: 4096,
	},
	"gemini-2.0-flash": {
		ID:              "gemini-2.0-flash",
		DisplayName:     "Gemini 2.0 Flash",
		Provider:        ProviderGemini,
		UpstreamModel:   "gemini-2.0-flash",
		MaxOutputTokens: 4096,
	},
}

// Resolve 解析模型标识
// 未注册的标识返回 apperr.ErrUnknownModel，调用方应在触发任何生成之前校验
func Resolve(modelID string) (ModelSpec, error) {
	spec, ok := registry[modelID]
	if !ok {
		return ModelSpec{}, apperr.ErrUnknownModel
	}
	return spec, nil
}

// List 返回所有注册模型（按 ID 排序，供前端模型选择器使用）
func List() []model.ModelInfo {
	out := make([]model.ModelInfo, 0, len(registry))
	for _, spec := range registry {
		out = append(out, model.ModelInfo{
			ID:             spec.ID,
			DisplayName:    spec.DisplayName,
			SupportsEffort: spec.SupportsEffort,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
