package service

import (
	"strings"

	"yuzu/internal/model"
)

// TitleFromMessage 从用户输入生成对话标题
// 取前 50 个字符（按 rune 截断，避免切断多字节文字）
func TitleFromMessage(input string) string {
	title := strings.TrimSpace(input)
	if title == "" {
		return model.TitleSentinel
	}
	runes := []rune(title)
	if len(runes) > model.TitleMaxRunes {
		title = string(runes[:model.TitleMaxRunes])
	}
	return title
}
