package service

import (
	"strings"
	"testing"

	"yuzu/internal/model"
)

func TestTitleFromMessage(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"短い入力はそのまま", "こんにちは", "こんにちは"},
		{"前後の空白は除去", "  質問です  ", "質問です"},
		{"50文字ちょうど", strings.Repeat("あ", 50), strings.Repeat("あ", 50)},
		{"50文字超はrune単位で切り詰め", strings.Repeat("あ", 51), strings.Repeat("あ", 50)},
		{"マルチバイト混在でも途中で切れない", strings.Repeat("a字", 40), strings.Repeat("a字", 25)},
		{"空入力は占位タイトル", "   ", model.TitleSentinel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TitleFromMessage(tc.input); got != tc.want {
				t.Errorf("TitleFromMessage(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
