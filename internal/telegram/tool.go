package telegram

import "strings"

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"*", "\\*",
	"_", "\\_",
	"`", "\\`",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
)

// EscapeMarkdown 转义消息正文中的 Markdown 特殊字符，标的代码里常见下划线
func EscapeMarkdown(input string) string {
	return markdownEscaper.Replace(input)
}
