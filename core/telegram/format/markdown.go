// Package format renders user-supplied text safely into Telegram Markdown.
package format

import "strings"

var mdV1Escaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"[", `\[`,
	"`", "\\`",
)

// EscapeV1 escapes Markdown (v1) control characters. Emails and nicknames
// routinely contain underscores, which otherwise open an italic span and
// make Telegram reject the whole message.
func EscapeV1(text string) string {
	return mdV1Escaper.Replace(text)
}

// Mono wraps text in an inline code span, dropping embedded backticks.
func Mono(text string) string {
	return "`" + strings.ReplaceAll(text, "`", "'") + "`"
}
