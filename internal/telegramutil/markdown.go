// Package telegramutil formats model output for Telegram's MarkdownV2
// parser.
package telegramutil

import "strings"

// MaxMessageLen is the Telegram sendMessage body limit.
const MaxMessageLen = 4096

const ellipsis = "..."

// Characters Telegram's MarkdownV2 parser rejects when unescaped. Emphasis
// markers are deliberately left out so single-star emphasis from the model
// survives rendering.
var markdownV2Escapes = map[rune]bool{
	'.': true,
	'>': true,
	'#': true,
	'+': true,
	'-': true,
	'=': true,
	'|': true,
	'{': true,
	'}': true,
	'(': true,
	')': true,
	'!': true,
}

// EscapeMarkdownV2 converts model-formatted text to Telegram MarkdownV2:
// double-star emphasis collapses to Telegram's single star, and every
// reserved character is backslash-escaped.
func EscapeMarkdownV2(text string) string {
	text = strings.ReplaceAll(text, "**", "*")
	var b strings.Builder
	b.Grow(len(text) + 16)
	for _, r := range text {
		if markdownV2Escapes[r] {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TruncateMessage caps text at Telegram's message length limit, replacing
// the tail with an ellipsis when it does not fit.
func TruncateMessage(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxMessageLen {
		return text
	}
	return string(runes[:MaxMessageLen-len(ellipsis)]) + ellipsis
}
