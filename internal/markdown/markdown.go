// Package markdown escapes text for Telegram MarkdownV2.
package markdown

import "strings"

// reserved is the MarkdownV2 set that must be backslash-escaped outside
// entities.
const reserved = "_*[]()~`>#+-=|{}.!\\"

var replacer = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(reserved))
	for _, c := range reserved {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()

// Escape returns s with every MarkdownV2 reserved character escaped.
func Escape(s string) string {
	return replacer.Replace(s)
}

// Bold wraps already-escaped text in a bold entity.
func Bold(escaped string) string {
	return "*" + escaped + "*"
}
