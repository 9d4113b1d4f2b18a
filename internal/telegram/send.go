package telegram

import "regexp"

// maxMessageLen is Telegram's limit in characters.
const maxMessageLen = 4096

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// toTelegramMarkdown rewrites the common Markdown that agents emit into
// Telegram's legacy Markdown dialect.
func toTelegramMarkdown(text string) string {
	return boldPattern.ReplaceAllString(text, "*$1*")
}
