package channel

import (
	"strings"
	"unicode/utf8"
)

// SplitText splits text into chunks of at most maxRunes characters (Unicode
// code points), preferring to cut after a newline in the second half of a
// chunk. Chunks never split a multi-byte character.
func SplitText(text string, maxRunes int) []string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		cutAt := runeOffset(text, maxRunes)
		if cutAt == len(text) {
			chunks = append(chunks, text)
			break
		}

		if idx := strings.LastIndex(text[:cutAt], "\n"); idx > cutAt/2 {
			cutAt = idx + 1
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}

	return chunks
}

// runeOffset returns the byte offset just past the first n runes of s.
func runeOffset(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
