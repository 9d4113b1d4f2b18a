package routing

import "regexp"

// mentionPattern matches @ followed by one or more word characters.
var mentionPattern = regexp.MustCompile(`@(\w+)`)

// ParseMentions returns the names mentioned in content, in order of
// appearance and with duplicates preserved.
func ParseMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	mentions := make([]string, 0, len(matches))
	for _, m := range matches {
		mentions = append(mentions, m[1])
	}
	return mentions
}
