package routing

import (
	"fmt"
	"strings"
)

// Profile is the metadata an agent presents to the other participants.
type Profile struct {
	Name         string
	Description  string
	SystemPrompt string
}

// BuildSystemPrompt renders the system prompt for agentID inside a
// conversation with memberIDs. An empty agentID renders the generic group
// assistant prompt listing every member.
func BuildSystemPrompt(agentID string, profiles map[string]Profile, memberIDs []string) string {
	if agentID == "" {
		return fmt.Sprintf(`You are TeamClaw, a helpful AI assistant in a group chat.
Available agents in this conversation:
%s

You may respond if you have valuable input to add, but don't interrupt unnecessarily.`, describeMembers(profiles, memberIDs, ""))
	}

	p := profiles[agentID]
	intro := p.SystemPrompt
	if intro == "" {
		desc := p.Description
		if desc == "" {
			desc = "You are a helpful AI assistant."
		}
		intro = fmt.Sprintf("You are @%s. %s", agentID, desc)
	}

	return fmt.Sprintf(`%s

Only respond if you have something valuable to add to the conversation. Don't respond just to say you're paying attention.

Other agents in this conversation:
%s`, intro, describeMembers(profiles, memberIDs, agentID))
}

func describeMembers(profiles map[string]Profile, memberIDs []string, exclude string) string {
	var lines []string
	for _, id := range memberIDs {
		if id == exclude {
			continue
		}
		p := profiles[id]
		name := p.Name
		if name == "" {
			name = id
		}
		lines = append(lines, fmt.Sprintf("@%s: %s - %s", id, name, p.Description))
	}
	if len(lines) == 0 {
		return "None"
	}
	return strings.Join(lines, "\n")
}

// declinePhrases mark a short reply in which the agent opts out of the
// conversation, as the system prompt allows.
var declinePhrases = []string{
	"don't have",
	"nothing to add",
	"no response",
	"i won't respond",
	"i'll pass",
	"no code",
	"provide the code",
}

// maxDeclineLen bounds replies checked for decline phrases; longer replies
// are real answers that happen to contain one.
const maxDeclineLen = 500

// IsDecline reports whether content is an agent declining to respond.
func IsDecline(content string) bool {
	if content == "" || len(content) >= maxDeclineLen {
		return false
	}
	lower := strings.ToLower(content)
	for _, phrase := range declinePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
