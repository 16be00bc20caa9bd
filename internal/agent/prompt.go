package agent

import (
	"fmt"
	"strings"

	"parley/internal/config"
	"parley/internal/session"
)

// continuationInstruction prefixes the prompt of a handed-off session so the
// assistant picks the call up mid-conversation instead of greeting again.
const continuationInstruction = "You are taking over an ongoing conversation that was transferred to you. " +
	"The transcript so far is part of this conversation. Continue naturally from where it left off; " +
	"do not greet the caller again or re-introduce yourself."

// buildSystemPrompt appends the transfer instructions for each support agent
// to the assistant's configured prompt.
func buildSystemPrompt(base string, agents []config.SupportAgent) string {
	if len(agents) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nYou can transfer this conversation to a specialised assistant with the transfer_to_agent tool:")
	for _, agent := range agents {
		fmt.Fprintf(&b, "\n- When the caller needs help with %s, transfer to agent_id %q.", agent.Trigger, agent.AssistantID)
		if agent.TransferText != "" {
			fmt.Fprintf(&b, " Tell the caller %q before transferring.", agent.TransferText)
		}
	}
	return b.String()
}

// seedTranscript replays a carried conversation log into a fresh session.
func seedTranscript(sess *session.Session, entries []session.Entry) {
	for _, entry := range entries {
		sess.Transcript.Append(entry.Role, entry.Content)
	}
}
