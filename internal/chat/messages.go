package chat

// BuildMessages assembles the ordered upstream message list: the optional
// system prompt first, then the prior history, then the new user message.
// The user message is skipped when it duplicates the immediately
// preceding history entry's user turn, so a resent request stays
// idempotent.
func BuildMessages(systemPrompt string, history []Message, userMessage string) []Message {
	messages := make([]Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, history...)

	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == "user" && last.Content == userMessage {
			return messages
		}
	}
	return append(messages, Message{Role: "user", Content: userMessage})
}
