package assistant

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"ragchat/internal/models"
)

// SystemPrompt opens every assembled message list. Never persisted.
const SystemPrompt = "You are a helpful assistant. Keep your responses concise and friendly."

// retrievalContextLabel introduces fragments merged into the system turn.
// Retrieval context is request-scoped only; it is never stored with a turn.
const retrievalContextLabel = "\n\nContext from uploaded documents:\n"

// assembleMessages builds the ordered message list for one turn. It is a
// pure function of the system prompt, the retrieved fragments, the persisted
// history, and the new user message.
func assembleMessages(systemPrompt string, fragments []string, history []*models.Message, userMessage string) []*schema.Message {
	system := systemPrompt
	if len(fragments) > 0 {
		system += retrievalContextLabel + strings.Join(fragments, "\n\n")
	}

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, &schema.Message{Role: schema.System, Content: system})
	for _, msg := range history {
		role := schema.Assistant
		if msg.Role == models.RoleUser {
			role = schema.User
		}
		messages = append(messages, &schema.Message{Role: role, Content: msg.Content})
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: userMessage})
	return messages
}
