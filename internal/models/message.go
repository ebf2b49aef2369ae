package models

// ChatRole - роль сообщения в формате chat-completion API.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage - один элемент проекции роли, готовый к передаче в LLM.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
