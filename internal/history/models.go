package history

import "time"

// Document type discriminators within the shared container.
const (
	TypeConversation = "conversation"
	TypeMessage      = "message"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Conversation struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Token          int       `json:"token,omitempty"`
	Feedback       string    `json:"feedback,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
