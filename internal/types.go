package internal

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Lang is a supported UI language.
type Lang string

const (
	LangEN Lang = "en"
	LangAR Lang = "ar"
)

type ActionType string

const ActionNavigate ActionType = "navigate"

// Action is an optional hint attached to a bot reply.
type Action struct {
	Type  ActionType `json:"type"`
	Path  string     `json:"path"`
	Label string     `json:"label,omitempty"`
}

// BotReply is produced by either resolver and never modified afterwards.
type BotReply struct {
	Text   string  `json:"text"`
	Action *Action `json:"action"`
}

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Action    *Action   `json:"action,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatHistory struct {
	Messages []Message `json:"messages"`
}

type CreateSessionRequest struct {
	Lang string `json:"lang"`
}

type CreateSessionResponse struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	Lang        Lang      `json:"lang"`
	Messages    []Message `json:"messages"`
	Suggestions []string  `json:"suggestions"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type SendMessageResponse struct {
	Reply   BotReply `json:"reply"`
	Message Message  `json:"message"`
	Model   string   `json:"model"`
}

type SetLangRequest struct {
	Lang string `json:"lang"`
}

type DispatchRequest struct {
	Type ActionType `json:"type"`
	Path string     `json:"path"`
}
