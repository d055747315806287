package model

import "time"

type SubmitResponse struct {
	Accepted    bool     `json:"accepted"`
	UserMessage *Message `json:"user_message,omitempty"`
	BotMessage  *Message `json:"bot_message,omitempty"`
	Pending     bool     `json:"pending,omitempty"` // reply still being prepared
}

type SessionResponse struct {
	SessionID        string    `json:"session_id"`
	Title            string    `json:"title"`
	Kind             Kind      `json:"kind"`
	Status           Status    `json:"status"`
	LastMessage      string    `json:"last_message"`
	Timestamp        time.Time `json:"timestamp"`
	UnreadCount      int       `json:"unread_count"`
	MessageCount     int       `json:"message_count"`
	Selected         bool      `json:"selected"`
	IsTyping         bool      `json:"is_typing"`
	BackendAvailable bool      `json:"backend_available"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
