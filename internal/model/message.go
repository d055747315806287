package model

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type MessageType string

const (
	TypeText   MessageType = "text"
	TypeSystem MessageType = "system"
	TypeError  MessageType = "error"
)

// Message 单条聊天消息，追加到会话时创建，之后不再修改
type Message struct {
	ID        int64       `json:"id"` // creation ordinal within the session
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Sender    Sender      `json:"sender"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// IsConversational 是否为普通对话消息（而不是转人工通知等系统消息）
func (m Message) IsConversational() bool {
	return m.Type == TypeText
}

// Before 按时间排序，时间相同时按序号
func (m Message) Before(other Message) bool {
	if m.Timestamp.Equal(other.Timestamp) {
		return m.ID < other.ID
	}
	return m.Timestamp.Before(other.Timestamp)
}
