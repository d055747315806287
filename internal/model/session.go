package model

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
)

// transitions 允许的状态切换，resolved 和 escalated 不能再切换
var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusEscalated},
	StatusActive:  {StatusResolved, StatusEscalated},
}

// CanTransition 是否允许从 s 切换到 next
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusEscalated
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusResolved, StatusEscalated:
		return true
	}
	return false
}

type Kind string

const (
	KindSupport   Kind = "support"
	KindFeedback  Kind = "feedback"
	KindTechnical Kind = "technical"
)

type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Kind        Kind      `json:"kind"`
	Status      Status    `json:"status"`
	Messages    []Message `json:"messages"`
	LastMessage string    `json:"last_message"`
	Timestamp   time.Time `json:"timestamp"` // time of the last message
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone 深拷贝，调用方不能修改存储中的消息记录
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	return &c
}

// Summary 不含消息列表的会话摘要，用于侧边栏
func (s *Session) Summary() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = nil
	return &c
}
