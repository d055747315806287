package storage

import (
	"supportchat-backend/internal/model"
)

// Storage 会话及消息记录的存储
// 实现必须并发安全，且不能返回内部消息切片的引用
type Storage interface {
	// 会话管理
	CreateSession(session *model.Session) error
	GetSession(sessionID string) (*model.Session, error)
	// UpdateSession 只更新会话字段，不动消息记录
	UpdateSession(session *model.Session) error
	DeleteSession(sessionID string) error
	// ListSessions 按创建顺序返回会话摘要
	ListSessions() ([]*model.Session, error)

	// 消息管理
	// AppendMessage 分配下一个序号并追加
	AppendMessage(sessionID string, message *model.Message) error
	GetMessages(sessionID string) ([]model.Message, error)

	// 存储管理
	Init() error
	Close() error
}
