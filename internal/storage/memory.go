package storage

import (
	"sync"

	"supportchat-backend/internal/model"
)

type MemoryStorage struct {
	sessions map[string]*model.Session
	order    []string // 按创建顺序
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*model.Session),
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) CreateSession(session *model.Session) error {
	if session == nil || session.ID == "" {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return ErrSessionExists
	}

	// 存副本，调用方之后的修改不影响存储
	m.sessions[session.ID] = session.Clone()
	m.order = append(m.order, session.ID)
	return nil
}

func (m *MemoryStorage) GetSession(sessionID string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	return session.Clone(), nil
}

func (m *MemoryStorage) UpdateSession(session *model.Session) error {
	if session == nil {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.sessions[session.ID]
	if !exists {
		return ErrSessionNotFound
	}

	updated := session.Summary()
	updated.Messages = stored.Messages
	m.sessions[session.ID] = updated
	return nil
}

func (m *MemoryStorage) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; !exists {
		return ErrSessionNotFound
	}

	delete(m.sessions, sessionID)
	for i, id := range m.order {
		if id == sessionID {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStorage) ListSessions() ([]*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*model.Session, 0, len(m.order))
	for _, id := range m.order {
		sessions = append(sessions, m.sessions[id].Summary())
	}

	return sessions, nil
}

func (m *MemoryStorage) AppendMessage(sessionID string, message *model.Message) error {
	if message == nil {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	message.ID = int64(len(session.Messages)) + 1
	message.SessionID = sessionID
	session.Messages = append(session.Messages, *message)
	return nil
}

func (m *MemoryStorage) GetMessages(sessionID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	return append([]model.Message(nil), session.Messages...), nil
}
