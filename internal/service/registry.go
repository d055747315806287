package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"supportchat-backend/internal/events"
	"supportchat-backend/internal/model"
	"supportchat-backend/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSessionSelected   = errors.New("session is currently selected")
)

// 自动标题的最大字符数
const titleMaxRunes = 30

// Registry 会话列表、当前选中会话以及每个会话的侧边栏摘要
// 所有修改都在锁内完成，摘要始终与消息记录一致
type Registry struct {
	store        storage.Storage
	publisher    events.Publisher
	defaultTitle string
	now          func() time.Time

	mu       sync.Mutex
	selected string // 当前选中的会话ID
}

// NewRegistry 创建会话注册表
func NewRegistry(store storage.Storage, publisher events.Publisher, defaultTitle string) *Registry {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if defaultTitle == "" {
		defaultTitle = "New Chat"
	}
	return &Registry{
		store:        store,
		publisher:    publisher,
		defaultTitle: defaultTitle,
		now:          time.Now,
	}
}

// Create 创建会话，标题为空时使用默认标题
func (r *Registry) Create(title string, kind model.Kind, status model.Status) (*model.Session, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", storage.ErrInvalidData, status)
	}
	if strings.TrimSpace(title) == "" {
		title = r.defaultTitle
	}
	if kind == "" {
		kind = model.KindSupport
	}

	now := r.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		Title:     title,
		Kind:      kind,
		Status:    status,
		Messages:  make([]model.Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.publishSession(session)
	return session.Clone(), nil
}

// Get 获取会话（含消息）
func (r *Registry) Get(id string) (*model.Session, error) {
	session, err := r.store.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return session, nil
}

func (r *Registry) Messages(id string) ([]model.Message, error) {
	messages, err := r.store.GetMessages(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages of %s: %w", id, err)
	}
	return messages, nil
}

// List 返回标题或最后一条消息包含 query 的会话（忽略大小写）
// query 为空时返回全部
func (r *Registry) List(query string) ([]*model.Session, error) {
	sessions, err := r.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return sessions, nil
	}

	matched := make([]*model.Session, 0, len(sessions))
	for _, s := range sessions {
		if strings.Contains(strings.ToLower(s.Title), query) ||
			strings.Contains(strings.ToLower(s.LastMessage), query) {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

// Select 选中会话并清零未读数
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, err := r.store.GetSession(id)
	if err != nil {
		return fmt.Errorf("failed to select session %s: %w", id, err)
	}

	r.selected = id
	if session.UnreadCount == 0 {
		return nil
	}

	session.UnreadCount = 0
	if err := r.store.UpdateSession(session); err != nil {
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	r.publishSession(session)
	return nil
}

func (r *Registry) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Append 追加消息并刷新会话摘要
func (r *Registry) Append(id string, sender model.Sender, typ model.MessageType, text string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := &model.Message{
		Text:      text,
		Sender:    sender,
		Type:      typ,
		Timestamp: r.now(),
	}
	if err := r.store.AppendMessage(id, msg); err != nil {
		return nil, fmt.Errorf("failed to append message to %s: %w", id, err)
	}

	if err := r.upsertSummary(id, *msg); err != nil {
		return nil, err
	}

	r.publisher.Publish(events.Event{
		Type:      events.EventMessage,
		SessionID: id,
		Payload:   *msg,
		Timestamp: msg.Timestamp,
	})
	return msg, nil
}

// UpsertSummary 把 msg 记为会话最新消息
// 非当前选中的会话未读数加一
func (r *Registry) UpsertSummary(id string, msg model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsertSummary(id, msg)
}

func (r *Registry) upsertSummary(id string, msg model.Message) error {
	session, err := r.store.GetSession(id)
	if err != nil {
		return fmt.Errorf("failed to get session %s: %w", id, err)
	}

	session.LastMessage = msg.Text
	session.Timestamp = msg.Timestamp
	session.UpdatedAt = r.now()
	if id != r.selected {
		session.UnreadCount++
	}

	// 用户第一条消息作为标题
	if msg.Sender == model.SenderUser && msg.IsConversational() && session.Title == r.defaultTitle {
		session.Title = truncateRunes(msg.Text, titleMaxRunes)
	}

	if err := r.store.UpdateSession(session); err != nil {
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}

	r.publishSession(session)
	return nil
}

// Transition 切换会话状态
// 非法切换返回 ErrInvalidTransition，会话保持不变
func (r *Registry) Transition(id string, to model.Status) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, err := r.store.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	if !session.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.Status, to)
	}

	session.Status = to
	session.UpdatedAt = r.now()
	if err := r.store.UpdateSession(session); err != nil {
		return nil, fmt.Errorf("failed to update session %s: %w", id, err)
	}

	r.publishSession(session)
	return session, nil
}

// Delete 删除会话，当前选中的会话不能删除
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == r.selected {
		return ErrSessionSelected
	}
	if err := r.store.DeleteSession(id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (r *Registry) publishSession(session *model.Session) {
	r.publisher.Publish(events.Event{
		Type:      events.EventSessionUpdated,
		SessionID: session.ID,
		Payload:   session.Summary(),
		Timestamp: r.now(),
	})
}

// truncateRunes 按字符截断，超长时追加省略号
func truncateRunes(str string, maxLen int) string {
	runes := []rune(str)
	if len(runes) <= maxLen {
		return str
	}
	return string(runes[:maxLen]) + "..."
}
