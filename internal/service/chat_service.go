package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"supportchat-backend/internal/config"
	"supportchat-backend/internal/connector"
	"supportchat-backend/internal/events"
	"supportchat-backend/internal/handover"
	"supportchat-backend/internal/model"
	"supportchat-backend/internal/storage"
	"supportchat-backend/pkg/logger"
)

// HandoverNotifier 在会话转人工时通知客服台
type HandoverNotifier interface {
	Notify(ctx context.Context, session *model.Session) error
}

// Dependencies 可替换的依赖，nil 字段按配置创建
type Dependencies struct {
	Storage      storage.Storage
	Connector    connector.Connector
	Availability *connector.Availability
	Publisher    events.Publisher
	Notifier     HandoverNotifier
}

// ChatService 会话服务，管理会话生命周期和每个会话的回复编排
type ChatService struct {
	registry     *Registry
	storage      storage.Storage
	connector    connector.Connector
	availability *connector.Availability
	fallback     *FallbackResponder
	exporter     *storage.Exporter
	notifier     HandoverNotifier
	publisher    events.Publisher

	chat        config.ChatConfig
	session     config.SessionConfig
	typingDelay time.Duration

	mu            sync.Mutex // 保护 orchestrators
	orchestrators map[string]*Orchestrator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChatService 创建会话服务
func NewChatService(cfg *config.Config, deps Dependencies) (*ChatService, error) {
	// 初始化存储
	store := deps.Storage
	if store == nil {
		store = storage.NewMemoryStorage()
	}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// 初始化模型连接器，已带超时
	conn := deps.Connector
	if conn == nil {
		var err error
		if conn, err = connector.New(context.Background(), cfg.Backend); err != nil {
			return nil, err
		}
	}

	exporter := storage.NewExporter(cfg.Export.Format, cfg.Export.Dir)
	if err := exporter.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize exporter: %w", err)
	}

	availability := deps.Availability
	if availability == nil {
		availability = connector.NewAvailability()
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	var notifier HandoverNotifier = deps.Notifier
	if notifier == nil {
		notifier = handover.New(cfg.Handover)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ChatService{
		registry:      NewRegistry(store, publisher, cfg.Chat.DefaultTitle),
		storage:       store,
		connector:     conn,
		availability:  availability,
		fallback:      NewFallbackResponder(cfg.Fallback.Responses),
		exporter:      exporter,
		notifier:      notifier,
		publisher:     publisher,
		chat:          cfg.Chat,
		session:       cfg.Session,
		typingDelay:   cfg.Typing.Delay,
		orchestrators: make(map[string]*Orchestrator),
		ctx:           ctx,
		cancel:        cancel,
	}

	// 后端可用性变化时广播给所有客户端
	availability.OnChange(func(available bool) {
		publisher.Publish(events.Event{
			Type:      events.EventAvailability,
			Payload:   available,
			Timestamp: time.Now(),
		})
	})

	// 启动清理goroutine，间隔或TTL为0表示不清理
	if s.session.CleanupInterval > 0 && s.session.TTL > 0 {
		s.wg.Add(1)
		go s.cleanupOldSessions()
	}

	return s, nil
}

// StartNewChat 新建进行中的会话，写入欢迎语并设为当前会话
func (s *ChatService) StartNewChat(title string, kind model.Kind) (*model.Session, error) {
	session, err := s.registry.Create(title, kind, model.StatusActive)
	if err != nil {
		return nil, err
	}

	// 欢迎语
	if s.chat.Greeting != "" {
		if _, err := s.registry.Append(session.ID, model.SenderBot, model.TypeSystem, s.chat.Greeting); err != nil {
			return nil, err
		}
	}

	if err := s.registry.Select(session.ID); err != nil {
		return nil, err
	}

	logger.Infof("Started new chat %s", session.ID)
	return s.registry.Get(session.ID)
}

// OpenSession 新建等待客服接入的会话
func (s *ChatService) OpenSession(title string, kind model.Kind) (*model.Session, error) {
	return s.registry.Create(title, kind, model.StatusPending)
}

// PickUp 客服接入等待中的会话
func (s *ChatService) PickUp(sessionID string) (*model.Session, error) {
	if _, err := s.registry.Transition(sessionID, model.StatusActive); err != nil {
		return nil, err
	}
	if err := s.appendSystem(sessionID, s.chat.PickupMessage); err != nil {
		return nil, err
	}
	return s.registry.Get(sessionID)
}

// Submit 在指定会话中发送消息
// 返回 false 表示消息被忽略：空白输入，或上一条回复还未完成
func (s *ChatService) Submit(sessionID, text string) (*Exchange, bool, error) {
	if _, err := s.registry.Get(sessionID); err != nil {
		return nil, false, err
	}

	o, err := s.orchestrator(sessionID)
	if err != nil {
		return nil, false, err
	}

	ex, ok := o.Submit(text)
	return ex, ok, nil
}

// TransferToHuman 转人工并在后台通知客服台
// 转人工后会话仍可继续发消息
func (s *ChatService) TransferToHuman(sessionID string) (*model.Session, error) {
	if _, err := s.registry.Transition(sessionID, model.StatusEscalated); err != nil {
		return nil, err
	}
	if err := s.appendSystem(sessionID, s.chat.TransferMessage); err != nil {
		return nil, err
	}

	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	// 后台通知，服务已关闭则跳过
	snapshot := session.Clone()
	started := s.goTracked(func() {
		if err := s.notifier.Notify(s.ctx, snapshot); err != nil {
			logger.Errorf("Failed to notify helpdesk about session %s: %v", snapshot.ID, err)
		}
	})
	if !started {
		logger.Warnf("Chat service closed, helpdesk not notified about session %s", sessionID)
	}

	logger.Infof("Session %s transferred to a human agent", sessionID)
	return session, nil
}

// EndSession 结束会话，丢弃未完成的回复
func (s *ChatService) EndSession(sessionID string) (*model.Session, error) {
	if _, err := s.registry.Transition(sessionID, model.StatusResolved); err != nil {
		return nil, err
	}

	// 先关闭编排器，迟到的回复不会写在归档消息之后
	s.closeOrchestrator(sessionID)

	if err := s.appendSystem(sessionID, s.chat.EndMessage); err != nil {
		return nil, err
	}

	logger.Infof("Session %s archived", sessionID)
	return s.registry.Get(sessionID)
}

func (s *ChatService) Select(sessionID string) error {
	return s.registry.Select(sessionID)
}

func (s *ChatService) Selected() string {
	return s.registry.Selected()
}

func (s *ChatService) ListSessions(query string) ([]*model.Session, error) {
	return s.registry.List(query)
}

func (s *ChatService) GetSession(sessionID string) (*model.Session, error) {
	return s.registry.Get(sessionID)
}

func (s *ChatService) Messages(sessionID string) ([]model.Message, error) {
	return s.registry.Messages(sessionID)
}

func (s *ChatService) IsTyping(sessionID string) bool {
	s.mu.Lock()
	o, ok := s.orchestrators[sessionID]
	s.mu.Unlock()
	return ok && o.IsTyping()
}

// BackendAvailable 最近一次后端调用是否成功，仅供展示，不影响发送
func (s *ChatService) BackendAvailable() bool {
	return s.availability.Available()
}

func (s *ChatService) QuickReplies() []string {
	return append([]string(nil), s.chat.QuickReplies...)
}

// Export 导出会话内容供下载
func (s *ChatService) Export(sessionID string) (string, []byte, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return "", nil, err
	}
	return s.exporter.Export(session)
}

// Describe 构建会话的接口视图
func (s *ChatService) Describe(session *model.Session) model.SessionResponse {
	// 列表里的会话不带消息，需要单独统计
	count := len(session.Messages)
	if session.Messages == nil {
		if messages, err := s.registry.Messages(session.ID); err == nil {
			count = len(messages)
		}
	}

	return model.SessionResponse{
		SessionID:        session.ID,
		Title:            session.Title,
		Kind:             session.Kind,
		Status:           session.Status,
		LastMessage:      session.LastMessage,
		Timestamp:        session.Timestamp,
		UnreadCount:      session.UnreadCount,
		MessageCount:     count,
		Selected:         session.ID == s.registry.Selected(),
		IsTyping:         s.IsTyping(session.ID),
		BackendAvailable: s.availability.Available(),
		CreatedAt:        session.CreatedAt,
		UpdatedAt:        session.UpdatedAt,
	}
}

// Close 停止后台任务并丢弃所有未完成的回复
func (s *ChatService) Close() error {
	s.cancel()

	s.mu.Lock()
	orchestrators := s.orchestrators
	s.orchestrators = make(map[string]*Orchestrator)
	s.mu.Unlock()

	for _, o := range orchestrators {
		o.Close()
	}
	s.wg.Wait()

	return s.storage.Close()
}

// goTracked 在 Close 会等待的 goroutine 中运行 fn
// 服务已关闭时不运行并返回 false
func (s *ChatService) goTracked(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 在锁内检查，保证 wg.Add 不会和 Close 里的 wg.Wait 并发
	if s.ctx.Err() != nil {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// orchestrator 获取或创建会话的编排器
func (s *ChatService) orchestrator(sessionID string) (*Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, errors.New("chat service is closed")
	}

	if o, ok := s.orchestrators[sessionID]; ok {
		return o, nil
	}

	o := NewOrchestrator(
		sessionID,
		s.registry,
		s.connector,
		s.availability,
		s.fallback,
		NewTypingCoordinator(sessionID, s.typingDelay, s.publisher),
	)
	s.orchestrators[sessionID] = o
	return o, nil
}

func (s *ChatService) closeOrchestrator(sessionID string) {
	s.mu.Lock()
	o, ok := s.orchestrators[sessionID]
	delete(s.orchestrators, sessionID)
	s.mu.Unlock()

	if ok {
		o.Close()
	}
}

// appendSystem 追加系统消息，文本为空时跳过
func (s *ChatService) appendSystem(sessionID, text string) error {
	if text == "" {
		return nil
	}
	_, err := s.registry.Append(sessionID, model.SenderBot, model.TypeSystem, text)
	return err
}

// cleanupOldSessions 定期清理过期会话
func (s *ChatService) cleanupOldSessions() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.session.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpired(time.Now())
		}
	}
}

// cleanupExpired 删除已结束且超过TTL未更新的会话，返回删除数量
// 当前选中的会话不删除
func (s *ChatService) cleanupExpired(now time.Time) int {
	sessions, err := s.registry.List("")
	if err != nil {
		logger.Errorf("Failed to list sessions for cleanup: %v", err)
		return 0
	}

	cutoff := now.Add(-s.session.TTL)
	selected := s.registry.Selected()
	removed := 0
	for _, session := range sessions {
		if !session.Status.Terminal() || session.ID == selected || !session.UpdatedAt.Before(cutoff) {
			continue
		}

		s.closeOrchestrator(session.ID)
		if err := s.registry.Delete(session.ID); err != nil {
			logger.Errorf("Failed to delete expired session %s: %v", session.ID, err)
			continue
		}
		removed++
		logger.Infof("Cleaned up expired session: %s", session.ID)
	}
	return removed
}
