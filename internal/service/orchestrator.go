package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"supportchat-backend/internal/connector"
	"supportchat-backend/internal/model"
	"supportchat-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Exchange 一条用户消息及其后的机器人回复
type Exchange struct {
	User model.Message

	done chan struct{}
	bot  *model.Message
}

// Done 本轮结束后关闭，无论是否有回复
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Wait 等待回复写入
// ctx 先结束，或回复写入前会话已关闭时返回 false
func (e *Exchange) Wait(ctx context.Context) (model.Message, bool) {
	select {
	case <-e.done:
		if e.bot == nil {
			return model.Message{}, false
		}
		return *e.bot, true
	case <-ctx.Done():
		return model.Message{}, false
	}
}

// Orchestrator 单个会话的发送-回复流程
// 同一时间最多一条消息在等待回复
type Orchestrator struct {
	sessionID    string
	registry     *Registry
	connector    connector.Connector
	availability *connector.Availability
	fallback     *FallbackResponder
	typing       *TypingCoordinator

	ctx      context.Context
	cancel   context.CancelFunc
	inFlight atomic.Bool // 是否有消息在等待回复
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewOrchestrator 创建会话编排器
func NewOrchestrator(
	sessionID string,
	registry *Registry,
	conn connector.Connector,
	availability *connector.Availability,
	fallback *FallbackResponder,
	typing *TypingCoordinator,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		sessionID:    sessionID,
		registry:     registry,
		connector:    conn,
		availability: availability,
		fallback:     fallback,
		typing:       typing,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Submit 追加用户消息并开始获取回复
// 空白输入、已有消息在等待回复、编排器已关闭时忽略并返回 false
func (o *Orchestrator) Submit(text string) (*Exchange, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, false
	}
	// 抢占发送权
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, false
	}

	user, err := o.registry.Append(o.sessionID, model.SenderUser, model.TypeText, text)
	if err != nil {
		o.inFlight.Store(false)
		logger.Errorf("Failed to append user message to %s: %v", o.sessionID, err)
		return nil, false
	}

	// 显示正在输入
	o.typing.Begin()

	ex := &Exchange{User: *user, done: make(chan struct{})}
	o.wg.Add(1)
	go o.respond(ex, text)

	return ex, true
}

// respond 调用后端获取回复，失败时使用离线回复
func (o *Orchestrator) respond(ex *Exchange, text string) {
	defer o.wg.Done()
	defer close(ex.done)
	defer o.inFlight.Store(false)

	reply, err := o.connector.Send(o.ctx, text)
	if o.ctx.Err() != nil {
		// 调用中途被关闭：不写回复，也不更新可用性
		o.typing.Schedule(o.ctx, func() {})
		return
	}

	// 只根据调用结果更新可用性
	o.availability.Observe(err)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"session_id": o.sessionID,
			"kind":       connector.KindOf(err),
		}).Warnf("Chat backend unavailable, using fallback reply: %v", err)
		reply = o.fallback.Respond()
	}

	// 输入延迟后写入回复
	o.typing.Schedule(o.ctx, func() {
		msg, err := o.registry.Append(o.sessionID, model.SenderBot, model.TypeText, reply)
		if err != nil {
			logger.Errorf("Failed to append reply to %s: %v", o.sessionID, err)
			return
		}
		ex.bot = msg
	})
}

// AppendSystem 追加系统消息
// 不受发送锁限制，也不调用后端
func (o *Orchestrator) AppendSystem(text string) (*model.Message, error) {
	return o.registry.Append(o.sessionID, model.SenderBot, model.TypeSystem, text)
}

func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

func (o *Orchestrator) IsTyping() bool {
	return o.typing.IsTyping()
}

// Close 放弃未完成的回复
// 等待后台任务释放发送锁并清除输入状态
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.cancel()
	o.mu.Unlock()

	o.wg.Wait()
}
