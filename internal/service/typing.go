package service

import (
	"context"
	"sync"
	"time"

	"supportchat-backend/internal/events"
)

// TypingCoordinator 单个会话的"正在输入"状态
// Begin 置位，随后的 Schedule 恰好清除一次
type TypingCoordinator struct {
	sessionID string
	delay     time.Duration
	publisher events.Publisher

	mu     sync.Mutex
	typing bool
}

// NewTypingCoordinator 创建输入状态协调器
func NewTypingCoordinator(sessionID string, delay time.Duration, publisher events.Publisher) *TypingCoordinator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TypingCoordinator{
		sessionID: sessionID,
		delay:     delay,
		publisher: publisher,
	}
}

func (t *TypingCoordinator) Begin() {
	t.set(true)
}

// Schedule 等待展示延迟后执行 deliver，然后清除输入状态
// ctx 先结束时跳过 deliver 并返回 false
func (t *TypingCoordinator) Schedule(ctx context.Context, deliver func()) bool {
	defer t.set(false)

	if t.delay > 0 {
		timer := time.NewTimer(t.delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return false
		}
	} else if ctx.Err() != nil {
		return false
	}

	deliver()
	return true
}

func (t *TypingCoordinator) IsTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

// set 更新状态，变化时广播
func (t *TypingCoordinator) set(typing bool) {
	t.mu.Lock()
	changed := t.typing != typing
	t.typing = typing
	t.mu.Unlock()

	if changed {
		t.publisher.Publish(events.Event{
			Type:      events.EventTyping,
			SessionID: t.sessionID,
			Payload:   typing,
			Timestamp: time.Now(),
		})
	}
}
