// Package events 把会话状态变化（新消息、正在输入、后端可用性）推送给已连接的前端
package events

import (
	"context"
	"time"

	"supportchat-backend/pkg/logger"
)

type EventType string

const (
	EventMessage        EventType = "message"
	EventTyping         EventType = "typing"
	EventAvailability   EventType = "availability"
	EventSessionUpdated EventType = "session_updated"
)

type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type Publisher interface {
	Publish(event Event)
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Publish(Event) {}

// Subscriber 订阅单个会话的事件，SessionID 为空时订阅全部
// 没有会话ID的事件发给所有订阅者
type Subscriber struct {
	SessionID string
	send      chan Event
}

func (s *Subscriber) Events() <-chan Event {
	return s.send
}

func (s *Subscriber) wants(e Event) bool {
	return s.SessionID == "" || e.SessionID == "" || e.SessionID == s.SessionID
}

type Hub struct {
	subscribers map[*Subscriber]bool
	broadcast   chan Event
	register    chan *Subscriber
	unregister  chan *Subscriber
	done        chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		broadcast:   make(chan Event, 256),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		done:        make(chan struct{}),
	}
}

// Run 分发事件直到 ctx 取消，然后关闭所有订阅者
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for s := range h.subscribers {
				close(s.send)
				delete(h.subscribers, s)
			}
			return
		case s := <-h.register:
			h.subscribers[s] = true
			logger.Debugf("Event subscriber added (session=%q), total %d", s.SessionID, len(h.subscribers))
		case s := <-h.unregister:
			if _, ok := h.subscribers[s]; ok {
				delete(h.subscribers, s)
				close(s.send)
				logger.Debugf("Event subscriber removed (session=%q), total %d", s.SessionID, len(h.subscribers))
			}
		case e := <-h.broadcast:
			for s := range h.subscribers {
				if !s.wants(e) {
					continue
				}
				select {
				case s.send <- e:
				default:
					logger.Debugf("Dropping %s event for slow subscriber (session=%q)", e.Type, s.SessionID)
				}
			}
		}
	}
}

// Publish 不阻塞，队列已满或已停止时丢弃事件
func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- e:
	default:
		logger.Warnf("Event hub saturated, dropping %s event", e.Type)
	}
}

func (h *Hub) Subscribe(sessionID string) *Subscriber {
	s := &Subscriber{SessionID: sessionID, send: make(chan Event, 64)}
	select {
	case h.register <- s:
	case <-h.done:
		close(s.send)
	}
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}
