package connector

import (
	"sync"
	"time"

	"supportchat-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Availability 记录最近一次完成的后端调用是否成功
// 初始为可用，只根据调用结果更新，不主动探测后端，仅供参考
type Availability struct {
	// notifyMu 串行化整个 Observe，监听者按记录顺序收到变化
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	available bool
	changedAt time.Time
	onChange  []func(available bool)
}

func NewAvailability() *Availability {
	return &Availability{available: true}
}

// OnChange 注册状态变化回调
// fn 内不能调用 Observe
func (a *Availability) OnChange(fn func(available bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = append(a.onChange, fn)
}

// Observe 记录一次调用结果，nil 表示后端已回复
// 以最后一次为准，返回值表示状态是否变化
func (a *Availability) Observe(err error) bool {
	available := err == nil

	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	changed := a.available != available
	a.available = available
	if changed {
		a.changedAt = time.Now()
	}
	listeners := append([]func(bool){}, a.onChange...)
	a.mu.Unlock()

	if !changed {
		return false
	}

	entry := logger.WithFields(logrus.Fields{"available": available})
	if available {
		entry.Info("chat backend reachable again")
	} else {
		entry.WithField("kind", KindOf(err)).Warn("chat backend unavailable, running in offline mode")
	}

	for _, fn := range listeners {
		fn(available)
	}
	return true
}

func (a *Availability) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.available
}

// ChangedAt 最近一次状态变化的时间，从未变化时为零值
func (a *Availability) ChangedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.changedAt
}
