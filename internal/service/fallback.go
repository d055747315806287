package service

import (
	"math/rand/v2"
	"slices"
)

// DefaultFallbackResponses 后端无法回复时使用的离线回复
var DefaultFallbackResponses = []string{
	"Thank you for your message! I'm currently in offline mode, but I'm here to help with basic questions about OHHO Software.",
	"I understand you need assistance. While our backend service is temporarily unavailable, I can provide general information about our services.",
	"That's a great question! Although I'm running in local mode right now, I'd be happy to help with general inquiries about OHHO Software.",
	"I appreciate your patience. Our chat service is currently in offline mode, but I can still assist with basic support questions.",
	"Thanks for reaching out! While our main chat service is temporarily unavailable, I'm here to provide general assistance.",
}

// FallbackResponder 随机选择离线回复，调用之间无状态
type FallbackResponder struct {
	pool []string
	pick func(n int) int // 测试可替换
}

func NewFallbackResponder(responses []string) *FallbackResponder {
	// 过滤空字符串，全部为空时使用默认回复
	pool := make([]string, 0, len(responses))
	for _, r := range responses {
		if r != "" {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		pool = append(pool, DefaultFallbackResponses...)
	}

	return &FallbackResponder{pool: pool, pick: rand.IntN}
}

// Respond 均匀随机返回一条回复，允许重复
func (f *FallbackResponder) Respond() string {
	return f.pool[f.pick(len(f.pool))]
}

func (f *FallbackResponder) Contains(text string) bool {
	return slices.Contains(f.pool, text)
}
