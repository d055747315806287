package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type deadlineConnector struct {
	inner   Connector
	timeout time.Duration
}

// WithDeadline 限制每次 Send 的总耗时
// 超时后放弃内部调用，它之后的结果会被丢弃
// 空回复或内部 panic 都按失败返回
func WithDeadline(inner Connector, timeout time.Duration) Connector {
	return &deadlineConnector{inner: inner, timeout: timeout}
}

type sendResult struct {
	reply string
	err   error
}

func (d *deadlineConnector) Send(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// 带缓冲，被放弃的调用仍能写入并退出
	done := make(chan sendResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- sendResult{err: &Error{Kind: KindNetworkFailure, Err: fmt.Errorf("connector panic: %v", r)}}
			}
		}()
		reply, err := d.inner.Send(ctx, message)
		done <- sendResult{reply: reply, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", classify(r.err)
		}
		if strings.TrimSpace(r.reply) == "" {
			return "", badResponse("empty reply")
		}
		return r.reply, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Error{Kind: KindTimeout, Err: fmt.Errorf("no reply within %v", d.timeout)}
		}
		return "", &Error{Kind: KindNetworkFailure, Err: ctx.Err()}
	}
}
