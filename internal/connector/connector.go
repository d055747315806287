// Package connector 负责调用外部聊天后端
// 所有失败都以带 Kind 的 *Error 返回，调用方无需关心传输细节即可降级
package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Connector 每次调用发送一个请求并返回后端回复
type Connector interface {
	Send(ctx context.Context, message string) (string, error)
}

// Func 把函数适配为 Connector
type Func func(ctx context.Context, message string) (string, error)

func (f Func) Send(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindNetworkFailure Kind = "network_failure"
	KindBadResponse    Kind = "bad_response"
)

type Error struct {
	Kind Kind
	Err  error
}

var (
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrNetworkFailure = &Error{Kind: KindNetworkFailure}
	ErrBadResponse    = &Error{Kind: KindBadResponse}
)

func (e *Error) Error() string {
	if e.Err == nil {
		return "backend " + string(e.Kind)
	}
	return fmt.Sprintf("backend %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类 *Error 视为相等，errors.Is(err, ErrTimeout) 不受内部原因影响
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func badResponse(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadResponse, Err: fmt.Errorf(format, args...)}
}

// KindOf 返回错误类型，err 为 nil 或不是 *Error 时返回空
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// classify 把任意错误转换为 *Error
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetworkFailure, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
