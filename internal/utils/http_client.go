package utils

import (
	"net/http"
	"time"
)

// NewHTTPClient 创建调用后端用的HTTP客户端
// timeout 只是传输层上限，每次调用仍由 context 控制
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
