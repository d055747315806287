// Package handover 通知外部客服台有会话需要人工接入
package handover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"supportchat-backend/internal/config"
	"supportchat-backend/internal/model"
	"supportchat-backend/internal/utils"
)

const callName = "HandOverHuman"

type BaseRequest struct {
	Name        string `json:"Name"`
	SessionId   string `json:"SessionId"`
	RequestBody string `json:"RequestBody"`
}

type BaseResponse struct {
	BaseResp struct {
		StatusCode    int    `json:"StatusCode"`
		StatusMessage string `json:"StatusMessage"`
	} `json:"BaseResp"`
	Result interface{} `json:"Result"`
}

// handoverBody 序列化后放入 BaseRequest.RequestBody
type handoverBody struct {
	Title       string           `json:"Title"`
	Kind        model.Kind       `json:"Kind"`
	Status      model.Status     `json:"Status"`
	LastMessage string           `json:"LastMessage"`
	Transcript  []transcriptLine `json:"Transcript"`
}

type transcriptLine struct {
	Sender model.Sender `json:"Sender"`
	Text   string       `json:"Text"`
	Time   time.Time    `json:"Time"`
}

type Notifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// New 创建向 cfg.URL 发送通知的 notifier，URL 为空时 Notify 什么都不做
func New(cfg config.HandoverConfig) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		url:     cfg.URL,
		timeout: timeout,
		client:  utils.NewHTTPClient(timeout),
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

func (n *Notifier) Notify(ctx context.Context, session *model.Session) error {
	if !n.Enabled() || session == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	body := handoverBody{
		Title:       session.Title,
		Kind:        session.Kind,
		Status:      session.Status,
		LastMessage: session.LastMessage,
	}
	for _, m := range session.Messages {
		if m.IsConversational() {
			body.Transcript = append(body.Transcript, transcriptLine{Sender: m.Sender, Text: m.Text, Time: m.Timestamp})
		}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal handover body: %w", err)
	}

	_, err = n.call(ctx, BaseRequest{
		Name:        callName,
		SessionId:   session.ID,
		RequestBody: string(bodyBytes),
	})
	return err
}

func (n *Notifier) call(ctx context.Context, params BaseRequest) (*BaseResponse, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response BaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf("handover call failed: %s", response.BaseResp.StatusMessage)
	}

	return &response, nil
}
