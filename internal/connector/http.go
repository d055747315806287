package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 1 << 20

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response *string `json:"response"`
}

// HTTPConnector 向 {baseURL}/chat 发送 {"message": ...}
// 期望返回 {"response": ...}
type HTTPConnector struct {
	endpoint string
	client   *http.Client
}

func NewHTTPConnector(baseURL string, client *http.Client) *HTTPConnector {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPConnector{
		endpoint: strings.TrimRight(baseURL, "/") + "/chat",
		client:   client,
	}
}

func (c *HTTPConnector) Send(ctx context.Context, message string) (string, error) {
	payload, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return "", badResponse("marshal request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindNetworkFailure, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return "", badResponse("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(body).Decode(&decoded); err != nil {
		if isTimeout(err) {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", badResponse("decode response: %v", err)
	}

	if decoded.Response == nil || strings.TrimSpace(*decoded.Response) == "" {
		return "", badResponse("response text missing")
	}

	return *decoded.Response, nil
}
