package connector

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConnector 把用户消息作为单轮 chat completions 请求发给 OpenAI 兼容后端
type OpenAIConnector struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

func NewOpenAIConnector(baseURL, apiKey, model, systemPrompt string, httpClient *http.Client) *OpenAIConnector {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}

	return &OpenAIConnector{
		client:       openai.NewClientWithConfig(clientConfig),
		model:        model,
		systemPrompt: systemPrompt,
	}
}

func (c *OpenAIConnector) Send(ctx context.Context, message string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", classifyOpenAI(err)
	}

	if len(resp.Choices) == 0 {
		return "", badResponse("no choices returned")
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", badResponse("empty completion")
	}

	return content, nil
}

func classifyOpenAI(err error) *Error {
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindBadResponse, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &Error{Kind: KindBadResponse, Err: err}
	}

	return classify(err)
}
