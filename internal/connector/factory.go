package connector

import (
	"context"
	"fmt"
	"net/http"

	"supportchat-backend/internal/config"
	"supportchat-backend/internal/utils"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
)

// New 按配置创建连接器，已带 cfg.Timeout 超时
func New(ctx context.Context, cfg config.BackendConfig) (Connector, error) {
	client := utils.NewHTTPClient(cfg.Timeout)

	var inner Connector
	switch cfg.Provider {
	case config.ProviderHTTP, "":
		inner = NewHTTPConnector(cfg.URL, client)
	case config.ProviderOpenAI:
		inner = NewOpenAIConnector(cfg.URL, cfg.APIKey, cfg.Model, cfg.SystemPrompt, client)
	case config.ProviderDoubao:
		chatModel, err := newDoubaoModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		inner = NewChatModelConnector(chatModel, cfg.SystemPrompt)
	case config.ProviderQwen:
		chatModel, err := newQwenModel(ctx, cfg, client)
		if err != nil {
			return nil, err
		}
		inner = NewChatModelConnector(chatModel, cfg.SystemPrompt)
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}

	return WithDeadline(inner, cfg.Timeout), nil
}

// newDoubaoModel 创建豆包模型
func newDoubaoModel(ctx context.Context, cfg config.BackendConfig) (*ark.ChatModel, error) {
	arkConfig := &ark.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	}
	// 为空时使用 Ark 默认地址
	if cfg.URL != "" {
		arkConfig.BaseURL = cfg.URL
	}

	chatModel, err := ark.NewChatModel(ctx, arkConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Doubao model: %w", err)
	}
	return chatModel, nil
}

// newQwenModel 创建通义千问模型
func newQwenModel(ctx context.Context, cfg config.BackendConfig, client *http.Client) (*qwen.ChatModel, error) {
	qwenConfig := &qwen.ChatModelConfig{
		BaseURL:    cfg.URL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		HTTPClient: client,
	}
	if cfg.MaxTokens > 0 {
		qwenConfig.MaxTokens = &cfg.MaxTokens
	}
	if cfg.Temperature > 0 {
		qwenConfig.Temperature = &cfg.Temperature
	}
	if cfg.TopP > 0 {
		qwenConfig.TopP = &cfg.TopP
	}

	chatModel, err := qwen.NewChatModel(ctx, qwenConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Qwen model: %w", err)
	}
	return chatModel, nil
}
