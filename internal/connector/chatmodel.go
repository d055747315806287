package connector

import (
	"context"
	"strings"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelConnector 把用户消息作为单轮对话发给 eino 模型（Ark 豆包、通义千问等）
type ChatModelConnector struct {
	model        einoModel.BaseChatModel
	systemPrompt string
}

func NewChatModelConnector(model einoModel.BaseChatModel, systemPrompt string) *ChatModelConnector {
	return &ChatModelConnector{model: model, systemPrompt: systemPrompt}
}

func (c *ChatModelConnector) Send(ctx context.Context, message string) (string, error) {
	input := make([]*schema.Message, 0, 2)
	if c.systemPrompt != "" {
		input = append(input, schema.SystemMessage(c.systemPrompt))
	}
	input = append(input, schema.UserMessage(message))

	// 调用模型
	out, err := c.model.Generate(ctx, input)
	if err != nil {
		return "", classify(err)
	}

	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", badResponse("empty model reply")
	}

	return out.Content, nil
}
