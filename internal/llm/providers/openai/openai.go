// internal/llm/providers/openai/openai.go
package openai

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Corphon/StoryForgeMCP/internal/llm"
)

func init() {
	llm.Register("openai", func() llm.Provider {
		return &Provider{
			recommendedModels: []string{
				"gpt-4o",
				"gpt-4o-mini",
			},
		}
	})
}

// Provider 基于官方SDK实现，不像其他提供者那样手写SSE解析
type Provider struct {
	client            sdk.Client
	defaultModel      string
	recommendedModels []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("openai api密钥未提供")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	p.client = sdk.NewClient(opts...)

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gpt-4o-mini"
	}

	return nil
}

func (p *Provider) GetName() string {
	return "OpenAI"
}

func (p *Provider) GetSupportedModels() []string {
	return p.recommendedModels
}

func (p *Provider) buildParams(req llm.CompletionRequest) sdk.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, sdk.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.History {
		if msg.Role == llm.RoleAssistant {
			messages = append(messages, sdk.AssistantMessage(msg.Content))
		} else {
			messages = append(messages, sdk.UserMessage(msg.Content))
		}
	}
	messages = append(messages, sdk.UserMessage(req.Prompt))

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	return params
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	completion, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, err
	}

	if len(completion.Choices) == 0 {
		return nil, errors.New("openai未返回文本内容")
	}

	choice := completion.Choices[0]
	return &llm.CompletionResponse{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		TokensUsed:   int(completion.Usage.TotalTokens),
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

// StreamCompletion 实现流式响应
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))

	respChan := make(chan llm.StreamResponse)

	go func() {
		defer stream.Close()
		defer close(respChan)

		// 消费方取消后不再接收，发送必须同时等待上下文结束
		send := func(resp llm.StreamResponse) bool {
			select {
			case respChan <- resp:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var contentBuffer strings.Builder
		finishReason := "stop"

		for stream.Next() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				contentBuffer.WriteString(choice.Delta.Content)
				if !send(llm.StreamResponse{Text: choice.Delta.Content}) {
					return
				}
			}
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}

		if stream.Err() != nil && ctx.Err() != nil {
			return
		}

		send(llm.StreamResponse{
			Text:         contentBuffer.String(),
			FinishReason: finishReason,
			Done:         true,
		})
	}()

	return respChan, nil
}
