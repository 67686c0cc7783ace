// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
)

var ErrUnknownProvider = errors.New("未知的AI提供者")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 一轮对话消息，用于回放头脑风暴会话的历史
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest 请求参数标准化
type CompletionRequest struct {
	Prompt       string    `json:"prompt"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	History      []Message `json:"history,omitempty"` // 之前的对话轮次，从旧到新
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float32   `json:"temperature,omitempty"`
	Model        string    `json:"model,omitempty"`
	Stream       bool      `json:"stream,omitempty"`
}

// CompletionResponse 响应结构标准化
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// StreamResponse 流式响应的单个片段。Done=true 的终结片段中
// Text 可能携带完整的累积文本，也可能为空——调用方（agent 适配层）
// 负责按已转发长度去重，不能假设两者只出现其一。
type StreamResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	Done         bool   `json:"done"`
}

// Provider 定义所有LLM提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 获取支持的模型列表
	GetSupportedModels() []string

	// 文本生成
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// 流式响应生成
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan StreamResponse, error)
}

// ProviderFactory 提供者工厂函数类型
type ProviderFactory func() Provider

var providers = make(map[string]ProviderFactory)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}
	return provider, nil
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
