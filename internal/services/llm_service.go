// internal/services/llm_service.go
package services

import (
	"sync"

	"github.com/Corphon/StoryForgeMCP/internal/config"
	apperrors "github.com/Corphon/StoryForgeMCP/internal/errors"
	"github.com/Corphon/StoryForgeMCP/internal/llm"
)

// LLMService 管理当前激活的LLM提供者。服务允许在未配置密钥的
// 状态下启动，此时生成接口返回明确的错误而不是崩溃；提供者
// 可以在运行时通过设置接口更换。
type LLMService struct {
	mu        sync.RWMutex
	cfg       *config.Config
	provider  llm.Provider
	lastError string
}

// LLMStatus 提供者的当前状态
type LLMStatus struct {
	Ready     bool     `json:"ready"`
	Provider  string   `json:"provider"`
	Name      string   `json:"name,omitempty"`
	Model     string   `json:"model,omitempty"`
	Models    []string `json:"models,omitempty"`
	Error     string   `json:"error,omitempty"`
	Available []string `json:"available"`
}

// NewLLMService 根据配置创建LLM服务。初始化失败（例如缺少密钥）
// 不是致命错误，服务以未就绪状态运行。
func NewLLMService(cfg *config.Config) *LLMService {
	s := &LLMService{cfg: cfg}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		s.lastError = err.Error()
		return s
	}
	s.provider = provider
	return s
}

// IsReady 检查当前是否有可用的提供者
func (s *LLMService) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider != nil
}

// Provider 返回当前提供者，未就绪时返回错误
func (s *LLMService) Provider() (llm.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.provider == nil {
		return nil, apperrors.NewProcessingError("AI服务未配置，请先在设置中配置提供者和密钥", nil)
	}
	return s.provider, nil
}

// Status 返回提供者状态，用于设置页展示
func (s *LLMService) Status() LLMStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := LLMStatus{
		Provider:  s.cfg.LLMProvider,
		Model:     s.cfg.LLMConfig["default_model"],
		Error:     s.lastError,
		Available: llm.ListProviders(),
	}
	if s.provider != nil {
		status.Ready = true
		status.Name = s.provider.GetName()
		status.Models = s.provider.GetSupportedModels()
	}
	return status
}

// UpdateSettings 切换提供者或更新其配置，成功后持久化设置。
// 新配置初始化失败时保留原提供者。
func (s *LLMService) UpdateSettings(providerName string, providerConfig map[string]string) error {
	if providerName == "" {
		return apperrors.NewValidationError("提供者名称不能为空", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]string, len(providerConfig)+2)
	// 同一提供者下未提供的字段沿用现有配置（例如只改模型不重填密钥）
	if providerName == s.cfg.LLMProvider {
		for k, v := range s.cfg.LLMConfig {
			merged[k] = v
		}
	}
	for k, v := range providerConfig {
		if v != "" {
			merged[k] = v
		}
	}

	provider, err := llm.GetProvider(providerName, merged)
	if err != nil {
		return apperrors.NewValidationError("提供者配置无效", err)
	}

	s.provider = provider
	s.lastError = ""
	s.cfg.LLMProvider = providerName
	s.cfg.LLMConfig = merged

	if err := s.cfg.Save(); err != nil {
		return apperrors.NewProcessingError("保存配置失败", err)
	}
	return nil
}
