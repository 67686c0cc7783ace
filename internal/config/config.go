// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置。进程启动时构造一次，显式传递给需要它的组件，
// 不提供进程级的全局缓存。
type Config struct {
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 共享访问令牌，为空时关闭鉴权（本地开发）
	AuthToken string `json:"-"`

	// 单次生成调用的总时长上限。整章生成是分钟级的长操作，
	// 超时视为失败而不是静默截断。
	GenerateTimeout time.Duration `json:"-"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`
}

// Load 从环境变量（含可选的.env文件）加载配置，并合并
// data目录下已保存的LLM设置。
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		DataDir:         getEnvPath("DATA_DIR", "data"),
		LogDir:          getEnvPath("LOG_DIR", "logs"),
		DebugMode:       getEnvBool("DEBUG_MODE", true),
		AuthToken:       getEnv("AUTH_TOKEN", ""),
		GenerateTimeout: getEnvMinutes("GENERATE_TIMEOUT_MINUTES", 5),
		LLMProvider:     getEnv("LLM_PROVIDER", "anthropic"),
	}

	cfg.LLMConfig = map[string]string{
		"api_key":       apiKeyFromEnv(cfg.LLMProvider),
		"default_model": getEnv("LLM_MODEL", ""),
	}

	// 合并此前通过设置接口保存的LLM配置（文件中缺少密钥时保留环境变量的）
	if err := mergeSavedLLMConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// apiKeyFromEnv 按提供商取对应的密钥环境变量，LLM_API_KEY作为通用兜底
func apiKeyFromEnv(provider string) string {
	byProvider := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"google":    "GOOGLE_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}
	if env, ok := byProvider[provider]; ok {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return os.Getenv("LLM_API_KEY")
}

func (c *Config) savedConfigPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

// mergeSavedLLMConfig 加载data/config.json中持久化的LLM设置
func mergeSavedLLMConfig(cfg *Config) error {
	data, err := os.ReadFile(cfg.savedConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取已保存配置失败: %w", err)
	}

	var saved struct {
		LLMProvider string            `json:"llm_provider"`
		LLMConfig   map[string]string `json:"llm_config"`
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		// 配置文件损坏时按不存在处理，不阻塞启动
		return nil
	}

	if saved.LLMProvider != "" {
		cfg.LLMProvider = saved.LLMProvider
	}
	if saved.LLMConfig != nil {
		if saved.LLMConfig["api_key"] == "" {
			saved.LLMConfig["api_key"] = cfg.LLMConfig["api_key"]
		}
		cfg.LLMConfig = saved.LLMConfig
	}
	return nil
}

// Save 将当前LLM设置持久化到data/config.json
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"llm_provider": c.LLMProvider,
		"llm_config":   c.LLMConfig,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(c.savedConfigPath(), data, 0644)
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，确保目录存在
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}
	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvMinutes 获取以分钟为单位的时长环境变量
func getEnvMinutes(key string, defaultMinutes int) time.Duration {
	value := os.Getenv(key)
	if value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return time.Duration(defaultMinutes) * time.Minute
}
