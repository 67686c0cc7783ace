// internal/app/app.go
package app

import (
	"fmt"

	"github.com/Corphon/StoryForgeMCP/internal/agent"
	"github.com/Corphon/StoryForgeMCP/internal/config"
	"github.com/Corphon/StoryForgeMCP/internal/di"
	"github.com/Corphon/StoryForgeMCP/internal/services"
	"github.com/Corphon/StoryForgeMCP/internal/storage"

	// 注册LLM提供者
	_ "github.com/Corphon/StoryForgeMCP/internal/llm/providers/anthropic"
	_ "github.com/Corphon/StoryForgeMCP/internal/llm/providers/google"
	_ "github.com/Corphon/StoryForgeMCP/internal/llm/providers/openai"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices(cfg *config.Config) error {
	container := di.GetContainer()

	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	sessionStore := agent.NewSessionStore(fileStorage)
	container.Register("sessions", sessionStore)

	llmService := services.NewLLMService(cfg)
	container.Register("llm", llmService)

	projectService := services.NewProjectService(fileStorage)
	container.Register("project", projectService)

	canvasService := services.NewCanvasService(fileStorage)
	container.Register("canvas", canvasService)

	outlineService := services.NewOutlineService(fileStorage)
	container.Register("outline", outlineService)

	chapterService := services.NewChapterService(fileStorage)
	container.Register("chapter", chapterService)

	contextService := services.NewContextService(canvasService, outlineService, chapterService)
	container.Register("context", contextService)

	workflowService := services.NewWorkflowService(
		cfg,
		llmService,
		projectService,
		canvasService,
		outlineService,
		chapterService,
		contextService,
		sessionStore,
	)
	container.Register("workflow", workflowService)

	return nil
}
