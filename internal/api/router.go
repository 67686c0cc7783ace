// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryForgeMCP/internal/config"
	"github.com/Corphon/StoryForgeMCP/internal/di"
	"github.com/Corphon/StoryForgeMCP/internal/services"
)

// SetupRouter 配置HTTP路由。服务一律从容器获取，不在这里创建。
func SetupRouter(cfg *config.Config) (*gin.Engine, error) {
	container := di.GetContainer()

	projectService, ok := container.Get("project").(*services.ProjectService)
	if !ok {
		return nil, fmt.Errorf("项目服务未正确初始化")
	}

	canvasService, ok := container.Get("canvas").(*services.CanvasService)
	if !ok {
		return nil, fmt.Errorf("画布服务未正确初始化")
	}

	outlineService, ok := container.Get("outline").(*services.OutlineService)
	if !ok {
		return nil, fmt.Errorf("大纲服务未正确初始化")
	}

	chapterService, ok := container.Get("chapter").(*services.ChapterService)
	if !ok {
		return nil, fmt.Errorf("章节服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	workflowService, ok := container.Get("workflow").(*services.WorkflowService)
	if !ok {
		return nil, fmt.Errorf("工作流服务未正确初始化")
	}

	handler := NewHandler(
		projectService,
		canvasService,
		outlineService,
		chapterService,
		llmService,
		workflowService,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(corsMiddleware())

	// 健康检查和登录不走鉴权
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/api/auth/login", Login(cfg.AuthToken))

	authorized := r.Group("/", AuthMiddleware(cfg.AuthToken))
	{
		projects := authorized.Group("/api/projects")
		{
			projects.POST("", handler.CreateProject)
			projects.GET("", handler.ListProjects)
			projects.GET("/:id", handler.GetProject)
			projects.PATCH("/:id", handler.UpdateProject)
			projects.DELETE("/:id", handler.DeleteProject)
			projects.GET("/:id/messages", handler.GetBrainstormMessages)
			projects.GET("/:id/canvas", handler.GetCanvas)
			projects.PUT("/:id/canvas", handler.SaveCanvas)
			projects.GET("/:id/outline", handler.GetOutline)
			projects.GET("/:id/chapters", handler.ListChapters)
			projects.GET("/:id/chapters/:num", handler.GetChapter)
		}

		authorized.GET("/api/brainstorm/stream", handler.StreamBrainstorm)
		authorized.GET("/api/outline/generate", handler.StreamOutline)
		authorized.GET("/api/write/chapter", handler.StreamWriteChapter)

		authorized.GET("/api/styles", handler.ListStyles)
		authorized.GET("/api/llm/status", handler.GetLLMStatus)
		authorized.PUT("/api/llm/config", handler.UpdateLLMConfig)

		authorized.GET("/ws/brainstorm", handler.BrainstormWebSocket)
	}

	return r, nil
}

// corsMiddleware 跨域支持
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
