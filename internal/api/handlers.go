// internal/api/handlers.go
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryForgeMCP/internal/agent"
	apperrors "github.com/Corphon/StoryForgeMCP/internal/errors"
	"github.com/Corphon/StoryForgeMCP/internal/models"
	"github.com/Corphon/StoryForgeMCP/internal/services"
)

// Handler 聚合所有API处理器依赖的服务
type Handler struct {
	Projects *services.ProjectService
	Canvas   *services.CanvasService
	Outline  *services.OutlineService
	Chapters *services.ChapterService
	LLM      *services.LLMService
	Workflow *services.WorkflowService
}

// NewHandler 创建API处理器
func NewHandler(
	projects *services.ProjectService,
	canvas *services.CanvasService,
	outline *services.OutlineService,
	chapters *services.ChapterService,
	llmService *services.LLMService,
	workflow *services.WorkflowService,
) *Handler {
	return &Handler{
		Projects: projects,
		Canvas:   canvas,
		Outline:  outline,
		Chapters: chapters,
		LLM:      llmService,
		Workflow: workflow,
	}
}

// handleError 把应用错误映射为HTTP状态码
func handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsValidationError(err):
		status = http.StatusBadRequest
	case apperrors.IsNotFoundError(err):
		status = http.StatusNotFound
	case apperrors.IsTimeoutError(err):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ---- 项目 ----

// CreateProject 创建新项目
// POST /api/projects
func (h *Handler) CreateProject(c *gin.Context) {
	var input services.CreateProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}

	meta, err := h.Projects.CreateProject(input)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, meta)
}

// ListProjects 列出所有项目（按更新时间倒序）
// GET /api/projects
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.Projects.ListProjects()
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// GetProject 获取项目元数据
// GET /api/projects/:id
func (h *Handler) GetProject(c *gin.Context) {
	meta, err := h.Projects.GetProject(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// UpdateProject 部分更新项目元数据
// PATCH /api/projects/:id
func (h *Handler) UpdateProject(c *gin.Context) {
	var input services.UpdateProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}

	meta, err := h.Projects.UpdateProject(c.Param("id"), input)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// DeleteProject 删除项目及其全部文件
// DELETE /api/projects/:id
func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.Projects.DeleteProject(c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetBrainstormMessages 获取项目的头脑风暴对话记录
// GET /api/projects/:id/messages
func (h *Handler) GetBrainstormMessages(c *gin.Context) {
	if _, err := h.Projects.GetProject(c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	messages, err := h.Projects.GetBrainstormMessages(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ---- 画布与大纲 ----

// GetCanvas 获取项目的故事画布
// GET /api/projects/:id/canvas
func (h *Handler) GetCanvas(c *gin.Context) {
	if _, err := h.Projects.GetProject(c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	canvas, err := h.Canvas.GetCanvas(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"canvas": canvas})
}

// SaveCanvas 整体覆盖保存故事画布（画布编辑器的手动保存）
// PUT /api/projects/:id/canvas
func (h *Handler) SaveCanvas(c *gin.Context) {
	if _, err := h.Projects.GetProject(c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	var canvas models.StoryCanvas
	if err := c.ShouldBindJSON(&canvas); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}

	if err := h.Canvas.SaveCanvas(c.Param("id"), &canvas); err != nil {
		handleError(c, err)
		return
	}
	h.Projects.Touch(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"canvas": canvas})
}

// GetOutline 获取项目大纲，尚未生成时outline为null
// GET /api/projects/:id/outline
func (h *Handler) GetOutline(c *gin.Context) {
	if _, err := h.Projects.GetProject(c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	outline, err := h.Outline.GetOutline(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outline": outline})
}

// ---- 章节 ----

// ListChapters 列出项目已写作的章节号
// GET /api/projects/:id/chapters
func (h *Handler) ListChapters(c *gin.Context) {
	if _, err := h.Projects.GetProject(c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	numbers, err := h.Chapters.ListChapters(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapters": numbers})
}

// GetChapter 获取章节正文和摘要
// GET /api/projects/:id/chapters/:num
func (h *Handler) GetChapter(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := h.Projects.GetProject(projectID); err != nil {
		handleError(c, err)
		return
	}

	num, err := strconv.Atoi(c.Param("num"))
	if err != nil || num < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "章节号无效"})
		return
	}

	content, err := h.Chapters.GetChapter(projectID, num)
	if err != nil {
		handleError(c, err)
		return
	}

	summary, err := h.Chapters.GetSummary(projectID, num)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"number":  num,
		"content": content,
		"summary": summary,
	})
}

// ---- 写作风格 ----

// ListStyles 列出内置写作风格
// GET /api/styles
func (h *Handler) ListStyles(c *gin.Context) {
	styles := make([]agent.StyleConfig, 0, len(agent.WritingStyles))
	for _, style := range []models.WritingStyle{
		models.StyleLiterary, models.StyleWebnovel, models.StyleMystery,
		models.StyleScifi, models.StyleFantasy, models.StyleRomance, models.StyleCustom,
	} {
		styles = append(styles, agent.WritingStyles[style])
	}
	c.JSON(http.StatusOK, gin.H{"styles": styles})
}

// ---- LLM设置 ----

// GetLLMStatus 获取当前LLM提供者状态
// GET /api/llm/status
func (h *Handler) GetLLMStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.LLM.Status())
}

// UpdateLLMConfig 更新LLM提供者设置
// PUT /api/llm/config
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var input struct {
		Provider string            `json:"provider"`
		Config   map[string]string `json:"config"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}

	if err := h.LLM.UpdateSettings(input.Provider, input.Config); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.LLM.Status())
}
