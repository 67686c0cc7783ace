// internal/api/stream_handlers.go
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "github.com/Corphon/StoryForgeMCP/internal/errors"
	"github.com/Corphon/StoryForgeMCP/internal/services"
)

// StreamBrainstorm 头脑风暴对话的SSE端点
// GET /api/brainstorm/stream?projectId=&message=&sessionId=
func (h *Handler) StreamBrainstorm(c *gin.Context) {
	projectID := c.Query("projectId")
	message := c.Query("message")
	sessionID := c.Query("sessionId")

	if projectID == "" || message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少projectId或message参数"})
		return
	}

	events, err := h.Workflow.RunBrainstorm(c.Request.Context(), projectID, message, sessionID)
	if err != nil {
		handleError(c, err)
		return
	}
	h.streamEvents(c, events)
}

// StreamOutline 大纲生成的SSE端点
// GET /api/outline/generate?projectId=
func (h *Handler) StreamOutline(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少projectId参数"})
		return
	}

	events, err := h.Workflow.RunOutline(c.Request.Context(), projectID)
	if err != nil {
		handleError(c, err)
		return
	}
	h.streamEvents(c, events)
}

// StreamWriteChapter 章节写作的SSE端点。带check参数时不触发生成，
// 只返回该章节是否已有正文。
// GET /api/write/chapter?projectId=&chapterNumber=[&check=1]
func (h *Handler) StreamWriteChapter(c *gin.Context) {
	projectID := c.Query("projectId")
	chapterNumber, _ := strconv.Atoi(c.Query("chapterNumber"))

	if projectID == "" || chapterNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少projectId或chapterNumber参数"})
		return
	}

	if c.Query("check") != "" {
		h.checkChapter(c, projectID, chapterNumber)
		return
	}

	events, err := h.Workflow.RunWriteChapter(c.Request.Context(), projectID, chapterNumber)
	if err != nil {
		handleError(c, err)
		return
	}
	h.streamEvents(c, events)
}

// checkChapter 检查章节是否已存在，存在时一并返回正文
func (h *Handler) checkChapter(c *gin.Context, projectID string, chapterNumber int) {
	if _, err := h.Projects.GetProject(projectID); err != nil {
		handleError(c, err)
		return
	}

	content, err := h.Chapters.GetChapter(projectID, chapterNumber)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			c.JSON(http.StatusOK, gin.H{"exists": false, "content": nil})
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": true, "content": content})
}

// streamEvents 把工作流事件写出为SSE流，逐条刷出。
// 客户端断开时返回，请求上下文的取消会同时中止上游生成。
func (h *Handler) streamEvents(c *gin.Context, events <-chan services.StreamEvent) {
	setSSEHeaders(c)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "当前连接不支持流式响应"})
		return
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeSSEEvent(c.Writer, ev.Name, ev.Data); err != nil {
				logrus.WithError(err).Debug("写出SSE事件失败")
				return
			}
			flusher.Flush()
		case <-clientGone:
			return
		}
	}
}
