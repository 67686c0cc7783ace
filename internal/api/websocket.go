// internal/api/websocket.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

const wsWriteTimeout = 10 * time.Second

// wsFrame WebSocket推送帧，与SSE事件同构
type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsBrainstormRequest 客户端发起的一轮头脑风暴
type wsBrainstormRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// BrainstormWebSocket 头脑风暴的WebSocket端点，SSE之外的另一条
// 实时通道。每收到一条消息就执行一轮对话，把事件作为JSON帧推回；
// 连接断开会中止进行中的生成。
// GET /ws/brainstorm?projectId=
func (h *Handler) BrainstormWebSocket(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少projectId参数"})
		return
	}
	if _, err := h.Projects.GetProject(projectID); err != nil {
		handleError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket升级失败")
		return
	}
	defer conn.Close()

	log := logrus.WithFields(logrus.Fields{"component": "ws", "project": projectID})

	for {
		var req wsBrainstormRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("WebSocket连接异常关闭")
			}
			return
		}

		if err := h.runBrainstormOverWS(c.Request.Context(), conn, projectID, req); err != nil {
			return
		}
	}
}

// runBrainstormOverWS 执行一轮头脑风暴并把事件写回连接。
// 返回非nil错误表示连接已不可用。
func (h *Handler) runBrainstormOverWS(parent context.Context, conn *websocket.Conn, projectID string, req wsBrainstormRequest) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	events, err := h.Workflow.RunBrainstorm(ctx, projectID, req.Message, req.SessionID)
	if err != nil {
		return writeWSFrame(conn, wsFrame{Event: "error", Data: gin.H{"message": err.Error()}})
	}

	for ev := range events {
		if err := writeWSFrame(conn, wsFrame{Event: ev.Name, Data: ev.Data}); err != nil {
			// 写失败说明客户端已断开，取消上游生成
			cancel()
			for range events {
			}
			return err
		}
	}
	return nil
}

func writeWSFrame(conn *websocket.Conn, frame wsFrame) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}
