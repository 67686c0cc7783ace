// internal/models/message.go
package models

// StoredMessage 头脑风暴阶段持久化的聊天消息
type StoredMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"` // user / assistant
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"` // RFC 3339
}
