// internal/agent/session.go
package agent

import (
	"fmt"

	"github.com/Corphon/StoryForgeMCP/internal/llm"
	"github.com/Corphon/StoryForgeMCP/internal/storage"
)

const sessionsDir = "sessions"

// SessionStore 把代理会话记录保存为独立的JSON文件，
// 供多轮对话恢复时回放历史
type SessionStore struct {
	storage *storage.FileStorage
}

// NewSessionStore 创建会话存储
func NewSessionStore(fs *storage.FileStorage) *SessionStore {
	return &SessionStore{storage: fs}
}

func sessionFile(sessionID string) string {
	return fmt.Sprintf("%s.json", sessionID)
}

// History 返回指定会话的完整对话历史，会话不存在时返回空历史
func (s *SessionStore) History(sessionID string) ([]llm.Message, error) {
	if !s.storage.FileExists(sessionsDir, sessionFile(sessionID)) {
		return nil, nil
	}

	var messages []llm.Message
	if err := s.storage.LoadJSONFile(sessionsDir, sessionFile(sessionID), &messages); err != nil {
		return nil, fmt.Errorf("读取会话记录失败: %w", err)
	}
	return messages, nil
}

// Append 把新的对话轮次追加到会话记录末尾，会话不存在时创建
func (s *SessionStore) Append(sessionID string, messages ...llm.Message) error {
	history, err := s.History(sessionID)
	if err != nil {
		return err
	}

	history = append(history, messages...)
	return s.storage.SaveJSONFile(sessionsDir, sessionFile(sessionID), history)
}

// Exists 检查会话记录是否存在
func (s *SessionStore) Exists(sessionID string) bool {
	return s.storage.FileExists(sessionsDir, sessionFile(sessionID))
}
