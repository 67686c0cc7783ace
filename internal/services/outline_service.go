// internal/services/outline_service.go
package services

import (
	"fmt"

	"github.com/Corphon/StoryForgeMCP/internal/models"
	"github.com/Corphon/StoryForgeMCP/internal/storage"
)

// OutlineService 处理章节大纲的读写
type OutlineService struct {
	storage *storage.FileStorage
}

// NewOutlineService 创建大纲服务
func NewOutlineService(fs *storage.FileStorage) *OutlineService {
	return &OutlineService{storage: fs}
}

// GetOutline 读取项目大纲，尚未生成时返回 nil 而不是错误
func (s *OutlineService) GetOutline(projectID string) (*models.Outline, error) {
	dir := projectDir(projectID)
	if !s.storage.FileExists(dir, outlineFile) {
		return nil, nil
	}

	var outline models.Outline
	if err := s.storage.LoadJSONFile(dir, outlineFile, &outline); err != nil {
		return nil, fmt.Errorf("读取大纲失败: %w", err)
	}
	return &outline, nil
}

// SaveOutline 整体覆盖写入项目大纲
func (s *OutlineService) SaveOutline(projectID string, outline *models.Outline) error {
	if err := s.storage.SaveJSONFile(projectDir(projectID), outlineFile, outline); err != nil {
		return fmt.Errorf("保存大纲失败: %w", err)
	}
	return nil
}
