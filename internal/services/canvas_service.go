// internal/services/canvas_service.go
package services

import (
	"fmt"

	"github.com/Corphon/StoryForgeMCP/internal/models"
	"github.com/Corphon/StoryForgeMCP/internal/storage"
)

// CanvasService 处理故事画布的读写与合并
type CanvasService struct {
	storage *storage.FileStorage
}

// NewCanvasService 创建画布服务
func NewCanvasService(fs *storage.FileStorage) *CanvasService {
	return &CanvasService{storage: fs}
}

// GetCanvas 读取项目的故事画布，文件不存在时返回空画布
func (s *CanvasService) GetCanvas(projectID string) (*models.StoryCanvas, error) {
	dir := projectDir(projectID)
	if !s.storage.FileExists(dir, canvasFile) {
		return models.NewEmptyCanvas(), nil
	}

	var canvas models.StoryCanvas
	if err := s.storage.LoadJSONFile(dir, canvasFile, &canvas); err != nil {
		return nil, fmt.Errorf("读取故事画布失败: %w", err)
	}
	canvas.Normalize()
	return &canvas, nil
}

// SaveCanvas 整体覆盖写入故事画布
func (s *CanvasService) SaveCanvas(projectID string, canvas *models.StoryCanvas) error {
	canvas.Normalize()
	if err := s.storage.SaveJSONFile(projectDir(projectID), canvasFile, canvas); err != nil {
		return fmt.Errorf("保存故事画布失败: %w", err)
	}
	return nil
}

// MergeCanvas 把部分更新合并进现有画布并保存，返回合并后的画布。
// 标量字段替换，setting浅合并，列表字段整体替换。
func (s *CanvasService) MergeCanvas(projectID string, update *models.CanvasUpdate) (*models.StoryCanvas, error) {
	canvas, err := s.GetCanvas(projectID)
	if err != nil {
		return nil, err
	}

	update.ApplyTo(canvas)

	if err := s.SaveCanvas(projectID, canvas); err != nil {
		return nil, err
	}
	return canvas, nil
}
