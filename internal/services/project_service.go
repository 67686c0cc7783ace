// internal/services/project_service.go
package services

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/StoryForgeMCP/internal/errors"
	"github.com/Corphon/StoryForgeMCP/internal/models"
	"github.com/Corphon/StoryForgeMCP/internal/storage"
)

const (
	projectsDir   = "projects"
	metaFile      = "meta.json"
	messagesFile  = "brainstorm-messages.json"
	chaptersDir   = "chapters"
	summariesDir  = "summaries"
	canvasFile    = "canvas.json"
	outlineFile   = "outline.json"
	timestampForm = time.RFC3339
)

// projectDir 返回项目在存储中的相对目录
func projectDir(projectID string) string {
	return filepath.Join(projectsDir, projectID)
}

// ProjectService 处理项目生命周期和头脑风暴消息记录
type ProjectService struct {
	storage *storage.FileStorage
}

// NewProjectService 创建项目服务
func NewProjectService(fs *storage.FileStorage) *ProjectService {
	return &ProjectService{storage: fs}
}

// CreateProjectInput 创建项目所需的字段
type CreateProjectInput struct {
	Title                  string              `json:"title"`
	Description            string              `json:"description"`
	Style                  models.WritingStyle `json:"style"`
	CustomStyleDescription string              `json:"customStyleDescription,omitempty"`
}

// UpdateProjectInput 项目元数据的部分更新，nil字段保持原值
type UpdateProjectInput struct {
	Title                  *string              `json:"title,omitempty"`
	Description            *string              `json:"description,omitempty"`
	Style                  *models.WritingStyle `json:"style,omitempty"`
	CustomStyleDescription *string              `json:"customStyleDescription,omitempty"`
	Status                 *models.ProjectPhase `json:"status,omitempty"`
	BrainstormSessionID    *string              `json:"brainstormSessionId,omitempty"`
}

// CreateProject 创建新项目：生成ID、写入元数据和空画布，
// 预建章节与摘要目录
func (s *ProjectService) CreateProject(input CreateProjectInput) (*models.ProjectMeta, error) {
	if input.Title == "" {
		return nil, apperrors.NewValidationError("项目标题不能为空", nil)
	}
	if !models.IsValidStyle(input.Style) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("不支持的写作风格: %s", input.Style), nil)
	}

	now := time.Now().UTC().Format(timestampForm)
	meta := &models.ProjectMeta{
		ID:                     uuid.NewString(),
		Title:                  input.Title,
		Description:            input.Description,
		Style:                  input.Style,
		CustomStyleDescription: input.CustomStyleDescription,
		Status:                 models.PhaseBrainstorm,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	dir := projectDir(meta.ID)
	if err := s.storage.SaveJSONFile(dir, metaFile, meta); err != nil {
		return nil, fmt.Errorf("保存项目元数据失败: %w", err)
	}
	if err := s.storage.SaveJSONFile(dir, canvasFile, models.NewEmptyCanvas()); err != nil {
		return nil, fmt.Errorf("初始化故事画布失败: %w", err)
	}

	return meta, nil
}

// GetProject 按ID读取项目元数据
func (s *ProjectService) GetProject(projectID string) (*models.ProjectMeta, error) {
	dir := projectDir(projectID)
	if !s.storage.FileExists(dir, metaFile) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("项目不存在: %s", projectID), nil)
	}

	var meta models.ProjectMeta
	if err := s.storage.LoadJSONFile(dir, metaFile, &meta); err != nil {
		return nil, fmt.Errorf("读取项目元数据失败: %w", err)
	}
	return &meta, nil
}

// ListProjects 列出所有项目，按更新时间倒序。
// 缺少有效元数据的目录被跳过而不是报错。
func (s *ProjectService) ListProjects() ([]models.ProjectMeta, error) {
	if !s.storage.DirExists(projectsDir) {
		return []models.ProjectMeta{}, nil
	}

	dirs, err := s.storage.ListDirs(projectsDir)
	if err != nil {
		return nil, fmt.Errorf("读取项目目录失败: %w", err)
	}

	projects := make([]models.ProjectMeta, 0, len(dirs))
	for _, dirName := range dirs {
		var meta models.ProjectMeta
		if err := s.storage.LoadJSONFile(projectDir(dirName), metaFile, &meta); err != nil {
			continue
		}
		projects = append(projects, meta)
	}

	sort.Slice(projects, func(i, j int) bool {
		ti, _ := time.Parse(timestampForm, projects[i].UpdatedAt)
		tj, _ := time.Parse(timestampForm, projects[j].UpdatedAt)
		return ti.After(tj)
	})

	return projects, nil
}

// UpdateProject 部分更新项目元数据并刷新更新时间
func (s *ProjectService) UpdateProject(projectID string, input UpdateProjectInput) (*models.ProjectMeta, error) {
	meta, err := s.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		meta.Title = *input.Title
	}
	if input.Description != nil {
		meta.Description = *input.Description
	}
	if input.Style != nil {
		if !models.IsValidStyle(*input.Style) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("不支持的写作风格: %s", *input.Style), nil)
		}
		meta.Style = *input.Style
	}
	if input.CustomStyleDescription != nil {
		meta.CustomStyleDescription = *input.CustomStyleDescription
	}
	if input.Status != nil {
		meta.Status = *input.Status
	}
	if input.BrainstormSessionID != nil {
		meta.BrainstormSessionID = *input.BrainstormSessionID
	}
	meta.UpdatedAt = time.Now().UTC().Format(timestampForm)

	if err := s.storage.SaveJSONFile(projectDir(projectID), metaFile, meta); err != nil {
		return nil, fmt.Errorf("保存项目元数据失败: %w", err)
	}
	return meta, nil
}

// Touch 仅刷新项目的更新时间，生成流程在持久化产物后调用
func (s *ProjectService) Touch(projectID string) {
	_, _ = s.UpdateProject(projectID, UpdateProjectInput{})
}

// DeleteProject 删除项目及其全部文件
func (s *ProjectService) DeleteProject(projectID string) error {
	if _, err := s.GetProject(projectID); err != nil {
		return err
	}
	if err := s.storage.DeleteDir(projectDir(projectID)); err != nil {
		return fmt.Errorf("删除项目失败: %w", err)
	}
	return nil
}

// GetBrainstormMessages 读取项目的头脑风暴消息记录，不存在时返回空列表
func (s *ProjectService) GetBrainstormMessages(projectID string) ([]models.StoredMessage, error) {
	dir := projectDir(projectID)
	if !s.storage.FileExists(dir, messagesFile) {
		return []models.StoredMessage{}, nil
	}

	var messages []models.StoredMessage
	if err := s.storage.LoadJSONFile(dir, messagesFile, &messages); err != nil {
		return nil, fmt.Errorf("读取对话记录失败: %w", err)
	}
	return messages, nil
}

// AppendBrainstormMessages 把一轮对话（用户消息和助手回复）追加到消息记录
func (s *ProjectService) AppendBrainstormMessages(projectID, userContent, assistantContent string) error {
	messages, err := s.GetBrainstormMessages(projectID)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(timestampForm)
	messages = append(messages,
		models.StoredMessage{
			ID:        uuid.NewString(),
			Role:      "user",
			Content:   userContent,
			Timestamp: now,
		},
		models.StoredMessage{
			ID:        uuid.NewString(),
			Role:      "assistant",
			Content:   assistantContent,
			Timestamp: now,
		},
	)

	return s.storage.SaveJSONFile(projectDir(projectID), messagesFile, messages)
}
