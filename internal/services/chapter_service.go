// internal/services/chapter_service.go
package services

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	apperrors "github.com/Corphon/StoryForgeMCP/internal/errors"
	"github.com/Corphon/StoryForgeMCP/internal/models"
	"github.com/Corphon/StoryForgeMCP/internal/storage"
)

// 章节文件名模式：chapter-NN.md，章节号补零到两位
var chapterFilePattern = regexp.MustCompile(`^chapter-(\d+)\.md$`)

// ChapterService 处理章节正文（Markdown）和章节摘要（JSON）的读写
type ChapterService struct {
	storage *storage.FileStorage
}

// NewChapterService 创建章节服务
func NewChapterService(fs *storage.FileStorage) *ChapterService {
	return &ChapterService{storage: fs}
}

func chapterFile(num int) string {
	return fmt.Sprintf("chapter-%02d.md", num)
}

func summaryFile(num int) string {
	return fmt.Sprintf("chapter-%02d.json", num)
}

// ChapterExists 检查指定章节的正文是否已存在
func (s *ChapterService) ChapterExists(projectID string, num int) bool {
	dir := filepath.Join(projectDir(projectID), chaptersDir)
	return s.storage.FileExists(dir, chapterFile(num))
}

// GetChapter 读取章节正文
func (s *ChapterService) GetChapter(projectID string, num int) (string, error) {
	dir := filepath.Join(projectDir(projectID), chaptersDir)
	if !s.storage.FileExists(dir, chapterFile(num)) {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("第 %d 章尚未写作", num), nil)
	}

	content, err := s.storage.LoadTextFile(dir, chapterFile(num))
	if err != nil {
		return "", fmt.Errorf("读取章节失败: %w", err)
	}
	return string(content), nil
}

// SaveChapter 写入章节正文，重写章节时整体覆盖
func (s *ChapterService) SaveChapter(projectID string, num int, content string) error {
	dir := filepath.Join(projectDir(projectID), chaptersDir)
	if err := s.storage.SaveTextFile(dir, chapterFile(num), []byte(content)); err != nil {
		return fmt.Errorf("保存章节失败: %w", err)
	}
	return nil
}

// GetSummary 读取章节摘要，不存在时返回 nil 而不是错误。
// 上下文组装依赖这一行为：缺失的摘要直接跳过。
func (s *ChapterService) GetSummary(projectID string, num int) (*models.ChapterSummary, error) {
	dir := filepath.Join(projectDir(projectID), summariesDir)
	if !s.storage.FileExists(dir, summaryFile(num)) {
		return nil, nil
	}

	var summary models.ChapterSummary
	if err := s.storage.LoadJSONFile(dir, summaryFile(num), &summary); err != nil {
		return nil, fmt.Errorf("读取章节摘要失败: %w", err)
	}
	return &summary, nil
}

// SaveSummary 写入章节摘要
func (s *ChapterService) SaveSummary(projectID string, num int, summary *models.ChapterSummary) error {
	dir := filepath.Join(projectDir(projectID), summariesDir)
	if err := s.storage.SaveJSONFile(dir, summaryFile(num), summary); err != nil {
		return fmt.Errorf("保存章节摘要失败: %w", err)
	}
	return nil
}

// ListChapters 扫描章节目录，返回已有正文的章节号（升序）
func (s *ChapterService) ListChapters(projectID string) ([]int, error) {
	dir := filepath.Join(projectDir(projectID), chaptersDir)
	files, err := s.storage.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("扫描章节目录失败: %w", err)
	}

	numbers := make([]int, 0, len(files))
	for _, name := range files {
		match := chapterFilePattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		num, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		numbers = append(numbers, num)
	}

	sort.Ints(numbers)
	return numbers, nil
}
