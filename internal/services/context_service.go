// internal/services/context_service.go
package services

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Corphon/StoryForgeMCP/internal/models"
)

// summaryWindow 写作某一章时回看的前序章节摘要数量
const summaryWindow = 3

// ContextService 为写作某一章组装上下文：故事信息、相关角色、
// 前序章节摘要（滑动窗口）、未解决线索和本章大纲计划。
// 各部分独立格式化，由提示词模板按需取用。
type ContextService struct {
	canvas   *CanvasService
	outline  *OutlineService
	chapters *ChapterService
	log      *logrus.Entry
}

// NewContextService 创建上下文组装服务
func NewContextService(canvas *CanvasService, outline *OutlineService, chapters *ChapterService) *ContextService {
	return &ContextService{
		canvas:   canvas,
		outline:  outline,
		chapters: chapters,
		log:      logrus.WithField("component", "context"),
	}
}

// BuildChapterContext 组装写作第 chapterNumber 章所需的完整上下文。
// 画布、大纲和前序摘要都是可选输入：读不到或解析失败按缺失处理，
// 单个损坏的文件不会使整次组装失败。
func (s *ContextService) BuildChapterContext(projectID string, chapterNumber int) (models.ChapterContext, error) {
	canvas, err := s.canvas.GetCanvas(projectID)
	if err != nil {
		s.log.WithField("project", projectID).WithError(err).Warn("画布不可读，按空画布组装上下文")
		canvas = models.NewEmptyCanvas()
	}

	outline, err := s.outline.GetOutline(projectID)
	if err != nil {
		s.log.WithField("project", projectID).WithError(err).Warn("大纲不可读，按无大纲组装上下文")
		outline = nil
	}

	var chapterOutline *models.ChapterOutline
	if outline != nil {
		chapterOutline = outline.FindChapter(chapterNumber)
	}

	// 前序摘要滑动窗口：第N章回看N-3到N-1章，缺失或损坏的摘要跳过
	summaryStart := chapterNumber - summaryWindow
	if summaryStart < 1 {
		summaryStart = 1
	}
	var summaries []*models.ChapterSummary
	for i := summaryStart; i < chapterNumber; i++ {
		summary, err := s.chapters.GetSummary(projectID, i)
		if err != nil {
			s.log.WithField("project", projectID).WithField("chapter", i).WithError(err).Warn("章节摘要不可读，跳过")
			continue
		}
		if summary != nil {
			summaries = append(summaries, summary)
		}
	}

	chapterPlan := ""
	if chapterOutline != nil {
		chapterPlan = formatChapterPlan(chapterOutline)
	} else {
		chapterPlan = fmt.Sprintf("第 %d 章（无详细大纲，请根据故事信息自由发挥）", chapterNumber)
	}

	return models.ChapterContext{
		StoryInfo:         formatStoryInfo(canvas),
		CharacterInfo:     formatCharacterInfo(canvas, chapterOutline),
		PreviousSummaries: formatPreviousSummaries(summaries),
		UnresolvedThreads: formatUnresolvedThreads(summaries),
		ChapterPlan:       chapterPlan,
	}, nil
}

// formatStoryInfo 格式化故事前提、类型与世界观设定
func formatStoryInfo(canvas *models.StoryCanvas) string {
	var lines []string

	if canvas.Premise != "" {
		lines = append(lines, "故事前提："+canvas.Premise)
	}
	if canvas.Genre != "" {
		lines = append(lines, "类型："+canvas.Genre)
	}
	if canvas.Tone != "" {
		lines = append(lines, "基调："+canvas.Tone)
	}
	if len(canvas.Themes) > 0 {
		lines = append(lines, "主题："+strings.Join(canvas.Themes, "、"))
	}

	setting := canvas.Setting
	if setting.TimePeriod != "" || setting.Location != "" || setting.Rules != "" || setting.Atmosphere != "" {
		lines = append(lines, "", "### 世界观设定")
		if setting.TimePeriod != "" {
			lines = append(lines, "时代背景："+setting.TimePeriod)
		}
		if setting.Location != "" {
			lines = append(lines, "地理环境："+setting.Location)
		}
		if setting.Rules != "" {
			lines = append(lines, "世界规则："+setting.Rules)
		}
		if setting.Atmosphere != "" {
			lines = append(lines, "整体氛围："+setting.Atmosphere)
		}
	}

	return strings.Join(lines, "\n")
}

var roleLabels = map[models.CharacterRole]string{
	models.RoleProtagonist: "主角",
	models.RoleAntagonist:  "对手/反派",
	models.RoleSupporting:  "重要配角",
	models.RoleMinor:       "次要角色",
}

// formatCharacter 格式化单个角色
func formatCharacter(character models.Character) string {
	label, ok := roleLabels[character.Role]
	if !ok {
		label = string(character.Role)
	}

	lines := []string{fmt.Sprintf("**%s**（%s）", character.Name, label)}
	if character.Description != "" {
		lines = append(lines, "  描述："+character.Description)
	}
	if character.Motivation != "" {
		lines = append(lines, "  动机："+character.Motivation)
	}
	if character.Arc != "" {
		lines = append(lines, "  成长弧线："+character.Arc)
	}
	return strings.Join(lines, "\n")
}

// formatCharacterInfo 格式化与本章相关的角色信息。
// 按本章大纲的出场角色名过滤（不区分大小写）；大纲未列角色
// 或过滤后为空（角色名不一致）时回退为全部角色。
func formatCharacterInfo(canvas *models.StoryCanvas, chapterOutline *models.ChapterOutline) string {
	if len(canvas.Characters) == 0 {
		return "（无角色信息）"
	}

	relevant := canvas.Characters
	if chapterOutline != nil && len(chapterOutline.Characters) > 0 {
		names := make(map[string]bool, len(chapterOutline.Characters))
		for _, name := range chapterOutline.Characters {
			names[strings.ToLower(name)] = true
		}

		var filtered []models.Character
		for _, character := range canvas.Characters {
			if names[strings.ToLower(character.Name)] {
				filtered = append(filtered, character)
			}
		}
		if len(filtered) > 0 {
			relevant = filtered
		}
	}

	parts := make([]string, 0, len(relevant))
	for _, character := range relevant {
		parts = append(parts, formatCharacter(character))
	}
	return strings.Join(parts, "\n\n")
}

// formatChapterPlan 格式化本章大纲计划
func formatChapterPlan(chapterOutline *models.ChapterOutline) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("第 %d 章：%s", chapterOutline.Number, chapterOutline.Title))
	lines = append(lines, "")
	lines = append(lines, "概要："+chapterOutline.Synopsis)
	lines = append(lines, "")

	if len(chapterOutline.KeyEvents) > 0 {
		lines = append(lines, "关键事件：")
		for _, event := range chapterOutline.KeyEvents {
			lines = append(lines, "- "+event)
		}
		lines = append(lines, "")
	}

	if len(chapterOutline.Characters) > 0 {
		lines = append(lines, "出场角色："+strings.Join(chapterOutline.Characters, "、"))
	}
	if chapterOutline.EmotionalTone != "" {
		lines = append(lines, "情感基调："+chapterOutline.EmotionalTone)
	}
	if chapterOutline.EstimatedWords > 0 {
		lines = append(lines, fmt.Sprintf("目标字数：约 %d 字", chapterOutline.EstimatedWords))
	}

	return strings.Join(lines, "\n")
}

// formatPreviousSummaries 格式化前序章节摘要
func formatPreviousSummaries(summaries []*models.ChapterSummary) string {
	if len(summaries) == 0 {
		return ""
	}

	var lines []string
	for _, summary := range summaries {
		lines = append(lines, fmt.Sprintf("### 第 %d 章摘要", summary.ChapterNumber))
		lines = append(lines, summary.Summary)

		if len(summary.CharacterStates) > 0 {
			lines = append(lines, "", "角色状态：")
			// 遍历顺序不稳定，但角色状态行之间没有顺序语义
			for name, state := range summary.CharacterStates {
				lines = append(lines, fmt.Sprintf("- %s：%s", name, state))
			}
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// formatUnresolvedThreads 收集前序章节摘要中的未解决线索
func formatUnresolvedThreads(summaries []*models.ChapterSummary) string {
	var lines []string
	for _, summary := range summaries {
		for _, thread := range summary.Unresolved {
			lines = append(lines, fmt.Sprintf("- [第%d章] %s", summary.ChapterNumber, thread))
		}
	}

	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}
