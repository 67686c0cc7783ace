// internal/services/context_service_test.go
package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Corphon/StoryForgeMCP/internal/models"
	"github.com/Corphon/StoryForgeMCP/internal/storage"
)

func newContextFixture(t *testing.T) (*ContextService, *CanvasService, *OutlineService, *ChapterService) {
	t.Helper()

	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	canvas := NewCanvasService(fs)
	outline := NewOutlineService(fs)
	chapters := NewChapterService(fs)
	return NewContextService(canvas, outline, chapters), canvas, outline, chapters
}

func seedCanvas(t *testing.T, canvas *CanvasService, projectID string) {
	t.Helper()

	err := canvas.SaveCanvas(projectID, &models.StoryCanvas{
		Premise: "拾荒少女发现会说话的机械核心",
		Genre:   "科幻",
		Tone:    "冷峻",
		Themes:  []string{"身份", "自由"},
		Setting: models.WorldSetting{
			TimePeriod: "后启示录",
			Location:   "废土城市",
		},
		Characters: []models.Character{
			{ID: "c1", Name: "Aria", Role: models.RoleProtagonist, Description: "拾荒少女", Motivation: "寻找家人"},
			{ID: "c2", Name: "Core", Role: models.RoleSupporting, Description: "机械核心"},
			{ID: "c3", Name: "督军", Role: models.RoleAntagonist, Description: "废土军阀"},
		},
	})
	if err != nil {
		t.Fatalf("预置画布失败: %v", err)
	}
}

func TestBuildChapterContextSlidingWindow(t *testing.T) {
	ctxService, canvas, _, chapters := newContextFixture(t)
	seedCanvas(t, canvas, "p1")

	for i := 1; i <= 4; i++ {
		err := chapters.SaveSummary("p1", i, &models.ChapterSummary{
			ChapterNumber: i,
			Summary:       fmt.Sprintf("第%d章的事件", i),
			Unresolved:    []string{fmt.Sprintf("线索%d", i)},
		})
		if err != nil {
			t.Fatalf("预置摘要失败: %v", err)
		}
	}

	// 第5章只回看第2、3、4章
	chapterCtx, err := ctxService.BuildChapterContext("p1", 5)
	if err != nil {
		t.Fatalf("组装上下文失败: %v", err)
	}

	if strings.Contains(chapterCtx.PreviousSummaries, "第 1 章摘要") {
		t.Error("滑动窗口不应包含第1章摘要")
	}
	for _, n := range []int{2, 3, 4} {
		if !strings.Contains(chapterCtx.PreviousSummaries, fmt.Sprintf("### 第 %d 章摘要", n)) {
			t.Errorf("滑动窗口应包含第%d章摘要", n)
		}
	}

	if strings.Contains(chapterCtx.UnresolvedThreads, "[第1章]") {
		t.Error("未解决线索不应包含窗口外的章节")
	}
	if !strings.Contains(chapterCtx.UnresolvedThreads, "- [第3章] 线索3") {
		t.Errorf("未解决线索格式错误: %q", chapterCtx.UnresolvedThreads)
	}
}

func TestBuildChapterContextFirstChapter(t *testing.T) {
	ctxService, canvas, _, _ := newContextFixture(t)
	seedCanvas(t, canvas, "p1")

	chapterCtx, err := ctxService.BuildChapterContext("p1", 1)
	if err != nil {
		t.Fatalf("组装上下文失败: %v", err)
	}

	if chapterCtx.PreviousSummaries != "" {
		t.Errorf("第1章不应有前序摘要: %q", chapterCtx.PreviousSummaries)
	}
	if chapterCtx.UnresolvedThreads != "" {
		t.Errorf("第1章不应有未解决线索: %q", chapterCtx.UnresolvedThreads)
	}
	if !strings.Contains(chapterCtx.StoryInfo, "故事前提：拾荒少女发现会说话的机械核心") {
		t.Errorf("故事信息格式错误: %q", chapterCtx.StoryInfo)
	}
	if !strings.Contains(chapterCtx.StoryInfo, "### 世界观设定") {
		t.Errorf("故事信息应包含世界观设定: %q", chapterCtx.StoryInfo)
	}
}

func TestBuildChapterContextCharacterFilter(t *testing.T) {
	ctxService, canvas, outline, _ := newContextFixture(t)
	seedCanvas(t, canvas, "p1")

	err := outline.SaveOutline("p1", &models.Outline{
		TotalChapters: 3,
		Chapters: []models.ChapterOutline{
			{
				Number:     2,
				Title:      "核心苏醒",
				Synopsis:   "Aria激活了机械核心",
				KeyEvents:  []string{"激活核心"},
				Characters: []string{"aria", "CORE"}, // 大小写与画布不一致
			},
		},
	})
	if err != nil {
		t.Fatalf("预置大纲失败: %v", err)
	}

	chapterCtx, err := ctxService.BuildChapterContext("p1", 2)
	if err != nil {
		t.Fatalf("组装上下文失败: %v", err)
	}

	// 按出场角色过滤（不区分大小写），未出场的角色不出现
	if !strings.Contains(chapterCtx.CharacterInfo, "**Aria**") ||
		!strings.Contains(chapterCtx.CharacterInfo, "**Core**") {
		t.Errorf("角色信息应包含本章出场角色: %q", chapterCtx.CharacterInfo)
	}
	if strings.Contains(chapterCtx.CharacterInfo, "督军") {
		t.Errorf("角色信息不应包含未出场角色: %q", chapterCtx.CharacterInfo)
	}

	if !strings.Contains(chapterCtx.ChapterPlan, "第 2 章：核心苏醒") {
		t.Errorf("章节计划格式错误: %q", chapterCtx.ChapterPlan)
	}
}

func TestBuildChapterContextCharacterFilterFallback(t *testing.T) {
	ctxService, canvas, outline, _ := newContextFixture(t)
	seedCanvas(t, canvas, "p1")

	// 大纲角色名与画布完全对不上时回退为全部角色
	err := outline.SaveOutline("p1", &models.Outline{
		Chapters: []models.ChapterOutline{
			{Number: 1, Title: "开篇", Synopsis: "开端", Characters: []string{"不存在的角色"}},
		},
	})
	if err != nil {
		t.Fatalf("预置大纲失败: %v", err)
	}

	chapterCtx, err := ctxService.BuildChapterContext("p1", 1)
	if err != nil {
		t.Fatalf("组装上下文失败: %v", err)
	}

	for _, name := range []string{"Aria", "Core", "督军"} {
		if !strings.Contains(chapterCtx.CharacterInfo, name) {
			t.Errorf("过滤无匹配时应回退为全部角色，缺少 %s: %q", name, chapterCtx.CharacterInfo)
		}
	}
}

func TestBuildChapterContextMissingOutlinePlan(t *testing.T) {
	ctxService, canvas, _, _ := newContextFixture(t)
	seedCanvas(t, canvas, "p1")

	chapterCtx, err := ctxService.BuildChapterContext("p1", 7)
	if err != nil {
		t.Fatalf("组装上下文失败: %v", err)
	}

	want := "第 7 章（无详细大纲，请根据故事信息自由发挥）"
	if chapterCtx.ChapterPlan != want {
		t.Errorf("无大纲时的占位计划错误: %q", chapterCtx.ChapterPlan)
	}
}

func TestBuildChapterContextToleratesCorruptFiles(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	canvas := NewCanvasService(fs)
	outline := NewOutlineService(fs)
	chapters := NewChapterService(fs)
	ctxService := NewContextService(canvas, outline, chapters)

	seedCanvas(t, canvas, "p1")
	for _, n := range []int{1, 2} {
		if err := chapters.SaveSummary("p1", n, &models.ChapterSummary{
			ChapterNumber: n,
			Summary:       fmt.Sprintf("第%d章的事件", n),
		}); err != nil {
			t.Fatalf("预置摘要失败: %v", err)
		}
	}

	// 第2章摘要损坏：应跳过而不是使整次组装失败
	summaries := filepath.Join(projectDir("p1"), summariesDir)
	if err := fs.SaveTextFile(summaries, summaryFile(2), []byte("{不是JSON")); err != nil {
		t.Fatalf("写入损坏摘要失败: %v", err)
	}

	chapterCtx, err := ctxService.BuildChapterContext("p1", 3)
	if err != nil {
		t.Fatalf("损坏的摘要不应使组装失败: %v", err)
	}
	if !strings.Contains(chapterCtx.PreviousSummaries, "### 第 1 章摘要") {
		t.Errorf("完好的摘要应保留: %q", chapterCtx.PreviousSummaries)
	}
	if strings.Contains(chapterCtx.PreviousSummaries, "第 2 章摘要") {
		t.Errorf("损坏的摘要应被跳过: %q", chapterCtx.PreviousSummaries)
	}

	// 画布和大纲损坏时同样按缺失处理
	if err := fs.SaveTextFile(projectDir("p1"), canvasFile, []byte("{不是JSON")); err != nil {
		t.Fatalf("写入损坏画布失败: %v", err)
	}
	if err := fs.SaveTextFile(projectDir("p1"), outlineFile, []byte("{不是JSON")); err != nil {
		t.Fatalf("写入损坏大纲失败: %v", err)
	}

	chapterCtx, err = ctxService.BuildChapterContext("p1", 3)
	if err != nil {
		t.Fatalf("损坏的画布/大纲不应使组装失败: %v", err)
	}
	if chapterCtx.CharacterInfo != "（无角色信息）" {
		t.Errorf("画布不可读时应按空画布组装: %q", chapterCtx.CharacterInfo)
	}
	if !strings.Contains(chapterCtx.ChapterPlan, "无详细大纲") {
		t.Errorf("大纲不可读时应使用占位计划: %q", chapterCtx.ChapterPlan)
	}
}

func TestBuildChapterContextSkipsMissingSummaries(t *testing.T) {
	ctxService, canvas, _, chapters := newContextFixture(t)
	seedCanvas(t, canvas, "p1")

	// 只有第2章有摘要，第3章缺失
	if err := chapters.SaveSummary("p1", 2, &models.ChapterSummary{
		ChapterNumber: 2,
		Summary:       "第2章的事件",
	}); err != nil {
		t.Fatalf("预置摘要失败: %v", err)
	}

	chapterCtx, err := ctxService.BuildChapterContext("p1", 4)
	if err != nil {
		t.Fatalf("组装上下文失败: %v", err)
	}

	if !strings.Contains(chapterCtx.PreviousSummaries, "### 第 2 章摘要") {
		t.Errorf("应包含第2章摘要: %q", chapterCtx.PreviousSummaries)
	}
	if strings.Contains(chapterCtx.PreviousSummaries, "第 3 章摘要") {
		t.Errorf("缺失的摘要应被跳过: %q", chapterCtx.PreviousSummaries)
	}
}
