// internal/services/workflow_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Corphon/StoryForgeMCP/internal/agent"
	"github.com/Corphon/StoryForgeMCP/internal/config"
	apperrors "github.com/Corphon/StoryForgeMCP/internal/errors"
	"github.com/Corphon/StoryForgeMCP/internal/llm"
	"github.com/Corphon/StoryForgeMCP/internal/models"
	"github.com/Corphon/StoryForgeMCP/internal/storage"
)

// 测试提供者按脚本回放流式片段，脚本由每个测试在运行前设置
var (
	testFragments []llm.StreamResponse
	testHoldOpen  bool
)

type workflowTestProvider struct{}

func (p *workflowTestProvider) Initialize(config map[string]string) error { return nil }
func (p *workflowTestProvider) GetName() string                           { return "WorkflowTest" }
func (p *workflowTestProvider) GetSupportedModels() []string              { return nil }

func (p *workflowTestProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, errors.New("未实现")
}

func (p *workflowTestProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	fragments := testFragments
	holdOpen := testHoldOpen

	ch := make(chan llm.StreamResponse)
	go func() {
		defer close(ch)
		for _, fragment := range fragments {
			select {
			case ch <- fragment:
			case <-ctx.Done():
				return
			}
		}
		if holdOpen {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func init() {
	llm.Register("workflow-test", func() llm.Provider { return &workflowTestProvider{} })
}

type workflowFixture struct {
	workflow *WorkflowService
	projects *ProjectService
	canvas   *CanvasService
	outline  *OutlineService
	chapters *ChapterService
	project  *models.ProjectMeta
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	testFragments = nil
	testHoldOpen = false

	dataDir := t.TempDir()
	fs, err := storage.NewFileStorage(dataDir)
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}

	cfg := &config.Config{
		DataDir:         dataDir,
		GenerateTimeout: 2 * time.Second,
		LLMProvider:     "workflow-test",
		LLMConfig:       map[string]string{"api_key": "test"},
	}

	projects := NewProjectService(fs)
	canvas := NewCanvasService(fs)
	outline := NewOutlineService(fs)
	chapters := NewChapterService(fs)
	contexts := NewContextService(canvas, outline, chapters)
	sessions := agent.NewSessionStore(fs)
	llmService := NewLLMService(cfg)

	workflow := NewWorkflowService(cfg, llmService, projects, canvas, outline, chapters, contexts, sessions)

	project, err := projects.CreateProject(CreateProjectInput{
		Title: "测试项目",
		Style: models.StyleFantasy,
	})
	if err != nil {
		t.Fatalf("创建项目失败: %v", err)
	}

	return &workflowFixture{
		workflow: workflow,
		projects: projects,
		canvas:   canvas,
		outline:  outline,
		chapters: chapters,
		project:  project,
	}
}

func drainStream(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()

	var collected []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, ev)
		case <-timeout:
			t.Fatal("等待事件流超时")
		}
	}
}

func eventNames(events []StreamEvent) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	return names
}

func findEvent(events []StreamEvent, name string) (StreamEvent, bool) {
	for _, ev := range events {
		if ev.Name == name {
			return ev, true
		}
	}
	return StreamEvent{}, false
}

func assertTerminal(t *testing.T, events []StreamEvent, want string) {
	t.Helper()

	doneCount, errorCount := 0, 0
	for _, ev := range events {
		switch ev.Name {
		case StreamEventDone:
			doneCount++
		case StreamEventError:
			errorCount++
		}
	}
	if doneCount+errorCount != 1 {
		t.Fatalf("事件流应恰好有一个终结事件，done=%d error=%d: %v", doneCount, errorCount, eventNames(events))
	}
	if len(events) == 0 || events[len(events)-1].Name != want {
		t.Fatalf("终结事件应为 %s: %v", want, eventNames(events))
	}
}

func TestRunBrainstormPersistsAfterResult(t *testing.T) {
	f := newWorkflowFixture(t)

	reply := "我们可以把故事设定在蒸汽朋克世界。\n<canvas_update>{\"premise\":\"machinist uprising\",\"genre\":\"奇幻\"}</canvas_update>"
	testFragments = []llm.StreamResponse{
		{Text: "我们可以把故事"},
		{Text: "设定在蒸汽朋克世界。\n<canvas_update>{\"premise\":\"machinist uprising\",\"genre\":\"奇幻\"}</canvas_update>"},
		{Text: reply, FinishReason: "stop", Done: true},
	}

	events, err := f.workflow.RunBrainstorm(context.Background(), f.project.ID, "帮我构思一个故事", "")
	if err != nil {
		t.Fatalf("启动头脑风暴失败: %v", err)
	}
	collected := drainStream(t, events)
	assertTerminal(t, collected, StreamEventDone)

	if collected[0].Name != StreamEventSession {
		t.Errorf("首个事件应为session: %v", eventNames(collected))
	}

	canvasEv, ok := findEvent(collected, StreamEventCanvas)
	if !ok {
		t.Fatal("缺少canvas事件")
	}
	payload, ok := canvasEv.Data.(CanvasPayload)
	if !ok || payload.Canvas.Premise != "machinist uprising" {
		t.Errorf("canvas事件载荷错误: %+v", canvasEv.Data)
	}

	canvas, err := f.canvas.GetCanvas(f.project.ID)
	if err != nil {
		t.Fatalf("读取画布失败: %v", err)
	}
	if canvas.Premise != "machinist uprising" || canvas.Genre != "奇幻" {
		t.Errorf("画布未正确合并: %+v", canvas)
	}

	messages, err := f.projects.GetBrainstormMessages(f.project.ID)
	if err != nil {
		t.Fatalf("读取对话记录失败: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("应保存2条消息，实际 %d", len(messages))
	}
	if messages[1].Content != "我们可以把故事设定在蒸汽朋克世界。" {
		t.Errorf("助手消息应剥除标记: %q", messages[1].Content)
	}

	meta, err := f.projects.GetProject(f.project.ID)
	if err != nil {
		t.Fatalf("读取项目失败: %v", err)
	}
	if meta.BrainstormSessionID == "" {
		t.Error("项目应记录头脑风暴会话ID")
	}
}

func TestRunBrainstormInvalidPayloadIgnored(t *testing.T) {
	f := newWorkflowFixture(t)

	reply := "继续聊聊。<canvas_update>{这不是JSON}</canvas_update>"
	testFragments = []llm.StreamResponse{
		{Text: reply, FinishReason: "stop", Done: true},
	}

	events, err := f.workflow.RunBrainstorm(context.Background(), f.project.ID, "然后呢", "")
	if err != nil {
		t.Fatalf("启动头脑风暴失败: %v", err)
	}
	collected := drainStream(t, events)
	assertTerminal(t, collected, StreamEventDone)

	if _, ok := findEvent(collected, StreamEventCanvas); ok {
		t.Error("无效载荷不应产生canvas事件")
	}
	canvas, _ := f.canvas.GetCanvas(f.project.ID)
	if canvas.Premise != "" {
		t.Errorf("画布不应被修改: %+v", canvas)
	}
}

func TestRunBrainstormRejectsEmptyMessage(t *testing.T) {
	f := newWorkflowFixture(t)

	if _, err := f.workflow.RunBrainstorm(context.Background(), f.project.ID, "", ""); !apperrors.IsValidationError(err) {
		t.Errorf("空消息应返回验证错误，实际 %v", err)
	}
}

func TestRunOutlineRequiresPremise(t *testing.T) {
	f := newWorkflowFixture(t)

	if _, err := f.workflow.RunOutline(context.Background(), f.project.ID); !apperrors.IsValidationError(err) {
		t.Errorf("空画布应返回验证错误，实际 %v", err)
	}
}

func TestRunOutlinePersistsOutline(t *testing.T) {
	f := newWorkflowFixtureWithPremise(t)

	reply := "结构思路如下。\n<outline_json>{\"totalChapters\":2,\"estimatedWordCount\":10000,\"chapters\":[{\"number\":1,\"title\":\"启程\",\"synopsis\":\"主角离家\",\"keyEvents\":[\"离家\"],\"characters\":[\"林晚\"],\"emotionalTone\":\"紧张\",\"estimatedWords\":5000}]}</outline_json>"
	testFragments = []llm.StreamResponse{
		{Text: reply, FinishReason: "stop", Done: true},
	}

	events, err := f.workflow.RunOutline(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("启动大纲生成失败: %v", err)
	}
	collected := drainStream(t, events)
	assertTerminal(t, collected, StreamEventDone)

	// 大纲生成是无状态的一次性运行，不应携带会话事件
	if _, ok := findEvent(collected, StreamEventSession); ok {
		t.Errorf("大纲流不应包含session事件: %v", eventNames(collected))
	}

	outlineEv, ok := findEvent(collected, StreamEventOutline)
	if !ok {
		t.Fatal("缺少outline事件")
	}
	payload := outlineEv.Data.(OutlinePayload)
	if payload.Outline.TotalChapters != 2 || len(payload.Outline.Chapters) != 1 {
		t.Errorf("outline事件载荷错误: %+v", payload.Outline)
	}

	saved, err := f.outline.GetOutline(f.project.ID)
	if err != nil || saved == nil {
		t.Fatalf("大纲应已保存: %v", err)
	}
	if saved.Chapters[0].Title != "启程" {
		t.Errorf("大纲内容错误: %+v", saved.Chapters[0])
	}

	meta, _ := f.projects.GetProject(f.project.ID)
	if meta.Status != models.PhaseOutline {
		t.Errorf("项目阶段应推进到outline，实际 %s", meta.Status)
	}
}

// newWorkflowFixtureWithPremise 创建已完成头脑风暴（画布有前提）的项目
func newWorkflowFixtureWithPremise(t *testing.T) *workflowFixture {
	t.Helper()
	f := newWorkflowFixture(t)
	canvas, _ := f.canvas.GetCanvas(f.project.ID)
	canvas.Premise = "少女与机械师的冒险"
	canvas.Characters = []models.Character{
		{ID: "c1", Name: "林晚", Role: models.RoleProtagonist, Description: "机械师学徒"},
	}
	if err := f.canvas.SaveCanvas(f.project.ID, canvas); err != nil {
		t.Fatalf("预置画布失败: %v", err)
	}
	return f
}

func TestRunWriteChapterSavesContentAndSummary(t *testing.T) {
	f := newWorkflowFixtureWithPremise(t)

	reply := "第一章正文内容。林晚推开了车间的门。\n\n<chapter_summary>{\"chapterNumber\":1,\"summary\":\"林晚初登场\",\"characterStates\":{\"林晚\":\"离开车间\"},\"unresolved\":[\"神秘齿轮的来历\"]}</chapter_summary>"
	testFragments = []llm.StreamResponse{
		{Text: "第一章正文内容。"},
		{Text: "林晚推开了车间的门。\n\n<chapter_summary>{\"chapterNumber\":1,\"summary\":\"林晚初登场\",\"characterStates\":{\"林晚\":\"离开车间\"},\"unresolved\":[\"神秘齿轮的来历\"]}</chapter_summary>"},
		{Text: reply, FinishReason: "stop", Done: true},
	}

	events, err := f.workflow.RunWriteChapter(context.Background(), f.project.ID, 1)
	if err != nil {
		t.Fatalf("启动章节写作失败: %v", err)
	}
	collected := drainStream(t, events)
	assertTerminal(t, collected, StreamEventDone)

	// 章节写作同样无状态，不应携带会话事件
	if _, ok := findEvent(collected, StreamEventSession); ok {
		t.Errorf("章节流不应包含session事件: %v", eventNames(collected))
	}

	summaryEv, ok := findEvent(collected, StreamEventSummary)
	if !ok {
		t.Fatal("缺少summary事件")
	}
	payload := summaryEv.Data.(SummaryPayload)
	if payload.Summary.Summary != "林晚初登场" {
		t.Errorf("summary事件载荷错误: %+v", payload.Summary)
	}

	content, err := f.chapters.GetChapter(f.project.ID, 1)
	if err != nil {
		t.Fatalf("章节正文应已保存: %v", err)
	}
	if content != "第一章正文内容。林晚推开了车间的门。" {
		t.Errorf("章节正文应剥除摘要标记: %q", content)
	}

	summary, err := f.chapters.GetSummary(f.project.ID, 1)
	if err != nil || summary == nil {
		t.Fatalf("章节摘要应已保存: %v", err)
	}
	if len(summary.Unresolved) != 1 || summary.Unresolved[0] != "神秘齿轮的来历" {
		t.Errorf("摘要内容错误: %+v", summary)
	}

	meta, _ := f.projects.GetProject(f.project.ID)
	if meta.Status != models.PhaseWriting {
		t.Errorf("项目阶段应推进到writing，实际 %s", meta.Status)
	}
}

func TestRunWriteChapterCancellationSkipsPersistence(t *testing.T) {
	f := newWorkflowFixtureWithPremise(t)

	testFragments = []llm.StreamResponse{
		{Text: "写了一半的正文"},
	}
	testHoldOpen = true

	ctx, cancel := context.WithCancel(context.Background())
	events, err := f.workflow.RunWriteChapter(ctx, f.project.ID, 1)
	if err != nil {
		t.Fatalf("启动章节写作失败: %v", err)
	}

	var collected []StreamEvent
	for ev := range events {
		collected = append(collected, ev)
		if ev.Name == StreamEventText {
			cancel()
		}
	}
	cancel()

	for _, ev := range collected {
		if ev.Name == StreamEventDone || ev.Name == StreamEventError {
			t.Errorf("取消后不应有终结事件: %v", eventNames(collected))
		}
	}
	if f.chapters.ChapterExists(f.project.ID, 1) {
		t.Error("取消的运行不应保存章节")
	}
	if summary, _ := f.chapters.GetSummary(f.project.ID, 1); summary != nil {
		t.Error("取消的运行不应保存摘要")
	}
}

func TestRunWriteChapterTimeoutEmitsError(t *testing.T) {
	f := newWorkflowFixtureWithPremise(t)
	f.workflow.cfg.GenerateTimeout = 50 * time.Millisecond

	testFragments = []llm.StreamResponse{
		{Text: "开头"},
	}
	testHoldOpen = true

	events, err := f.workflow.RunWriteChapter(context.Background(), f.project.ID, 1)
	if err != nil {
		t.Fatalf("启动章节写作失败: %v", err)
	}
	collected := drainStream(t, events)
	assertTerminal(t, collected, StreamEventError)

	if f.chapters.ChapterExists(f.project.ID, 1) {
		t.Error("超时的运行不应保存章节")
	}
}

func TestRunWriteChapterRejectsInvalidNumber(t *testing.T) {
	f := newWorkflowFixture(t)

	if _, err := f.workflow.RunWriteChapter(context.Background(), f.project.ID, 0); !apperrors.IsValidationError(err) {
		t.Errorf("章节号0应返回验证错误，实际 %v", err)
	}
}
