// internal/services/workflow_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Corphon/StoryForgeMCP/internal/agent"
	"github.com/Corphon/StoryForgeMCP/internal/config"
	apperrors "github.com/Corphon/StoryForgeMCP/internal/errors"
	"github.com/Corphon/StoryForgeMCP/internal/models"
	"github.com/Corphon/StoryForgeMCP/internal/tags"
)

// 流式事件名。每条流以done或error结尾，二者互斥。
const (
	StreamEventSession = "session"
	StreamEventText    = "text"
	StreamEventCanvas  = "canvas"
	StreamEventOutline = "outline"
	StreamEventSummary = "summary"
	StreamEventDone    = "done"
	StreamEventError   = "error"
)

// StreamEvent 推送给客户端的一条流式事件
type StreamEvent struct {
	Name string
	Data any
}

// SessionPayload session事件数据
type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

// TextPayload text事件数据
type TextPayload struct {
	Content string `json:"content"`
}

// CanvasPayload canvas事件数据，携带合并后的完整画布
type CanvasPayload struct {
	Canvas *models.StoryCanvas `json:"canvas"`
}

// OutlinePayload outline事件数据
type OutlinePayload struct {
	Outline *models.Outline `json:"outline"`
}

// SummaryPayload summary事件数据
type SummaryPayload struct {
	Summary *models.ChapterSummary `json:"summary"`
}

// ErrorPayload error事件数据
type ErrorPayload struct {
	Message string `json:"message"`
}

// WorkflowService 编排三个创作阶段：头脑风暴、大纲生成和章节写作。
// 每个阶段都遵循同一套规则：
//   - 输入校验失败同步返回错误，不产生事件流
//   - 文本增量原样转发，内嵌标记的提取只在最终文本上做一次
//   - 所有持久化严格发生在运行成功（result）之后
//   - 客户端断开时中止生成且不持久化任何产物
type WorkflowService struct {
	cfg      *config.Config
	llm      *LLMService
	projects *ProjectService
	canvas   *CanvasService
	outline  *OutlineService
	chapters *ChapterService
	contexts *ContextService
	sessions *agent.SessionStore
	log      *logrus.Entry
}

// NewWorkflowService 创建工作流服务
func NewWorkflowService(
	cfg *config.Config,
	llmService *LLMService,
	projects *ProjectService,
	canvas *CanvasService,
	outline *OutlineService,
	chapters *ChapterService,
	contexts *ContextService,
	sessions *agent.SessionStore,
) *WorkflowService {
	return &WorkflowService{
		cfg:      cfg,
		llm:      llmService,
		projects: projects,
		canvas:   canvas,
		outline:  outline,
		chapters: chapters,
		contexts: contexts,
		sessions: sessions,
		log:      logrus.WithField("component", "workflow"),
	}
}

// RunBrainstorm 执行一轮头脑风暴对话。sessionID非空时恢复已有会话。
// 运行成功后：合并画布更新（如有）、追加对话记录、把会话ID写回项目。
func (s *WorkflowService) RunBrainstorm(ctx context.Context, projectID, message, sessionID string) (<-chan StreamEvent, error) {
	if message == "" {
		return nil, apperrors.NewValidationError("消息内容不能为空", nil)
	}
	if _, err := s.projects.GetProject(projectID); err != nil {
		return nil, err
	}
	provider, err := s.llm.Provider()
	if err != nil {
		return nil, err
	}

	runner := agent.NewRunner(provider, s.sessions)
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		runCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()

		finalText, resultSession, ok := s.runAgent(ctx, runCtx, out, runner, agent.Request{
			Prompt:       message,
			SystemPrompt: agent.BrainstormSystemPrompt,
			SessionID:    sessionID,
			Persist:      true,
		})
		if !ok {
			return
		}

		var update models.CanvasUpdate
		if tags.ExtractJSON(tags.KindCanvasUpdate, finalText, &update) {
			merged, err := s.canvas.MergeCanvas(projectID, &update)
			if err != nil {
				s.fail(ctx, out, projectID, "保存画布更新失败", err)
				return
			}
			s.emit(ctx, out, StreamEvent{Name: StreamEventCanvas, Data: CanvasPayload{Canvas: merged}})
		}

		// 对话记录保存剥除标记后的文本，标记只面向机器
		if err := s.projects.AppendBrainstormMessages(projectID, message, tags.Strip(finalText)); err != nil {
			s.fail(ctx, out, projectID, "保存对话记录失败", err)
			return
		}
		if _, err := s.projects.UpdateProject(projectID, UpdateProjectInput{
			BrainstormSessionID: &resultSession,
		}); err != nil {
			s.fail(ctx, out, projectID, "保存会话ID失败", err)
			return
		}

		s.emit(ctx, out, StreamEvent{Name: StreamEventDone, Data: struct{}{}})
	}()

	return out, nil
}

// RunOutline 根据故事画布生成完整章节大纲。画布没有故事前提时
// 同步拒绝。成功解析到大纲时保存并把项目推进到outline阶段。
func (s *WorkflowService) RunOutline(ctx context.Context, projectID string) (<-chan StreamEvent, error) {
	if _, err := s.projects.GetProject(projectID); err != nil {
		return nil, err
	}
	canvas, err := s.canvas.GetCanvas(projectID)
	if err != nil {
		return nil, err
	}
	if canvas.Premise == "" {
		return nil, apperrors.NewValidationError("故事画布为空，请先完成头脑风暴", nil)
	}
	provider, err := s.llm.Provider()
	if err != nil {
		return nil, err
	}

	runner := agent.NewRunner(provider, nil)
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		runCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()

		finalText, _, ok := s.runAgent(ctx, runCtx, out, runner, agent.Request{
			Prompt:       agent.BuildOutlinePrompt(canvas),
			SystemPrompt: agent.OutlineSystemPrompt,
		})
		if !ok {
			return
		}

		var outline models.Outline
		if tags.ExtractJSON(tags.KindOutline, finalText, &outline) {
			if err := s.outline.SaveOutline(projectID, &outline); err != nil {
				s.fail(ctx, out, projectID, "保存大纲失败", err)
				return
			}
			phase := models.PhaseOutline
			if _, err := s.projects.UpdateProject(projectID, UpdateProjectInput{Status: &phase}); err != nil {
				s.fail(ctx, out, projectID, "更新项目阶段失败", err)
				return
			}
			s.emit(ctx, out, StreamEvent{Name: StreamEventOutline, Data: OutlinePayload{Outline: &outline}})
		} else {
			s.log.WithField("project", projectID).Warn("大纲回复中未解析到有效的大纲JSON")
		}

		s.emit(ctx, out, StreamEvent{Name: StreamEventDone, Data: struct{}{}})
	}()

	return out, nil
}

// RunWriteChapter 写作指定章节。成功后保存剥除摘要标记的正文、
// 章节摘要（如有），并把项目推进到writing阶段。
func (s *WorkflowService) RunWriteChapter(ctx context.Context, projectID string, chapterNumber int) (<-chan StreamEvent, error) {
	if chapterNumber < 1 {
		return nil, apperrors.NewValidationError("章节号必须从1开始", nil)
	}
	project, err := s.projects.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	provider, err := s.llm.Provider()
	if err != nil {
		return nil, err
	}

	chapterCtx, err := s.contexts.BuildChapterContext(projectID, chapterNumber)
	if err != nil {
		return nil, fmt.Errorf("组装章节上下文失败: %w", err)
	}

	styleModifier := agent.StyleModifier(project.Style, project.CustomStyleDescription)
	runner := agent.NewRunner(provider, nil)
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		runCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()

		finalText, _, ok := s.runAgent(ctx, runCtx, out, runner, agent.Request{
			Prompt:       agent.BuildWriterPrompt(chapterCtx, chapterNumber),
			SystemPrompt: agent.WriterSystemPrompt(styleModifier),
		})
		if !ok {
			return
		}

		var summary models.ChapterSummary
		if tags.ExtractJSON(tags.KindChapterSummary, finalText, &summary) {
			if err := s.chapters.SaveSummary(projectID, chapterNumber, &summary); err != nil {
				s.fail(ctx, out, projectID, "保存章节摘要失败", err)
				return
			}
			s.emit(ctx, out, StreamEvent{Name: StreamEventSummary, Data: SummaryPayload{Summary: &summary}})
		}

		if content := tags.Strip(finalText); content != "" {
			if err := s.chapters.SaveChapter(projectID, chapterNumber, content); err != nil {
				s.fail(ctx, out, projectID, "保存章节失败", err)
				return
			}
		}

		phase := models.PhaseWriting
		if _, err := s.projects.UpdateProject(projectID, UpdateProjectInput{Status: &phase}); err != nil {
			s.fail(ctx, out, projectID, "更新项目阶段失败", err)
			return
		}

		s.emit(ctx, out, StreamEvent{Name: StreamEventDone, Data: struct{}{}})
	}()

	return out, nil
}

// runAgent 执行一次代理运行并转发session/text事件。
// 返回最终文本和会话ID；ok为假表示运行未成功完成（已按需发出
// error事件），调用方不得做任何持久化。
func (s *WorkflowService) runAgent(
	parentCtx, runCtx context.Context,
	out chan<- StreamEvent,
	runner *agent.Runner,
	req agent.Request,
) (string, string, bool) {
	events, err := runner.Run(runCtx, req)
	if err != nil {
		s.emit(parentCtx, out, StreamEvent{Name: StreamEventError, Data: ErrorPayload{Message: err.Error()}})
		return "", "", false
	}

	var finalText, sessionID string
	gotResult := false

	for ev := range events {
		switch ev.Type {
		case agent.EventSession:
			sessionID = ev.SessionID
			if !s.emit(parentCtx, out, StreamEvent{Name: StreamEventSession, Data: SessionPayload{SessionID: ev.SessionID}}) {
				return "", "", false
			}
		case agent.EventText:
			if !s.emit(parentCtx, out, StreamEvent{Name: StreamEventText, Data: TextPayload{Content: ev.Content}}) {
				return "", "", false
			}
		case agent.EventResult:
			gotResult = true
			finalText = ev.Content
			sessionID = ev.SessionID
		}
	}

	if !gotResult {
		// 客户端断开：静默结束。超时：仍可向客户端报告错误。
		if parentCtx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			s.emit(parentCtx, out, StreamEvent{Name: StreamEventError, Data: ErrorPayload{Message: "生成超时，请重试"}})
		}
		return "", "", false
	}
	return finalText, sessionID, true
}

func (s *WorkflowService) emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *WorkflowService) fail(ctx context.Context, out chan<- StreamEvent, projectID, message string, err error) {
	s.log.WithField("project", projectID).WithError(err).Error(message)
	s.emit(ctx, out, StreamEvent{Name: StreamEventError, Data: ErrorPayload{Message: message}})
}
