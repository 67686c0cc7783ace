// internal/agent/agent.go
package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Corphon/StoryForgeMCP/internal/llm"
)

// EventType 标识运行事件的种类
type EventType string

const (
	// EventSession 会话已建立，携带会话ID
	EventSession EventType = "session"
	// EventText 流式文本增量
	EventText EventType = "text"
	// EventResult 运行完成，携带完整的最终文本
	EventResult EventType = "result"
)

// Event 是一次代理运行产出的规范化事件。
// 事件顺序固定：有状态运行先发session，然后零个或多个text，
// 最后至多一个result；无状态运行不发session。
type Event struct {
	Type      EventType
	SessionID string
	Content   string
}

// Request 描述一次代理运行
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float32

	// SessionID 非空时恢复已有会话，把历史对话带入本次请求
	SessionID string
	// Persist 为真时在运行成功后保存会话记录，供后续恢复
	Persist bool
}

// Runner 把底层提供者的流式响应适配为规范化事件流。
// 提供者的终结片段可能重复携带完整文本，Runner负责按已转发
// 长度去重，保证text增量拼接起来恰好等于result的内容。
type Runner struct {
	provider llm.Provider
	sessions *SessionStore
}

// NewRunner 创建代理运行器。sessions 可以为 nil，此时 Persist 请求
// 仍会分配会话ID但不保存会话记录。
func NewRunner(provider llm.Provider, sessions *SessionStore) *Runner {
	return &Runner{
		provider: provider,
		sessions: sessions,
	}
}

// Run 启动一次代理运行，同步返回事件通道。连接或恢复会话失败时
// 直接返回错误，不产生任何事件。事件通道总会被关闭；上下文取消
// 时不产出result事件，调用方据此判断运行未完成。
func (r *Runner) Run(ctx context.Context, req Request) (<-chan Event, error) {
	// 只有可恢复的运行才需要会话句柄；一次性运行保持无状态
	stateful := req.Persist || req.SessionID != ""
	sessionID := req.SessionID
	if sessionID == "" && stateful {
		sessionID = uuid.NewString()
	}

	var history []llm.Message
	if req.SessionID != "" && r.sessions != nil {
		var err error
		history, err = r.sessions.History(req.SessionID)
		if err != nil {
			return nil, err
		}
	}

	stream, err := r.provider.StreamCompletion(ctx, llm.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		History:      history,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Stream:       true,
	})
	if err != nil {
		return nil, err
	}

	events := make(chan Event)

	go func() {
		defer close(events)

		if stateful {
			if !r.emit(ctx, events, Event{Type: EventSession, SessionID: sessionID}) {
				return
			}
		}

		var forwarded strings.Builder

		for fragment := range stream {
			if fragment.Done {
				final := fragment.Text
				if final == "" {
					final = forwarded.String()
				}
				// 终结片段携带的完整文本里，只把尚未转发的尾部作为增量发出
				if len(final) > forwarded.Len() {
					if !r.emit(ctx, events, Event{Type: EventText, Content: final[forwarded.Len():]}) {
						return
					}
				}
				r.finish(ctx, events, req, sessionID, final)
				return
			}

			if fragment.Text == "" {
				continue
			}
			forwarded.WriteString(fragment.Text)
			if !r.emit(ctx, events, Event{Type: EventText, Content: fragment.Text}) {
				return
			}
		}

		// 流在没有终结片段的情况下关闭：取消视为未完成，
		// 否则以已累积的文本作为最终结果
		if ctx.Err() != nil {
			return
		}
		r.finish(ctx, events, req, sessionID, forwarded.String())
	}()

	return events, nil
}

func (r *Runner) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish 发出result事件并在需要时保存会话记录。
// 记录保存严格发生在运行成功之后，中途取消不会留下半截会话。
func (r *Runner) finish(ctx context.Context, events chan<- Event, req Request, sessionID, final string) {
	if ctx.Err() != nil {
		return
	}

	if req.Persist && r.sessions != nil {
		// 保存失败不阻断结果交付，调用方仍能拿到完整文本
		_ = r.sessions.Append(sessionID,
			llm.Message{Role: llm.RoleUser, Content: req.Prompt},
			llm.Message{Role: llm.RoleAssistant, Content: final},
		)
	}

	r.emit(ctx, events, Event{Type: EventResult, SessionID: sessionID, Content: final})
}
