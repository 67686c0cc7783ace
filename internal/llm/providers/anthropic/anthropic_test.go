// internal/llm/providers/anthropic/anthropic_test.go
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Corphon/StoryForgeMCP/internal/llm"
)

// newStreamingServer 模拟持续输出增量的Messages API流式端点
func newStreamingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; ; i++ {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			fmt.Fprintf(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"片段%d\"}}\n\n", i)
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	}))
}

func TestStreamCompletionStopsWhenConsumerCancels(t *testing.T) {
	server := newStreamingServer(t)
	defer server.Close()

	p := &Provider{baseURL: server.URL, apiVersion: "2023-06-01"}
	if err := p.Initialize(map[string]string{"api_key": "test", "base_url": server.URL}); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := p.StreamCompletion(ctx, llm.CompletionRequest{Prompt: "写"})
	if err != nil {
		t.Fatalf("启动流式请求失败: %v", err)
	}

	// 收到首个片段后取消并停止消费，流协程不能卡在发送上
	select {
	case <-stream:
	case <-time.After(2 * time.Second):
		t.Fatal("等待首个片段超时")
	}
	cancel()
	time.Sleep(100 * time.Millisecond)

	// 无人消费期间协程应已退出：下一次接收直接看到通道关闭
	select {
	case resp, ok := <-stream:
		if ok {
			t.Fatalf("取消后不应再收到片段: %+v", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消后流通道应被关闭")
	}
}
