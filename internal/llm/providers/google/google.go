// internal/llm/providers/google/google.go
package google

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Corphon/StoryForgeMCP/internal/llm"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			recommendedModels: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
			},
			baseURL: "https://generativelanguage.googleapis.com/v1beta",
		}
	})
}

type Provider struct {
	apiKey            string
	baseURL           string
	client            *http.Client
	defaultModel      string
	recommendedModels []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("google api密钥未提供")
	}

	p.apiKey = apiKey
	p.client = &http.Client{}

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gemini-2.5-flash"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = baseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "Google Gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.recommendedModels
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// buildContents 把历史对话映射为Gemini的contents列表，
// assistant角色在Gemini里叫"model"
func buildContents(req llm.CompletionRequest) []geminiContent {
	contents := make([]geminiContent, 0, len(req.History)+1)
	for _, msg := range req.History {
		role := msg.Role
		if role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: req.Prompt}},
	})
	return contents
}

func (p *Provider) buildRequestBody(req llm.CompletionRequest) map[string]interface{} {
	requestBody := map[string]interface{}{
		"contents": buildContents(req),
	}

	generationConfig := map[string]interface{}{}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		generationConfig["temperature"] = req.Temperature
	}
	if len(generationConfig) > 0 {
		requestBody["generationConfig"] = generationConfig
	}

	if req.SystemPrompt != "" {
		requestBody["systemInstruction"] = geminiContent{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		}
	}
	return requestBody
}

func (p *Provider) newRequest(ctx context.Context, url string, body map[string]interface{}) (*http.Request, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", p.apiKey)
	return httpReq, nil
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (r *geminiResponse) text() string {
	var sb strings.Builder
	for _, candidate := range r.Candidates {
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
		break
	}
	return sb.String()
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	httpReq, err := p.newRequest(ctx, url, p.buildRequestBody(req))
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("google api错误(%d): %s", httpResp.StatusCode, string(body))
	}

	var response geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}

	text := response.text()
	if text == "" {
		return nil, errors.New("google未返回文本内容")
	}

	finishReason := ""
	if len(response.Candidates) > 0 {
		finishReason = response.Candidates[0].FinishReason
	}

	return &llm.CompletionResponse{
		Text:         text,
		FinishReason: finishReason,
		TokensUsed:   response.UsageMetadata.TotalTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

// StreamCompletion 实现流式响应，使用alt=sse获取SSE格式的分块
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, model)
	httpReq, err := p.newRequest(ctx, url, p.buildRequestBody(req))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		return nil, fmt.Errorf("google api错误(%d): %s", httpResp.StatusCode, string(body))
	}

	respChan := make(chan llm.StreamResponse)

	go func() {
		defer httpResp.Body.Close()
		defer close(respChan)

		// 消费方取消后不再接收，发送必须同时等待上下文结束
		send := func(resp llm.StreamResponse) bool {
			select {
			case respChan <- resp:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reader := bufio.NewReader(httpResp.Body)
		var contentBuffer strings.Builder
		finishReason := "stop"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				// Gemini的SSE流没有显式的终止事件，EOF即结束
				send(llm.StreamResponse{
					Text:         contentBuffer.String(),
					FinishReason: finishReason,
					Done:         true,
				})
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			line = line[6:]

			var chunk geminiResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}

			if text := chunk.text(); text != "" {
				contentBuffer.WriteString(text)
				if !send(llm.StreamResponse{Text: text}) {
					return
				}
			}
			if len(chunk.Candidates) > 0 && chunk.Candidates[0].FinishReason != "" {
				finishReason = strings.ToLower(chunk.Candidates[0].FinishReason)
			}
		}
	}()

	return respChan, nil
}
