// internal/tags/tags.go
package tags

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Kind 结构化载荷的标记类型，每个生成阶段各对应一种
type Kind string

const (
	KindCanvasUpdate   Kind = "canvas_update"
	KindOutline        Kind = "outline_json"
	KindChapterSummary Kind = "chapter_summary"
)

var allKinds = []Kind{KindCanvasUpdate, KindOutline, KindChapterSummary}

// 每种标记的非贪婪整段匹配，预编译复用
var spanPatterns = func() map[Kind]*regexp.Regexp {
	m := make(map[Kind]*regexp.Regexp, len(allKinds))
	for _, k := range allKinds {
		m[k] = regexp.MustCompile(fmt.Sprintf(`(?s)<%s>(.*?)</%s>`, k, k))
	}
	return m
}()

// ExtractFirst 在完整文本中查找第一个完整的 <kind>...</kind> 区段并返回
// 其中的 JSON 原文。没有完整区段、或区段内容不是合法 JSON 时返回 false —
// 结构化提取是尽力而为的，从不报错。
func ExtractFirst(kind Kind, text string) (json.RawMessage, bool) {
	m := spanPatterns[kind].FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	payload := strings.TrimSpace(m[1])
	if !json.Valid([]byte(payload)) {
		return nil, false
	}
	return json.RawMessage(payload), true
}

// ExtractJSON 提取第一个完整区段并反序列化到 v。
// 解析失败同样按"无载荷"处理。
func ExtractJSON(kind Kind, text string, v any) bool {
	raw, ok := ExtractFirst(kind, text)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false
	}
	return true
}

// Strip 从文本中移除所有已知类型的完整标记区段，以及末尾未闭合的
// 标记（含只输出了一半的起始标记），得到展示给读者的正文。
// 幂等：重复调用结果不变。
func Strip(text string) string {
	for _, k := range allKinds {
		text = spanPatterns[k].ReplaceAllString(text, "")
	}

	// 剩下的起始标记必然没有对应的闭合标记，从最早的一个起全部截掉
	cut := -1
	for _, k := range allKinds {
		if i := strings.Index(text, "<"+string(k)+">"); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut >= 0 {
		text = text[:cut]
	}

	text = trimPartialMarker(text)
	return strings.TrimSpace(text)
}

// trimPartialMarker 去掉文本末尾可能是起始标记前缀的残片，
// 例如流式输出中途截断产生的 "<canvas_up"
func trimPartialMarker(text string) string {
	for _, k := range allKinds {
		marker := "<" + string(k) + ">"
		for n := len(marker) - 1; n >= 1; n-- {
			if strings.HasSuffix(text, marker[:n]) {
				return text[:len(text)-n]
			}
		}
	}
	return text
}
