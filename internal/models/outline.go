// internal/models/outline.go
package models

// Outline 章节大纲。每次生成整体替换，从不增量合并。
type Outline struct {
	TotalChapters      int              `json:"totalChapters"`
	EstimatedWordCount int              `json:"estimatedWordCount"`
	Chapters           []ChapterOutline `json:"chapters"`
}

// ChapterOutline 单章大纲
type ChapterOutline struct {
	Number         int      `json:"number"` // 1-based，与在 Chapters 中的位置一致
	Title          string   `json:"title"`
	Synopsis       string   `json:"synopsis"`
	KeyEvents      []string `json:"keyEvents"`
	Characters     []string `json:"characters"` // 引用 StoryCanvas.Characters 的 name
	EmotionalTone  string   `json:"emotionalTone"`
	EstimatedWords int      `json:"estimatedWords"`
}

// FindChapter 按章节号查找单章大纲，找不到返回 nil
func (o *Outline) FindChapter(number int) *ChapterOutline {
	if o == nil {
		return nil
	}
	for i := range o.Chapters {
		if o.Chapters[i].Number == number {
			return &o.Chapters[i]
		}
	}
	return nil
}
