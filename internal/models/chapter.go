// internal/models/chapter.go
package models

// ChapterSummary 已写成章节的摘要。仅在该章正文生成之后创建，
// 重写章节时整体覆盖。
type ChapterSummary struct {
	ChapterNumber   int               `json:"chapterNumber"`
	Summary         string            `json:"summary"`
	CharacterStates map[string]string `json:"characterStates"`
	Unresolved      []string          `json:"unresolved"`
}

// ChapterContext 为写作某一章组装的上下文。五个独立格式化的文本段，
// 由各阶段编排器按自己的提示词模板排版，不做扁平拼接。
type ChapterContext struct {
	// 故事前提、类型与世界观设定
	StoryInfo string
	// 与本章相关的角色信息
	CharacterInfo string
	// 前面最多3章的摘要（滑动窗口）
	PreviousSummaries string
	// 从前面章节摘要中收集的未解决线索
	UnresolvedThreads string
	// 本章的大纲计划
	ChapterPlan string
}
