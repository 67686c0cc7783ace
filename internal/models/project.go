// internal/models/project.go
package models

// WritingStyle 写作风格
type WritingStyle string

const (
	StyleLiterary WritingStyle = "literary"
	StyleWebnovel WritingStyle = "webnovel"
	StyleMystery  WritingStyle = "mystery"
	StyleScifi    WritingStyle = "scifi"
	StyleFantasy  WritingStyle = "fantasy"
	StyleRomance  WritingStyle = "romance"
	StyleCustom   WritingStyle = "custom"
)

// ProjectPhase 项目所处的创作阶段
type ProjectPhase string

const (
	PhaseBrainstorm ProjectPhase = "brainstorm"
	PhaseOutline    ProjectPhase = "outline"
	PhaseWriting    ProjectPhase = "writing"
	PhaseCompleted  ProjectPhase = "completed"
)

// ProjectMeta 写作项目元数据
type ProjectMeta struct {
	ID                     string       `json:"id"`
	Title                  string       `json:"title"`
	Description            string       `json:"description"`
	Style                  WritingStyle `json:"style"`
	CustomStyleDescription string       `json:"customStyleDescription,omitempty"`
	Status                 ProjectPhase `json:"status"`
	// RFC 3339 字符串，与存储中的JSON形态一致
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`

	// 头脑风暴阶段的可恢复会话句柄，大纲与章节阶段始终无状态
	BrainstormSessionID string `json:"brainstormSessionId,omitempty"`
}

// IsValidStyle 检查写作风格是否受支持
func IsValidStyle(s WritingStyle) bool {
	switch s {
	case StyleLiterary, StyleWebnovel, StyleMystery, StyleScifi,
		StyleFantasy, StyleRomance, StyleCustom:
		return true
	}
	return false
}
