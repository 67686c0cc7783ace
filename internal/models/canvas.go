// internal/models/canvas.go
package models

// CharacterRole 角色在故事中的定位
type CharacterRole string

const (
	RoleProtagonist CharacterRole = "protagonist"
	RoleAntagonist  CharacterRole = "antagonist"
	RoleSupporting  CharacterRole = "supporting"
	RoleMinor       CharacterRole = "minor"
)

// StoryCanvas 故事画布：头脑风暴阶段逐步累积的故事设定
//
// 不变式：缺失字段始终规范化为空字符串/空列表，绝不为 null，
// 这样下游的格式化逻辑不需要区分"缺失"与"为空"。
type StoryCanvas struct {
	Premise         string       `json:"premise"`
	Genre           string       `json:"genre"`
	Setting         WorldSetting `json:"setting"`
	Characters      []Character  `json:"characters"`
	PlotPoints      []PlotPoint  `json:"plotPoints"`
	Themes          []string     `json:"themes"`
	Tone            string       `json:"tone"`
	TargetWordCount int          `json:"targetWordCount,omitempty"`
}

// WorldSetting 世界观设定
type WorldSetting struct {
	TimePeriod string `json:"timePeriod"`
	Location   string `json:"location"`
	Rules      string `json:"rules"`
	Atmosphere string `json:"atmosphere"`
}

// Character 角色设定。跨引用（大纲章节中的出场角色）按 name
// 不区分大小写匹配，而不是按 id。
type Character struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Role        CharacterRole `json:"role"`
	Description string        `json:"description"`
	Motivation  string        `json:"motivation"`
	Arc         string        `json:"arc"`
}

// PlotPoint 情节点
type PlotPoint struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"` // setup / rising / climax / falling / resolution
}

// NewEmptyCanvas 创建一个空画布，列表字段均为非 nil 空切片
func NewEmptyCanvas() *StoryCanvas {
	return &StoryCanvas{
		Characters: []Character{},
		PlotPoints: []PlotPoint{},
		Themes:     []string{},
	}
}

// Normalize 将反序列化后可能为 nil 的列表字段规范化为空切片
func (c *StoryCanvas) Normalize() {
	if c.Characters == nil {
		c.Characters = []Character{}
	}
	if c.PlotPoints == nil {
		c.PlotPoints = []PlotPoint{}
	}
	if c.Themes == nil {
		c.Themes = []string{}
	}
}

// CanvasUpdate 画布的部分更新。指针字段用于区分"未提供"和"置空"：
// 顶层标量字段整体替换，setting 对象浅合并，列表字段整体替换。
type CanvasUpdate struct {
	Premise         *string             `json:"premise,omitempty"`
	Genre           *string             `json:"genre,omitempty"`
	Setting         *WorldSettingUpdate `json:"setting,omitempty"`
	Characters      []Character         `json:"characters,omitempty"`
	PlotPoints      []PlotPoint         `json:"plotPoints,omitempty"`
	Themes          []string            `json:"themes,omitempty"`
	Tone            *string             `json:"tone,omitempty"`
	TargetWordCount *int                `json:"targetWordCount,omitempty"`
}

// WorldSettingUpdate 世界观设定的浅合并更新
type WorldSettingUpdate struct {
	TimePeriod *string `json:"timePeriod,omitempty"`
	Location   *string `json:"location,omitempty"`
	Rules      *string `json:"rules,omitempty"`
	Atmosphere *string `json:"atmosphere,omitempty"`
}

// ApplyTo 将部分更新合并进现有画布
func (u *CanvasUpdate) ApplyTo(c *StoryCanvas) {
	if u.Premise != nil {
		c.Premise = *u.Premise
	}
	if u.Genre != nil {
		c.Genre = *u.Genre
	}
	if u.Tone != nil {
		c.Tone = *u.Tone
	}
	if u.TargetWordCount != nil {
		c.TargetWordCount = *u.TargetWordCount
	}
	if u.Setting != nil {
		if u.Setting.TimePeriod != nil {
			c.Setting.TimePeriod = *u.Setting.TimePeriod
		}
		if u.Setting.Location != nil {
			c.Setting.Location = *u.Setting.Location
		}
		if u.Setting.Rules != nil {
			c.Setting.Rules = *u.Setting.Rules
		}
		if u.Setting.Atmosphere != nil {
			c.Setting.Atmosphere = *u.Setting.Atmosphere
		}
	}
	if u.Characters != nil {
		c.Characters = u.Characters
	}
	if u.PlotPoints != nil {
		c.PlotPoints = u.PlotPoints
	}
	if u.Themes != nil {
		c.Themes = u.Themes
	}
	c.Normalize()
}
