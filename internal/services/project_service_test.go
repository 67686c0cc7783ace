// internal/services/project_service_test.go
package services

import (
	"testing"
	"time"

	apperrors "github.com/Corphon/StoryForgeMCP/internal/errors"
	"github.com/Corphon/StoryForgeMCP/internal/models"
	"github.com/Corphon/StoryForgeMCP/internal/storage"
)

func newProjectService(t *testing.T) *ProjectService {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	return NewProjectService(fs)
}

func TestCreateAndGetProject(t *testing.T) {
	s := newProjectService(t)

	meta, err := s.CreateProject(CreateProjectInput{
		Title:       "废土之歌",
		Description: "科幻长篇",
		Style:       models.StyleScifi,
	})
	if err != nil {
		t.Fatalf("创建项目失败: %v", err)
	}
	if meta.ID == "" || meta.Status != models.PhaseBrainstorm {
		t.Errorf("新项目元数据错误: %+v", meta)
	}

	loaded, err := s.GetProject(meta.ID)
	if err != nil {
		t.Fatalf("读取项目失败: %v", err)
	}
	if loaded.Title != "废土之歌" || loaded.Style != models.StyleScifi {
		t.Errorf("项目内容错误: %+v", loaded)
	}
}

func TestProjectTimestampsAreRFC3339Strings(t *testing.T) {
	s := newProjectService(t)

	meta, err := s.CreateProject(CreateProjectInput{Title: "时间戳", Style: models.StyleMystery})
	if err != nil {
		t.Fatalf("创建项目失败: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, meta.CreatedAt); err != nil {
		t.Errorf("createdAt应为RFC 3339字符串: %q (%v)", meta.CreatedAt, err)
	}
	if _, err := time.Parse(time.RFC3339, meta.UpdatedAt); err != nil {
		t.Errorf("updatedAt应为RFC 3339字符串: %q (%v)", meta.UpdatedAt, err)
	}

	loaded, err := s.GetProject(meta.ID)
	if err != nil {
		t.Fatalf("读取项目失败: %v", err)
	}
	if loaded.CreatedAt != meta.CreatedAt {
		t.Errorf("时间戳读写应一致: %q vs %q", loaded.CreatedAt, meta.CreatedAt)
	}

	if err := s.AppendBrainstormMessages(meta.ID, "问", "答"); err != nil {
		t.Fatalf("追加消息失败: %v", err)
	}
	messages, err := s.GetBrainstormMessages(meta.ID)
	if err != nil {
		t.Fatalf("读取消息失败: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, messages[0].Timestamp); err != nil {
		t.Errorf("消息时间戳应为RFC 3339字符串: %q (%v)", messages[0].Timestamp, err)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	s := newProjectService(t)

	if _, err := s.CreateProject(CreateProjectInput{Style: models.StyleScifi}); !apperrors.IsValidationError(err) {
		t.Errorf("空标题应返回验证错误，实际 %v", err)
	}
	if _, err := s.CreateProject(CreateProjectInput{Title: "x", Style: "steampunk"}); !apperrors.IsValidationError(err) {
		t.Errorf("未知风格应返回验证错误，实际 %v", err)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	s := newProjectService(t)

	if _, err := s.GetProject("missing"); !apperrors.IsNotFoundError(err) {
		t.Errorf("不存在的项目应返回未找到错误，实际 %v", err)
	}
}

func TestUpdateProjectPartial(t *testing.T) {
	s := newProjectService(t)

	meta, err := s.CreateProject(CreateProjectInput{Title: "原标题", Style: models.StyleFantasy})
	if err != nil {
		t.Fatalf("创建项目失败: %v", err)
	}

	newTitle := "新标题"
	phase := models.PhaseOutline
	updated, err := s.UpdateProject(meta.ID, UpdateProjectInput{
		Title:  &newTitle,
		Status: &phase,
	})
	if err != nil {
		t.Fatalf("更新项目失败: %v", err)
	}
	if updated.Title != "新标题" || updated.Status != models.PhaseOutline {
		t.Errorf("部分更新结果错误: %+v", updated)
	}
	// 未提供的字段保持原值
	if updated.Style != models.StyleFantasy {
		t.Errorf("未更新的字段不应改变: %+v", updated)
	}
}

func TestDeleteProject(t *testing.T) {
	s := newProjectService(t)

	meta, err := s.CreateProject(CreateProjectInput{Title: "待删除", Style: models.StyleLiterary})
	if err != nil {
		t.Fatalf("创建项目失败: %v", err)
	}

	if err := s.DeleteProject(meta.ID); err != nil {
		t.Fatalf("删除项目失败: %v", err)
	}
	if _, err := s.GetProject(meta.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("删除后读取应返回未找到错误，实际 %v", err)
	}
	if err := s.DeleteProject(meta.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("重复删除应返回未找到错误，实际 %v", err)
	}
}

func TestAppendBrainstormMessages(t *testing.T) {
	s := newProjectService(t)

	meta, err := s.CreateProject(CreateProjectInput{Title: "对话测试", Style: models.StyleRomance})
	if err != nil {
		t.Fatalf("创建项目失败: %v", err)
	}

	if err := s.AppendBrainstormMessages(meta.ID, "第一问", "第一答"); err != nil {
		t.Fatalf("追加消息失败: %v", err)
	}
	if err := s.AppendBrainstormMessages(meta.ID, "第二问", "第二答"); err != nil {
		t.Fatalf("追加消息失败: %v", err)
	}

	messages, err := s.GetBrainstormMessages(meta.ID)
	if err != nil {
		t.Fatalf("读取消息失败: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("应有4条消息，实际 %d", len(messages))
	}
	if messages[0].Role != "user" || messages[0].Content != "第一问" {
		t.Errorf("消息顺序错误: %+v", messages[0])
	}
	if messages[3].Role != "assistant" || messages[3].Content != "第二答" {
		t.Errorf("消息顺序错误: %+v", messages[3])
	}
}
