package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/MayerS22/Taskify/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.TaskAccess{}, &model.Invitation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, nil, logger, 7*24*time.Hour)
}

func createUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	user := model.User{
		Email:     email,
		Password:  "x",
		FirstName: "Test",
		LastName:  "User",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &user
}

func TestCreate_InsertsSingleOwnerAccess(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")

	created, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "write report"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected task id to be set")
	}
	if created.Status != model.StatusTodo {
		t.Fatalf("expected default status todo, got %q", created.Status)
	}
	if created.Category != "Other" {
		t.Fatalf("expected default category Other, got %q", created.Category)
	}

	var accesses []model.TaskAccess
	if err := db.Where("task_id = ?", created.ID).Find(&accesses).Error; err != nil {
		t.Fatalf("query accesses: %v", err)
	}
	if len(accesses) != 1 {
		t.Fatalf("expected exactly one access row, got %d", len(accesses))
	}
	if accesses[0].Role != model.RoleOwner || accesses[0].UserID != owner.ID {
		t.Fatalf("expected owner row for the creator, got %+v", accesses[0])
	}
}

func TestCreate_EmptyTitleRejected(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")

	if _, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	var count int64
	db.Model(&model.Task{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no task row, got %d", count)
	}
}

func TestCreate_InvalidStatusRejected(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")

	_, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "x", Status: "done"})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestGet_NonMemberGetsNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")
	stranger := createUser(t, db, "stranger@example.com")

	created, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := svc.Get(context.Background(), created.ID, stranger.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-member, got %v", err)
	}

	// The same error for a task that does not exist at all.
	if _, _, err := svc.Get(context.Background(), created.ID+1000, stranger.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent task, got %v", err)
	}
}

func TestGet_MemberSeesTaskWithRole(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")

	created, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "mine"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, role, err := svc.Get(context.Background(), created.ID, owner.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "mine" || role != model.RoleOwner {
		t.Fatalf("unexpected result: title=%q role=%q", got.Title, role)
	}
}

func TestList_ReturnsOwnedAndShared(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")

	own, err := svc.Create(context.Background(), bob.ID, CreateInput{Title: "bobs own"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	shared, err := svc.Create(context.Background(), alice.ID, CreateInput{Title: "alices shared"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Share(context.Background(), shared.ID, alice.ID, bob.ID, model.RoleViewer); err != nil {
		t.Fatalf("share: %v", err)
	}
	// A task Bob cannot see at all.
	if _, err := svc.Create(context.Background(), alice.ID, CreateInput{Title: "alices private"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := svc.List(context.Background(), bob.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	roles := map[uint]model.Role{}
	for _, tsk := range tasks {
		roles[tsk.ID] = tsk.Role
	}
	if roles[own.ID] != model.RoleOwner {
		t.Fatalf("expected owner role on own task, got %q", roles[own.ID])
	}
	if roles[shared.ID] != model.RoleViewer {
		t.Fatalf("expected viewer role on shared task, got %q", roles[shared.ID])
	}
}

func TestList_EmptyForNewUser(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	user := createUser(t, db, "new@example.com")

	tasks, err := svc.List(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", tasks)
	}
}

func TestUpdate_ViewerForbidden(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")
	viewer := createUser(t, db, "viewer@example.com")

	created, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "original"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Share(context.Background(), created.ID, owner.ID, viewer.ID, model.RoleViewer); err != nil {
		t.Fatalf("share: %v", err)
	}

	title := "hacked"
	if _, err := svc.Update(context.Background(), created.ID, viewer.ID, UpdateInput{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	var reloaded model.Task
	db.First(&reloaded, created.ID)
	if reloaded.Title != "original" {
		t.Fatalf("title must not change, got %q", reloaded.Title)
	}
}

func TestUpdate_EditorCanPatch(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")
	editor := createUser(t, db, "editor@example.com")

	created, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "draft", Description: "keep me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Share(context.Background(), created.ID, owner.ID, editor.ID, model.RoleEditor); err != nil {
		t.Fatalf("share: %v", err)
	}

	title := "final"
	status := model.StatusInProgress
	updated, err := svc.Update(context.Background(), created.ID, editor.ID, UpdateInput{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "final" || updated.Status != model.StatusInProgress {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.Description != "keep me" {
		t.Fatalf("partial merge must keep untouched fields, got %q", updated.Description)
	}
}

func TestUpdate_NonMemberNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")
	stranger := createUser(t, db, "stranger@example.com")

	created, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "y"
	if _, err := svc.Update(context.Background(), created.ID, stranger.ID, UpdateInput{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_OwnerOnly(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")
	editor := createUser(t, db, "editor@example.com")
	stranger := createUser(t, db, "stranger@example.com")

	created, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "doomed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Share(context.Background(), created.ID, owner.ID, editor.ID, model.RoleEditor); err != nil {
		t.Fatalf("share: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID, stranger.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger, got %v", err)
	}
	if err := svc.Delete(context.Background(), created.ID, editor.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for editor, got %v", err)
	}
	if err := svc.Delete(context.Background(), created.ID, owner.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}

func TestDelete_CascadesAccessAndInvitations(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")
	viewer := createUser(t, db, "viewer@example.com")

	created, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "doomed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Share(context.Background(), created.ID, owner.ID, viewer.ID, model.RoleViewer); err != nil {
		t.Fatalf("share: %v", err)
	}
	if _, err := svc.Invite(context.Background(), created.ID, owner.ID, "invitee@example.com", model.RoleEditor); err != nil {
		t.Fatalf("invite: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID, owner.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var accesses, invitations, tasks int64
	db.Model(&model.TaskAccess{}).Where("task_id = ?", created.ID).Count(&accesses)
	db.Model(&model.Invitation{}).Where("task_id = ?", created.ID).Count(&invitations)
	db.Model(&model.Task{}).Where("id = ?", created.ID).Count(&tasks)
	if accesses != 0 || invitations != 0 || tasks != 0 {
		t.Fatalf("expected full cleanup, got accesses=%d invitations=%d tasks=%d", accesses, invitations, tasks)
	}
}

func TestMembers_ListsRoles(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	owner := createUser(t, db, "owner@example.com")
	viewer := createUser(t, db, "viewer@example.com")
	stranger := createUser(t, db, "stranger@example.com")

	created, err := svc.Create(context.Background(), owner.ID, CreateInput{Title: "team task"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Share(context.Background(), created.ID, owner.ID, viewer.ID, model.RoleViewer); err != nil {
		t.Fatalf("share: %v", err)
	}

	members, err := svc.Members(context.Background(), created.ID, viewer.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	if _, err := svc.Members(context.Background(), created.ID, stranger.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger, got %v", err)
	}
}

func TestRoleOf_NoRowMeansNotVisible(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	user := createUser(t, db, "user@example.com")

	role, ok, err := svc.RoleOf(context.Background(), 12345, user.ID)
	if err != nil {
		t.Fatalf("roleOf: %v", err)
	}
	if ok || role != "" {
		t.Fatalf("expected no role, got ok=%v role=%q", ok, role)
	}
}
