// Package task implements the task service: CRUD orchestration, the
// role-based access control substrate, and the invitation lifecycle.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/MayerS22/Taskify/internal/model"
	"github.com/MayerS22/Taskify/internal/pkg/notify"
)

// Sentinel errors. Handlers translate these into HTTP statuses; everything
// else surfaces as an internal error.
var (
	// ErrNotFound covers both "task does not exist" and "requester holds no
	// access row". The two are deliberately indistinguishable so that
	// non-members cannot probe for task existence.
	ErrNotFound = errors.New("task not found or access denied")

	// ErrForbidden means the requester is a member but their role does not
	// permit the operation.
	ErrForbidden = errors.New("insufficient role")

	// ErrUserNotFound means a share target does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrConflict covers role-assignment conflicts (re-granting the owner,
	// inviting an existing member).
	ErrConflict = errors.New("conflicting grant")

	// ErrInvalidRole rejects roles outside {editor, viewer} on share/invite.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidStatus rejects statuses outside the kanban enum.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvitationExpired covers invitations that are past their expiry or
	// no longer pending.
	ErrInvitationExpired = errors.New("invitation expired")

	// ErrValidation rejects structurally invalid input (empty title etc).
	ErrValidation = errors.New("validation failed")
)

// Service orchestrates task operations against the relational store. All
// permission checks go through RoleOf; no query touches a task without first
// resolving the requester's access row.
type Service struct {
	db            *gorm.DB
	mailer        notify.Mailer
	logger        *slog.Logger
	invitationTTL time.Duration
}

// NewService wires the task service.
func NewService(db *gorm.DB, mailer notify.Mailer, logger *slog.Logger, invitationTTL time.Duration) *Service {
	if invitationTTL <= 0 {
		invitationTTL = 7 * 24 * time.Hour
	}
	return &Service{
		db:            db,
		mailer:        mailer,
		logger:        logger,
		invitationTTL: invitationTTL,
	}
}

// CreateInput carries the writable fields of a new task.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Status      model.TaskStatus
}

// UpdateInput is a partial patch; nil fields are left untouched.
type UpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	Status      *model.TaskStatus
}

// TaskWithRole is a task annotated with the requesting user's role on it.
type TaskWithRole struct {
	model.Task
	Role model.Role `json:"role"`
}

// Member is one entry of a task's membership listing.
type Member struct {
	UserID    uint       `json:"user_id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      model.Role `json:"role"`
}

// RoleOf resolves the role a user holds on a task. The second return is
// false when no access row exists, which callers must treat as "task not
// visible" rather than "task absent".
func (s *Service) RoleOf(ctx context.Context, taskID, userID uint) (model.Role, bool, error) {
	var access model.TaskAccess
	err := s.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		First(&access).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query task access: %w", err)
	}
	return access.Role, true, nil
}

// Create inserts a task and its owner access row in one transaction.
func (s *Service) Create(ctx context.Context, ownerID uint, in CreateInput) (*model.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	status := in.Status
	if status == "" {
		status = model.StatusTodo
	}
	if !model.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "Other"
	}

	task := model.Task{
		Title:       title,
		Description: in.Description,
		Category:    category,
		Status:      status,
		OwnerID:     ownerID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		access := model.TaskAccess{
			TaskID: task.ID,
			UserID: ownerID,
			Role:   model.RoleOwner,
		}
		if err := tx.Create(&access).Error; err != nil {
			return fmt.Errorf("create owner access: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &task, nil
}

// List returns every task the user can see, newest first, each annotated
// with the user's role.
func (s *Service) List(ctx context.Context, userID uint) ([]TaskWithRole, error) {
	var accesses []model.TaskAccess
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&accesses).Error; err != nil {
		return nil, fmt.Errorf("query task accesses: %w", err)
	}
	if len(accesses) == 0 {
		return []TaskWithRole{}, nil
	}

	roles := make(map[uint]model.Role, len(accesses))
	ids := make([]uint, 0, len(accesses))
	for _, a := range accesses {
		roles[a.TaskID] = a.Role
		ids = append(ids, a.TaskID)
	}

	var tasks []model.Task
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	out := make([]TaskWithRole, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskWithRole{Task: t, Role: roles[t.ID]})
	}
	return out, nil
}

// Get returns a task and the requester's role on it, or ErrNotFound when the
// requester holds no access row.
func (s *Service) Get(ctx context.Context, taskID, userID uint) (*model.Task, model.Role, error) {
	role, ok, err := s.RoleOf(ctx, taskID, userID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrNotFound
	}

	var task model.Task
	if err := s.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("query task: %w", err)
	}
	return &task, role, nil
}

// Update applies a partial patch. Owners and editors may update; viewers get
// ErrForbidden, non-members ErrNotFound.
func (s *Service) Update(ctx context.Context, taskID, userID uint, in UpdateInput) (*model.Task, error) {
	role, ok, err := s.RoleOf(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !role.CanEdit() {
		return nil, ErrForbidden
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		updates["title"] = title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Category != nil {
		category := strings.TrimSpace(*in.Category)
		if category == "" {
			category = "Other"
		}
		updates["category"] = category
	}
	if in.Status != nil {
		if !model.ValidStatus(*in.Status) {
			return nil, ErrInvalidStatus
		}
		updates["status"] = *in.Status
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no updates", ErrValidation)
	}

	if err := s.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("id = ?", taskID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	var task model.Task
	if err := s.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, fmt.Errorf("reload task: %w", err)
	}
	return &task, nil
}

// Delete removes a task together with its access rows and invitations.
// Owner only: members with a lesser role get ErrForbidden, non-members
// ErrNotFound. The FK cascades declared on the models are a backstop; the
// transaction deletes explicitly so the behavior does not depend on store
// settings.
func (s *Service) Delete(ctx context.Context, taskID, userID uint) error {
	role, ok, err := s.RoleOf(ctx, taskID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if role != model.RoleOwner {
		return ErrForbidden
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", taskID).Delete(&model.TaskAccess{}).Error; err != nil {
			return fmt.Errorf("delete task accesses: %w", err)
		}
		if err := tx.Where("task_id = ?", taskID).Delete(&model.Invitation{}).Error; err != nil {
			return fmt.Errorf("delete invitations: %w", err)
		}
		if err := tx.Delete(&model.Task{}, taskID).Error; err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

// Members lists the users holding a role on the task. Any member may look.
func (s *Service) Members(ctx context.Context, taskID, userID uint) ([]Member, error) {
	_, ok, err := s.RoleOf(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	members := []Member{}
	if err := s.db.WithContext(ctx).
		Table("task_accesses").
		Select("task_accesses.user_id, task_accesses.role, users.email, users.first_name, users.last_name").
		Joins("JOIN users ON users.id = task_accesses.user_id").
		Where("task_accesses.task_id = ?", taskID).
		Order("task_accesses.created_at ASC").
		Scan(&members).Error; err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	return members, nil
}
