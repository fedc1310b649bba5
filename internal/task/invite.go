package task

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/MayerS22/Taskify/internal/model"
)

// Share grants role on a task to an existing user. Requester must be owner
// or editor; only editor/viewer may be handed out. Re-sharing upserts the
// target's role, but the owner's row is immutable.
func (s *Service) Share(ctx context.Context, taskID, requesterID, targetUserID uint, role model.Role) error {
	if !model.GrantableRole(role) {
		return ErrInvalidRole
	}

	requesterRole, ok, err := s.RoleOf(ctx, taskID, requesterID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !requesterRole.CanEdit() {
		return ErrForbidden
	}

	var target model.User
	if err := s.db.WithContext(ctx).First(&target, targetUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("query user: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertAccess(tx, taskID, targetUserID, role)
	})
}

// upsertAccess inserts or updates the (task, user) access row. The owner row
// is never touched.
func upsertAccess(tx *gorm.DB, taskID, userID uint, role model.Role) error {
	var existing model.TaskAccess
	err := tx.Where("task_id = ? AND user_id = ?", taskID, userID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		access := model.TaskAccess{TaskID: taskID, UserID: userID, Role: role}
		if err := tx.Create(&access).Error; err != nil {
			return fmt.Errorf("create task access: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("query task access: %w", err)
	case existing.Role == model.RoleOwner:
		return ErrConflict
	case existing.Role == role:
		return nil
	default:
		if err := tx.Model(&model.TaskAccess{}).
			Where("task_id = ? AND user_id = ?", taskID, userID).
			Update("role", role).Error; err != nil {
			return fmt.Errorf("update task access: %w", err)
		}
		return nil
	}
}

// Invite creates (or refreshes) a pending invitation for an email address
// and dispatches the invitation mail. Requester must be owner or editor.
// Inviting someone who is already a member is a conflict; re-inviting the
// same address while a previous invitation is still pending refreshes its
// role, token and expiry instead of stacking a duplicate.
func (s *Service) Invite(ctx context.Context, taskID, requesterID uint, email string, role model.Role) (*model.Invitation, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !model.GrantableRole(role) {
		return nil, ErrInvalidRole
	}

	requesterRole, ok, err := s.RoleOf(ctx, taskID, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !requesterRole.CanEdit() {
		return nil, ErrForbidden
	}

	var tsk model.Task
	if err := s.db.WithContext(ctx).First(&tsk, taskID).Error; err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}

	// Already a member?
	var invitee model.User
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&invitee).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if err == nil {
		_, member, err := s.RoleOf(ctx, taskID, invitee.ID)
		if err != nil {
			return nil, err
		}
		if member {
			return nil, ErrConflict
		}
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}
	expiresAt := time.Now().Add(s.invitationTTL)

	var invitation model.Invitation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Invitation
		err := tx.Where("task_id = ? AND email = ? AND status = ?", taskID, email, model.InvitationPending).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			invitation = model.Invitation{
				TaskID:    taskID,
				Email:     email,
				Role:      role,
				Status:    model.InvitationPending,
				Token:     token,
				ExpiresAt: expiresAt,
			}
			if err := tx.Create(&invitation).Error; err != nil {
				return fmt.Errorf("create invitation: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("query invitation: %w", err)
		default:
			updates := map[string]interface{}{
				"role":       role,
				"token":      token,
				"expires_at": expiresAt,
			}
			if err := tx.Model(&model.Invitation{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("refresh invitation: %w", err)
			}
			invitation = existing
			invitation.Role = role
			invitation.Token = token
			invitation.ExpiresAt = expiresAt
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	// Mail delivery is best effort; the invitation row is the record of
	// truth and can be re-sent.
	if s.mailer != nil {
		if err := s.mailer.SendInvitation(email, tsk.Title, string(role), token); err != nil {
			s.logger.Warn("send invitation email failed",
				slog.String("email", email),
				slog.Uint64("task_id", uint64(taskID)),
				slog.String("error", err.Error()))
		}
	}

	return &invitation, nil
}

// Accept redeems an invitation token for the authenticated user and converts
// it into a TaskAccess row. The user's email must match the invitee address.
func (s *Service) Accept(ctx context.Context, token string, userID uint, userEmail string) (*model.Task, model.Role, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, "", fmt.Errorf("%w: token is required", ErrValidation)
	}
	userEmail = strings.TrimSpace(strings.ToLower(userEmail))

	var invitation model.Invitation
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("query invitation: %w", err)
	}

	if invitation.Status != model.InvitationPending {
		return nil, "", ErrInvitationExpired
	}
	if time.Now().After(invitation.ExpiresAt) {
		// Persist the expiry lazily; the sweeper would get there eventually.
		if err := s.db.WithContext(ctx).Model(&model.Invitation{}).
			Where("id = ?", invitation.ID).
			Update("status", model.InvitationExpired).Error; err != nil {
			s.logger.Warn("mark invitation expired failed", slog.String("error", err.Error()))
		}
		return nil, "", ErrInvitationExpired
	}
	if invitation.Email != userEmail {
		return nil, "", ErrForbidden
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertAccess(tx, invitation.TaskID, userID, invitation.Role); err != nil {
			// The owner re-accepting a stray invitation keeps their owner
			// row; the invitation is still consumed.
			if !errors.Is(err, ErrConflict) {
				return err
			}
		}
		if err := tx.Model(&model.Invitation{}).
			Where("id = ?", invitation.ID).
			Update("status", model.InvitationAccepted).Error; err != nil {
			return fmt.Errorf("mark invitation accepted: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	var tsk model.Task
	if err := s.db.WithContext(ctx).First(&tsk, invitation.TaskID).Error; err != nil {
		return nil, "", fmt.Errorf("query task: %w", err)
	}
	return &tsk, invitation.Role, nil
}

// ExpireInvitations flips pending invitations past their expiry to expired
// and returns how many rows changed. Called periodically by the sweeper.
func (s *Service) ExpireInvitations(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Invitation{}).
		Where("status = ? AND expires_at < ?", model.InvitationPending, now).
		Update("status", model.InvitationExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire invitations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
