package api

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/MayerS22/Taskify/internal/model"
	"github.com/MayerS22/Taskify/internal/task"
)

// SeedDemoData bootstraps a demo account with one sample task. Enabled by
// app.seed_demo; safe to run on every boot.
func (s *Server) SeedDemoData(ctx context.Context) error {
	if !s.cfg.App.SeedDemo {
		return nil
	}

	const demoEmail = "demo@taskify.local"
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", demoEmail).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte("demo-password"), bcrypt.DefaultCost)
		if hashErr != nil {
			return hashErr
		}
		user = model.User{
			Email:     demoEmail,
			Password:  string(hash),
			FirstName: "Demo",
			LastName:  "User",
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.TaskAccess{}).
		Where("user_id = ?", user.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = s.taskSvc.Create(ctx, user.ID, task.CreateInput{
		Title:       "Welcome to Taskify",
		Description: "Drag this card across the board, or share it with a teammate.",
		Category:    "Getting started",
	})
	return err
}
