package api

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MayerS22/Taskify/internal/model"
)

type updateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
	Phone     *string `json:"phone"`
	Country   *string `json:"country"`
}

// imageExtensions maps the sniffed content type to the stored extension.
// Anything not listed is rejected.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// handleMe returns the authenticated user.
//
// GET /users/me
func (s *Server) handleMe(c *gin.Context) {
	var user model.User
	if err := s.db.WithContext(c.Request.Context()).First(&user, getUserID(c)).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// handleUpdateProfile applies a partial profile update.
//
// PUT /users/profile
func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Country != nil {
		updates["country"] = strings.TrimSpace(*req.Country)
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updates"})
		return
	}

	userID := getUserID(c)
	if err := s.db.WithContext(c.Request.Context()).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(updates).Error; err != nil {
		s.logger.Error("update profile failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update profile failed"})
		return
	}

	var user model.User
	if err := s.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload user failed"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// handleUploadProfilePicture stores an avatar image and records its URL.
// The file must sniff as an image and stay under the configured size cap.
//
// POST /users/profile-picture
func (s *Server) handleUploadProfilePicture(c *gin.Context) {
	maxBytes := s.cfg.App.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+4096)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	// Sniff the real content type; the client-supplied header is not
	// trusted.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}
	contentType := http.DetectContentType(head[:n])
	ext, ok := imageExtensions[contentType]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only image files are allowed"})
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}

	dir := filepath.Join(s.cfg.App.UploadDir, "profile-pics")
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Error("create upload dir failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store file failed"})
		return
	}

	name := randomFileName() + ext
	dstPath := filepath.Join(dir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		s.logger.Error("create upload file failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store file failed"})
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(file, maxBytes)); err != nil {
		_ = os.Remove(dstPath)
		s.logger.Error("write upload file failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store file failed"})
		return
	}

	url := "/uploads/profile-pics/" + name
	if err := s.db.WithContext(c.Request.Context()).
		Model(&model.User{}).
		Where("id = ?", getUserID(c)).
		Update("avatar_url", url).Error; err != nil {
		s.logger.Error("save avatar url failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store file failed"})
		return
	}

	s.logger.Info("profile picture uploaded",
		slog.Uint64("user_id", uint64(getUserID(c))),
		slog.String("content_type", contentType))
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func randomFileName() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "upload"
	}
	return hex.EncodeToString(buf)
}
