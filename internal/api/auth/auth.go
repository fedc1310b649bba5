// Package auth implements registration, login and the password-reset flow.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/MayerS22/Taskify/internal/model"
	"github.com/MayerS22/Taskify/internal/pkg/metrics"
	"github.com/MayerS22/Taskify/internal/pkg/notify"
)

// forgotPasswordMessage is returned whether or not the address exists; the
// body must be byte-identical in both cases so the endpoint cannot be used
// to enumerate accounts.
const forgotPasswordMessage = "if that email exists, a reset link has been sent"

// Handler provides the auth endpoints.
type Handler struct {
	db            *gorm.DB
	jwtSecret     []byte
	mailer        notify.Mailer
	logger        *slog.Logger
	tokenTTL      time.Duration
	resetTokenTTL time.Duration
}

// NewHandler creates the auth handler.
func NewHandler(db *gorm.DB, jwtSecret string, mailer notify.Mailer, logger *slog.Logger, tokenTTL, resetTokenTTL time.Duration) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if resetTokenTTL <= 0 {
		resetTokenTTL = time.Hour
	}
	return &Handler{
		db:            db,
		jwtSecret:     []byte(jwtSecret),
		mailer:        mailer,
		logger:        logger,
		tokenTTL:      tokenTTL,
		resetTokenTTL: resetTokenTTL,
	}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type customClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Register creates a new user account.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var existing model.User
	err := h.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := model.User{
		Email:     email,
		Password:  string(hash),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	}
	if err := h.db.Create(&user).Error; err != nil {
		h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	metrics.RegisterTotal.Inc()
	h.logger.Info("user registered", slog.String("email", email))
	c.JSON(http.StatusCreated, gin.H{"message": "user registered successfully", "user_id": user.ID})
}

// Login verifies credentials and returns a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var user model.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		metrics.LoginTotal.WithLabelValues("failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		metrics.LoginTotal.WithLabelValues("failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.issueToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	metrics.LoginTotal.WithLabelValues("success").Inc()
	h.logger.Info("user logged in", slog.String("email", email))
	c.JSON(http.StatusOK, tokenResponse{AccessToken: token})
}

// ForgotPassword issues a reset token and mails a reset link. The response
// is identical whether or not the account exists.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var user model.User
	err := h.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
		return
	}
	if err != nil {
		h.logger.Error("query user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
		return
	}

	token, err := generateResetToken()
	if err != nil {
		h.logger.Error("generate reset token failed", slog.String("error", err.Error()))
		c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
		return
	}
	expiry := time.Now().Add(h.resetTokenTTL)

	updates := map[string]interface{}{
		"reset_token":            token,
		"reset_token_expires_at": expiry,
	}
	if err := h.db.Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		h.logger.Error("store reset token failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
		return
	}

	if h.mailer != nil {
		if err := h.mailer.SendPasswordReset(email, token); err != nil {
			h.logger.Warn("send reset email failed", slog.String("email", email), slog.String("error", err.Error()))
		}
	}

	h.logger.Info("password reset requested", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
}

// ResetPassword redeems a reset token. Unknown and expired tokens get the
// same generic answer and mutate nothing.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user model.User
	err := h.db.Where("reset_token = ?", strings.TrimSpace(req.Token)).First(&user).Error
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
		return
	}
	if user.ResetTokenExpiresAt == nil || time.Now().After(*user.ResetTokenExpiresAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	updates := map[string]interface{}{
		"password":               string(hash),
		"reset_token":            "",
		"reset_token_expires_at": nil,
	}
	if err := h.db.Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		h.logger.Error("reset password failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset password failed"})
		return
	}

	metrics.PasswordResetTotal.Inc()
	h.logger.Info("password reset", slog.String("email", user.Email))
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (h *Handler) issueToken(userID uint, email string) (string, error) {
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

func generateResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
