// Package api wires the HTTP surface: routing, handlers and the resources
// they depend on.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/MayerS22/Taskify/internal/api/auth"
	"github.com/MayerS22/Taskify/internal/api/middleware"
	"github.com/MayerS22/Taskify/internal/config"
	"github.com/MayerS22/Taskify/internal/model"
	"github.com/MayerS22/Taskify/internal/pkg/mailqueue"
	"github.com/MayerS22/Taskify/internal/pkg/metrics"
	"github.com/MayerS22/Taskify/internal/pkg/notify"
	"github.com/MayerS22/Taskify/internal/pkg/ratelimit"
	"github.com/MayerS22/Taskify/internal/task"
)

// TaskService is the slice of the task service the handlers use. Narrowed to
// an interface so handler tests can substitute a mock.
type TaskService interface {
	Create(ctx context.Context, ownerID uint, in task.CreateInput) (*model.Task, error)
	List(ctx context.Context, userID uint) ([]task.TaskWithRole, error)
	Get(ctx context.Context, taskID, userID uint) (*model.Task, model.Role, error)
	Update(ctx context.Context, taskID, userID uint, in task.UpdateInput) (*model.Task, error)
	Delete(ctx context.Context, taskID, userID uint) error
	Members(ctx context.Context, taskID, userID uint) ([]task.Member, error)
	Share(ctx context.Context, taskID, requesterID, targetUserID uint, role model.Role) error
	Invite(ctx context.Context, taskID, requesterID uint, email string, role model.Role) (*model.Invitation, error)
	Accept(ctx context.Context, token string, userID uint, userEmail string) (*model.Task, model.Role, error)
}

// Server holds the API dependencies and the gin router.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *gorm.DB
	rdb        *redis.Client
	router     *gin.Engine
	auth       *auth.Handler
	tasks      TaskService
	taskSvc    *task.Service
	limiter    *ratelimit.Limiter
	mailWorker *mailqueue.Worker
}

// NewServer connects MySQL and redis, runs migrations and builds the router.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.TaskAccess{}, &model.Invitation{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	smtpMailer := notify.NewEmailNotifier(&cfg.Email, cfg.App.BaseURL, logger)

	// With the queue enabled, the request path only enqueues; the worker
	// owns the SMTP connection.
	var mailer notify.Mailer = smtpMailer
	var mailWorker *mailqueue.Worker
	if cfg.Email.QueueEnabled {
		mailer = mailqueue.NewProducer(rdb, logger, cfg.Email.QueueStream)
		worker, err := mailqueue.NewWorker(rdb, smtpMailer, logger, cfg.Email.QueueStream, "taskify:mailers", "")
		if err != nil {
			return nil, err
		}
		mailWorker = worker
	}

	taskSvc := task.NewService(db, mailer, logger, cfg.App.InvitationTTL)
	limiter := ratelimit.NewRedisLimiter(rdb, "taskify:ratelimit:auth", cfg.App.RateLimit, cfg.App.RateBurst)

	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		rdb:        rdb,
		router:     r,
		auth:       auth.NewHandler(db, cfg.Security.JWTSecret, mailer, logger, cfg.App.TokenTTL, cfg.App.ResetTokenTTL),
		tasks:      taskSvc,
		taskSvc:    taskSvc,
		limiter:    limiter,
		mailWorker: mailWorker,
	}
	s.registerRoutes()
	return s, nil
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// TaskService exposes the concrete service for the sweeper.
func (s *Server) TaskService() *task.Service {
	return s.taskSvc
}

// MailWorker returns the queue delivery worker, nil when the mail queue is
// disabled.
func (s *Server) MailWorker() *mailqueue.Worker {
	return s.mailWorker
}

// Close releases the database and redis handles.
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	s.router.Static("/uploads", s.cfg.App.UploadDir)

	authLimited := middleware.RateLimit(s.limiter, s.logger)
	s.router.POST("/auth/register", s.auth.Register)
	s.router.POST("/auth/login", authLimited, s.auth.Login)
	s.router.POST("/auth/forgot-password", authLimited, s.auth.ForgotPassword)
	s.router.POST("/auth/reset-password", s.auth.ResetPassword)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	authed.GET("/users/me", s.handleMe)
	authed.PUT("/users/profile", s.handleUpdateProfile)
	authed.POST("/users/profile-picture", s.handleUploadProfilePicture)

	authed.POST("/tasks", s.handleCreateTask)
	authed.GET("/tasks", s.handleListTasks)
	authed.GET("/tasks/:id", s.handleGetTask)
	authed.PUT("/tasks/:id", s.handleUpdateTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
	authed.GET("/tasks/:id/members", s.handleListMembers)
	authed.POST("/tasks/:id/share", s.handleShareTask)
	authed.POST("/tasks/:id/invitations", s.handleInviteToTask)
	authed.POST("/invitations/accept", s.handleAcceptInvitation)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondServiceError translates task service sentinels into HTTP statuses.
func (s *Server) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, task.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, task.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	case errors.Is(err, task.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflicting grant"})
	case errors.Is(err, task.ErrInvitationExpired):
		c.JSON(http.StatusGone, gin.H{"error": "invitation expired"})
	case errors.Is(err, task.ErrInvalidRole), errors.Is(err, task.ErrInvalidStatus), errors.Is(err, task.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("task operation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func getUserID(c *gin.Context) uint {
	v, ok := c.Get("userID")
	if !ok {
		return 0
	}
	if id, ok := v.(uint); ok {
		return id
	}
	return 0
}

func getUserEmail(c *gin.Context) string {
	return c.GetString("email")
}
