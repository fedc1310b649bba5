package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MayerS22/Taskify/internal/model"
	"github.com/MayerS22/Taskify/internal/pkg/metrics"
	"github.com/MayerS22/Taskify/internal/task"
)

type createTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Status      string `json:"status"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Status      *string `json:"status"`
}

type shareTaskRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

type inviteTaskRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

type acceptInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// handleCreateTask creates a task owned by the requester.
//
// POST /tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := s.tasks.Create(c.Request.Context(), getUserID(c), task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Status:      model.TaskStatus(req.Status),
	})
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	metrics.TasksCreatedTotal.Inc()
	c.JSON(http.StatusCreated, created)
}

// handleListTasks returns every task visible to the requester.
//
// GET /tasks
func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.tasks.List(c.Request.Context(), getUserID(c))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// handleGetTask returns one task, 404 when invisible to the requester.
//
// GET /tasks/:id
func (s *Server) handleGetTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	tsk, role, err := s.tasks.Get(c.Request.Context(), taskID, getUserID(c))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task.TaskWithRole{Task: *tsk, Role: role})
}

// handleUpdateTask applies a partial update, owner/editor only.
//
// PUT /tasks/:id
func (s *Server) handleUpdateTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := task.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Status != nil {
		status := model.TaskStatus(*req.Status)
		patch.Status = &status
	}

	updated, err := s.tasks.Update(c.Request.Context(), taskID, getUserID(c), patch)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// handleDeleteTask deletes a task, owner only.
//
// DELETE /tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	if err := s.tasks.Delete(c.Request.Context(), taskID, getUserID(c)); err != nil {
		s.respondServiceError(c, err)
		return
	}

	metrics.TasksDeletedTotal.Inc()
	c.JSON(http.StatusOK, gin.H{"deleted": taskID})
}

// handleListMembers lists the task's membership, any member may look.
//
// GET /tasks/:id/members
func (s *Server) handleListMembers(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	members, err := s.tasks.Members(c.Request.Context(), taskID, getUserID(c))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// handleShareTask grants a role on the task to an existing user.
//
// POST /tasks/:id/share
func (s *Server) handleShareTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	var req shareTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.tasks.Share(c.Request.Context(), taskID, getUserID(c), req.UserID, model.Role(req.Role))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task shared", "user_id": req.UserID, "role": req.Role})
}

// handleInviteToTask invites an email address to the task.
//
// POST /tasks/:id/invitations
func (s *Server) handleInviteToTask(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	var req inviteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invitation, err := s.tasks.Invite(c.Request.Context(), taskID, getUserID(c), req.Email, model.Role(req.Role))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	metrics.InvitationsSentTotal.Inc()
	c.JSON(http.StatusCreated, gin.H{
		"invitation_id": invitation.ID,
		"status":        invitation.Status,
		"expires_at":    invitation.ExpiresAt,
	})
}

// handleAcceptInvitation redeems an invitation token for the requester.
//
// POST /invitations/accept
func (s *Server) handleAcceptInvitation(c *gin.Context) {
	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tsk, role, err := s.tasks.Accept(c.Request.Context(), req.Token, getUserID(c), getUserEmail(c))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	metrics.InvitationsAcceptedTotal.Inc()
	c.JSON(http.StatusOK, task.TaskWithRole{Task: *tsk, Role: role})
}

func parseTaskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return uint(id), true
}
