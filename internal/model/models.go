package model

import "time"

// TaskStatus is the kanban column a task sits in. Transitions between
// statuses are free form; owners and editors may move tasks at will.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

// ValidStatus reports whether s is one of the known task statuses.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Role is the permission level a user holds on a task via TaskAccess.
type Role string

const (
	RoleOwner  Role = "owner"  // full control, including delete and sharing
	RoleEditor Role = "editor" // may update fields and invite, not delete
	RoleViewer Role = "viewer" // read only
)

// GrantableRole reports whether r may be handed out by share/invite.
// Ownership is only ever created together with the task itself.
func GrantableRole(r Role) bool {
	return r == RoleEditor || r == RoleViewer
}

// CanEdit reports whether r permits field updates.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// Task is a unit of work on a user's board.
//
// OwnerID is denormalized for convenience; the authoritative record of who
// can see or change a task is the task_accesses table.
type Task struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string     `gorm:"type:varchar(255);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Category    string     `gorm:"type:varchar(100);default:Other" json:"category"` // free-form label
	Status      TaskStatus `gorm:"type:varchar(16);default:todo" json:"status"`

	OwnerID uint `gorm:"not null;index" json:"owner_id"`
	Owner   User `gorm:"foreignKey:OwnerID" json:"-"`

	Accesses []TaskAccess `gorm:"foreignKey:TaskID" json:"-"`
}

// TaskAccess grants a user a role on a task. It is the sole source of truth
// for visibility and permission checks; exactly one row per (task, user)
// pair, and exactly one owner row per task, created in the same transaction
// as the task.
type TaskAccess struct {
	TaskID uint `gorm:"primaryKey" json:"task_id"`
	UserID uint `gorm:"primaryKey" json:"user_id"`
	Role   Role `gorm:"type:varchar(16);not null;default:viewer" json:"role"`

	CreatedAt time.Time `json:"created_at"`

	Task Task `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// InvitationStatus is the lifecycle state of an Invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation is a pending offer of a role on a task to an email address.
// Acceptance converts it into a TaskAccess row; the sweeper flips stale
// pending rows to expired.
type Invitation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TaskID uint `gorm:"not null;index" json:"task_id"`
	Task   Task `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`

	Email  string           `gorm:"type:varchar(191);not null;index" json:"email"` // invitee, lowercased
	Role   Role             `gorm:"type:varchar(16);not null;default:viewer" json:"role"`
	Status InvitationStatus `gorm:"type:varchar(16);not null;default:pending" json:"status"`

	Token     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"` // acceptance token sent by mail
	ExpiresAt time.Time `json:"expires_at"`
}
