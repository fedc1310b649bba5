package mailqueue

import (
	"encoding/json"
	"time"
)

// MessageKind selects the mail template on the delivery side.
type MessageKind string

const (
	KindPasswordReset MessageKind = "password_reset"
	KindInvitation    MessageKind = "invitation"
)

// Message is one outbound mail job carried through the redis stream.
type Message struct {
	Kind       MessageKind `json:"kind"`
	To         string      `json:"to"`
	Token      string      `json:"token"`
	TaskTitle  string      `json:"task_title,omitempty"` // invitation only
	Role       string      `json:"role,omitempty"`       // invitation only
	Retry      int         `json:"retry"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// NewPasswordResetMessage builds a password-reset mail job.
func NewPasswordResetMessage(to, token string) *Message {
	return &Message{
		Kind:       KindPasswordReset,
		To:         to,
		Token:      token,
		EnqueuedAt: time.Now(),
	}
}

func (m *Message) marshal() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// NewInvitationMessage builds an invitation mail job.
func NewInvitationMessage(to, taskTitle, role, token string) *Message {
	return &Message{
		Kind:       KindInvitation,
		To:         to,
		Token:      token,
		TaskTitle:  taskTitle,
		Role:       role,
		EnqueuedAt: time.Now(),
	}
}
