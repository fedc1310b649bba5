package model

import "time"

// User is an account holder. The password column stores a bcrypt hash and is
// never serialized; the reset fields back the single-use password-reset flow.
type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Email     string `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"` // unique login identity
	Password  string `gorm:"not null" json:"-"`                                   // bcrypt hash
	FirstName string `gorm:"type:varchar(100)" json:"first_name"`
	LastName  string `gorm:"type:varchar(100)" json:"last_name"`

	Bio       string `gorm:"type:text" json:"bio"`
	Phone     string `gorm:"type:varchar(32)" json:"phone"`
	Country   string `gorm:"type:varchar(100)" json:"country"`
	AvatarURL string `gorm:"type:varchar(255)" json:"avatar_url"`

	ResetToken          string     `gorm:"type:varchar(64);index" json:"-"` // password reset token (single use)
	ResetTokenExpiresAt *time.Time `json:"-"`                               // reset token expiry

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tasks []Task `gorm:"foreignKey:OwnerID" json:"-"`
}
