package models

import "time"

// DefaultAuthorBio is the placeholder bio given to authors created from an approved registration.
const DefaultAuthorBio = "This author has not written a bio yet."

// Author is the public author profile linked one-to-one with a User.
type Author struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	User       *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	AuthorName string    `gorm:"size:120;not null" json:"author_name"`
	Bio        string    `gorm:"type:text" json:"bio"`
	IsVerified bool      `gorm:"not null;default:false" json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Author) TableName() string {
	return "authors"
}
