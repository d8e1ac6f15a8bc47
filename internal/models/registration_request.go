package models

import (
	"fmt"
	"strings"
	"time"
)

// RegistrationStatus defines lifecycle states for author registration requests.
type RegistrationStatus string

const (
	// RegistrationStatusPending indicates the request is awaiting review.
	RegistrationStatusPending RegistrationStatus = "pending"
	// RegistrationStatusApproved indicates the request was accepted and the account created.
	RegistrationStatusApproved RegistrationStatus = "approved"
	// RegistrationStatusRejected indicates the request was denied.
	RegistrationStatusRejected RegistrationStatus = "rejected"
)

// RegistrationStatuses lists every status in display order.
var RegistrationStatuses = []RegistrationStatus{
	RegistrationStatusPending,
	RegistrationStatusApproved,
	RegistrationStatusRejected,
}

// Valid reports whether s is a known status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusApproved, RegistrationStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s RegistrationStatus) IsTerminal() bool {
	return s == RegistrationStatusApproved || s == RegistrationStatusRejected
}

// ParseRegistrationStatus parses a case-insensitive status name.
func ParseRegistrationStatus(raw string) (RegistrationStatus, error) {
	s := RegistrationStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("status must be one of: pending, approved, rejected")
	}
	return s, nil
}

// RegistrationRequest is an application to become an author, pending admin review.
//
// The partial unique index allows any number of processed rows per email but
// at most one pending row.
type RegistrationRequest struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	Email        string             `gorm:"size:254;not null;index;uniqueIndex:idx_registration_requests_pending_email,where:status = 'pending'" json:"email"`
	Username     string             `gorm:"size:30;not null" json:"username"`
	Password     string             `gorm:"not null" json:"-"`
	AuthorName   string             `gorm:"size:120" json:"author_name,omitempty"`
	Status       RegistrationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt    time.Time          `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	ProcessedAt  *time.Time         `json:"processed_at"`
	AdminComment *string            `gorm:"type:text" json:"admin_comment"`
	AdminEmail   *string            `gorm:"size:254" json:"admin_email"`
}

// TableName specifies the table name for GORM.
func (RegistrationRequest) TableName() string {
	return "registration_requests"
}

// DisplayName is the author name to use for the profile, falling back to the username.
func (r *RegistrationRequest) DisplayName() string {
	if name := strings.TrimSpace(r.AuthorName); name != "" {
		return name
	}
	return r.Username
}

// RegistrationReview carries the admin's decision metadata stamped onto a request.
type RegistrationReview struct {
	Comment    string
	AdminEmail string
	At         time.Time
}

// RegistrationRequestPage is one page of registration requests.
type RegistrationRequestPage struct {
	Requests   []RegistrationRequest `json:"requests"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	Size       int                   `json:"size"`
	TotalPages int                   `json:"total_pages"`
}

// RegistrationStats counts requests per status.
type RegistrationStats struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}
