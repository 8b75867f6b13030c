package collaboration

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role represents a collaborator's role on a hangout.
type Role string

const (
	RoleOrganizer    Role = "organizer"
	RoleCollaborator Role = "collaborator"
	RoleViewer       Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOrganizer, RoleCollaborator, RoleViewer:
		return true
	}
	return false
}

// InvitationStatus represents the status of an invitation.
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusDeclined InvitationStatus = "declined"
	InvitationStatusMaybe    InvitationStatus = "maybe"
)

// ValidResponse reports whether s is a status an invitee may respond with.
// Pending is never reachable through a response.
func (s InvitationStatus) ValidResponse() bool {
	switch s {
	case InvitationStatusAccepted, InvitationStatusDeclined, InvitationStatusMaybe:
		return true
	}
	return false
}

// Collaborator represents a user's role on a specific hangout. CreatedAt is
// the cursor pagination key.
type Collaborator struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	HangoutID uuid.UUID  `json:"hangout_id" gorm:"type:uuid;not null;uniqueIndex:idx_collaborators_hangout_user"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_collaborators_hangout_user"`
	Role      Role       `json:"role" gorm:"not null;default:collaborator"`
	InvitedBy *uuid.UUID `json:"invited_by,omitempty" gorm:"type:uuid"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (Collaborator) TableName() string {
	return "hangout_collaborators"
}

// BeforeCreate assigns the primary id. Generated here rather than by the
// database so sqlite-backed tests behave like postgres.
func (c *Collaborator) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Invitation represents a per-user request to join a hangout. CreatedAt is
// the cursor pagination key.
type Invitation struct {
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	HangoutID   uuid.UUID        `json:"hangout_id" gorm:"type:uuid;not null;uniqueIndex:idx_invitations_hangout_invitee"`
	InviteeID   uuid.UUID        `json:"invitee_id" gorm:"type:uuid;not null;uniqueIndex:idx_invitations_hangout_invitee"`
	InviterID   uuid.UUID        `json:"inviter_id" gorm:"type:uuid;not null"`
	Status      InvitationStatus `json:"status" gorm:"not null;default:pending"`
	Message     string           `json:"message,omitempty"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// TableName returns the database table name.
func (Invitation) TableName() string {
	return "hangout_invitations"
}

// BeforeCreate assigns the primary id.
func (i *Invitation) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// IsPending returns true if the invitation has not been responded to.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationStatusPending
}
