package types

import (
	"time"

	"github.com/google/uuid"
)

type ParticipantRole string

const (
	RoleFacilitator ParticipantRole = "FACILITATOR"
	RolePlayer      ParticipantRole = "PLAYER"
)

type Participant struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID          uuid.UUID       `gorm:"type:uuid;not null;index;column:room_id" json:"room_id"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	Role            ParticipantRole `gorm:"not null;column:role" json:"role"`
	DisplayName     string          `gorm:"column:display_name" json:"display_name"`
	ConsentAt       *time.Time      `gorm:"column:consent_at" json:"consent_at,omitempty"`
	Intention       string          `gorm:"column:intention" json:"intention"`
	IntentionLocked bool            `gorm:"not null;default:false;column:intention_locked" json:"intention_locked"`
	Summary         string          `gorm:"column:summary" json:"summary,omitempty"`
	TipCount        int             `gorm:"not null;default:0;column:tip_count" json:"tip_count"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Participant) TableName() string {
	return "participant"
}
