package types

import (
	"time"

	"github.com/google/uuid"
)

type RoomStatus string

const (
	RoomStatusActive    RoomStatus = "ACTIVE"
	RoomStatusCompleted RoomStatus = "COMPLETED"
	RoomStatusClosed    RoomStatus = "CLOSED"
)

type PlanType string

const (
	PlanTypeTrial    PlanType = "TRIAL"
	PlanTypeStandard PlanType = "STANDARD"
	PlanTypeClinic   PlanType = "CLINIC"
)

type Room struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code              string     `gorm:"uniqueIndex;not null;column:code" json:"code"`
	Status            RoomStatus `gorm:"not null;default:'ACTIVE';column:status" json:"status"`
	PlanType          PlanType   `gorm:"not null;default:'STANDARD';column:plan_type" json:"plan_type"`
	IsTrial           bool       `gorm:"not null;default:false;column:is_trial" json:"is_trial"`
	SubscriptionRef   string     `gorm:"column:subscription_ref" json:"subscription_ref,omitempty"`
	OrderRef          string     `gorm:"column:order_ref" json:"order_ref,omitempty"`
	FacilitatorPlays  bool       `gorm:"not null;default:false;column:facilitator_plays" json:"facilitator_plays"`
	SoloPlay          bool       `gorm:"not null;default:false;column:solo_play" json:"solo_play"`
	TurnParticipantID *uuid.UUID `gorm:"type:uuid;column:turn_participant_id" json:"turn_participant_id,omitempty"`
	ClosedAt          *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`
	CreatedAt         time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updated_at"`
}

func (Room) TableName() string {
	return "room"
}
