package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type InterventionStatus string

const (
	InterventionPendingApproval InterventionStatus = "PENDING_APPROVAL"
	InterventionApproved        InterventionStatus = "APPROVED"
	InterventionDismissed       InterventionStatus = "DISMISSED"
	InterventionSnoozed         InterventionStatus = "SNOOZED"
)

type Visibility string

const (
	VisibilityRoom            Visibility = "ROOM"
	VisibilityFacilitatorOnly Visibility = "FACILITATOR_ONLY"
)

type Provenance string

const (
	ProvenanceRule   Provenance = "RULE"
	ProvenanceAI     Provenance = "AI"
	ProvenanceHybrid Provenance = "HYBRID"
)

type Intervention struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID        uuid.UUID          `gorm:"type:uuid;not null;index;column:room_id" json:"room_id"`
	ParticipantID uuid.UUID          `gorm:"type:uuid;not null;index;column:participant_id" json:"participant_id"`
	ConfigID      uuid.UUID          `gorm:"type:uuid;not null;column:config_id" json:"config_id"`
	TriggerID     string             `gorm:"not null;index;column:trigger_id" json:"trigger_id"`
	Severity      Severity           `gorm:"not null;column:severity" json:"severity"`
	Status        InterventionStatus `gorm:"not null;default:'APPROVED';column:status" json:"status"`
	Visibility    Visibility         `gorm:"not null;default:'ROOM';column:visibility" json:"visibility"`
	Title         string             `gorm:"column:title" json:"title"`
	Message       string             `gorm:"column:message" json:"message"`
	Reflection    string             `gorm:"column:reflection" json:"reflection"`
	MicroAction   string             `gorm:"column:micro_action" json:"micro_action"`
	Provenance    Provenance         `gorm:"not null;default:'RULE';column:provenance" json:"provenance"`
	TriggerData   datatypes.JSON     `gorm:"column:trigger_data" json:"trigger_data,omitempty"`
	TurnNumber    int                `gorm:"not null;default:0;column:turn_number" json:"turn_number"`
	SnoozedUntil  *time.Time         `gorm:"column:snoozed_until" json:"snoozed_until,omitempty"`
	CreatedAt     time.Time          `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"not null" json:"updated_at"`
}

func (Intervention) TableName() string {
	return "intervention"
}
