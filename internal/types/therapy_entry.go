package types

import (
	"time"

	"github.com/google/uuid"
)

type TherapyEntry struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID        uuid.UUID  `gorm:"type:uuid;not null;index;column:room_id" json:"room_id"`
	ParticipantID uuid.UUID  `gorm:"type:uuid;not null;index;column:participant_id" json:"participant_id"`
	MoveID        *uuid.UUID `gorm:"type:uuid;column:move_id" json:"move_id,omitempty"`
	Emotion       string     `gorm:"not null;column:emotion" json:"emotion"`
	Intensity     int        `gorm:"not null;column:intensity" json:"intensity"`
	Insight       string     `gorm:"column:insight" json:"insight"`
	Body          string     `gorm:"column:body" json:"body"`
	MicroAction   string     `gorm:"column:micro_action" json:"micro_action"`
	CreatedAt     time.Time  `gorm:"not null;index" json:"created_at"`
}

func (TherapyEntry) TableName() string {
	return "therapy_entry"
}
