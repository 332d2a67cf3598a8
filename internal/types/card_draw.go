package types

import (
	"time"

	"github.com/google/uuid"
)

type CardDraw struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID        uuid.UUID  `gorm:"type:uuid;not null;index;column:room_id" json:"room_id"`
	ParticipantID uuid.UUID  `gorm:"type:uuid;not null;index;column:participant_id" json:"participant_id"`
	MoveID        *uuid.UUID `gorm:"type:uuid;index;column:move_id" json:"move_id,omitempty"`
	CardKey       string     `gorm:"not null;column:card_key" json:"card_key"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
}

func (CardDraw) TableName() string {
	return "card_draw"
}
