package types

import (
	"time"

	"github.com/google/uuid"
)

// Move is append-only. TurnNumber is sequential per participant.
type Move struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID        uuid.UUID `gorm:"type:uuid;not null;index;column:room_id" json:"room_id"`
	ParticipantID uuid.UUID `gorm:"type:uuid;not null;index;column:participant_id" json:"participant_id"`
	TurnNumber    int       `gorm:"not null;column:turn_number" json:"turn_number"`
	DiceValue     int       `gorm:"not null;column:dice_value" json:"dice_value"`
	FromPos       int       `gorm:"not null;column:from_pos" json:"from_pos"`
	ToPos         int       `gorm:"not null;column:to_pos" json:"to_pos"`
	JumpFrom      *int      `gorm:"column:jump_from" json:"jump_from,omitempty"`
	JumpTo        *int      `gorm:"column:jump_to" json:"jump_to,omitempty"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
}

func (Move) TableName() string {
	return "move"
}
