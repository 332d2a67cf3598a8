package types

import (
	"time"

	"github.com/google/uuid"
)

// PlayerState exists 1:1 with a turn-eligible participant. It is created
// lazily the first time the participant enters turn rotation and is only
// mutated inside the roll transaction.
type PlayerState struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID        uuid.UUID `gorm:"type:uuid;not null;index;column:room_id" json:"room_id"`
	ParticipantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;column:participant_id" json:"participant_id"`
	Position      int       `gorm:"not null;default:1;column:position" json:"position"`
	HasStarted    bool      `gorm:"not null;default:false;column:has_started" json:"has_started"`
	HasCompleted  bool      `gorm:"not null;default:false;column:has_completed" json:"has_completed"`
	TotalRolls    int       `gorm:"not null;default:0;column:total_rolls" json:"total_rolls"`
	PreStartRolls int       `gorm:"not null;default:0;column:pre_start_rolls" json:"pre_start_rolls"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (PlayerState) TableName() string {
	return "player_state"
}
