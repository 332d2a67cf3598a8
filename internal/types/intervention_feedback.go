package types

import (
	"time"

	"github.com/google/uuid"
)

// InterventionFeedback is append-only. Muted=true mutes the intervention's
// trigger for the remainder of the session.
type InterventionFeedback struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InterventionID uuid.UUID `gorm:"type:uuid;not null;index;column:intervention_id" json:"intervention_id"`
	ParticipantID  uuid.UUID `gorm:"type:uuid;not null;column:participant_id" json:"participant_id"`
	Rating         int       `gorm:"not null;default:0;column:rating" json:"rating"`
	Muted          bool      `gorm:"not null;default:false;column:muted" json:"muted"`
	Comment        string    `gorm:"column:comment" json:"comment"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (InterventionFeedback) TableName() string {
	return "intervention_feedback"
}
