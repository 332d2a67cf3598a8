package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type InterventionFeedbackRepo interface {
	Create(ctx context.Context, tx *gorm.DB, feedback []*types.InterventionFeedback) ([]*types.InterventionFeedback, error)
	// GetMutedTriggers returns the trigger ids muted for the session by any
	// feedback row in the room.
	GetMutedTriggers(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]string, error)
}

type interventionFeedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInterventionFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) InterventionFeedbackRepo {
	return &interventionFeedbackRepo{db: db, log: baseLog.With("repo", "InterventionFeedbackRepo")}
}

func (r *interventionFeedbackRepo) Create(ctx context.Context, tx *gorm.DB, feedback []*types.InterventionFeedback) ([]*types.InterventionFeedback, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(feedback) == 0 {
		return []*types.InterventionFeedback{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&feedback).Error; err != nil {
		return nil, err
	}
	return feedback, nil
}

func (r *interventionFeedbackRepo) GetMutedTriggers(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var triggers []string
	if err := transaction.WithContext(ctx).
		Model(&types.InterventionFeedback{}).
		Joins("JOIN intervention ON intervention.id = intervention_feedback.intervention_id").
		Where("intervention.room_id = ? AND intervention_feedback.muted = ?", roomID, true).
		Distinct().
		Pluck("intervention.trigger_id", &triggers).Error; err != nil {
		return nil, err
	}
	return triggers, nil
}
