package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type InterventionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, interventions []*types.Intervention) ([]*types.Intervention, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Intervention, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.InterventionStatus, snoozedUntil *time.Time) error
	CountByRoomAndParticipant(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID) (int64, error)
	GetLastByTrigger(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID, triggerID string) (*types.Intervention, error)
	GetLastForParticipant(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID) (*types.Intervention, error)
	GetSnoozedTriggers(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID, now time.Time) ([]string, error)
	GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.Intervention, error)
}

type interventionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInterventionRepo(db *gorm.DB, baseLog *logger.Logger) InterventionRepo {
	return &interventionRepo{db: db, log: baseLog.With("repo", "InterventionRepo")}
}

func (r *interventionRepo) Create(ctx context.Context, tx *gorm.DB, interventions []*types.Intervention) ([]*types.Intervention, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(interventions) == 0 {
		return []*types.Intervention{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&interventions).Error; err != nil {
		return nil, err
	}
	return interventions, nil
}

func (r *interventionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Intervention, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var iv types.Intervention
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&iv).Error; err != nil {
		return nil, err
	}
	return &iv, nil
}

func (r *interventionRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.InterventionStatus, snoozedUntil *time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]any{"status": status, "snoozed_until": snoozedUntil}
	return transaction.WithContext(ctx).
		Model(&types.Intervention{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CountByRoomAndParticipant counts every intervention ever created for the
// pair. Dismissed and snoozed rows still count against the lifetime quota.
func (r *interventionRepo) CountByRoomAndParticipant(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Intervention{}).
		Where("room_id = ? AND participant_id = ?", roomID, participantID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *interventionRepo) GetLastByTrigger(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID, triggerID string) (*types.Intervention, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var iv types.Intervention
	err := transaction.WithContext(ctx).
		Where("room_id = ? AND participant_id = ? AND trigger_id = ?", roomID, participantID, triggerID).
		Order("created_at DESC").
		First(&iv).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

func (r *interventionRepo) GetLastForParticipant(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID) (*types.Intervention, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var iv types.Intervention
	err := transaction.WithContext(ctx).
		Where("room_id = ? AND participant_id = ?", roomID, participantID).
		Order("created_at DESC").
		First(&iv).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

func (r *interventionRepo) GetSnoozedTriggers(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID, now time.Time) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var triggers []string
	if err := transaction.WithContext(ctx).
		Model(&types.Intervention{}).
		Where("room_id = ? AND participant_id = ? AND status = ? AND snoozed_until > ?",
			roomID, participantID, types.InterventionSnoozed, now).
		Distinct().
		Pluck("trigger_id", &triggers).Error; err != nil {
		return nil, err
	}
	return triggers, nil
}

func (r *interventionRepo) GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.Intervention, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Intervention
	if err := transaction.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
