package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type TherapyEntryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entries []*types.TherapyEntry) ([]*types.TherapyEntry, error)
	GetRecentByParticipant(ctx context.Context, tx *gorm.DB, participantID uuid.UUID, limit int) ([]*types.TherapyEntry, error)
	GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.TherapyEntry, error)
}

type therapyEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTherapyEntryRepo(db *gorm.DB, baseLog *logger.Logger) TherapyEntryRepo {
	return &therapyEntryRepo{db: db, log: baseLog.With("repo", "TherapyEntryRepo")}
}

func (r *therapyEntryRepo) Create(ctx context.Context, tx *gorm.DB, entries []*types.TherapyEntry) ([]*types.TherapyEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(entries) == 0 {
		return []*types.TherapyEntry{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *therapyEntryRepo) GetRecentByParticipant(ctx context.Context, tx *gorm.DB, participantID uuid.UUID, limit int) ([]*types.TherapyEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TherapyEntry
	q := transaction.WithContext(ctx).
		Where("participant_id = ?", participantID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *therapyEntryRepo) GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.TherapyEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TherapyEntry
	if err := transaction.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
