package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type MoveRepo interface {
	Create(ctx context.Context, tx *gorm.DB, moves []*types.Move) ([]*types.Move, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Move, error)
	GetRecentByParticipant(ctx context.Context, tx *gorm.DB, participantID uuid.UUID, limit int) ([]*types.Move, error)
	GetLastByRoom(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) (*types.Move, error)
	CountByParticipant(ctx context.Context, tx *gorm.DB, participantID uuid.UUID) (int64, error)
}

type moveRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMoveRepo(db *gorm.DB, baseLog *logger.Logger) MoveRepo {
	return &moveRepo{db: db, log: baseLog.With("repo", "MoveRepo")}
}

func (r *moveRepo) Create(ctx context.Context, tx *gorm.DB, moves []*types.Move) ([]*types.Move, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(moves) == 0 {
		return []*types.Move{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&moves).Error; err != nil {
		return nil, err
	}
	return moves, nil
}

func (r *moveRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Move, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var m types.Move
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetRecentByParticipant returns the newest moves first.
func (r *moveRepo) GetRecentByParticipant(ctx context.Context, tx *gorm.DB, participantID uuid.UUID, limit int) ([]*types.Move, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Move
	q := transaction.WithContext(ctx).
		Where("participant_id = ?", participantID).
		Order("turn_number DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *moveRepo) GetLastByRoom(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) (*types.Move, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var m types.Move
	err := transaction.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *moveRepo) CountByParticipant(ctx context.Context, tx *gorm.DB, participantID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Move{}).
		Where("participant_id = ?", participantID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
