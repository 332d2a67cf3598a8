package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type CardDrawRepo interface {
	Create(ctx context.Context, tx *gorm.DB, draws []*types.CardDraw) ([]*types.CardDraw, error)
	CountByMoveID(ctx context.Context, tx *gorm.DB, moveID uuid.UUID) (int64, error)
	GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.CardDraw, error)
}

type cardDrawRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCardDrawRepo(db *gorm.DB, baseLog *logger.Logger) CardDrawRepo {
	return &cardDrawRepo{db: db, log: baseLog.With("repo", "CardDrawRepo")}
}

func (r *cardDrawRepo) Create(ctx context.Context, tx *gorm.DB, draws []*types.CardDraw) ([]*types.CardDraw, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(draws) == 0 {
		return []*types.CardDraw{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&draws).Error; err != nil {
		return nil, err
	}
	return draws, nil
}

func (r *cardDrawRepo) CountByMoveID(ctx context.Context, tx *gorm.DB, moveID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.CardDraw{}).
		Where("move_id = ?", moveID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *cardDrawRepo) GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.CardDraw, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.CardDraw
	if err := transaction.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
