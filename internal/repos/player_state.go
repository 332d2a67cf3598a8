package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type PlayerStateRepo interface {
	Create(ctx context.Context, tx *gorm.DB, states []*types.PlayerState) ([]*types.PlayerState, error)
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, states []*types.PlayerState) error
	GetByParticipantID(ctx context.Context, tx *gorm.DB, participantID uuid.UUID) (*types.PlayerState, error)
	GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.PlayerState, error)
	Update(ctx context.Context, tx *gorm.DB, state *types.PlayerState) error
}

type playerStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlayerStateRepo(db *gorm.DB, baseLog *logger.Logger) PlayerStateRepo {
	return &playerStateRepo{db: db, log: baseLog.With("repo", "PlayerStateRepo")}
}

func (r *playerStateRepo) Create(ctx context.Context, tx *gorm.DB, states []*types.PlayerState) ([]*types.PlayerState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(states) == 0 {
		return []*types.PlayerState{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

// CreateIfAbsent inserts states, silently skipping participants that already
// have one. Overlapping snapshot builds may race to materialize the same row.
func (r *playerStateRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, states []*types.PlayerState) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(states) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_id"}},
			DoNothing: true,
		}).
		Create(&states).Error
}

func (r *playerStateRepo) GetByParticipantID(ctx context.Context, tx *gorm.DB, participantID uuid.UUID) (*types.PlayerState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var st types.PlayerState
	if err := transaction.WithContext(ctx).
		Where("participant_id = ?", participantID).
		First(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *playerStateRepo) GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.PlayerState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PlayerState
	if err := transaction.WithContext(ctx).
		Where("room_id = ?", roomID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *playerStateRepo) Update(ctx context.Context, tx *gorm.DB, state *types.PlayerState) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(state).Error
}
