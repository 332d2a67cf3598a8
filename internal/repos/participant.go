package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type ParticipantRepo interface {
	Create(ctx context.Context, tx *gorm.DB, participants []*types.Participant) ([]*types.Participant, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Participant, error)
	GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.Participant, error)
	GetByRoomAndUser(ctx context.Context, tx *gorm.DB, roomID, userID uuid.UUID) (*types.Participant, error)
	UpdateIntention(ctx context.Context, tx *gorm.DB, id uuid.UUID, intention string, locked bool) error
	ReplicateIntentionToPlayers(ctx context.Context, tx *gorm.DB, roomID uuid.UUID, intention string) error
	UpdateSummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string) error
	IncrementTipCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, limit int) (bool, error)
	DecrementTipCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type participantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParticipantRepo(db *gorm.DB, baseLog *logger.Logger) ParticipantRepo {
	return &participantRepo{db: db, log: baseLog.With("repo", "ParticipantRepo")}
}

func (r *participantRepo) Create(ctx context.Context, tx *gorm.DB, participants []*types.Participant) ([]*types.Participant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(participants) == 0 {
		return []*types.Participant{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *participantRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Participant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var p types.Participant
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByRoomID returns participants in join order, which is also the turn
// rotation order.
func (r *participantRepo) GetByRoomID(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]*types.Participant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Participant
	if err := transaction.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *participantRepo) GetByRoomAndUser(ctx context.Context, tx *gorm.DB, roomID, userID uuid.UUID) (*types.Participant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var p types.Participant
	if err := transaction.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *participantRepo) UpdateIntention(ctx context.Context, tx *gorm.DB, id uuid.UUID, intention string, locked bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Participant{}).
		Where("id = ?", id).
		Updates(map[string]any{"intention": intention, "intention_locked": locked}).Error
}

func (r *participantRepo) ReplicateIntentionToPlayers(ctx context.Context, tx *gorm.DB, roomID uuid.UUID, intention string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Participant{}).
		Where("room_id = ? AND role = ?", roomID, types.RolePlayer).
		Updates(map[string]any{"intention": intention, "intention_locked": true}).Error
}

// IncrementTipCount reserves one tip usage. A positive limit makes the
// increment conditional on the current count, so concurrent callers cannot
// push the count past the ceiling. Returns false when the ceiling was hit.
func (r *participantRepo) IncrementTipCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, limit int) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Model(&types.Participant{}).
		Where("id = ?", id)
	if limit > 0 {
		q = q.Where("tip_count < ?", limit)
	}
	res := q.Update("tip_count", gorm.Expr("tip_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DecrementTipCount returns a reserved tip after a failed generation.
func (r *participantRepo) DecrementTipCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Participant{}).
		Where("id = ? AND tip_count > 0", id).
		Update("tip_count", gorm.Expr("tip_count - 1")).Error
}

func (r *participantRepo) UpdateSummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Participant{}).
		Where("id = ?", id).
		Update("summary", summary).Error
}
