package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type RoomRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rooms []*types.Room) ([]*types.Room, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Room, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Room, error)
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Room, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.RoomStatus, closedAt *time.Time) error
	Reopen(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetTurnParticipant(ctx context.Context, tx *gorm.DB, id uuid.UUID, participantID *uuid.UUID) error
}

type roomRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoomRepo(db *gorm.DB, baseLog *logger.Logger) RoomRepo {
	return &roomRepo{db: db, log: baseLog.With("repo", "RoomRepo")}
}

func (r *roomRepo) Create(ctx context.Context, tx *gorm.DB, rooms []*types.Room) ([]*types.Room, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rooms) == 0 {
		return []*types.Room{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Room, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var room types.Room
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// GetByIDForUpdate takes a row lock so two concurrent rolls for the same room
// serialize on the room row.
func (r *roomRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Room, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var room types.Room
	if err := transaction.WithContext(ctx).
		Clauses(forUpdateClause(transaction)).
		Where("id = ?", id).
		First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Room, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var room types.Room
	if err := transaction.WithContext(ctx).
		Where("code = ?", code).
		First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.RoomStatus, closedAt *time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]any{"status": status}
	if closedAt != nil {
		updates["closed_at"] = closedAt
	}
	return transaction.WithContext(ctx).
		Model(&types.Room{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Reopen reverts a CLOSED room to ACTIVE and clears the close timestamp. Only
// the admin-open grant path calls this.
func (r *roomRepo) Reopen(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Room{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": types.RoomStatusActive, "closed_at": nil}).Error
}

func (r *roomRepo) SetTurnParticipant(ctx context.Context, tx *gorm.DB, id uuid.UUID, participantID *uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Room{}).
		Where("id = ?", id).
		Update("turn_participant_id", participantID).Error
}
