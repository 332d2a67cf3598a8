package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type InterventionConfigRepo interface {
	Create(ctx context.Context, tx *gorm.DB, configs []*types.InterventionConfig) ([]*types.InterventionConfig, error)
	// GetEnabledForRoom loads every enabled config that can apply to the
	// room: GLOBAL scope, PLAN scope matching the room's plan, and ROOM
	// scope matching the room id.
	GetEnabledForRoom(ctx context.Context, tx *gorm.DB, roomID uuid.UUID, planType types.PlanType) ([]*types.InterventionConfig, error)
}

type interventionConfigRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInterventionConfigRepo(db *gorm.DB, baseLog *logger.Logger) InterventionConfigRepo {
	return &interventionConfigRepo{db: db, log: baseLog.With("repo", "InterventionConfigRepo")}
}

func (r *interventionConfigRepo) Create(ctx context.Context, tx *gorm.DB, configs []*types.InterventionConfig) ([]*types.InterventionConfig, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(configs) == 0 {
		return []*types.InterventionConfig{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *interventionConfigRepo) GetEnabledForRoom(ctx context.Context, tx *gorm.DB, roomID uuid.UUID, planType types.PlanType) ([]*types.InterventionConfig, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.InterventionConfig
	if err := transaction.WithContext(ctx).
		Where("enabled = ?", true).
		Where(
			transaction.Where("scope = ?", types.ScopeGlobal).
				Or("scope = ? AND plan_type = ?", types.ScopePlan, planType).
				Or("scope = ? AND room_id = ?", types.ScopeRoom, roomID),
		).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
