package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type PlanLimitsRepo interface {
	GetByPlanType(ctx context.Context, tx *gorm.DB, planType types.PlanType) (*types.PlanLimits, error)
	Upsert(ctx context.Context, tx *gorm.DB, limits *types.PlanLimits) error
}

type planLimitsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanLimitsRepo(db *gorm.DB, baseLog *logger.Logger) PlanLimitsRepo {
	return &planLimitsRepo{db: db, log: baseLog.With("repo", "PlanLimitsRepo")}
}

func (r *planLimitsRepo) GetByPlanType(ctx context.Context, tx *gorm.DB, planType types.PlanType) (*types.PlanLimits, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var limits types.PlanLimits
	err := transaction.WithContext(ctx).
		Where("plan_type = ?", planType).
		First(&limits).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &limits, nil
}

func (r *planLimitsRepo) Upsert(ctx context.Context, tx *gorm.DB, limits *types.PlanLimits) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(limits).Error
}
