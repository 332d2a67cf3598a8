package types

import "time"

// PlanLimits holds the per-plan AI/intervention ceilings. Usage is always
// counted against per-room rows; these are only the limits.
type PlanLimits struct {
	PlanType          PlanType  `gorm:"primaryKey;column:plan_type" json:"plan_type"`
	InterventionQuota int       `gorm:"not null;default:0;column:intervention_quota" json:"intervention_quota"`
	TipQuota          int       `gorm:"not null;default:0;column:tip_quota" json:"tip_quota"`
	TrialMoveLimit    int       `gorm:"not null;default:0;column:trial_move_limit" json:"trial_move_limit"`
	UpdatedAt         time.Time `gorm:"not null" json:"updated_at"`
}

func (PlanLimits) TableName() string {
	return "plan_limits"
}
