package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConfigScope string

const (
	ScopeGlobal ConfigScope = "GLOBAL"
	ScopePlan   ConfigScope = "PLAN"
	ScopeRoom   ConfigScope = "ROOM"
)

type AIPolicy string

const (
	AIPolicyNone     AIPolicy = "NONE"
	AIPolicyOptional AIPolicy = "OPTIONAL"
	AIPolicyRequired AIPolicy = "REQUIRED"
)

type Severity string

const (
	SeverityCritical  Severity = "CRITICAL"
	SeverityAttention Severity = "ATTENTION"
	SeverityInfo      Severity = "INFO"
)

// InterventionConfig is a versioned rule definition keyed by (TriggerID, Scope).
// Thresholds holds numeric detector parameters; Templates maps locale to a
// rule-text template with {placeholder} substitution fields.
type InterventionConfig struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TriggerID        string         `gorm:"not null;index:idx_config_trigger_scope;column:trigger_id" json:"trigger_id"`
	Scope            ConfigScope    `gorm:"not null;index:idx_config_trigger_scope;column:scope" json:"scope"`
	PlanType         *PlanType      `gorm:"column:plan_type" json:"plan_type,omitempty"`
	RoomID           *uuid.UUID     `gorm:"type:uuid;index;column:room_id" json:"room_id,omitempty"`
	Enabled          bool           `gorm:"not null;default:true;column:enabled" json:"enabled"`
	AIPolicy         AIPolicy       `gorm:"not null;default:'NONE';column:ai_policy" json:"ai_policy"`
	Sensitive        bool           `gorm:"not null;default:false;column:sensitive" json:"sensitive"`
	RequiresApproval bool           `gorm:"not null;default:false;column:requires_approval" json:"requires_approval"`
	Severity         Severity       `gorm:"not null;default:'INFO';column:severity" json:"severity"`
	CooldownMoves    int            `gorm:"not null;default:0;column:cooldown_moves" json:"cooldown_moves"`
	CooldownMinutes  int            `gorm:"not null;default:0;column:cooldown_minutes" json:"cooldown_minutes"`
	Thresholds       datatypes.JSON `gorm:"column:thresholds" json:"thresholds,omitempty"`
	Templates        datatypes.JSON `gorm:"column:templates" json:"templates,omitempty"`
	Version          int            `gorm:"not null;default:1;column:version" json:"version"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (InterventionConfig) TableName() string {
	return "intervention_config"
}
