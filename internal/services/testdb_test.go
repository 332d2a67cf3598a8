package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/mindpath-backend/internal/types"
)

// testDB opens an isolated in-memory sqlite database with the full schema.
// cache=shared keeps the database alive across the pooled connections gorm
// opens.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	err = db.AutoMigrate(
		&types.Room{},
		&types.Participant{},
		&types.PlayerState{},
		&types.Move{},
		&types.TherapyEntry{},
		&types.CardDraw{},
		&types.InterventionConfig{},
		&types.Intervention{},
		&types.InterventionFeedback{},
		&types.PlanLimits{},
	)
	if err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func seedRoom(t *testing.T, db *gorm.DB, mutate func(*types.Room)) *types.Room {
	t.Helper()
	room := &types.Room{
		ID:       uuid.New(),
		Code:     uuid.NewString()[:8],
		Status:   types.RoomStatusActive,
		PlanType: types.PlanTypeStandard,
	}
	if mutate != nil {
		mutate(room)
	}
	if err := db.Create(room).Error; err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return room
}

func seedParticipant(t *testing.T, db *gorm.DB, roomID uuid.UUID, role types.ParticipantRole) *types.Participant {
	t.Helper()
	p := &types.Participant{
		ID:          uuid.New(),
		RoomID:      roomID,
		UserID:      uuid.New(),
		Role:        role,
		DisplayName: string(role),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	return p
}

func seedState(t *testing.T, db *gorm.DB, roomID, participantID uuid.UUID, mutate func(*types.PlayerState)) *types.PlayerState {
	t.Helper()
	st := &types.PlayerState{
		ID:            uuid.New(),
		RoomID:        roomID,
		ParticipantID: participantID,
		Position:      1,
	}
	if mutate != nil {
		mutate(st)
	}
	if err := db.Create(st).Error; err != nil {
		t.Fatalf("seed player state: %v", err)
	}
	return st
}

func seedConfig(t *testing.T, db *gorm.DB, mutate func(*types.InterventionConfig)) *types.InterventionConfig {
	t.Helper()
	cfg := &types.InterventionConfig{
		ID:        uuid.New(),
		TriggerID: TriggerStuckBeforeStart,
		Scope:     types.ScopeGlobal,
		Enabled:   true,
		AIPolicy:  types.AIPolicyNone,
		Severity:  types.SeverityInfo,
		Version:   1,
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := db.Create(cfg).Error; err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return cfg
}

// fakeAI returns canned generator output, or fails every call.
type fakeAI struct {
	jsonOut map[string]any
	textOut string
	err     error
	calls   int
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.jsonOut, nil
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.textOut, nil
}

// recordingNotifier captures push notifications for assertions.
type recordingNotifier struct {
	generated []*types.Intervention
	updated   []*types.Intervention
	statuses  []string
	rooms     []uuid.UUID
}

func (r *recordingNotifier) RoomStateChanged(roomID uuid.UUID) {
	r.rooms = append(r.rooms, roomID)
}

func (r *recordingNotifier) InterventionGenerated(iv *types.Intervention) {
	r.generated = append(r.generated, iv)
}

func (r *recordingNotifier) InterventionUpdated(iv *types.Intervention) {
	r.updated = append(r.updated, iv)
}

func (r *recordingNotifier) ProgressSummaryStatus(roomID, participantID uuid.UUID, status string) {
	r.statuses = append(r.statuses, status)
}

func testQuotaCache(t *testing.T, quota, trialQuota PlanQuota) QuotaCache {
	t.Helper()
	return NewQuotaCache(testLogger(t), &fakePlanLimitsRepo{}, time.Minute, quota, trialQuota)
}
