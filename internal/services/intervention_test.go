package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/types"
)

func newInterventionHarness(t *testing.T, db *gorm.DB, ai AIClient, quota PlanQuota) (*interventionService, *recordingNotifier) {
	t.Helper()
	log := testLogger(t)
	notifier := &recordingNotifier{}
	svc := NewInterventionService(db, log,
		repos.NewRoomRepo(db, log),
		repos.NewParticipantRepo(db, log),
		repos.NewPlayerStateRepo(db, log),
		repos.NewMoveRepo(db, log),
		repos.NewTherapyEntryRepo(db, log),
		repos.NewInterventionConfigRepo(db, log),
		repos.NewInterventionRepo(db, log),
		repos.NewInterventionFeedbackRepo(db, log),
		testQuotaCache(t, quota, quota),
		ai, notifier, InterventionOptions{},
	).(*interventionService)
	return svc, notifier
}

func TestEvaluateAfterMoveCreatesRuleIntervention(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})
	seedConfig(t, db, nil)

	svc, notifier := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	iv := created[0]
	assert.Equal(t, TriggerStuckBeforeStart, iv.TriggerID)
	assert.Equal(t, types.ProvenanceRule, iv.Provenance)
	assert.Equal(t, types.InterventionApproved, iv.Status)
	assert.Equal(t, types.VisibilityRoom, iv.Visibility)
	assert.Contains(t, iv.Message, "5")
	assert.Len(t, notifier.generated, 1)
}

func TestEvaluateSkipsClosedRoom(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, func(r *types.Room) { r.Status = types.RoomStatusClosed })
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) { st.PreStartRolls = 9 })
	seedConfig(t, db, nil)

	svc, notifier := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, notifier.generated)
}

func TestEvaluateGeneratorProvenance(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})
	seedConfig(t, db, func(cfg *types.InterventionConfig) { cfg.AIPolicy = types.AIPolicyOptional })

	ai := &fakeAI{jsonOut: map[string]any{
		"title":        "A pause",
		"message":      "You have been waiting a while.",
		"reflection":   "What would the first step feel like?",
		"micro_action": "Take one breath.",
	}}
	svc, _ := newInterventionHarness(t, db, ai, PlanQuota{InterventionQuota: 10})
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, types.ProvenanceAI, created[0].Provenance)
	assert.Equal(t, "A pause", created[0].Title)
	assert.Equal(t, "Take one breath.", created[0].MicroAction)
	assert.Equal(t, 1, ai.calls)
}

func TestEvaluateFallsBackToRuleTextOnGeneratorFailure(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})
	seedConfig(t, db, func(cfg *types.InterventionConfig) { cfg.AIPolicy = types.AIPolicyRequired })

	ai := &fakeAI{err: errors.New("model unavailable")}
	svc, _ := newInterventionHarness(t, db, ai, PlanQuota{InterventionQuota: 10})
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, types.ProvenanceHybrid, created[0].Provenance)
	assert.Equal(t, "Waiting at the door", created[0].Title)
	assert.NotEmpty(t, created[0].Message)
}

func TestEvaluateScopeWinnerAndAliasFold(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})
	seedConfig(t, db, nil)
	// Room-scoped config registered under the legacy trigger id. It must fold
	// onto the canonical trigger and beat the global row.
	seedConfig(t, db, func(cfg *types.InterventionConfig) {
		cfg.TriggerID = "pre_start_stuck"
		cfg.Scope = types.ScopeRoom
		cfg.RoomID = &room.ID
		cfg.Severity = types.SeverityCritical
	})

	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, TriggerStuckBeforeStart, created[0].TriggerID)
	assert.Equal(t, types.SeverityCritical, created[0].Severity)
}

func TestEvaluateAnyTriggerWindow(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})
	seedConfig(t, db, nil)

	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	// The participant was just served: the room-wide window blocks a repeat.
	created, err = svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestEvaluateTriggerCooldown(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	state := seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})
	seedConfig(t, db, func(cfg *types.InterventionConfig) {
		cfg.CooldownMoves = 2
		cfg.CooldownMinutes = 60
	})

	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	// Past the room-wide window, inside the trigger's own window: blocked.
	svc.nowFn = func() time.Time { return time.Now().Add(3 * time.Minute) }
	created, err = svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	assert.Empty(t, created)

	// Two more rolls satisfy the move-distance alternative.
	state.TotalRolls = 7
	state.PreStartRolls = 7
	require.NoError(t, db.Save(state).Error)
	created, err = svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestEvaluateQuotaCeilingAndOrdering(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})
	if err := db.Create(&types.TherapyEntry{
		ID:            uuid.New(),
		RoomID:        room.ID,
		ParticipantID: player.ID,
		Emotion:       "anxious",
		Intensity:     9,
	}).Error; err != nil {
		t.Fatalf("seed therapy entry: %v", err)
	}
	seedConfig(t, db, nil)
	seedConfig(t, db, func(cfg *types.InterventionConfig) { cfg.TriggerID = TriggerHighIntensity })

	// Both triggers fire but the lifetime ceiling only admits one. The fixed
	// importance order puts the intensity trigger first.
	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 1})
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, TriggerHighIntensity, created[0].TriggerID)
}

func TestEvaluateSkipsMutedTriggers(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})
	cfg := seedConfig(t, db, nil)

	// An hour-old intervention whose trigger the participant muted. Old enough
	// that every cooldown has lapsed, so muting is the only thing in the way.
	old := &types.Intervention{
		ID:            uuid.New(),
		RoomID:        room.ID,
		ParticipantID: player.ID,
		ConfigID:      cfg.ID,
		TriggerID:     TriggerStuckBeforeStart,
		Severity:      types.SeverityInfo,
		Status:        types.InterventionDismissed,
		Visibility:    types.VisibilityRoom,
		Provenance:    types.ProvenanceRule,
		TurnNumber:    1,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(old).Error)
	require.NoError(t, db.Create(&types.InterventionFeedback{
		ID:             uuid.New(),
		InterventionID: old.ID,
		ParticipantID:  player.ID,
		Muted:          true,
	}).Error)

	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestEvaluateSensitiveApprovalGating(t *testing.T) {
	db := testDB(t)

	solo := seedRoom(t, db, func(r *types.Room) { r.SoloPlay = true })
	soloPlayer := seedParticipant(t, db, solo.ID, types.RolePlayer)
	seedState(t, db, solo.ID, soloPlayer.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})

	group := seedRoom(t, db, nil)
	seedParticipant(t, db, group.ID, types.RoleFacilitator)
	groupPlayer := seedParticipant(t, db, group.ID, types.RolePlayer)
	seedParticipant(t, db, group.ID, types.RolePlayer)
	seedState(t, db, group.ID, groupPlayer.ID, func(st *types.PlayerState) {
		st.TotalRolls = 5
		st.PreStartRolls = 5
	})

	seedConfig(t, db, func(cfg *types.InterventionConfig) { cfg.Sensitive = true })

	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})

	created, err := svc.EvaluateAfterMove(context.Background(), solo.ID, soloPlayer.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, types.InterventionApproved, created[0].Status)
	assert.Equal(t, types.VisibilityFacilitatorOnly, created[0].Visibility)

	created, err = svc.EvaluateAfterMove(context.Background(), group.ID, groupPlayer.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, types.InterventionPendingApproval, created[0].Status)
	assert.Equal(t, types.VisibilityFacilitatorOnly, created[0].Visibility)
}

func TestEvaluateTemporalLongSilence(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.HasStarted = true
		st.TotalRolls = 3
		st.Position = 12
	})
	require.NoError(t, db.Create(&types.Move{
		ID:            uuid.New(),
		RoomID:        room.ID,
		ParticipantID: player.ID,
		TurnNumber:    3,
		DiceValue:     4,
		FromPos:       8,
		ToPos:         12,
		CreatedAt:     time.Now().Add(-10 * time.Minute),
	}).Error)
	seedConfig(t, db, func(cfg *types.InterventionConfig) { cfg.TriggerID = TriggerLongSilence })

	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})
	created, err := svc.EvaluateTemporal(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, TriggerLongSilence, created[0].TriggerID)
}

func TestInterventionLifecycle(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	facilitator := seedParticipant(t, db, room.ID, types.RoleFacilitator)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	cfg := seedConfig(t, db, nil)

	pending := &types.Intervention{
		ID:            uuid.New(),
		RoomID:        room.ID,
		ParticipantID: player.ID,
		ConfigID:      cfg.ID,
		TriggerID:     TriggerStuckBeforeStart,
		Severity:      types.SeverityInfo,
		Status:        types.InterventionPendingApproval,
		Visibility:    types.VisibilityRoom,
		Provenance:    types.ProvenanceRule,
		TurnNumber:    5,
	}
	require.NoError(t, db.Create(pending).Error)

	svc, notifier := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})
	ctx := context.Background()

	// Only the facilitator can approve.
	_, err := svc.Approve(ctx, room.ID, player.UserID, pending.ID)
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.CodeUnauthorized, ae.Code)

	iv, err := svc.Approve(ctx, room.ID, facilitator.UserID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InterventionApproved, iv.Status)

	// Approving twice is rejected.
	_, err = svc.Approve(ctx, room.ID, facilitator.UserID, pending.ID)
	assert.Error(t, err)

	iv, err = svc.Snooze(ctx, room.ID, player.UserID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InterventionSnoozed, iv.Status)
	require.NotNil(t, iv.SnoozedUntil)
	assert.True(t, iv.SnoozedUntil.After(time.Now()))

	iv, err = svc.Dismiss(ctx, room.ID, player.UserID, pending.ID, true)
	require.NoError(t, err)
	assert.Equal(t, types.InterventionDismissed, iv.Status)

	var muted int64
	require.NoError(t, db.Model(&types.InterventionFeedback{}).
		Where("intervention_id = ? AND muted = ?", pending.ID, true).
		Count(&muted).Error)
	assert.Equal(t, int64(1), muted)

	// A dismissed intervention cannot be snoozed back into view.
	_, err = svc.Snooze(ctx, room.ID, player.UserID, pending.ID)
	assert.Error(t, err)

	// Dismiss is idempotent.
	_, err = svc.Dismiss(ctx, room.ID, player.UserID, pending.ID, false)
	require.NoError(t, err)

	assert.NotEmpty(t, notifier.updated)
}

func TestFeedbackValidatesRating(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	cfg := seedConfig(t, db, nil)
	iv := &types.Intervention{
		ID:            uuid.New(),
		RoomID:        room.ID,
		ParticipantID: player.ID,
		ConfigID:      cfg.ID,
		TriggerID:     TriggerStuckBeforeStart,
		Severity:      types.SeverityInfo,
		Status:        types.InterventionApproved,
		Visibility:    types.VisibilityRoom,
		Provenance:    types.ProvenanceRule,
	}
	require.NoError(t, db.Create(iv).Error)

	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})
	ctx := context.Background()

	err := svc.Feedback(ctx, room.ID, player.UserID, iv.ID, 0, "", false)
	assert.Error(t, err)

	require.NoError(t, svc.Feedback(ctx, room.ID, player.UserID, iv.ID, 4, "helpful", false))
	var count int64
	require.NoError(t, db.Model(&types.InterventionFeedback{}).
		Where("intervention_id = ?", iv.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveCatalogSkipsMalformedConfig(t *testing.T) {
	db := testDB(t)
	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 10})

	good := &types.InterventionConfig{
		ID:        uuid.New(),
		TriggerID: TriggerRepeatHouse,
		Scope:     types.ScopeGlobal,
		Enabled:   true,
		Severity:  types.SeverityInfo,
	}
	badThresholds := &types.InterventionConfig{
		ID:         uuid.New(),
		TriggerID:  TriggerRapidRolls,
		Scope:      types.ScopeGlobal,
		Enabled:    true,
		Thresholds: datatypes.JSON([]byte("{not json")),
	}
	badTemplate := &types.InterventionConfig{
		ID:        uuid.New(),
		TriggerID: TriggerLongSilence,
		Scope:     types.ScopeGlobal,
		Enabled:   true,
		Templates: datatypes.JSON([]byte(fmt.Sprintf("%q", "ignored"))),
	}

	catalog := svc.resolveCatalog([]*types.InterventionConfig{good, badThresholds, badTemplate})
	assert.Contains(t, catalog, TriggerRepeatHouse)
	assert.NotContains(t, catalog, TriggerRapidRolls)
	assert.NotContains(t, catalog, TriggerLongSilence)
}

func TestAdmitCandidatesRecheckBlocksConcurrentWinner(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	cfg := seedConfig(t, db, nil)

	svc, _ := newInterventionHarness(t, db, nil, PlanQuota{InterventionQuota: 1})
	catalog := svc.resolveCatalog([]*types.InterventionConfig{cfg})
	quota := PlanQuota{InterventionQuota: 1}
	now := time.Now()
	cands := []*Candidate{{
		TriggerID:   TriggerStuckBeforeStart,
		TurnNumber:  5,
		TriggerData: map[string]any{"preStartRolls": 5},
	}}

	admitted, err := svc.admitCandidates(context.Background(), nil, room.ID, player.ID, cands, catalog, map[string]bool{}, quota, now)
	require.NoError(t, err)
	require.Len(t, admitted, 1)

	// An overlapping evaluation persists its row between the unlocked pass
	// and the locked one. The re-run inside the transaction must see it and
	// admit nothing, keeping the quota ceiling intact.
	rival := &types.Intervention{
		ID:            uuid.New(),
		RoomID:        room.ID,
		ParticipantID: player.ID,
		ConfigID:      cfg.ID,
		TriggerID:     TriggerStuckBeforeStart,
		Severity:      types.SeverityInfo,
		Status:        types.InterventionApproved,
		Visibility:    types.VisibilityRoom,
		Provenance:    types.ProvenanceRule,
		TurnNumber:    5,
		CreatedAt:     now,
	}
	require.NoError(t, db.Create(rival).Error)

	final, err := svc.admitCandidates(context.Background(), db, room.ID, player.ID, admitted, catalog, map[string]bool{}, quota, now)
	require.NoError(t, err)
	assert.Empty(t, final)

	// End to end: the full pass lands on the same gates and creates nothing.
	created, err := svc.EvaluateAfterMove(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	assert.Empty(t, created)

	var count int64
	require.NoError(t, db.Model(&types.Intervention{}).
		Where("room_id = ?", room.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
