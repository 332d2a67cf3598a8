package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/board"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/types"
)

func newSnapshotHarness(t *testing.T, db *gorm.DB, quota PlanQuota) SnapshotService {
	t.Helper()
	log := testLogger(t)
	gameBoard, err := board.Default()
	require.NoError(t, err)
	return NewSnapshotService(db, log, gameBoard,
		repos.NewRoomRepo(db, log),
		repos.NewParticipantRepo(db, log),
		repos.NewPlayerStateRepo(db, log),
		repos.NewMoveRepo(db, log),
		repos.NewCardDrawRepo(db, log),
		repos.NewInterventionRepo(db, log),
		testQuotaCache(t, quota, quota),
	)
}

func TestBuildMaterializesStatesAndTurnPointer(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	seedParticipant(t, db, room.ID, types.RoleFacilitator)
	first := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedParticipant(t, db, room.ID, types.RolePlayer)

	svc := newSnapshotHarness(t, db, PlanQuota{InterventionQuota: 10})
	snap, err := svc.Build(context.Background(), room.ID, PresenceInfo{FacilitatorOnline: true})
	require.NoError(t, err)

	// Player states appear lazily, for turn-eligible participants only.
	var states int64
	require.NoError(t, db.Model(&types.PlayerState{}).
		Where("room_id = ?", room.ID).Count(&states).Error)
	assert.Equal(t, int64(2), states)

	// The turn pointer lands on the first eligible participant in join order.
	require.NotNil(t, snap.Room.TurnParticipantID)
	assert.Equal(t, first.ID, *snap.Room.TurnParticipantID)

	assert.Len(t, snap.Participants, 3)
	for _, view := range snap.Participants {
		if view.Participant.Role == types.RoleFacilitator {
			assert.Nil(t, view.State)
		} else {
			assert.NotNil(t, view.State)
		}
	}
	assert.True(t, snap.Presence.FacilitatorOnline)

	// Rebuilding is idempotent: nothing new is materialized.
	_, err = svc.Build(context.Background(), room.ID, PresenceInfo{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&types.PlayerState{}).
		Where("room_id = ?", room.ID).Count(&states).Error)
	assert.Equal(t, int64(2), states)
}

func TestBuildAutoClosesTrialRoomAtCap(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, func(r *types.Room) {
		r.IsTrial = true
		r.PlanType = types.PlanTypeTrial
		r.SoloPlay = true
	})
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) {
		st.HasStarted = true
		st.TotalRolls = 5
		st.PreStartRolls = 1
	})

	svc := newSnapshotHarness(t, db, PlanQuota{InterventionQuota: 3, TrialMoveLimit: 4})
	snap, err := svc.Build(context.Background(), room.ID, PresenceInfo{})
	require.NoError(t, err)
	assert.Equal(t, types.RoomStatusClosed, snap.Room.Status)
	require.NotNil(t, snap.Room.ClosedAt)

	fresh := &types.Room{}
	require.NoError(t, db.Where("id = ?", room.ID).First(fresh).Error)
	assert.Equal(t, types.RoomStatusClosed, fresh.Status)
}

func TestBuildShowsOnlyApprovedRoomInterventions(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	seedParticipant(t, db, room.ID, types.RoleFacilitator)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	cfg := seedConfig(t, db, nil)

	seedIv := func(status types.InterventionStatus, visibility types.Visibility, message string) *types.Intervention {
		iv := &types.Intervention{
			ID:            uuid.New(),
			RoomID:        room.ID,
			ParticipantID: player.ID,
			ConfigID:      cfg.ID,
			TriggerID:     TriggerStuckBeforeStart,
			Severity:      types.SeverityInfo,
			Status:        status,
			Visibility:    visibility,
			Provenance:    types.ProvenanceRule,
			Message:       message,
			TurnNumber:    3,
		}
		require.NoError(t, db.Create(iv).Error)
		return iv
	}
	visible := seedIv(types.InterventionApproved, types.VisibilityRoom, "take a breath")
	seedIv(types.InterventionPendingApproval, types.VisibilityFacilitatorOnly, "clinician-only concern")
	seedIv(types.InterventionDismissed, types.VisibilityRoom, "old and gone")

	// Every connection receives the same snapshot, so rows awaiting approval
	// or restricted to the facilitator must never ride along.
	svc := newSnapshotHarness(t, db, PlanQuota{InterventionQuota: 10})
	snap, err := svc.Build(context.Background(), room.ID, PresenceInfo{})
	require.NoError(t, err)
	require.Len(t, snap.Interventions, 1)
	assert.Equal(t, visible.ID, snap.Interventions[0].ID)
}

func TestMaterializationToleratesExistingState(t *testing.T) {
	db := testDB(t)
	log := testLogger(t)
	room := seedRoom(t, db, func(r *types.Room) { r.SoloPlay = true })
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	existing := seedState(t, db, room.ID, player.ID, func(st *types.PlayerState) { st.Position = 9 })

	// A second build racing the first inserts the same participant; the
	// insert must yield instead of failing the whole snapshot.
	repo := repos.NewPlayerStateRepo(db, log)
	dup := &types.PlayerState{ID: uuid.New(), RoomID: room.ID, ParticipantID: player.ID, Position: 1}
	require.NoError(t, repo.CreateIfAbsent(context.Background(), nil, []*types.PlayerState{dup}))

	states, err := repo.GetByRoomID(context.Background(), nil, room.ID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, existing.ID, states[0].ID)

	svc := newSnapshotHarness(t, db, PlanQuota{InterventionQuota: 10})
	snap, err := svc.Build(context.Background(), room.ID, PresenceInfo{})
	require.NoError(t, err)
	require.Len(t, snap.Participants, 1)
	require.NotNil(t, snap.Participants[0].State)
	assert.Equal(t, 9, snap.Participants[0].State.Position)
}

func TestTurnEligibleFacilitatorRotation(t *testing.T) {
	room := &types.Room{}
	facilitator := &types.Participant{Role: types.RoleFacilitator}
	player := &types.Participant{Role: types.RolePlayer}

	eligible := TurnEligible(room, []*types.Participant{facilitator, player})
	require.Len(t, eligible, 1)
	assert.Equal(t, types.RolePlayer, eligible[0].Role)

	room.FacilitatorPlays = true
	eligible = TurnEligible(room, []*types.Participant{facilitator, player})
	assert.Len(t, eligible, 2)
}
