package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/requestdata"
	"github.com/yungbote/mindpath-backend/internal/sessionlock"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type fakeLock struct {
	denyWith *sessionlock.Result
	existing sessionlock.Result
	forced   int
	released int
}

func (f *fakeLock) Claim(ctx context.Context, userID, roomID, connID string) (sessionlock.Result, error) {
	if f.denyWith != nil {
		return *f.denyWith, nil
	}
	return sessionlock.Result{Granted: true}, nil
}

func (f *fakeLock) ForceClaim(ctx context.Context, userID, roomID, connID string) (sessionlock.Result, error) {
	f.forced++
	r := f.existing
	r.Granted = true
	return r, nil
}

func (f *fakeLock) Refresh(ctx context.Context, userID, connID, roomID string) (bool, error) {
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context, userID, connID string) (bool, error) {
	f.released++
	return true, nil
}

type fakeAuth struct {
	grant *AdminOpenGrant
}

func (f *fakeAuth) VerifyToken(tokenString string) (*requestdata.RequestData, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAuth) ResolveAdminOpenToken(ctx context.Context, token string) (*AdminOpenGrant, error) {
	if f.grant == nil {
		return nil, errors.New("unknown token")
	}
	return f.grant, nil
}

func newRoomHarness(t *testing.T, db *gorm.DB, lock sessionlock.Service, auth AuthService) RoomService {
	t.Helper()
	log := testLogger(t)
	if lock == nil {
		lock = &fakeLock{}
	}
	if auth == nil {
		auth = &fakeAuth{}
	}
	return NewRoomService(db, log,
		repos.NewRoomRepo(db, log),
		repos.NewParticipantRepo(db, log),
		lock, auth)
}

func TestJoinByCodeCreatesParticipantOnce(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	svc := newRoomHarness(t, db, nil, nil)
	userID := uuid.New()

	result, err := svc.JoinByCode(context.Background(), userID, JoinParams{
		Code:        room.Code,
		ConnID:      uuid.NewString(),
		DisplayName: "Mika",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Participant)
	assert.Equal(t, types.RolePlayer, result.Participant.Role)
	assert.Equal(t, "Mika", result.Participant.DisplayName)
	assert.NotNil(t, result.Participant.ConsentAt)

	// A rejoin finds the existing row instead of duplicating it.
	again, err := svc.JoinByCode(context.Background(), userID, JoinParams{
		Code:   room.Code,
		ConnID: uuid.NewString(),
	})
	require.NoError(t, err)
	assert.Equal(t, result.Participant.ID, again.Participant.ID)

	var count int64
	require.NoError(t, db.Model(&types.Participant{}).
		Where("room_id = ?", room.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestJoinByCodeRequestedFacilitatorRole(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	svc := newRoomHarness(t, db, nil, nil)

	result, err := svc.JoinByCode(context.Background(), uuid.New(), JoinParams{
		Code:   room.Code,
		ConnID: uuid.NewString(),
		Role:   types.RoleFacilitator,
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleFacilitator, result.Participant.Role)

	// Anything other than an explicit facilitator request lands as a player.
	result, err = svc.JoinByCode(context.Background(), uuid.New(), JoinParams{
		Code:   room.Code,
		ConnID: uuid.NewString(),
		Role:   types.ParticipantRole("ADMIN"),
	})
	require.NoError(t, err)
	assert.Equal(t, types.RolePlayer, result.Participant.Role)
}

func TestJoinByCodeSessionConflict(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	lock := &fakeLock{denyWith: &sessionlock.Result{
		Granted:          false,
		ExistingRoomID:   uuid.NewString(),
		ExistingConnID:   "conn-elsewhere",
		ExistingInstance: "instance-2",
	}}
	svc := newRoomHarness(t, db, lock, nil)

	result, err := svc.JoinByCode(context.Background(), uuid.New(), JoinParams{
		Code:   room.Code,
		ConnID: uuid.NewString(),
	})

	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.CodeConcurrentRoomSession, ae.Code)
	require.NotNil(t, result)
	require.NotNil(t, result.Conflict)
	assert.Equal(t, "conn-elsewhere", result.Conflict.ExistingConnID)
}

func TestJoinByCodeForcedTakeoverReportsEvicted(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	lock := &fakeLock{existing: sessionlock.Result{
		ExistingRoomID: room.ID.String(),
		ExistingConnID: "conn-old",
	}}
	svc := newRoomHarness(t, db, lock, nil)

	result, err := svc.JoinByCode(context.Background(), uuid.New(), JoinParams{
		Code:          room.Code,
		ConnID:        "conn-new",
		ForceTakeover: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Evicted)
	assert.Equal(t, "conn-old", result.Evicted.ExistingConnID)
	assert.Equal(t, 1, lock.forced)
}

func TestJoinClosedRoomNeedsAdminGrant(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, func(r *types.Room) { r.Status = types.RoomStatusClosed })
	svc := newRoomHarness(t, db, nil, nil)

	_, err := svc.JoinByCode(context.Background(), uuid.New(), JoinParams{
		Code:   room.Code,
		ConnID: uuid.NewString(),
	})
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.CodeRoomClosed, ae.Code)

	// A grant for a different room does not open this one.
	otherGrant := &fakeAuth{grant: &AdminOpenGrant{RoomID: uuid.New()}}
	svc = newRoomHarness(t, db, nil, otherGrant)
	_, err = svc.JoinByCode(context.Background(), uuid.New(), JoinParams{
		Code:           room.Code,
		ConnID:         uuid.NewString(),
		AdminOpenToken: "token",
	})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.CodeRoomClosed, ae.Code)

	// The matching grant reopens the room as part of the join.
	svc = newRoomHarness(t, db, nil, &fakeAuth{grant: &AdminOpenGrant{RoomID: room.ID, GrantedBy: "admin"}})
	result, err := svc.JoinByCode(context.Background(), uuid.New(), JoinParams{
		Code:           room.Code,
		ConnID:         uuid.NewString(),
		AdminOpenToken: "token",
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoomStatusActive, result.Room.Status)

	fresh := &types.Room{}
	require.NoError(t, db.Where("id = ?", room.ID).First(fresh).Error)
	assert.Equal(t, types.RoomStatusActive, fresh.Status)
	assert.Nil(t, fresh.ClosedAt)
}

func TestCloseRoomFacilitatorOnlyAndIdempotent(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	facilitator := seedParticipant(t, db, room.ID, types.RoleFacilitator)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	svc := newRoomHarness(t, db, nil, nil)
	ctx := context.Background()

	err := svc.Close(ctx, room.ID, player.UserID)
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.CodeUnauthorized, ae.Code)

	require.NoError(t, svc.Close(ctx, room.ID, facilitator.UserID))
	fresh := &types.Room{}
	require.NoError(t, db.Where("id = ?", room.ID).First(fresh).Error)
	assert.Equal(t, types.RoomStatusClosed, fresh.Status)
	require.NotNil(t, fresh.ClosedAt)

	// Closing an already-closed room is a no-op, not an error.
	require.NoError(t, svc.Close(ctx, room.ID, facilitator.UserID))
}

func TestSetIntentionRespectsLock(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	player := seedParticipant(t, db, room.ID, types.RolePlayer)
	svc := newRoomHarness(t, db, nil, nil)
	ctx := context.Background()

	require.Error(t, svc.SetIntention(ctx, room.ID, player.UserID, "", false))

	require.NoError(t, svc.SetIntention(ctx, room.ID, player.UserID, "stay present", true))
	fresh := &types.Participant{}
	require.NoError(t, db.Where("id = ?", player.ID).First(fresh).Error)
	assert.Equal(t, "stay present", fresh.Intention)
	assert.True(t, fresh.IntentionLocked)

	// Locked intention cannot be rewritten by the player.
	err := svc.SetIntention(ctx, room.ID, player.UserID, "something else", false)
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.CodeValidation, ae.Code)
}

func TestReplicateIntentionToPlayers(t *testing.T) {
	db := testDB(t)
	room := seedRoom(t, db, nil)
	facilitator := seedParticipant(t, db, room.ID, types.RoleFacilitator)
	playerA := seedParticipant(t, db, room.ID, types.RolePlayer)
	playerB := seedParticipant(t, db, room.ID, types.RolePlayer)
	svc := newRoomHarness(t, db, nil, nil)
	ctx := context.Background()

	err := svc.ReplicateIntentionToPlayers(ctx, room.ID, playerA.UserID, "arrive softly")
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.CodeUnauthorized, ae.Code)

	require.NoError(t, svc.ReplicateIntentionToPlayers(ctx, room.ID, facilitator.UserID, "arrive softly"))
	for _, id := range []uuid.UUID{facilitator.ID, playerA.ID, playerB.ID} {
		p := &types.Participant{}
		require.NoError(t, db.Where("id = ?", id).First(p).Error)
		assert.Equal(t, "arrive softly", p.Intention)
		assert.True(t, p.IntentionLocked)
	}
}
