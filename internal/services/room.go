package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/sessionlock"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type JoinParams struct {
	Code           string
	ConnID         string
	DisplayName    string
	Role           types.ParticipantRole
	ForceTakeover  bool
	AdminOpenToken string
}

type JoinResult struct {
	Room        *types.Room        `json:"room"`
	Participant *types.Participant `json:"participant"`
	// Conflict is set alongside a CONCURRENT_ROOM_SESSION rejection so the
	// client can offer a forced takeover.
	Conflict *sessionlock.Result `json:"conflict,omitempty"`
	// Evicted names the previous session a forced takeover displaced; the hub
	// terminates that connection if it lives on this instance.
	Evicted *sessionlock.Result `json:"-"`
}

type RoomService interface {
	JoinByCode(ctx context.Context, userID uuid.UUID, params JoinParams) (*JoinResult, error)
	Close(ctx context.Context, roomID, userID uuid.UUID) error
	SetIntention(ctx context.Context, roomID, userID uuid.UUID, intention string, lock bool) error
	ReplicateIntentionToPlayers(ctx context.Context, roomID, userID uuid.UUID, intention string) error
}

type roomService struct {
	db              *gorm.DB
	log             *logger.Logger
	roomRepo        repos.RoomRepo
	participantRepo repos.ParticipantRepo
	lock            sessionlock.Service
	auth            AuthService
}

func NewRoomService(
	db *gorm.DB,
	log *logger.Logger,
	roomRepo repos.RoomRepo,
	participantRepo repos.ParticipantRepo,
	lock sessionlock.Service,
	auth AuthService,
) RoomService {
	return &roomService{
		db:              db,
		log:             log.With("service", "RoomService"),
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		lock:            lock,
		auth:            auth,
	}
}

// JoinByCode claims the caller's single-session lock, then registers (or
// re-finds) the participant row in one transaction. A CLOSED room needs a
// valid admin-open grant for this room and is reopened by the join. If the
// transaction fails after the lock was taken, the lock is compensated: the
// displaced session is restored when the claim was forced, released otherwise.
func (rs *roomService) JoinByCode(ctx context.Context, userID uuid.UUID, params JoinParams) (*JoinResult, error) {
	if params.Code == "" || params.ConnID == "" {
		return nil, apierr.Validation(fmt.Errorf("code and connection id are required"))
	}

	room, err := rs.roomRepo.GetByCode(ctx, nil, params.Code)
	if err != nil {
		return nil, apierr.Validation(fmt.Errorf("unknown room code"))
	}

	if room.Status == types.RoomStatusClosed {
		grant, gErr := rs.auth.ResolveAdminOpenToken(ctx, params.AdminOpenToken)
		if gErr != nil || grant.RoomID != room.ID {
			return nil, apierr.Conflict(apierr.CodeRoomClosed, fmt.Errorf("room is closed"))
		}
		rs.log.Info("Admin-open grant accepted for closed room",
			"room_id", room.ID, "granted_by", grant.GrantedBy)
	}

	var claim sessionlock.Result
	if params.ForceTakeover {
		claim, err = rs.lock.ForceClaim(ctx, userID.String(), room.ID.String(), params.ConnID)
	} else {
		claim, err = rs.lock.Claim(ctx, userID.String(), room.ID.String(), params.ConnID)
	}
	if err != nil {
		return nil, fmt.Errorf("Failed to claim session: %w", err)
	}
	if !claim.Granted {
		return &JoinResult{Conflict: &claim},
			apierr.Conflict(apierr.CodeConcurrentRoomSession,
				fmt.Errorf("user already has an active session"))
	}

	result := &JoinResult{Room: room}
	if params.ForceTakeover && claim.ExistingConnID != "" && claim.ExistingConnID != params.ConnID {
		result.Evicted = &claim
	}

	txErr := rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, lErr := rs.roomRepo.GetByIDForUpdate(ctx, tx, room.ID)
		if lErr != nil {
			return fmt.Errorf("Failed to load room: %w", lErr)
		}
		if locked.Status == types.RoomStatusClosed {
			if rErr := rs.roomRepo.Reopen(ctx, tx, room.ID); rErr != nil {
				return fmt.Errorf("Failed to reopen room: %w", rErr)
			}
			locked.Status = types.RoomStatusActive
			locked.ClosedAt = nil
		}
		result.Room = locked

		existing, pErr := rs.participantRepo.GetByRoomAndUser(ctx, tx, room.ID, userID)
		if pErr == nil {
			result.Participant = existing
			return nil
		}
		if pErr != gorm.ErrRecordNotFound {
			return fmt.Errorf("Failed to look up participant: %w", pErr)
		}

		role := params.Role
		if role != types.RoleFacilitator {
			role = types.RolePlayer
		}
		now := time.Now()
		fresh := &types.Participant{
			ID:          uuid.New(),
			RoomID:      room.ID,
			UserID:      userID,
			Role:        role,
			DisplayName: params.DisplayName,
			ConsentAt:   &now,
		}
		if _, cErr := rs.participantRepo.Create(ctx, tx, []*types.Participant{fresh}); cErr != nil {
			return fmt.Errorf("Failed to create participant: %w", cErr)
		}
		result.Participant = fresh
		return nil
	})
	if txErr != nil {
		rs.compensateLock(ctx, userID, params.ConnID, claim, params.ForceTakeover)
		return nil, txErr
	}
	return result, nil
}

// compensateLock undoes a session claim whose join transaction failed. The
// lock must not outlive the join it was taken for.
func (rs *roomService) compensateLock(ctx context.Context, userID uuid.UUID, connID string, claim sessionlock.Result, forced bool) {
	if forced && claim.ExistingConnID != "" && claim.ExistingConnID != connID {
		if _, err := rs.lock.ForceClaim(ctx, userID.String(), claim.ExistingRoomID, claim.ExistingConnID); err != nil {
			rs.log.Error("Failed to restore displaced session after join failure",
				"user_id", userID, "conn_id", claim.ExistingConnID, "error", err)
		}
		return
	}
	if _, err := rs.lock.Release(ctx, userID.String(), connID); err != nil {
		rs.log.Error("Failed to release session after join failure",
			"user_id", userID, "conn_id", connID, "error", err)
	}
}

func (rs *roomService) Close(ctx context.Context, roomID, userID uuid.UUID) error {
	var rejection error
	err := rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, rErr := rs.roomRepo.GetByIDForUpdate(ctx, tx, roomID)
		if rErr != nil {
			return fmt.Errorf("Failed to load room: %w", rErr)
		}
		caller, cErr := rs.participantRepo.GetByRoomAndUser(ctx, tx, roomID, userID)
		if cErr != nil || caller.Role != types.RoleFacilitator {
			rejection = apierr.New(403, apierr.CodeUnauthorized, fmt.Errorf("only the facilitator can close the room"))
			return nil
		}
		if room.Status == types.RoomStatusClosed {
			return nil
		}
		now := time.Now()
		if uErr := rs.roomRepo.UpdateStatus(ctx, tx, roomID, types.RoomStatusClosed, &now); uErr != nil {
			return fmt.Errorf("Failed to close room: %w", uErr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return rejection
}

func (rs *roomService) SetIntention(ctx context.Context, roomID, userID uuid.UUID, intention string, lock bool) error {
	if intention == "" {
		return apierr.Validation(fmt.Errorf("intention must not be empty"))
	}
	participant, err := rs.participantRepo.GetByRoomAndUser(ctx, nil, roomID, userID)
	if err != nil {
		return apierr.Validation(fmt.Errorf("caller is not a participant of this room"))
	}
	if participant.IntentionLocked && participant.Role != types.RoleFacilitator {
		return apierr.Validation(fmt.Errorf("intention is locked for this session"))
	}
	if uErr := rs.participantRepo.UpdateIntention(ctx, nil, participant.ID, intention, lock); uErr != nil {
		return fmt.Errorf("Failed to update intention: %w", uErr)
	}
	return nil
}

// ReplicateIntentionToPlayers copies the facilitator's intention onto every
// PLAYER row and locks it there.
func (rs *roomService) ReplicateIntentionToPlayers(ctx context.Context, roomID, userID uuid.UUID, intention string) error {
	if intention == "" {
		return apierr.Validation(fmt.Errorf("intention must not be empty"))
	}
	caller, err := rs.participantRepo.GetByRoomAndUser(ctx, nil, roomID, userID)
	if err != nil || caller.Role != types.RoleFacilitator {
		return apierr.New(403, apierr.CodeUnauthorized, fmt.Errorf("only the facilitator can replicate the intention"))
	}
	return rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if uErr := rs.participantRepo.UpdateIntention(ctx, tx, caller.ID, intention, true); uErr != nil {
			return fmt.Errorf("Failed to update facilitator intention: %w", uErr)
		}
		if rErr := rs.participantRepo.ReplicateIntentionToPlayers(ctx, tx, roomID, intention); rErr != nil {
			return fmt.Errorf("Failed to replicate intention: %w", rErr)
		}
		return nil
	})
}
