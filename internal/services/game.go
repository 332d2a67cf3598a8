package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/board"
	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type RollResult struct {
	DiceValue          int         `json:"dice_value"`
	Move               *types.Move `json:"move,omitempty"`
	Started            bool        `json:"started"`
	Completed          bool        `json:"completed"`
	RoomCompleted      bool        `json:"room_completed"`
	TrialClosedByLimit bool        `json:"trial_closed_by_limit"`
}

type GameService interface {
	// Roll executes one dice roll for the calling user. Everything from
	// validation to turn advancement happens in a single transaction so two
	// concurrent rolls cannot both advance the same turn.
	Roll(ctx context.Context, roomID, userID uuid.UUID, facilitatorOnline bool) (*RollResult, error)
	// NextTurn force-advances the rotation (facilitator action).
	NextTurn(ctx context.Context, roomID, userID uuid.UUID) error
}

type gameService struct {
	db              *gorm.DB
	log             *logger.Logger
	board           *board.Board
	roomRepo        repos.RoomRepo
	participantRepo repos.ParticipantRepo
	playerStateRepo repos.PlayerStateRepo
	moveRepo        repos.MoveRepo
	quotaCache      QuotaCache
	diceFn          func() int
}

func NewGameService(
	db *gorm.DB,
	log *logger.Logger,
	gameBoard *board.Board,
	roomRepo repos.RoomRepo,
	participantRepo repos.ParticipantRepo,
	playerStateRepo repos.PlayerStateRepo,
	moveRepo repos.MoveRepo,
	quotaCache QuotaCache,
) GameService {
	return &gameService{
		db:              db,
		log:             log.With("service", "GameService"),
		board:           gameBoard,
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		playerStateRepo: playerStateRepo,
		moveRepo:        moveRepo,
		quotaCache:      quotaCache,
		diceFn:          func() int { return rand.Intn(6) + 1 },
	}
}

func (gs *gameService) Roll(ctx context.Context, roomID, userID uuid.UUID, facilitatorOnline bool) (*RollResult, error) {
	result := &RollResult{}
	var rejection error

	err := gs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, rErr := gs.roomRepo.GetByIDForUpdate(ctx, tx, roomID)
		if rErr != nil {
			return fmt.Errorf("Failed to load room: %w", rErr)
		}
		if room.Status != types.RoomStatusActive {
			rejection = apierr.Conflict(apierr.CodeRoomClosed, fmt.Errorf("room is %s", room.Status))
			return nil
		}
		if !facilitatorOnline {
			rejection = apierr.New(403, apierr.CodeNoFacilitator, fmt.Errorf("no facilitator present in the room"))
			return nil
		}

		participants, pErr := gs.participantRepo.GetByRoomID(ctx, tx, roomID)
		if pErr != nil {
			return fmt.Errorf("Failed to load participants: %w", pErr)
		}
		eligible := TurnEligible(room, participants)
		if len(eligible) == 0 {
			rejection = apierr.Validation(fmt.Errorf("room has no turn-eligible participants"))
			return nil
		}

		caller, cErr := gs.participantRepo.GetByRoomAndUser(ctx, tx, roomID, userID)
		if cErr != nil {
			rejection = apierr.Validation(fmt.Errorf("caller is not a participant of this room"))
			return nil
		}
		if room.TurnParticipantID == nil || *room.TurnParticipantID != caller.ID {
			rejection = apierr.Conflict(apierr.CodeNotYourTurn, fmt.Errorf("it is not this participant's turn"))
			return nil
		}

		state, sErr := gs.loadOrCreateState(ctx, tx, roomID, caller.ID)
		if sErr != nil {
			return sErr
		}

		// Trial quota gate. An exhausted quota rejects the roll and closes
		// the room in the same transaction.
		var trialLimit int
		if room.IsTrial {
			quota, qErr := gs.quotaCache.Get(ctx, room.PlanType)
			if qErr != nil {
				return fmt.Errorf("Failed to resolve plan quota: %w", qErr)
			}
			trialLimit = quota.TrialMoveLimit
			if trialLimit > 0 && state.HasStarted && state.TotalRolls-state.PreStartRolls >= trialLimit {
				now := time.Now()
				if uErr := gs.roomRepo.UpdateStatus(ctx, tx, roomID, types.RoomStatusClosed, &now); uErr != nil {
					return fmt.Errorf("Failed to close trial room: %w", uErr)
				}
				result.TrialClosedByLimit = true
				rejection = apierr.Conflict(apierr.CodeTrialLimitReached, fmt.Errorf("trial move limit reached"))
				return nil
			}
		}

		die := gs.diceFn()
		prev := board.RollState{
			Position:      state.Position,
			HasStarted:    state.HasStarted,
			HasCompleted:  state.HasCompleted,
			TotalRolls:    state.TotalRolls,
			PreStartRolls: state.PreStartRolls,
		}
		next, outcome, aErr := gs.board.ApplyDice(prev, die)
		if aErr != nil {
			rejection = apierr.Validation(aErr)
			return nil
		}

		state.Position = next.Position
		state.HasStarted = next.HasStarted
		state.HasCompleted = next.HasCompleted
		state.TotalRolls = next.TotalRolls
		state.PreStartRolls = next.PreStartRolls
		if uErr := gs.playerStateRepo.Update(ctx, tx, state); uErr != nil {
			return fmt.Errorf("Failed to persist player state: %w", uErr)
		}

		move := &types.Move{
			ID:            uuid.New(),
			RoomID:        roomID,
			ParticipantID: caller.ID,
			TurnNumber:    state.TotalRolls,
			DiceValue:     die,
			FromPos:       outcome.FromPos,
			ToPos:         outcome.ToPos,
			JumpFrom:      outcome.JumpFrom,
			JumpTo:        outcome.JumpTo,
		}
		if _, mErr := gs.moveRepo.Create(ctx, tx, []*types.Move{move}); mErr != nil {
			return fmt.Errorf("Failed to record move: %w", mErr)
		}

		result.DiceValue = die
		result.Move = move
		result.Started = outcome.Started
		result.Completed = outcome.Completed

		// Close the trial room the moment the cap is reached, exactly once.
		if room.IsTrial && trialLimit > 0 && state.HasStarted &&
			state.TotalRolls-state.PreStartRolls >= trialLimit {
			now := time.Now()
			if uErr := gs.roomRepo.UpdateStatus(ctx, tx, roomID, types.RoomStatusClosed, &now); uErr != nil {
				return fmt.Errorf("Failed to close trial room at cap: %w", uErr)
			}
			result.TrialClosedByLimit = true
		}

		return gs.advanceTurn(ctx, tx, room, eligible, caller.ID, state, result)
	})
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		return result, rejection
	}
	return result, nil
}

func (gs *gameService) NextTurn(ctx context.Context, roomID, userID uuid.UUID) error {
	var rejection error
	err := gs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, rErr := gs.roomRepo.GetByIDForUpdate(ctx, tx, roomID)
		if rErr != nil {
			return fmt.Errorf("Failed to load room: %w", rErr)
		}
		if room.Status != types.RoomStatusActive {
			rejection = apierr.Conflict(apierr.CodeRoomClosed, fmt.Errorf("room is %s", room.Status))
			return nil
		}
		caller, cErr := gs.participantRepo.GetByRoomAndUser(ctx, tx, roomID, userID)
		if cErr != nil || caller.Role != types.RoleFacilitator {
			rejection = apierr.New(403, apierr.CodeUnauthorized, fmt.Errorf("only the facilitator can force the turn"))
			return nil
		}
		participants, pErr := gs.participantRepo.GetByRoomID(ctx, tx, roomID)
		if pErr != nil {
			return fmt.Errorf("Failed to load participants: %w", pErr)
		}
		eligible := TurnEligible(room, participants)
		if len(eligible) == 0 || room.TurnParticipantID == nil {
			rejection = apierr.Validation(fmt.Errorf("no turn to advance"))
			return nil
		}
		return gs.advanceTurn(ctx, tx, room, eligible, *room.TurnParticipantID, nil, &RollResult{})
	})
	if err != nil {
		return err
	}
	return rejection
}

func (gs *gameService) loadOrCreateState(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID) (*types.PlayerState, error) {
	state, err := gs.playerStateRepo.GetByParticipantID(ctx, tx, participantID)
	if err == nil {
		return state, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("Failed to load player state: %w", err)
	}
	fresh := &types.PlayerState{
		ID:            uuid.New(),
		RoomID:        roomID,
		ParticipantID: participantID,
		Position:      gs.board.Start,
	}
	if _, cErr := gs.playerStateRepo.Create(ctx, tx, []*types.PlayerState{fresh}); cErr != nil {
		return nil, fmt.Errorf("Failed to create player state: %w", cErr)
	}
	return fresh, nil
}

// advanceTurn round-robins to the next non-completed participant. A full wrap
// with nobody eligible marks the room COMPLETED.
func (gs *gameService) advanceTurn(ctx context.Context, tx *gorm.DB, room *types.Room, eligible []*types.Participant, currentID uuid.UUID, currentState *types.PlayerState, result *RollResult) error {
	currentIdx := -1
	completed := make([]bool, len(eligible))
	for i, p := range eligible {
		if p.ID == currentID {
			currentIdx = i
			if currentState != nil {
				completed[i] = currentState.HasCompleted
				continue
			}
		}
		st, err := gs.playerStateRepo.GetByParticipantID(ctx, tx, p.ID)
		if err == gorm.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return fmt.Errorf("Failed to load player state for rotation: %w", err)
		}
		completed[i] = st.HasCompleted
	}
	if currentIdx < 0 {
		currentIdx = 0
	}

	nextIdx, ok := board.NextEligibleIndex(completed, currentIdx)
	if !ok {
		if uErr := gs.roomRepo.UpdateStatus(ctx, tx, room.ID, types.RoomStatusCompleted, nil); uErr != nil {
			return fmt.Errorf("Failed to complete room: %w", uErr)
		}
		if tErr := gs.roomRepo.SetTurnParticipant(ctx, tx, room.ID, nil); tErr != nil {
			return fmt.Errorf("Failed to clear turn pointer: %w", tErr)
		}
		result.RoomCompleted = true
		gs.log.Info("Room completed, all participants reached the goal", "room_id", room.ID)
		return nil
	}
	nextID := eligible[nextIdx].ID
	if tErr := gs.roomRepo.SetTurnParticipant(ctx, tx, room.ID, &nextID); tErr != nil {
		return fmt.Errorf("Failed to advance turn pointer: %w", tErr)
	}
	return nil
}
