package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/board"
	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/types"
)

// PresenceInfo is the advisory per-room presence view the hub passes in when
// it asks for a snapshot.
type PresenceInfo struct {
	OnlineUserIDs     []uuid.UUID `json:"online_user_ids"`
	FacilitatorOnline bool        `json:"facilitator_online"`
}

type ParticipantView struct {
	Participant *types.Participant `json:"participant"`
	State       *types.PlayerState `json:"state,omitempty"`
	MoveCount   int64              `json:"move_count"`
	AIUsage     AIUsageView        `json:"ai_usage"`
}

type AIUsageView struct {
	Interventions int64 `json:"interventions"`
	Tips          int   `json:"tips"`
}

// RoomSnapshot is the authoritative room state fanned out on every mutation.
type RoomSnapshot struct {
	Room          *types.Room           `json:"room"`
	Participants  []*ParticipantView    `json:"participants"`
	LastMove      *types.Move           `json:"last_move,omitempty"`
	Deck          []*types.CardDraw     `json:"deck"`
	Interventions []*types.Intervention `json:"interventions"`
	Presence      PresenceInfo          `json:"presence"`
	BuiltAt       time.Time             `json:"built_at"`
}

type SnapshotService interface {
	// Build re-reads durable state. It is idempotent except for two derived
	// transitions it owns: materializing missing PlayerState rows for newly
	// turn-eligible participants, and auto-closing a trial room whose
	// post-start move cap has been reached.
	Build(ctx context.Context, roomID uuid.UUID, presence PresenceInfo) (*RoomSnapshot, error)
}

type snapshotService struct {
	db               *gorm.DB
	log              *logger.Logger
	board            *board.Board
	roomRepo         repos.RoomRepo
	participantRepo  repos.ParticipantRepo
	playerStateRepo  repos.PlayerStateRepo
	moveRepo         repos.MoveRepo
	cardDrawRepo     repos.CardDrawRepo
	interventionRepo repos.InterventionRepo
	quotaCache       QuotaCache
}

func NewSnapshotService(
	db *gorm.DB,
	log *logger.Logger,
	gameBoard *board.Board,
	roomRepo repos.RoomRepo,
	participantRepo repos.ParticipantRepo,
	playerStateRepo repos.PlayerStateRepo,
	moveRepo repos.MoveRepo,
	cardDrawRepo repos.CardDrawRepo,
	interventionRepo repos.InterventionRepo,
	quotaCache QuotaCache,
) SnapshotService {
	return &snapshotService{
		db:               db,
		log:              log.With("service", "SnapshotService"),
		board:            gameBoard,
		roomRepo:         roomRepo,
		participantRepo:  participantRepo,
		playerStateRepo:  playerStateRepo,
		moveRepo:         moveRepo,
		cardDrawRepo:     cardDrawRepo,
		interventionRepo: interventionRepo,
		quotaCache:       quotaCache,
	}
}

// TurnEligible returns the participants counted in turn rotation, in join
// order. Players always rotate; the facilitator rotates when the room says
// they play or when solo play is on.
func TurnEligible(room *types.Room, participants []*types.Participant) []*types.Participant {
	eligible := make([]*types.Participant, 0, len(participants))
	for _, p := range participants {
		if p.Role == types.RolePlayer {
			eligible = append(eligible, p)
			continue
		}
		if room.FacilitatorPlays || room.SoloPlay {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

func (s *snapshotService) Build(ctx context.Context, roomID uuid.UUID, presence PresenceInfo) (*RoomSnapshot, error) {
	var snap *RoomSnapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, rErr := s.roomRepo.GetByID(ctx, tx, roomID)
		if rErr != nil {
			return fmt.Errorf("Failed to load room: %w", rErr)
		}
		participants, pErr := s.participantRepo.GetByRoomID(ctx, tx, roomID)
		if pErr != nil {
			return fmt.Errorf("Failed to load participants: %w", pErr)
		}

		eligible := TurnEligible(room, participants)
		states, sErr := s.playerStateRepo.GetByRoomID(ctx, tx, roomID)
		if sErr != nil {
			return fmt.Errorf("Failed to load player states: %w", sErr)
		}
		stateByParticipant := make(map[uuid.UUID]*types.PlayerState, len(states))
		for _, st := range states {
			stateByParticipant[st.ParticipantID] = st
		}

		// Lazily materialize missing PlayerState rows.
		var missing []*types.PlayerState
		for _, p := range eligible {
			if _, ok := stateByParticipant[p.ID]; ok {
				continue
			}
			st := &types.PlayerState{
				ID:            uuid.New(),
				RoomID:        roomID,
				ParticipantID: p.ID,
				Position:      s.board.Start,
			}
			missing = append(missing, st)
			stateByParticipant[p.ID] = st
		}
		if len(missing) > 0 {
			// Overlapping builds can race here; the insert skips rows another
			// build already materialized, then the re-read keeps whichever row
			// actually landed.
			if cErr := s.playerStateRepo.CreateIfAbsent(ctx, tx, missing); cErr != nil {
				return fmt.Errorf("Failed to materialize player states: %w", cErr)
			}
			states, sErr = s.playerStateRepo.GetByRoomID(ctx, tx, roomID)
			if sErr != nil {
				return fmt.Errorf("Failed to reload player states: %w", sErr)
			}
			for _, st := range states {
				stateByParticipant[st.ParticipantID] = st
			}
		}

		// Initialize the turn pointer once there is someone to rotate.
		if room.TurnParticipantID == nil && len(eligible) > 0 && room.Status == types.RoomStatusActive {
			first := eligible[0].ID
			if tErr := s.roomRepo.SetTurnParticipant(ctx, tx, roomID, &first); tErr != nil {
				return fmt.Errorf("Failed to initialize turn pointer: %w", tErr)
			}
			room.TurnParticipantID = &first
		}

		// Derived transition: auto-close a trial room at the move cap.
		if room.IsTrial && room.Status == types.RoomStatusActive {
			quota, qErr := s.quotaCache.Get(ctx, room.PlanType)
			if qErr != nil {
				return fmt.Errorf("Failed to resolve plan quota: %w", qErr)
			}
			if quota.TrialMoveLimit > 0 && trialCapReached(stateByParticipant, quota.TrialMoveLimit) {
				now := time.Now()
				if uErr := s.roomRepo.UpdateStatus(ctx, tx, roomID, types.RoomStatusClosed, &now); uErr != nil {
					return fmt.Errorf("Failed to auto-close trial room: %w", uErr)
				}
				room.Status = types.RoomStatusClosed
				room.ClosedAt = &now
				s.log.Info("Trial room auto-closed at move cap", "room_id", roomID)
			}
		}

		lastMove, mErr := s.moveRepo.GetLastByRoom(ctx, tx, roomID)
		if mErr != nil {
			return fmt.Errorf("Failed to load last move: %w", mErr)
		}
		deck, dErr := s.cardDrawRepo.GetByRoomID(ctx, tx, roomID)
		if dErr != nil {
			return fmt.Errorf("Failed to load deck history: %w", dErr)
		}
		interventions, iErr := s.interventionRepo.GetByRoomID(ctx, tx, roomID)
		if iErr != nil {
			return fmt.Errorf("Failed to load interventions: %w", iErr)
		}
		// The snapshot fans out to every connection. Pending and
		// facilitator-only rows travel over the targeted intervention events
		// instead.
		interventions = lo.Filter(interventions, func(iv *types.Intervention, _ int) bool {
			return iv.Status == types.InterventionApproved && iv.Visibility == types.VisibilityRoom
		})

		views := make([]*ParticipantView, 0, len(participants))
		for _, p := range participants {
			view := &ParticipantView{
				Participant: p,
				State:       stateByParticipant[p.ID],
				AIUsage:     AIUsageView{Tips: p.TipCount},
			}
			moveCount, cErr := s.moveRepo.CountByParticipant(ctx, tx, p.ID)
			if cErr != nil {
				return fmt.Errorf("Failed to count moves: %w", cErr)
			}
			view.MoveCount = moveCount
			ivCount, icErr := s.interventionRepo.CountByRoomAndParticipant(ctx, tx, roomID, p.ID)
			if icErr != nil {
				return fmt.Errorf("Failed to count interventions: %w", icErr)
			}
			view.AIUsage.Interventions = ivCount
			views = append(views, view)
		}

		snap = &RoomSnapshot{
			Room:          room,
			Participants:  views,
			LastMove:      lastMove,
			Deck:          deck,
			Interventions: interventions,
			Presence:      presence,
			BuiltAt:       time.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// trialCapReached reports whether any started participant has used up the
// post-start move allowance.
func trialCapReached(states map[uuid.UUID]*types.PlayerState, limit int) bool {
	for _, st := range states {
		if st == nil || !st.HasStarted {
			continue
		}
		if st.TotalRolls-st.PreStartRolls >= limit {
			return true
		}
	}
	return false
}
