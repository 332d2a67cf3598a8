package services

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/types"
)

// maxDrawsPerMove caps reflection-card draws per move so the deck stays a
// prompt, not a firehose.
const maxDrawsPerMove = 3

// cardCatalog is the static reflection deck. Keys are stable so clients can
// localize the card faces.
var cardCatalog = []string{
	"notice_body",
	"name_feeling",
	"small_win",
	"hard_moment",
	"safe_place",
	"support_person",
	"next_step",
	"let_go",
	"gratitude",
	"self_kindness",
	"pattern_spotting",
	"future_self",
}

type DeckService interface {
	Draw(ctx context.Context, roomID, userID uuid.UUID, moveID *uuid.UUID) (*types.CardDraw, error)
}

type deckService struct {
	db              *gorm.DB
	log             *logger.Logger
	participantRepo repos.ParticipantRepo
	moveRepo        repos.MoveRepo
	cardDrawRepo    repos.CardDrawRepo
	pickFn          func(n int) int
}

func NewDeckService(
	db *gorm.DB,
	log *logger.Logger,
	participantRepo repos.ParticipantRepo,
	moveRepo repos.MoveRepo,
	cardDrawRepo repos.CardDrawRepo,
) DeckService {
	return &deckService{
		db:              db,
		log:             log.With("service", "DeckService"),
		participantRepo: participantRepo,
		moveRepo:        moveRepo,
		cardDrawRepo:    cardDrawRepo,
		pickFn:          rand.Intn,
	}
}

func (ds *deckService) Draw(ctx context.Context, roomID, userID uuid.UUID, moveID *uuid.UUID) (*types.CardDraw, error) {
	participant, err := ds.participantRepo.GetByRoomAndUser(ctx, nil, roomID, userID)
	if err != nil {
		return nil, apierr.Validation(fmt.Errorf("caller is not a participant of this room"))
	}

	var draw *types.CardDraw
	var rejection error
	txErr := ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if moveID != nil {
			move, mErr := ds.moveRepo.GetByID(ctx, tx, *moveID)
			if mErr != nil {
				rejection = apierr.Validation(fmt.Errorf("unknown move"))
				return nil
			}
			if move.RoomID != roomID || move.ParticipantID != participant.ID {
				rejection = apierr.Validation(fmt.Errorf("move does not belong to this participant"))
				return nil
			}
			count, cErr := ds.cardDrawRepo.CountByMoveID(ctx, tx, *moveID)
			if cErr != nil {
				return fmt.Errorf("Failed to count draws for move: %w", cErr)
			}
			if count >= maxDrawsPerMove {
				rejection = apierr.Validation(fmt.Errorf("draw limit reached for this move"))
				return nil
			}
		}
		draw = &types.CardDraw{
			ID:            uuid.New(),
			RoomID:        roomID,
			ParticipantID: participant.ID,
			MoveID:        moveID,
			CardKey:       cardCatalog[ds.pickFn(len(cardCatalog))],
		}
		if _, cErr := ds.cardDrawRepo.Create(ctx, tx, []*types.CardDraw{draw}); cErr != nil {
			return fmt.Errorf("Failed to record card draw: %w", cErr)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	if rejection != nil {
		return nil, rejection
	}
	return draw, nil
}
