package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/types"
)

type TherapySaveParams struct {
	MoveID      *uuid.UUID
	Emotion     string
	Intensity   int
	Insight     string
	Body        string
	MicroAction string
}

type TherapyService interface {
	Save(ctx context.Context, roomID, userID uuid.UUID, params TherapySaveParams) (*types.TherapyEntry, error)
}

type therapyService struct {
	db              *gorm.DB
	log             *logger.Logger
	participantRepo repos.ParticipantRepo
	moveRepo        repos.MoveRepo
	therapyRepo     repos.TherapyEntryRepo
}

func NewTherapyService(
	db *gorm.DB,
	log *logger.Logger,
	participantRepo repos.ParticipantRepo,
	moveRepo repos.MoveRepo,
	therapyRepo repos.TherapyEntryRepo,
) TherapyService {
	return &therapyService{
		db:              db,
		log:             log.With("service", "TherapyService"),
		participantRepo: participantRepo,
		moveRepo:        moveRepo,
		therapyRepo:     therapyRepo,
	}
}

// Save appends one reflection entry. Entries are append-only; edits arrive as
// new entries.
func (ts *therapyService) Save(ctx context.Context, roomID, userID uuid.UUID, params TherapySaveParams) (*types.TherapyEntry, error) {
	if params.Emotion == "" {
		return nil, apierr.Validation(fmt.Errorf("emotion is required"))
	}
	if params.Intensity < 1 || params.Intensity > 10 {
		return nil, apierr.Validation(fmt.Errorf("intensity must be between 1 and 10"))
	}
	participant, err := ts.participantRepo.GetByRoomAndUser(ctx, nil, roomID, userID)
	if err != nil {
		return nil, apierr.Validation(fmt.Errorf("caller is not a participant of this room"))
	}
	if params.MoveID != nil {
		move, mErr := ts.moveRepo.GetByID(ctx, nil, *params.MoveID)
		if mErr != nil {
			return nil, apierr.Validation(fmt.Errorf("unknown move"))
		}
		if move.RoomID != roomID || move.ParticipantID != participant.ID {
			return nil, apierr.Validation(fmt.Errorf("move does not belong to this participant"))
		}
	}
	entry := &types.TherapyEntry{
		ID:            uuid.New(),
		RoomID:        roomID,
		ParticipantID: participant.ID,
		MoveID:        params.MoveID,
		Emotion:       params.Emotion,
		Intensity:     params.Intensity,
		Insight:       params.Insight,
		Body:          params.Body,
		MicroAction:   params.MicroAction,
	}
	if _, cErr := ts.therapyRepo.Create(ctx, nil, []*types.TherapyEntry{entry}); cErr != nil {
		return nil, fmt.Errorf("Failed to save therapy entry: %w", cErr)
	}
	return entry, nil
}
