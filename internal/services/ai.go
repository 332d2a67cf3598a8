package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/types"
)

const (
	SummaryStatusStarted   = "STARTED"
	SummaryStatusCompleted = "COMPLETED"
	SummaryStatusFailed    = "FAILED"
)

type AIService interface {
	// Tip answers a free-form question in the requested mode, gated by the
	// plan's per-participant tip quota.
	Tip(ctx context.Context, roomID, userID uuid.UUID, mode, question string) (string, error)
	// FinalReport writes a session summary onto one participant, streaming
	// progress through the notifier.
	FinalReport(ctx context.Context, roomID, userID, participantID uuid.UUID) (string, error)
	// FinalReportAll runs FinalReport for every participant of the room.
	FinalReportAll(ctx context.Context, roomID, userID uuid.UUID) error
}

type aiService struct {
	db              *gorm.DB
	log             *logger.Logger
	participantRepo repos.ParticipantRepo
	playerStateRepo repos.PlayerStateRepo
	moveRepo        repos.MoveRepo
	therapyRepo     repos.TherapyEntryRepo
	roomRepo        repos.RoomRepo
	quotaCache      QuotaCache
	ai              AIClient
	notifier        Notifier
}

func NewAIService(
	db *gorm.DB,
	log *logger.Logger,
	roomRepo repos.RoomRepo,
	participantRepo repos.ParticipantRepo,
	playerStateRepo repos.PlayerStateRepo,
	moveRepo repos.MoveRepo,
	therapyRepo repos.TherapyEntryRepo,
	quotaCache QuotaCache,
	ai AIClient,
	notifier Notifier,
) AIService {
	if notifier == nil {
		notifier = NoopNotifier()
	}
	return &aiService{
		db:              db,
		log:             log.With("service", "AIService"),
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		playerStateRepo: playerStateRepo,
		moveRepo:        moveRepo,
		therapyRepo:     therapyRepo,
		quotaCache:      quotaCache,
		ai:              ai,
		notifier:        notifier,
	}
}

func (as *aiService) Tip(ctx context.Context, roomID, userID uuid.UUID, mode, question string) (string, error) {
	if question == "" {
		return "", apierr.Validation(fmt.Errorf("question must not be empty"))
	}
	room, err := as.roomRepo.GetByID(ctx, nil, roomID)
	if err != nil {
		return "", apierr.Validation(fmt.Errorf("unknown room"))
	}
	participant, err := as.participantRepo.GetByRoomAndUser(ctx, nil, roomID, userID)
	if err != nil {
		return "", apierr.Validation(fmt.Errorf("caller is not a participant of this room"))
	}

	quota, err := as.quotaCache.Get(ctx, room.PlanType)
	if err != nil {
		return "", fmt.Errorf("Failed to resolve plan quota: %w", err)
	}
	// Reserve the usage up front with a conditional increment, so concurrent
	// requests cannot both pass a read-then-write quota check.
	reserved, err := as.participantRepo.IncrementTipCount(ctx, nil, participant.ID, quota.TipQuota)
	if err != nil {
		return "", fmt.Errorf("Failed to record tip usage: %w", err)
	}
	if !reserved {
		return "", apierr.Conflict(apierr.CodeQuotaExceeded, fmt.Errorf("tip quota exhausted for this session"))
	}

	system := tipSystemPrompt(mode)
	user := fmt.Sprintf("Participant intention: %q\nQuestion: %s", participant.Intention, question)
	answer, err := as.ai.GenerateText(ctx, system, user)
	if err != nil {
		if dErr := as.participantRepo.DecrementTipCount(ctx, nil, participant.ID); dErr != nil {
			as.log.Error("Failed to return reserved tip", "participant_id", participant.ID, "error", dErr)
		}
		return "", fmt.Errorf("Failed to generate tip: %w", err)
	}
	return answer, nil
}

func tipSystemPrompt(mode string) string {
	base := "You are a gentle, trauma-informed companion in a therapeutic board game session. " +
		"Answer in two or three short sentences. Never diagnose."
	switch strings.ToLower(mode) {
	case "facilitator":
		return base + " The reader is the session facilitator; suggest how to guide, not what to feel."
	case "reflection":
		return base + " End with one open question."
	default:
		return base
	}
}

func (as *aiService) FinalReport(ctx context.Context, roomID, userID, participantID uuid.UUID) (string, error) {
	caller, err := as.participantRepo.GetByRoomAndUser(ctx, nil, roomID, userID)
	if err != nil {
		return "", apierr.Validation(fmt.Errorf("caller is not a participant of this room"))
	}
	target, err := as.participantRepo.GetByID(ctx, nil, participantID)
	if err != nil || target.RoomID != roomID {
		return "", apierr.Validation(fmt.Errorf("unknown participant"))
	}
	if caller.Role != types.RoleFacilitator && caller.ID != target.ID {
		return "", apierr.New(403, apierr.CodeUnauthorized, fmt.Errorf("cannot report on another participant"))
	}
	return as.summarize(ctx, roomID, target)
}

func (as *aiService) FinalReportAll(ctx context.Context, roomID, userID uuid.UUID) error {
	caller, err := as.participantRepo.GetByRoomAndUser(ctx, nil, roomID, userID)
	if err != nil || caller.Role != types.RoleFacilitator {
		return apierr.New(403, apierr.CodeUnauthorized, fmt.Errorf("only the facilitator can request the room report"))
	}
	participants, err := as.participantRepo.GetByRoomID(ctx, nil, roomID)
	if err != nil {
		return fmt.Errorf("Failed to load participants: %w", err)
	}
	for _, p := range participants {
		if _, sErr := as.summarize(ctx, roomID, p); sErr != nil {
			as.log.Error("Final report failed for participant",
				"room_id", roomID, "participant_id", p.ID, "error", sErr)
		}
	}
	return nil
}

// summarize builds a journey digest from moves and reflections, generates the
// narrative summary, and persists it on the participant.
func (as *aiService) summarize(ctx context.Context, roomID uuid.UUID, participant *types.Participant) (string, error) {
	as.notifier.ProgressSummaryStatus(roomID, participant.ID, SummaryStatusStarted)

	state, err := as.playerStateRepo.GetByParticipantID(ctx, nil, participant.ID)
	if err != nil && err != gorm.ErrRecordNotFound {
		as.notifier.ProgressSummaryStatus(roomID, participant.ID, SummaryStatusFailed)
		return "", fmt.Errorf("Failed to load player state: %w", err)
	}
	entries, err := as.therapyRepo.GetRecentByParticipant(ctx, nil, participant.ID, 25)
	if err != nil {
		as.notifier.ProgressSummaryStatus(roomID, participant.ID, SummaryStatusFailed)
		return "", fmt.Errorf("Failed to load therapy entries: %w", err)
	}
	moveCount, err := as.moveRepo.CountByParticipant(ctx, nil, participant.ID)
	if err != nil {
		as.notifier.ProgressSummaryStatus(roomID, participant.ID, SummaryStatusFailed)
		return "", fmt.Errorf("Failed to count moves: %w", err)
	}

	var digest strings.Builder
	fmt.Fprintf(&digest, "Display name: %s\nIntention: %q\nMoves: %d\n", participant.DisplayName, participant.Intention, moveCount)
	if state != nil {
		fmt.Fprintf(&digest, "Final position: %d (started=%t completed=%t)\n",
			state.Position, state.HasStarted, state.HasCompleted)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(&digest, "Reflection: emotion=%s intensity=%d insight=%q\n", e.Emotion, e.Intensity, e.Insight)
	}

	system := "You write warm, strengths-based end-of-session summaries for a therapeutic board game. " +
		"Three short paragraphs: the journey, the feelings that surfaced, one gentle suggestion. Never diagnose."
	summary, err := as.ai.GenerateText(ctx, system, digest.String())
	if err != nil {
		as.notifier.ProgressSummaryStatus(roomID, participant.ID, SummaryStatusFailed)
		return "", fmt.Errorf("Failed to generate summary: %w", err)
	}
	if uErr := as.participantRepo.UpdateSummary(ctx, nil, participant.ID, summary); uErr != nil {
		as.notifier.ProgressSummaryStatus(roomID, participant.ID, SummaryStatusFailed)
		return "", fmt.Errorf("Failed to persist summary: %w", uErr)
	}
	as.notifier.ProgressSummaryStatus(roomID, participant.ID, SummaryStatusCompleted)
	return summary, nil
}
