package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/types"
)

// Hard floors bounding intervention spam regardless of config.
const (
	minCooldownMoves   = 2
	minCooldownMinutes = 1
)

const (
	detectorMoveWindow  = 20
	detectorEntryWindow = 10
	snoozeDelay         = 10 * time.Minute
)

// InterventionOptions are the env-tunable knobs of the pipeline.
type InterventionOptions struct {
	// AnyTriggerCooldown is the room-wide window during which at most one
	// intervention may be created per participant, across all triggers.
	AnyTriggerCooldown time.Duration
	// MaxContentChars truncates generated message/reflection text.
	MaxContentChars int
}

func (o InterventionOptions) withDefaults() InterventionOptions {
	if o.AnyTriggerCooldown <= 0 {
		o.AnyTriggerCooldown = 2 * time.Minute
	}
	if o.MaxContentChars <= 0 {
		o.MaxContentChars = 600
	}
	return o
}

type InterventionService interface {
	// EvaluateAfterMove runs the move-window detectors for one participant.
	EvaluateAfterMove(ctx context.Context, roomID, participantID uuid.UUID) ([]*types.Intervention, error)
	// EvaluateTemporal runs the time-based detectors for every participant of
	// the room. Called from the sweeper.
	EvaluateTemporal(ctx context.Context, roomID uuid.UUID) ([]*types.Intervention, error)
	Approve(ctx context.Context, roomID, userID, interventionID uuid.UUID) (*types.Intervention, error)
	Dismiss(ctx context.Context, roomID, userID, interventionID uuid.UUID, mute bool) (*types.Intervention, error)
	Snooze(ctx context.Context, roomID, userID, interventionID uuid.UUID) (*types.Intervention, error)
	Feedback(ctx context.Context, roomID, userID, interventionID uuid.UUID, rating int, comment string, mute bool) error
}

type interventionService struct {
	db               *gorm.DB
	log              *logger.Logger
	roomRepo         repos.RoomRepo
	participantRepo  repos.ParticipantRepo
	playerStateRepo  repos.PlayerStateRepo
	moveRepo         repos.MoveRepo
	therapyRepo      repos.TherapyEntryRepo
	configRepo       repos.InterventionConfigRepo
	interventionRepo repos.InterventionRepo
	feedbackRepo     repos.InterventionFeedbackRepo
	quotaCache       QuotaCache
	ai               AIClient
	notifier         Notifier
	opts             InterventionOptions
	nowFn            func() time.Time
}

func NewInterventionService(
	db *gorm.DB,
	log *logger.Logger,
	roomRepo repos.RoomRepo,
	participantRepo repos.ParticipantRepo,
	playerStateRepo repos.PlayerStateRepo,
	moveRepo repos.MoveRepo,
	therapyRepo repos.TherapyEntryRepo,
	configRepo repos.InterventionConfigRepo,
	interventionRepo repos.InterventionRepo,
	feedbackRepo repos.InterventionFeedbackRepo,
	quotaCache QuotaCache,
	ai AIClient,
	notifier Notifier,
	opts InterventionOptions,
) InterventionService {
	if notifier == nil {
		notifier = NoopNotifier()
	}
	return &interventionService{
		db:               db,
		log:              log.With("service", "InterventionService"),
		roomRepo:         roomRepo,
		participantRepo:  participantRepo,
		playerStateRepo:  playerStateRepo,
		moveRepo:         moveRepo,
		therapyRepo:      therapyRepo,
		configRepo:       configRepo,
		interventionRepo: interventionRepo,
		feedbackRepo:     feedbackRepo,
		quotaCache:       quotaCache,
		ai:               ai,
		notifier:         notifier,
		opts:             opts.withDefaults(),
		nowFn:            time.Now,
	}
}

// resolvedConfig is a winning catalog entry with its JSON columns parsed.
type resolvedConfig struct {
	cfg        *types.InterventionConfig
	thresholds thresholds
	templates  map[string]string
}

var scopeRank = map[types.ConfigScope]int{
	types.ScopeRoom:   0,
	types.ScopePlan:   1,
	types.ScopeGlobal: 2,
}

// resolveCatalog folds trigger aliases and picks one winner per trigger by
// scope priority ROOM > PLAN > GLOBAL. Configs with malformed JSON are logged
// and skipped so one bad row cannot take the whole pipeline down.
func (is *interventionService) resolveCatalog(configs []*types.InterventionConfig) map[string]*resolvedConfig {
	winners := map[string]*resolvedConfig{}
	for _, cfg := range configs {
		triggerID := cfg.TriggerID
		if canonical, ok := triggerAliases[triggerID]; ok {
			triggerID = canonical
		}
		if existing, ok := winners[triggerID]; ok && scopeRank[existing.cfg.Scope] <= scopeRank[cfg.Scope] {
			continue
		}
		th, err := parseThresholds(cfg.Thresholds)
		if err != nil {
			is.log.Warn("Skipping intervention config", "config_id", cfg.ID, "error", err)
			continue
		}
		templates, err := parseTemplates(cfg.Templates)
		if err != nil {
			is.log.Warn("Skipping intervention config", "config_id", cfg.ID, "error", err)
			continue
		}
		if err := validateTemplates(triggerID, templates); err != nil {
			is.log.Warn("Skipping intervention config", "config_id", cfg.ID, "error", err)
			continue
		}
		winners[triggerID] = &resolvedConfig{cfg: cfg, thresholds: th, templates: templates}
	}
	return winners
}

func (is *interventionService) EvaluateAfterMove(ctx context.Context, roomID, participantID uuid.UUID) ([]*types.Intervention, error) {
	return is.evaluate(ctx, roomID, &participantID, moveDetectors)
}

func (is *interventionService) EvaluateTemporal(ctx context.Context, roomID uuid.UUID) ([]*types.Intervention, error) {
	return is.evaluate(ctx, roomID, nil, temporalDetectors)
}

func (is *interventionService) evaluate(ctx context.Context, roomID uuid.UUID, onlyParticipant *uuid.UUID, detectors map[string]detectorFunc) ([]*types.Intervention, error) {
	room, err := is.roomRepo.GetByID(ctx, nil, roomID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load room: %w", err)
	}
	if room.Status != types.RoomStatusActive {
		return nil, nil
	}

	configs, err := is.configRepo.GetEnabledForRoom(ctx, nil, roomID, room.PlanType)
	if err != nil {
		return nil, fmt.Errorf("Failed to load intervention catalog: %w", err)
	}
	catalog := is.resolveCatalog(configs)
	if len(catalog) == 0 {
		return nil, nil
	}

	quota, err := is.quotaCache.Get(ctx, room.PlanType)
	if err != nil {
		return nil, fmt.Errorf("Failed to resolve plan quota: %w", err)
	}

	participants, err := is.participantRepo.GetByRoomID(ctx, nil, roomID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load participants: %w", err)
	}
	if onlyParticipant != nil {
		participants = lo.Filter(participants, func(p *types.Participant, _ int) bool {
			return p.ID == *onlyParticipant
		})
	}

	mutedTriggers, err := is.feedbackRepo.GetMutedTriggers(ctx, nil, roomID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load muted triggers: %w", err)
	}
	muted := lo.SliceToMap(mutedTriggers, func(t string) (string, bool) { return t, true })

	var created []*types.Intervention
	for _, p := range participants {
		ivs, pErr := is.evaluateParticipant(ctx, room, p, catalog, detectors, muted, quota)
		if pErr != nil {
			return nil, pErr
		}
		created = append(created, ivs...)
	}
	for _, iv := range created {
		is.notifier.InterventionGenerated(iv)
	}
	return created, nil
}

func (is *interventionService) evaluateParticipant(
	ctx context.Context,
	room *types.Room,
	participant *types.Participant,
	catalog map[string]*resolvedConfig,
	detectors map[string]detectorFunc,
	muted map[string]bool,
	quota PlanQuota,
) ([]*types.Intervention, error) {
	now := is.nowFn()

	in, err := is.buildInput(ctx, participant, now)
	if err != nil {
		return nil, err
	}

	// Detection. One candidate max per (trigger, participant) per pass.
	var candidates []*Candidate
	for triggerID, detect := range detectors {
		rc, ok := catalog[triggerID]
		if !ok {
			continue
		}
		if c := detect(*in, rc.thresholds); c != nil {
			candidates = append(candidates, c)
		}
	}
	candidates = lo.UniqBy(candidates, func(c *Candidate) string { return c.TriggerID })
	if len(candidates) == 0 {
		return nil, nil
	}

	// Cheap unlocked pass so no generation work is spent on candidates that
	// cannot be admitted anyway.
	admitted, err := is.admitCandidates(ctx, nil, room.ID, participant.ID, candidates, catalog, muted, quota, now)
	if err != nil {
		return nil, err
	}
	if len(admitted) == 0 {
		return nil, nil
	}

	// Generation stays outside the room lock.
	rows := make(map[string]*types.Intervention, len(admitted))
	for _, c := range admitted {
		rows[c.TriggerID] = is.materialize(ctx, room, participant, c, catalog[c.TriggerID])
	}

	// The gates re-run under the room row lock so two overlapping passes (a
	// post-move evaluation against the sweeper, or another instance) cannot
	// both clear the cooldown and quota reads.
	var created []*types.Intervention
	txErr := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, lErr := is.roomRepo.GetByIDForUpdate(ctx, tx, room.ID); lErr != nil {
			return fmt.Errorf("Failed to lock room: %w", lErr)
		}
		final, aErr := is.admitCandidates(ctx, tx, room.ID, participant.ID, admitted, catalog, muted, quota, now)
		if aErr != nil {
			return aErr
		}
		for _, c := range final {
			iv, ok := rows[c.TriggerID]
			if !ok {
				continue
			}
			if _, cErr := is.interventionRepo.Create(ctx, tx, []*types.Intervention{iv}); cErr != nil {
				return fmt.Errorf("Failed to persist intervention: %w", cErr)
			}
			created = append(created, iv)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return created, nil
}

// admitCandidates runs the snooze, per-trigger cooldown, room-wide any-trigger
// and quota gates, returning the admissible candidates best first, capped to
// the remaining quota. It runs twice per pass: once unlocked before content
// generation, then again inside the creating transaction.
func (is *interventionService) admitCandidates(
	ctx context.Context,
	tx *gorm.DB,
	roomID, participantID uuid.UUID,
	candidates []*Candidate,
	catalog map[string]*resolvedConfig,
	muted map[string]bool,
	quota PlanQuota,
	now time.Time,
) ([]*Candidate, error) {
	snoozedTriggers, err := is.interventionRepo.GetSnoozedTriggers(ctx, tx, roomID, participantID, now)
	if err != nil {
		return nil, fmt.Errorf("Failed to load snoozed triggers: %w", err)
	}
	snoozed := lo.SliceToMap(snoozedTriggers, func(t string) (string, bool) { return t, true })

	var passed []*Candidate
	for _, c := range candidates {
		if muted[c.TriggerID] || snoozed[c.TriggerID] {
			continue
		}
		ok, cErr := is.cooldownPassed(ctx, tx, roomID, participantID, c, catalog[c.TriggerID], now)
		if cErr != nil {
			return nil, cErr
		}
		if ok {
			passed = append(passed, c)
		}
	}
	if len(passed) == 0 {
		return nil, nil
	}

	last, err := is.interventionRepo.GetLastForParticipant(ctx, tx, roomID, participantID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load last intervention: %w", err)
	}
	if last != nil && now.Sub(last.CreatedAt) < is.opts.AnyTriggerCooldown {
		return nil, nil
	}

	used, err := is.interventionRepo.CountByRoomAndParticipant(ctx, tx, roomID, participantID)
	if err != nil {
		return nil, fmt.Errorf("Failed to count interventions: %w", err)
	}
	remaining := int64(quota.InterventionQuota) - used
	if remaining <= 0 {
		return nil, nil
	}

	sortCandidates(passed, catalog)
	if int64(len(passed)) > remaining {
		passed = passed[:remaining]
	}
	return passed, nil
}

func (is *interventionService) buildInput(ctx context.Context, participant *types.Participant, now time.Time) (*DetectorInput, error) {
	state, err := is.playerStateRepo.GetByParticipantID(ctx, nil, participant.ID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("Failed to load player state: %w", err)
	}
	if err == gorm.ErrRecordNotFound {
		state = nil
	}
	moves, err := is.moveRepo.GetRecentByParticipant(ctx, nil, participant.ID, detectorMoveWindow)
	if err != nil {
		return nil, fmt.Errorf("Failed to load recent moves: %w", err)
	}
	entries, err := is.therapyRepo.GetRecentByParticipant(ctx, nil, participant.ID, detectorEntryWindow)
	if err != nil {
		return nil, fmt.Errorf("Failed to load recent therapy entries: %w", err)
	}
	var lastMoveAt *time.Time
	if len(moves) > 0 {
		t := moves[0].CreatedAt
		lastMoveAt = &t
	}
	return &DetectorInput{
		Participant: participant,
		State:       state,
		Moves:       moves,
		Entries:     entries,
		LastMoveAt:  lastMoveAt,
		Now:         now,
	}, nil
}

// cooldownPassed checks the per-trigger window. Move-distance OR elapsed
// minutes satisfies it; both carry hard floors so config cannot disable the
// spam bound.
func (is *interventionService) cooldownPassed(ctx context.Context, tx *gorm.DB, roomID, participantID uuid.UUID, c *Candidate, rc *resolvedConfig, now time.Time) (bool, error) {
	last, err := is.interventionRepo.GetLastByTrigger(ctx, tx, roomID, participantID, c.TriggerID)
	if err != nil {
		return false, fmt.Errorf("Failed to load last intervention for trigger: %w", err)
	}
	if last == nil {
		return true, nil
	}
	cooldownMoves := rc.cfg.CooldownMoves
	if cooldownMoves < minCooldownMoves {
		cooldownMoves = minCooldownMoves
	}
	cooldownMinutes := rc.cfg.CooldownMinutes
	if cooldownMinutes < minCooldownMinutes {
		cooldownMinutes = minCooldownMinutes
	}
	if c.TurnNumber-last.TurnNumber >= cooldownMoves {
		return true, nil
	}
	if now.Sub(last.CreatedAt) >= time.Duration(cooldownMinutes)*time.Minute {
		return true, nil
	}
	return false, nil
}

var severityRank = map[types.Severity]int{
	types.SeverityCritical:  0,
	types.SeverityAttention: 1,
	types.SeverityInfo:      2,
}

// sortCandidates orders by severity, then the fixed importance table, then
// turn recency (newer first).
func sortCandidates(candidates []*Candidate, catalog map[string]*resolvedConfig) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidateLess(candidates[i], candidates[j], catalog)
	})
}

func candidateLess(a, b *Candidate, catalog map[string]*resolvedConfig) bool {
	sa, sb := severityRank[catalog[a.TriggerID].cfg.Severity], severityRank[catalog[b.TriggerID].cfg.Severity]
	if sa != sb {
		return sa < sb
	}
	ia, ib := triggerImportance[a.TriggerID], triggerImportance[b.TriggerID]
	if ia != ib {
		return ia < ib
	}
	return a.TurnNumber > b.TurnNumber
}

// materialize turns a surviving candidate into a persisted row: content via
// the generator when policy allows, rule templates otherwise or on failure.
func (is *interventionService) materialize(ctx context.Context, room *types.Room, participant *types.Participant, c *Candidate, rc *resolvedConfig) *types.Intervention {
	title, message := fallbackContent(c.TriggerID, rc.templates, c.TriggerData)
	reflection, microAction := "", ""
	provenance := types.ProvenanceRule

	if rc.cfg.AIPolicy != types.AIPolicyNone && is.ai != nil {
		aiTitle, aiMessage, aiReflection, aiMicro, aiErr := is.generateContent(ctx, participant, c)
		if aiErr != nil {
			is.log.Warn("Intervention generation failed, falling back to rule text",
				"room_id", room.ID, "trigger_id", c.TriggerID, "error", aiErr)
			provenance = types.ProvenanceHybrid
		} else {
			title, message, reflection, microAction = aiTitle, aiMessage, aiReflection, aiMicro
			provenance = types.ProvenanceAI
		}
	}

	status := types.InterventionApproved
	if (rc.cfg.RequiresApproval || rc.cfg.Sensitive) && !is.autoApprove(ctx, room) {
		status = types.InterventionPendingApproval
	}
	visibility := types.VisibilityRoom
	if rc.cfg.Sensitive {
		visibility = types.VisibilityFacilitatorOnly
	}

	triggerData, _ := json.Marshal(c.TriggerData)
	return &types.Intervention{
		ID:            uuid.New(),
		RoomID:        room.ID,
		ParticipantID: participant.ID,
		ConfigID:      rc.cfg.ID,
		TriggerID:     c.TriggerID,
		Severity:      rc.cfg.Severity,
		Status:        status,
		Visibility:    visibility,
		Title:         truncate(title, 120),
		Message:       truncate(message, is.opts.MaxContentChars),
		Reflection:    truncate(reflection, is.opts.MaxContentChars),
		MicroAction:   truncate(microAction, 240),
		Provenance:    provenance,
		TriggerData:   triggerData,
		TurnNumber:    c.TurnNumber,
	}
}

// autoApprove reports whether approval gating can be skipped. The explicit
// solo-play flag is authoritative; the facilitator/player head-count heuristic
// is only a fallback when the flag is unset.
func (is *interventionService) autoApprove(ctx context.Context, room *types.Room) bool {
	if room.SoloPlay {
		return true
	}
	participants, err := is.participantRepo.GetByRoomID(ctx, nil, room.ID)
	if err != nil {
		return false
	}
	facilitators := lo.CountBy(participants, func(p *types.Participant) bool {
		return p.Role == types.RoleFacilitator
	})
	players := len(participants) - facilitators
	return facilitators > 0 && players <= 1 && room.FacilitatorPlays
}

var interventionSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"title", "message", "reflection", "micro_action"},
	"properties": map[string]any{
		"title":        map[string]any{"type": "string"},
		"message":      map[string]any{"type": "string"},
		"reflection":   map[string]any{"type": "string"},
		"micro_action": map[string]any{"type": "string"},
	},
}

func (is *interventionService) generateContent(ctx context.Context, participant *types.Participant, c *Candidate) (title, message, reflection, microAction string, err error) {
	system := "You are a gentle, trauma-informed companion for a therapeutic board game session. " +
		"Write short, warm, non-clinical prompts. Never diagnose, never alarm."
	data, _ := json.Marshal(c.TriggerData)
	user := fmt.Sprintf(
		"Trigger: %s\nObservation data: %s\nParticipant intention: %q\n"+
			"Produce a title, a one-or-two sentence message, an open reflection question, and one tiny micro action.",
		c.TriggerID, string(data), participant.Intention)
	out, err := is.ai.GenerateJSON(ctx, system, user, "intervention_content", interventionSchema)
	if err != nil {
		return "", "", "", "", err
	}
	title, _ = out["title"].(string)
	message, _ = out["message"].(string)
	reflection, _ = out["reflection"].(string)
	microAction, _ = out["micro_action"].(string)
	if title == "" || message == "" {
		return "", "", "", "", fmt.Errorf("generator returned empty content")
	}
	return title, message, reflection, microAction, nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func (is *interventionService) loadForUpdate(ctx context.Context, roomID, userID, interventionID uuid.UUID) (*types.Intervention, *types.Participant, error) {
	iv, err := is.interventionRepo.GetByID(ctx, nil, interventionID)
	if err != nil || iv.RoomID != roomID {
		return nil, nil, apierr.Validation(fmt.Errorf("unknown intervention"))
	}
	caller, err := is.participantRepo.GetByRoomAndUser(ctx, nil, roomID, userID)
	if err != nil {
		return nil, nil, apierr.Validation(fmt.Errorf("caller is not a participant of this room"))
	}
	return iv, caller, nil
}

func (is *interventionService) Approve(ctx context.Context, roomID, userID, interventionID uuid.UUID) (*types.Intervention, error) {
	iv, caller, err := is.loadForUpdate(ctx, roomID, userID, interventionID)
	if err != nil {
		return nil, err
	}
	if caller.Role != types.RoleFacilitator {
		return nil, apierr.New(403, apierr.CodeUnauthorized, fmt.Errorf("only the facilitator can approve"))
	}
	if iv.Status != types.InterventionPendingApproval {
		return nil, apierr.Validation(fmt.Errorf("intervention is not awaiting approval"))
	}
	if uErr := is.interventionRepo.UpdateStatus(ctx, nil, iv.ID, types.InterventionApproved, nil); uErr != nil {
		return nil, fmt.Errorf("Failed to approve intervention: %w", uErr)
	}
	iv.Status = types.InterventionApproved
	iv.SnoozedUntil = nil
	is.notifier.InterventionUpdated(iv)
	return iv, nil
}

func (is *interventionService) Dismiss(ctx context.Context, roomID, userID, interventionID uuid.UUID, mute bool) (*types.Intervention, error) {
	iv, caller, err := is.loadForUpdate(ctx, roomID, userID, interventionID)
	if err != nil {
		return nil, err
	}
	if iv.Status == types.InterventionDismissed {
		return iv, nil
	}
	txErr := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if uErr := is.interventionRepo.UpdateStatus(ctx, tx, iv.ID, types.InterventionDismissed, nil); uErr != nil {
			return fmt.Errorf("Failed to dismiss intervention: %w", uErr)
		}
		if !mute {
			return nil
		}
		fb := &types.InterventionFeedback{
			ID:             uuid.New(),
			InterventionID: iv.ID,
			ParticipantID:  caller.ID,
			Muted:          true,
		}
		if _, cErr := is.feedbackRepo.Create(ctx, tx, []*types.InterventionFeedback{fb}); cErr != nil {
			return fmt.Errorf("Failed to record mute: %w", cErr)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	iv.Status = types.InterventionDismissed
	iv.SnoozedUntil = nil
	is.notifier.InterventionUpdated(iv)
	return iv, nil
}

// Snooze takes the intervention out of view for a fixed delay; after expiry
// the trigger re-enters evaluation.
func (is *interventionService) Snooze(ctx context.Context, roomID, userID, interventionID uuid.UUID) (*types.Intervention, error) {
	iv, _, err := is.loadForUpdate(ctx, roomID, userID, interventionID)
	if err != nil {
		return nil, err
	}
	if iv.Status == types.InterventionDismissed {
		return nil, apierr.Validation(fmt.Errorf("intervention was dismissed"))
	}
	until := is.nowFn().Add(snoozeDelay)
	if uErr := is.interventionRepo.UpdateStatus(ctx, nil, iv.ID, types.InterventionSnoozed, &until); uErr != nil {
		return nil, fmt.Errorf("Failed to snooze intervention: %w", uErr)
	}
	iv.Status = types.InterventionSnoozed
	iv.SnoozedUntil = &until
	is.notifier.InterventionUpdated(iv)
	return iv, nil
}

func (is *interventionService) Feedback(ctx context.Context, roomID, userID, interventionID uuid.UUID, rating int, comment string, mute bool) error {
	if rating < 1 || rating > 5 {
		return apierr.Validation(fmt.Errorf("rating must be between 1 and 5"))
	}
	iv, caller, err := is.loadForUpdate(ctx, roomID, userID, interventionID)
	if err != nil {
		return err
	}
	fb := &types.InterventionFeedback{
		ID:             uuid.New(),
		InterventionID: iv.ID,
		ParticipantID:  caller.ID,
		Rating:         rating,
		Muted:          mute,
		Comment:        comment,
	}
	if _, cErr := is.feedbackRepo.Create(ctx, nil, []*types.InterventionFeedback{fb}); cErr != nil {
		return fmt.Errorf("Failed to record feedback: %w", cErr)
	}
	return nil
}
