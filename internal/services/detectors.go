package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/yungbote/mindpath-backend/internal/types"
)

// triggerAliases folds legacy trigger ids onto their canonical names once, at
// catalog load. Lookups after that point only ever see canonical ids.
var triggerAliases = map[string]string{
	"house_repeat":    "repeat_house",
	"pre_start_stuck": "stuck_before_start",
	"silence":         "long_silence",
}

const (
	TriggerRepeatHouse      = "repeat_house"
	TriggerStuckBeforeStart = "stuck_before_start"
	TriggerRapidRolls       = "rapid_rolls"
	TriggerHighIntensity    = "high_intensity_emotion"
	TriggerNegativeStreak   = "negative_streak"
	TriggerLongSilence      = "long_silence"
)

// triggerImportance breaks severity ties: lower rank surfaces first.
var triggerImportance = map[string]int{
	TriggerHighIntensity:    0,
	TriggerNegativeStreak:   1,
	TriggerStuckBeforeStart: 2,
	TriggerRepeatHouse:      3,
	TriggerRapidRolls:       4,
	TriggerLongSilence:      5,
}

// triggerPlaceholders is the closed set of substitution fields each trigger's
// templates may reference. Checked when the catalog is loaded, not at render.
var triggerPlaceholders = map[string][]string{
	TriggerRepeatHouse:      {"house", "repeatCount", "windowMoves"},
	TriggerStuckBeforeStart: {"preStartRolls"},
	TriggerRapidRolls:       {"rollCount", "windowSeconds"},
	TriggerHighIntensity:    {"emotion", "intensity"},
	TriggerNegativeStreak:   {"streakCount"},
	TriggerLongSilence:      {"silenceMinutes"},
}

// negativeEmotions is the fixed vocabulary the streak detector matches on.
var negativeEmotions = map[string]bool{
	"sad":         true,
	"angry":       true,
	"anxious":     true,
	"afraid":      true,
	"ashamed":     true,
	"frustrated":  true,
	"hopeless":    true,
	"lonely":      true,
	"guilty":      true,
	"overwhelmed": true,
}

// Candidate is a detected-but-not-yet-persisted potential intervention. The
// text fields are the rule-generated fallback; severity and policy come from
// the winning config during materialization.
type Candidate struct {
	TriggerID   string
	TurnNumber  int
	TriggerData map[string]any
}

// DetectorInput is the bounded evaluation window for one participant. Moves
// and Entries are newest-first.
type DetectorInput struct {
	Participant *types.Participant
	State       *types.PlayerState
	Moves       []*types.Move
	Entries     []*types.TherapyEntry
	LastMoveAt  *time.Time
	Now         time.Time
}

type detectorFunc func(in DetectorInput, th thresholds) *Candidate

// moveDetectors run after every committed roll.
var moveDetectors = map[string]detectorFunc{
	TriggerRepeatHouse:      detectRepeatHouse,
	TriggerStuckBeforeStart: detectStuckBeforeStart,
	TriggerRapidRolls:       detectRapidRolls,
	TriggerHighIntensity:    detectHighIntensity,
	TriggerNegativeStreak:   detectNegativeStreak,
}

// temporalDetectors run from the sweeper tick.
var temporalDetectors = map[string]detectorFunc{
	TriggerLongSilence: detectLongSilence,
}

// thresholds are the numeric detector parameters from a config's JSON column.
type thresholds map[string]float64

func (th thresholds) intOr(key string, fallback int) int {
	if v, ok := th[key]; ok && v > 0 {
		return int(v)
	}
	return fallback
}

func parseThresholds(raw datatypes.JSON) (thresholds, error) {
	th := thresholds{}
	if len(raw) == 0 {
		return th, nil
	}
	if err := json.Unmarshal(raw, &th); err != nil {
		return nil, fmt.Errorf("Malformed thresholds: %w", err)
	}
	return th, nil
}

func parseTemplates(raw datatypes.JSON) (map[string]string, error) {
	templates := map[string]string{}
	if len(raw) == 0 {
		return templates, nil
	}
	if err := json.Unmarshal(raw, &templates); err != nil {
		return nil, fmt.Errorf("Malformed templates: %w", err)
	}
	return templates, nil
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z]+)\}`)

// validateTemplates rejects templates referencing fields the trigger never
// produces, so a bad config fails at load instead of rendering "{house}".
func validateTemplates(triggerID string, templates map[string]string) error {
	allowed := lo.SliceToMap(triggerPlaceholders[triggerID], func(k string) (string, bool) {
		return k, true
	})
	for locale, tpl := range templates {
		for _, match := range placeholderPattern.FindAllStringSubmatch(tpl, -1) {
			if !allowed[match[1]] {
				return fmt.Errorf("template %q for trigger %q references unknown field %q",
					locale, triggerID, match[1])
			}
		}
	}
	return nil
}

// renderTemplate substitutes {field} placeholders from trigger data.
func renderTemplate(tpl string, data map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(tpl, func(m string) string {
		key := strings.Trim(m, "{}")
		if v, ok := data[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return m
	})
}

func currentTurn(in DetectorInput) int {
	if in.State != nil {
		return in.State.TotalRolls
	}
	return 0
}

// detectRepeatHouse fires when the same house was landed on houseRepeatCount
// times within the last windowMoves moves.
func detectRepeatHouse(in DetectorInput, th thresholds) *Candidate {
	needed := th.intOr("houseRepeatCount", 3)
	window := th.intOr("windowMoves", 10)
	// Pre-start and blocked rolls do not move the piece; they are not
	// landings and belong to the stuck detector.
	recent := lo.Filter(in.Moves, func(m *types.Move, _ int) bool { return m.ToPos != m.FromPos })
	if len(recent) == 0 {
		return nil
	}
	if len(recent) > window {
		recent = recent[:window]
	}
	house := recent[0].ToPos
	count := lo.CountBy(recent, func(m *types.Move) bool { return m.ToPos == house })
	if count < needed {
		return nil
	}
	return &Candidate{
		TriggerID:  TriggerRepeatHouse,
		TurnNumber: currentTurn(in),
		TriggerData: map[string]any{
			"house":       house,
			"repeatCount": count,
			"windowMoves": window,
		},
	}
}

func detectStuckBeforeStart(in DetectorInput, th thresholds) *Candidate {
	needed := th.intOr("preStartRolls", 5)
	if in.State == nil || in.State.HasStarted || in.State.PreStartRolls < needed {
		return nil
	}
	return &Candidate{
		TriggerID:  TriggerStuckBeforeStart,
		TurnNumber: currentTurn(in),
		TriggerData: map[string]any{
			"preStartRolls": in.State.PreStartRolls,
		},
	}
}

// detectRapidRolls fires when rollCount moves landed within windowSeconds,
// a sign the participant is racing past reflection.
func detectRapidRolls(in DetectorInput, th thresholds) *Candidate {
	needed := th.intOr("rapidRollCount", 4)
	windowSec := th.intOr("rapidWindowSeconds", 30)
	if len(in.Moves) < needed {
		return nil
	}
	cutoff := in.Now.Add(-time.Duration(windowSec) * time.Second)
	count := 0
	for _, m := range in.Moves {
		if m.CreatedAt.Before(cutoff) {
			break
		}
		count++
	}
	if count < needed {
		return nil
	}
	return &Candidate{
		TriggerID:  TriggerRapidRolls,
		TurnNumber: currentTurn(in),
		TriggerData: map[string]any{
			"rollCount":     count,
			"windowSeconds": windowSec,
		},
	}
}

func detectHighIntensity(in DetectorInput, th thresholds) *Candidate {
	needed := th.intOr("intensityThreshold", 8)
	if len(in.Entries) == 0 {
		return nil
	}
	last := in.Entries[0]
	if last.Intensity < needed {
		return nil
	}
	return &Candidate{
		TriggerID:  TriggerHighIntensity,
		TurnNumber: currentTurn(in),
		TriggerData: map[string]any{
			"emotion":   last.Emotion,
			"intensity": last.Intensity,
		},
	}
}

func detectNegativeStreak(in DetectorInput, th thresholds) *Candidate {
	needed := th.intOr("negativeStreakCount", 3)
	if len(in.Entries) < needed {
		return nil
	}
	for i := 0; i < needed; i++ {
		if !negativeEmotions[strings.ToLower(in.Entries[i].Emotion)] {
			return nil
		}
	}
	return &Candidate{
		TriggerID:  TriggerNegativeStreak,
		TurnNumber: currentTurn(in),
		TriggerData: map[string]any{
			"streakCount": needed,
		},
	}
}

// detectLongSilence fires when a started participant has not moved for
// silenceMinutes. Driven by the sweeper, not by moves.
func detectLongSilence(in DetectorInput, th thresholds) *Candidate {
	needed := th.intOr("silenceMinutes", 5)
	if in.State == nil || !in.State.HasStarted || in.State.HasCompleted || in.LastMoveAt == nil {
		return nil
	}
	if in.Now.Sub(*in.LastMoveAt) < time.Duration(needed)*time.Minute {
		return nil
	}
	return &Candidate{
		TriggerID:  TriggerLongSilence,
		TurnNumber: currentTurn(in),
		TriggerData: map[string]any{
			"silenceMinutes": needed,
		},
	}
}

// fallbackContent is the rule-template content for a candidate. Missing or
// empty templates fall back to a built-in English line per trigger.
func fallbackContent(triggerID string, templates map[string]string, data map[string]any) (title, message string) {
	titles := map[string]string{
		TriggerRepeatHouse:      "A familiar place",
		TriggerStuckBeforeStart: "Waiting at the door",
		TriggerRapidRolls:       "Quick hands",
		TriggerHighIntensity:    "Strong feelings",
		TriggerNegativeStreak:   "A heavy stretch",
		TriggerLongSilence:      "A quiet moment",
	}
	defaults := map[string]string{
		TriggerRepeatHouse:      "You have landed on house {house} {repeatCount} times recently. What keeps bringing you back here?",
		TriggerStuckBeforeStart: "It has taken {preStartRolls} rolls and the journey has not begun. How does the waiting feel?",
		TriggerRapidRolls:       "That was {rollCount} rolls in {windowSeconds} seconds. Would a breath between moves change anything?",
		TriggerHighIntensity:    "You marked {emotion} at {intensity}/10. Want to stay with that for a moment?",
		TriggerNegativeStreak:   "The last {streakCount} reflections carried heavy feelings. What would support look like right now?",
		TriggerLongSilence:      "The board has been quiet for {silenceMinutes} minutes. No rush. Is there something on your mind?",
	}
	tpl := templates["en"]
	if tpl == "" {
		tpl = defaults[triggerID]
	}
	return titles[triggerID], renderTemplate(tpl, data)
}
