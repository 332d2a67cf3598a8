package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/mindpath-backend/internal/types"
)

func movesAt(positions []int, at time.Time, gap time.Duration) []*types.Move {
	moves := make([]*types.Move, len(positions))
	// Newest first, matching the repo ordering.
	for i, pos := range positions {
		moves[i] = &types.Move{
			ToPos:      pos,
			TurnNumber: len(positions) - i,
			CreatedAt:  at.Add(-time.Duration(i) * gap),
		}
	}
	return moves
}

func TestDetectRepeatHouse(t *testing.T) {
	now := time.Now()
	state := &types.PlayerState{HasStarted: true, TotalRolls: 12}

	// Same house landed 3 times within the 10-move window.
	in := DetectorInput{
		State: state,
		Moves: movesAt([]int{14, 8, 14, 3, 14, 9, 2, 5, 7, 11}, now, time.Minute),
		Now:   now,
	}
	c := detectRepeatHouse(in, thresholds{"houseRepeatCount": 3, "windowMoves": 10})
	require.NotNil(t, c)
	assert.Equal(t, TriggerRepeatHouse, c.TriggerID)
	assert.Equal(t, 14, c.TriggerData["house"])
	assert.Equal(t, 3, c.TriggerData["repeatCount"])

	// Two visits only: abstain.
	in.Moves = movesAt([]int{14, 8, 14, 3, 9, 2, 5, 7, 11, 6}, now, time.Minute)
	assert.Nil(t, detectRepeatHouse(in, thresholds{"houseRepeatCount": 3}))

	// Third visit outside the window: abstain.
	in.Moves = movesAt([]int{14, 8, 14, 3, 9, 2, 5, 7, 11, 6, 14}, now, time.Minute)
	assert.Nil(t, detectRepeatHouse(in, thresholds{"houseRepeatCount": 3, "windowMoves": 10}))

	// Pre-start rolls keep the piece on the start house without landing
	// anywhere; they belong to the stuck detector, not this one.
	stalled := make([]*types.Move, 5)
	for i := range stalled {
		stalled[i] = &types.Move{
			FromPos:    1,
			ToPos:      1,
			TurnNumber: 5 - i,
			CreatedAt:  now.Add(-time.Duration(i) * time.Minute),
		}
	}
	in.State = &types.PlayerState{PreStartRolls: 5, TotalRolls: 5}
	in.Moves = stalled
	assert.Nil(t, detectRepeatHouse(in, thresholds{"houseRepeatCount": 3, "windowMoves": 10}))
}

func TestDetectStuckBeforeStart(t *testing.T) {
	in := DetectorInput{State: &types.PlayerState{PreStartRolls: 5, TotalRolls: 5}}
	c := detectStuckBeforeStart(in, thresholds{"preStartRolls": 5})
	require.NotNil(t, c)
	assert.Equal(t, 5, c.TriggerData["preStartRolls"])

	in.State = &types.PlayerState{PreStartRolls: 4, TotalRolls: 4}
	assert.Nil(t, detectStuckBeforeStart(in, thresholds{"preStartRolls": 5}))

	// Started players are never stuck before start.
	in.State = &types.PlayerState{HasStarted: true, PreStartRolls: 9, TotalRolls: 12}
	assert.Nil(t, detectStuckBeforeStart(in, thresholds{"preStartRolls": 5}))
}

func TestDetectRapidRolls(t *testing.T) {
	now := time.Now()
	state := &types.PlayerState{HasStarted: true, TotalRolls: 6}

	in := DetectorInput{
		State: state,
		Moves: movesAt([]int{10, 9, 8, 7}, now, 5*time.Second),
		Now:   now,
	}
	c := detectRapidRolls(in, thresholds{"rapidRollCount": 4, "rapidWindowSeconds": 30})
	require.NotNil(t, c)
	assert.Equal(t, 4, c.TriggerData["rollCount"])

	// Spread out: abstain.
	in.Moves = movesAt([]int{10, 9, 8, 7}, now, time.Minute)
	assert.Nil(t, detectRapidRolls(in, thresholds{"rapidRollCount": 4, "rapidWindowSeconds": 30}))
}

func TestDetectHighIntensity(t *testing.T) {
	in := DetectorInput{
		State:   &types.PlayerState{HasStarted: true, TotalRolls: 3},
		Entries: []*types.TherapyEntry{{Emotion: "anxious", Intensity: 9}},
	}
	c := detectHighIntensity(in, thresholds{"intensityThreshold": 8})
	require.NotNil(t, c)
	assert.Equal(t, "anxious", c.TriggerData["emotion"])
	assert.Equal(t, 9, c.TriggerData["intensity"])

	in.Entries = []*types.TherapyEntry{{Emotion: "calm", Intensity: 4}}
	assert.Nil(t, detectHighIntensity(in, thresholds{"intensityThreshold": 8}))
}

func TestDetectNegativeStreak(t *testing.T) {
	in := DetectorInput{
		State: &types.PlayerState{HasStarted: true, TotalRolls: 5},
		Entries: []*types.TherapyEntry{
			{Emotion: "Sad", Intensity: 5},
			{Emotion: "angry", Intensity: 6},
			{Emotion: "hopeless", Intensity: 7},
		},
	}
	c := detectNegativeStreak(in, thresholds{"negativeStreakCount": 3})
	require.NotNil(t, c)
	assert.Equal(t, 3, c.TriggerData["streakCount"])

	// A positive entry breaks the streak.
	in.Entries[1] = &types.TherapyEntry{Emotion: "hopeful", Intensity: 6}
	assert.Nil(t, detectNegativeStreak(in, thresholds{"negativeStreakCount": 3}))
}

func TestDetectLongSilence(t *testing.T) {
	now := time.Now()
	lastMove := now.Add(-10 * time.Minute)
	in := DetectorInput{
		State:      &types.PlayerState{HasStarted: true, TotalRolls: 4},
		LastMoveAt: &lastMove,
		Now:        now,
	}
	c := detectLongSilence(in, thresholds{"silenceMinutes": 5})
	require.NotNil(t, c)

	recent := now.Add(-time.Minute)
	in.LastMoveAt = &recent
	assert.Nil(t, detectLongSilence(in, thresholds{"silenceMinutes": 5}))

	// Completed players are left alone.
	in.State = &types.PlayerState{HasStarted: true, HasCompleted: true}
	in.LastMoveAt = &lastMove
	assert.Nil(t, detectLongSilence(in, thresholds{"silenceMinutes": 5}))
}

func TestValidateTemplates(t *testing.T) {
	err := validateTemplates(TriggerRepeatHouse, map[string]string{
		"en": "House {house}, {repeatCount} times.",
	})
	assert.NoError(t, err)

	err = validateTemplates(TriggerRepeatHouse, map[string]string{
		"en": "Hello {unknownField}",
	})
	assert.Error(t, err)
}

func TestRenderTemplate(t *testing.T) {
	out := renderTemplate("House {house} hit {repeatCount} times", map[string]any{
		"house":       14,
		"repeatCount": 3,
	})
	assert.Equal(t, "House 14 hit 3 times", out)

	// Unknown fields render verbatim rather than panicking.
	out = renderTemplate("{mystery}", map[string]any{})
	assert.Equal(t, "{mystery}", out)
}

func TestFallbackContentUsesConfiguredTemplate(t *testing.T) {
	title, message := fallbackContent(TriggerRepeatHouse,
		map[string]string{"en": "Back at {house} again."},
		map[string]any{"house": 14})
	assert.NotEmpty(t, title)
	assert.Equal(t, "Back at 14 again.", message)

	// Missing template falls back to the built-in line.
	_, message = fallbackContent(TriggerRepeatHouse, nil, map[string]any{
		"house": 14, "repeatCount": 3,
	})
	assert.Contains(t, message, "14")
	assert.Contains(t, message, "3")
}
