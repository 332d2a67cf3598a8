// Package board holds the static game board and the pure dice/turn math.
// Nothing here touches the store; the game service wraps these functions in
// a transaction.
package board

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed board.yaml
var boardYAML []byte

const ReleaseValue = 6

type Board struct {
	Start int
	Goal  int
	// Jumps maps a house to the house it forwards to. A target above the
	// source is a shortcut, below is a setback.
	Jumps map[int]int
}

type boardFile struct {
	Start int `yaml:"start"`
	Goal  int `yaml:"goal"`
	Jumps []struct {
		From int `yaml:"from"`
		To   int `yaml:"to"`
	} `yaml:"jumps"`
}

var (
	defaultOnce  sync.Once
	defaultBoard *Board
	defaultErr   error
)

// Default returns the embedded board. The file is validated once; a bad
// embedded board is a programming error and fails every caller.
func Default() (*Board, error) {
	defaultOnce.Do(func() {
		defaultBoard, defaultErr = parse(boardYAML)
	})
	return defaultBoard, defaultErr
}

func parse(raw []byte) (*Board, error) {
	var bf boardFile
	if err := yaml.Unmarshal(raw, &bf); err != nil {
		return nil, fmt.Errorf("parse board: %w", err)
	}
	if bf.Goal <= bf.Start {
		return nil, fmt.Errorf("board goal %d must be above start %d", bf.Goal, bf.Start)
	}
	b := &Board{Start: bf.Start, Goal: bf.Goal, Jumps: make(map[int]int, len(bf.Jumps))}
	for _, j := range bf.Jumps {
		if j.From <= bf.Start || j.From >= bf.Goal {
			return nil, fmt.Errorf("jump source %d outside playable range", j.From)
		}
		if j.To < bf.Start || j.To > bf.Goal || j.To == j.From {
			return nil, fmt.Errorf("jump %d -> %d is invalid", j.From, j.To)
		}
		if _, dup := b.Jumps[j.From]; dup {
			return nil, fmt.Errorf("duplicate jump source %d", j.From)
		}
		b.Jumps[j.From] = j.To
	}
	return b, nil
}

// RollState mirrors the mutable fields of a PlayerState row.
type RollState struct {
	Position      int
	HasStarted    bool
	HasCompleted  bool
	TotalRolls    int
	PreStartRolls int
}

// RollOutcome describes what a single dice application did.
type RollOutcome struct {
	DiceValue int
	FromPos   int
	ToPos     int
	JumpFrom  *int
	JumpTo    *int
	Started   bool
	Completed bool
}

// ApplyDice advances a player's state by one die. Before the run starts a
// non-release die only increments the pre-start counter; the release die
// starts the run and moves the full die value from start. Once started the
// player advances, takes at most one jump, and completes on reaching the
// terminal house.
func (b *Board) ApplyDice(st RollState, die int) (RollState, RollOutcome, error) {
	if die < 1 || die > 6 {
		return st, RollOutcome{}, fmt.Errorf("dice value %d out of range", die)
	}
	if st.HasCompleted {
		return st, RollOutcome{}, fmt.Errorf("player already completed the run")
	}

	out := RollOutcome{DiceValue: die, FromPos: st.Position}
	st.TotalRolls++

	if !st.HasStarted {
		if die != ReleaseValue {
			st.PreStartRolls++
			out.ToPos = st.Position
			return st, out, nil
		}
		st.HasStarted = true
		out.Started = true
	}

	pos := st.Position + die
	if pos >= b.Goal {
		pos = b.Goal
	} else if to, ok := b.Jumps[pos]; ok {
		from := pos
		out.JumpFrom = &from
		jumpTo := to
		out.JumpTo = &jumpTo
		pos = to
	}

	st.Position = pos
	out.ToPos = pos
	if pos == b.Goal {
		st.HasCompleted = true
		out.Completed = true
	}
	return st, out, nil
}

// NextEligibleIndex walks the rotation order starting after from and returns
// the next index whose participant has not completed. The walk may land back
// on from itself (solo play). ok=false means every participant completed.
func NextEligibleIndex(completed []bool, from int) (int, bool) {
	n := len(completed)
	if n == 0 {
		return 0, false
	}
	for step := 1; step <= n; step++ {
		idx := (from + step) % n
		if !completed[idx] {
			return idx, true
		}
	}
	return 0, false
}
