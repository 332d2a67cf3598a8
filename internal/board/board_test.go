package board

import "testing"

func testBoard(t *testing.T) *Board {
	t.Helper()
	b, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	return b
}

func TestApplyDicePreStartThenRelease(t *testing.T) {
	b := testBoard(t)
	st := RollState{Position: b.Start}

	// A non-release die before the run starts only burns a pre-start roll.
	st, out, err := b.ApplyDice(st, 4)
	if err != nil {
		t.Fatalf("ApplyDice error: %v", err)
	}
	if st.HasStarted {
		t.Fatalf("want not started, got started")
	}
	if out.ToPos != out.FromPos {
		t.Fatalf("want position unchanged, got from=%d to=%d", out.FromPos, out.ToPos)
	}
	if st.PreStartRolls != 1 || st.TotalRolls != 1 {
		t.Fatalf("want preStart=1 total=1, got preStart=%d total=%d", st.PreStartRolls, st.TotalRolls)
	}

	// The release die starts the run and moves the full value from start.
	st, out, err = b.ApplyDice(st, ReleaseValue)
	if err != nil {
		t.Fatalf("ApplyDice error: %v", err)
	}
	if !st.HasStarted || !out.Started {
		t.Fatalf("want started after release die")
	}
	if want := b.Start + ReleaseValue; st.Position != want {
		t.Fatalf("want position=%d got=%d", want, st.Position)
	}
	if st.PreStartRolls != 1 || st.TotalRolls != 2 {
		t.Fatalf("want preStart=1 total=2, got preStart=%d total=%d", st.PreStartRolls, st.TotalRolls)
	}
}

func TestApplyDiceJump(t *testing.T) {
	b := testBoard(t)
	// House 4 forwards to 14 on the default board.
	jumpTo, ok := b.Jumps[4]
	if !ok {
		t.Fatalf("expected a jump at house 4")
	}
	st := RollState{Position: 2, HasStarted: true}
	st, out, err := b.ApplyDice(st, 2)
	if err != nil {
		t.Fatalf("ApplyDice error: %v", err)
	}
	if out.JumpFrom == nil || *out.JumpFrom != 4 {
		t.Fatalf("want jumpFrom=4 got=%v", out.JumpFrom)
	}
	if st.Position != jumpTo {
		t.Fatalf("want position=%d got=%d", jumpTo, st.Position)
	}
}

func TestApplyDiceSingleJumpOnly(t *testing.T) {
	b := &Board{Start: 1, Goal: 40, Jumps: map[int]int{5: 9, 9: 20}}
	st := RollState{Position: 3, HasStarted: true}
	st, out, err := b.ApplyDice(st, 2)
	if err != nil {
		t.Fatalf("ApplyDice error: %v", err)
	}
	// Landing on 5 jumps to 9; the chained jump at 9 must not apply.
	if st.Position != 9 {
		t.Fatalf("want position=9 got=%d", st.Position)
	}
	if out.JumpTo == nil || *out.JumpTo != 9 {
		t.Fatalf("want jumpTo=9 got=%v", out.JumpTo)
	}
}

func TestApplyDiceOvershootClampsToGoal(t *testing.T) {
	b := testBoard(t)
	st := RollState{Position: b.Goal - 2, HasStarted: true}
	st, out, err := b.ApplyDice(st, 6)
	if err != nil {
		t.Fatalf("ApplyDice error: %v", err)
	}
	if st.Position != b.Goal {
		t.Fatalf("want position=%d got=%d", b.Goal, st.Position)
	}
	if !st.HasCompleted || !out.Completed {
		t.Fatalf("want completed at goal")
	}
}

func TestApplyDiceRejectsCompletedAndBadDie(t *testing.T) {
	b := testBoard(t)
	if _, _, err := b.ApplyDice(RollState{HasCompleted: true}, 3); err == nil {
		t.Fatalf("want error for completed player")
	}
	if _, _, err := b.ApplyDice(RollState{Position: b.Start}, 7); err == nil {
		t.Fatalf("want error for die out of range")
	}
	if _, _, err := b.ApplyDice(RollState{Position: b.Start}, 0); err == nil {
		t.Fatalf("want error for die out of range")
	}
}

func TestNextEligibleIndex(t *testing.T) {
	cases := []struct {
		name      string
		completed []bool
		from      int
		wantIdx   int
		wantOK    bool
	}{
		{"simple rotation", []bool{false, false, false}, 0, 1, true},
		{"skips completed", []bool{false, true, false}, 0, 2, true},
		{"wraps around", []bool{false, true, true}, 2, 0, true},
		{"solo wraps to self", []bool{false}, 0, 0, true},
		{"all completed", []bool{true, true}, 0, 0, false},
		{"empty", nil, 0, 0, false},
	}
	for _, tc := range cases {
		idx, ok := NextEligibleIndex(tc.completed, tc.from)
		if idx != tc.wantIdx || ok != tc.wantOK {
			t.Fatalf("%s: want idx=%d ok=%v got idx=%d ok=%v", tc.name, tc.wantIdx, tc.wantOK, idx, ok)
		}
	}
}

func TestParseRejectsBadBoards(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"goal below start", "start: 10\ngoal: 5\n"},
		{"jump outside range", "start: 1\ngoal: 10\njumps:\n  - {from: 10, to: 3}\n"},
		{"self jump", "start: 1\ngoal: 10\njumps:\n  - {from: 4, to: 4}\n"},
		{"duplicate source", "start: 1\ngoal: 10\njumps:\n  - {from: 4, to: 6}\n  - {from: 4, to: 8}\n"},
	}
	for _, tc := range cases {
		if _, err := parse([]byte(tc.yaml)); err == nil {
			t.Fatalf("%s: want parse error", tc.name)
		}
	}
}
