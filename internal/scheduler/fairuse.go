package scheduler

import (
	"context"
	"sort"

	"github.com/oncall-sre/oncall/internal/storage"
)

// fairUse is the default picker. It favors the candidate who has been off
// this team and role the longest, then the one whose next shift is furthest
// away, then roster priority, then user id, so reruns over identical state
// assign identically.
type fairUse struct {
	// ends of shifts assigned earlier in this run, overriding committed
	// history so previews rank the same way real populates do
	runLastEnd map[int64]int64
}

func newFairUse() Picker {
	return &fairUse{runLastEnd: make(map[int64]int64)}
}

type fairCandidate struct {
	member    *storage.RosterMember
	sinceLast int64
	toNext    int64
}

const farFuture = int64(1) << 62

func (f *fairUse) Pick(ctx context.Context, tx storage.Tx, sched *storage.Schedule, shift Shift, members []*storage.RosterMember, busy map[int64]bool) (int64, bool, error) {
	var pool []*storage.RosterMember
	for _, m := range members {
		if m.InRotation && !busy[m.UserID] {
			pool = append(pool, m)
		}
	}
	if len(pool) == 0 {
		return 0, false, nil
	}

	lastEnds, err := tx.LastShiftEnds(ctx, sched.TeamID, sched.RoleID, shift.Start)
	if err != nil {
		return 0, false, err
	}
	nextStarts, err := tx.NextShiftStarts(ctx, sched.TeamID, shift.End)
	if err != nil {
		return 0, false, err
	}

	candidates := make([]fairCandidate, 0, len(pool))
	for _, m := range pool {
		sinceLast := farFuture // never on call counts as the longest break
		lastEnd, seen := lastEnds[m.UserID]
		if runEnd, ok := f.runLastEnd[m.UserID]; ok && (!seen || runEnd > lastEnd) {
			lastEnd, seen = runEnd, true
		}
		if seen {
			sinceLast = shift.Start - lastEnd
		}
		toNext := farFuture
		if next, ok := nextStarts[m.UserID]; ok {
			toNext = next - shift.End
		}
		candidates = append(candidates, fairCandidate{member: m, sinceLast: sinceLast, toNext: toNext})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.sinceLast != b.sinceLast {
			return a.sinceLast > b.sinceLast
		}
		if a.toNext != b.toNext {
			return a.toNext > b.toNext
		}
		if a.member.Priority != b.member.Priority {
			return a.member.Priority < b.member.Priority
		}
		return a.member.UserID < b.member.UserID
	})

	chosen := candidates[0].member.UserID
	f.runLastEnd[chosen] = shift.End
	return chosen, true, nil
}
