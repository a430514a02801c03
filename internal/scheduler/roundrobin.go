package scheduler

import (
	"context"

	"github.com/oncall-sre/oncall/internal/storage"
)

// roundRobin cycles through the schedule's stored user order. The cursor
// resumes from last_scheduled_user_id; if that user left the order it
// restarts at position 0.
type roundRobin struct {
	cursor int
	inited bool
}

func newRoundRobin() Picker {
	return &roundRobin{}
}

func (r *roundRobin) Pick(ctx context.Context, tx storage.Tx, sched *storage.Schedule, shift Shift, members []*storage.RosterMember, busy map[int64]bool) (int64, bool, error) {
	order := sched.Scheduler.Data
	if len(order) == 0 {
		return 0, false, nil
	}
	byName := make(map[string]*storage.RosterMember, len(members))
	for _, m := range members {
		byName[m.UserName] = m
	}

	if !r.inited {
		r.inited = true
		r.cursor = -1
		if sched.LastScheduledUserID != nil {
			for i, name := range order {
				m, ok := byName[name]
				if ok && m.UserID == *sched.LastScheduledUserID {
					r.cursor = i
					break
				}
			}
		}
	}

	// one full lap; a shift nobody can take leaves the cursor untouched
	for step := 1; step <= len(order); step++ {
		idx := (r.cursor + step) % len(order)
		m, ok := byName[order[idx]]
		if !ok || !m.InRotation || busy[m.UserID] {
			continue
		}
		r.cursor = idx
		return m.UserID, true, nil
	}
	return 0, false, nil
}
