package events

import (
	"context"
	"sort"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/notify"
	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

// OverrideInput substitutes a user over a window of a consecutive event
// run; covered events are deleted, truncated, or split.
type OverrideInput struct {
	Start    int64   `json:"start"`
	End      int64   `json:"end"`
	EventIDs []int64 `json:"event_ids"`
	User     string  `json:"user"`
}

type boundsChange struct {
	id         int64
	start, end int64
}

// overridePlan is the pure segment arithmetic of an override, computed
// before any write.
type overridePlan struct {
	deletes   []int64
	truncates []boundsChange
	splits    []*storage.Event // tail fragments to insert
	start     int64            // truncated substitute interval
	end       int64
}

// planOverride validates the event run and computes the plan. Events must
// be non-empty, uniform in team, role and user, and consecutive.
func planOverride(events []*storage.Event, start, end int64) (*overridePlan, error) {
	if len(events) == 0 {
		return nil, oncallerr.New(oncallerr.NotFound, "Events to override not found")
	}
	sorted := make([]*storage.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	first := sorted[0]
	for i, ev := range sorted {
		if ev.TeamID != first.TeamID {
			return nil, oncallerr.New(oncallerr.BadRequest, "Overridden events must all belong to one team")
		}
		if ev.RoleID != first.RoleID {
			return nil, oncallerr.New(oncallerr.BadRequest, "Overridden events must all have the same role")
		}
		if ev.UserID != first.UserID {
			return nil, oncallerr.New(oncallerr.BadRequest, "Overridden events must all have the same user")
		}
		if i > 0 && sorted[i-1].End != ev.Start {
			return nil, oncallerr.New(oncallerr.BadRequest, "Overridden events must be consecutive")
		}
	}

	last := sorted[len(sorted)-1]
	s := max64(start, first.Start)
	e := min64(end, last.End)
	if s >= e {
		return nil, oncallerr.New(oncallerr.BadRequest, "Override window does not overlap the given events")
	}

	plan := &overridePlan{start: s, end: e}
	for _, ev := range sorted {
		switch {
		case s <= ev.Start && e >= ev.End:
			plan.deletes = append(plan.deletes, ev.ID)
		case ev.Start < s && e < ev.End:
			// interior override splits the event around the window
			plan.truncates = append(plan.truncates, boundsChange{id: ev.ID, start: ev.Start, end: s})
			tail := *ev
			tail.ID = 0
			tail.Start = e
			tail.LinkID = nil
			plan.splits = append(plan.splits, &tail)
		case ev.Start < s && s < ev.End:
			plan.truncates = append(plan.truncates, boundsChange{id: ev.ID, start: ev.Start, end: s})
		case ev.Start < e && e < ev.End:
			plan.truncates = append(plan.truncates, boundsChange{id: ev.ID, start: e, end: ev.End})
		}
	}
	return plan, nil
}

// Override applies the plan and inserts the substitute event, returning
// the surviving events plus the new one, in start order.
func (e *Engine) Override(ctx context.Context, p *auth.Principal, in OverrideInput) ([]*storage.Event, error) {
	now := timeNow().Unix()
	if in.Start >= in.End {
		return nil, oncallerr.New(oncallerr.BadRequest, "Override must start before it ends")
	}
	if in.Start < e.pastCutoff(now) {
		return nil, oncallerr.New(oncallerr.BadRequest, "Overriding events in the past not allowed")
	}
	if len(in.EventIDs) == 0 {
		return nil, oncallerr.New(oncallerr.BadRequest, "No events to override")
	}

	var result []*storage.Event
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		events, err := tx.EventsByIDs(ctx, in.EventIDs)
		if err != nil {
			return err
		}
		if len(events) != len(in.EventIDs) {
			return oncallerr.New(oncallerr.NotFound, "Events to override not found")
		}
		original := events[0]
		if err := e.auth.CheckCalendarAuth(ctx, p, original.Team); err != nil {
			return err
		}

		plan, err := planOverride(events, in.Start, in.End)
		if err != nil {
			return err
		}

		sub, err := tx.UserByName(ctx, in.User)
		if err != nil {
			return err
		}
		member, err := tx.IsTeamMember(ctx, original.TeamID, sub.ID)
		if err != nil {
			return err
		}
		if !member {
			return oncallerr.New(oncallerr.BadRequest, "User %q must be part of team %q", in.User, original.Team)
		}

		for _, id := range plan.deletes {
			if err := tx.DeleteEvent(ctx, id); err != nil {
				return err
			}
		}
		for _, tr := range plan.truncates {
			if err := tx.SetEventBounds(ctx, tr.id, tr.start, tr.end); err != nil {
				return err
			}
		}
		for _, tail := range plan.splits {
			if _, err := tx.InsertEvent(ctx, tail); err != nil {
				return err
			}
		}
		overrideID, err := tx.InsertEvent(ctx, &storage.Event{
			TeamID: original.TeamID,
			RoleID: original.RoleID,
			UserID: sub.ID,
			Start:  plan.start,
			End:    plan.end,
		})
		if err != nil {
			return err
		}

		err = e.sink.Record(ctx, tx, &notify.EventChange{
			Action: notify.ActionEventSubstituted,
			TeamID: original.TeamID,
			Team:   original.Team,
			Owner:  p.Owner(),
			Roles:  []string{original.Role},
			Affected: []notify.Affected{
				{UserID: original.UserID, UserName: original.User},
				{UserID: sub.ID, UserName: sub.Name},
			},
			Start:    plan.start,
			End:      plan.end,
			FullName: sub.FullName,
		})
		if err != nil {
			return err
		}

		// re-read the touched window for the response
		deleted := map[int64]bool{}
		for _, id := range plan.deletes {
			deleted[id] = true
		}
		for _, ev := range events {
			if deleted[ev.ID] {
				continue
			}
			survivor, err := tx.EventByID(ctx, ev.ID)
			if err != nil {
				return err
			}
			result = append(result, survivor)
		}
		for _, tail := range plan.splits {
			tail.Role = original.Role
			tail.Team = original.Team
			tail.User = original.User
			tail.FullName = original.FullName
			result = append(result, tail)
		}
		result = append(result, &storage.Event{
			ID:       overrideID,
			TeamID:   original.TeamID,
			Team:     original.Team,
			RoleID:   original.RoleID,
			Role:     original.Role,
			UserID:   sub.ID,
			User:     sub.Name,
			FullName: sub.FullName,
			Start:    plan.start,
			End:      plan.end,
		})
		sort.Slice(result, func(i, j int) bool { return result[i].Start < result[j].Start })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
