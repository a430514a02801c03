package events

import (
	"context"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/notify"
	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

// SwapSide selects one side of a swap: a single event id or a whole
// linked group.
type SwapSide struct {
	EventID int64
	LinkID  string
	Linked  bool
}

// Swap exchanges the users between two sides. Linked sides keep their
// link id; a plain event side loses its linkage.
func (e *Engine) Swap(ctx context.Context, p *auth.Principal, a, b SwapSide) error {
	now := timeNow().Unix()
	cutoff := e.pastCutoff(now)

	return e.store.InTx(ctx, func(tx storage.Tx) error {
		eventsA, err := resolveSide(ctx, tx, a)
		if err != nil {
			return err
		}
		eventsB, err := resolveSide(ctx, tx, b)
		if err != nil {
			return err
		}

		all := append(append([]*storage.Event{}, eventsA...), eventsB...)
		team := all[0].Team
		for _, ev := range all {
			if ev.Team != team {
				return oncallerr.New(oncallerr.BadRequest, "Swapped events must all belong to one team")
			}
			if ev.Start < cutoff {
				return oncallerr.New(oncallerr.BadRequest, "Swapping events in the past not allowed")
			}
		}
		if err := e.auth.CheckCalendarAuth(ctx, p, team); err != nil {
			return err
		}

		userA, err := uniformUser(eventsA)
		if err != nil {
			return err
		}
		userB, err := uniformUser(eventsB)
		if err != nil {
			return err
		}

		if err := assignSide(ctx, tx, a, eventsA, userB.UserID); err != nil {
			return err
		}
		if err := assignSide(ctx, tx, b, eventsB, userA.UserID); err != nil {
			return err
		}

		roles := map[string]bool{}
		var roleList []string
		for _, ev := range all {
			if !roles[ev.Role] {
				roles[ev.Role] = true
				roleList = append(roleList, ev.Role)
			}
		}
		minStart, maxEnd := all[0].Start, all[0].End
		for _, ev := range all {
			if ev.Start < minStart {
				minStart = ev.Start
			}
			if ev.End > maxEnd {
				maxEnd = ev.End
			}
		}

		return e.sink.Record(ctx, tx, &notify.EventChange{
			Action: notify.ActionEventSwapped,
			TeamID: all[0].TeamID,
			Team:   team,
			Owner:  p.Owner(),
			Roles:  roleList,
			Affected: []notify.Affected{
				{UserID: userA.UserID, UserName: userA.User},
				{UserID: userB.UserID, UserName: userB.User},
			},
			Start:    minStart,
			End:      maxEnd,
			FullName: userA.FullName,
		})
	})
}

func resolveSide(ctx context.Context, tx storage.Tx, side SwapSide) ([]*storage.Event, error) {
	if side.Linked {
		events, err := tx.EventsByLink(ctx, side.LinkID)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return nil, oncallerr.New(oncallerr.NotFound, "Linked events %q not found", side.LinkID)
		}
		return events, nil
	}
	ev, err := tx.EventByID(ctx, side.EventID)
	if err != nil {
		return nil, err
	}
	return []*storage.Event{ev}, nil
}

func uniformUser(events []*storage.Event) (*storage.Event, error) {
	first := events[0]
	for _, ev := range events[1:] {
		if ev.UserID != first.UserID {
			return nil, oncallerr.New(oncallerr.BadRequest, "Linked events must share one user to be swapped")
		}
	}
	return first, nil
}

func assignSide(ctx context.Context, tx storage.Tx, side SwapSide, events []*storage.Event, newUserID int64) error {
	if side.Linked {
		return tx.SetLinkUser(ctx, side.LinkID, newUserID)
	}
	// a single event pulled into a swap leaves its old group
	return tx.SetEventUser(ctx, events[0].ID, newUserID, true)
}
