package events

import (
	"context"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/notify"
	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

// LinkedCreateResult is the response of a linked-group create.
type LinkedCreateResult struct {
	LinkID   string  `json:"link_id"`
	EventIDs []int64 `json:"event_ids"`
}

// CreateLinked inserts a group of events sharing one freshly generated
// link id. All specs must target the same team.
func (e *Engine) CreateLinked(ctx context.Context, p *auth.Principal, specs []CreateInput) (*LinkedCreateResult, error) {
	if len(specs) == 0 {
		return nil, oncallerr.New(oncallerr.BadRequest, "Events list cannot be empty")
	}
	team := specs[0].Team
	now := timeNow().Unix()
	for i := range specs {
		if specs[i].Team != team {
			return nil, oncallerr.New(oncallerr.BadRequest, "Linked events must all belong to one team")
		}
		if err := e.validateWindow(&specs[i], now); err != nil {
			return nil, err
		}
	}
	if err := e.auth.CheckCalendarAuth(ctx, p, team); err != nil {
		return nil, err
	}

	linkID := NewLinkID()
	result := &LinkedCreateResult{LinkID: linkID}

	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		t, err := tx.TeamByName(ctx, team)
		if err != nil {
			return err
		}
		var affected []notify.Affected
		var roles []string
		var minStart, maxEnd int64
		var fullName string
		seenUsers := map[int64]bool{}
		seenRoles := map[string]bool{}

		for i, spec := range specs {
			user, err := tx.UserByName(ctx, spec.User)
			if err != nil {
				return err
			}
			role, err := tx.RoleByName(ctx, spec.Role)
			if err != nil {
				return err
			}
			member, err := tx.IsTeamMember(ctx, t.ID, user.ID)
			if err != nil {
				return err
			}
			if !member {
				return oncallerr.New(oncallerr.BadRequest, "User %q must be part of team %q", spec.User, team)
			}

			link := linkID
			id, err := tx.InsertEvent(ctx, &storage.Event{
				TeamID:     t.ID,
				RoleID:     role.ID,
				UserID:     user.ID,
				Start:      spec.Start,
				End:        spec.End,
				ScheduleID: spec.ScheduleID,
				LinkID:     &link,
				Note:       spec.Note,
			})
			if err != nil {
				return err
			}
			result.EventIDs = append(result.EventIDs, id)

			if !seenUsers[user.ID] {
				seenUsers[user.ID] = true
				affected = append(affected, notify.Affected{UserID: user.ID, UserName: user.Name})
			}
			if !seenRoles[role.Name] {
				seenRoles[role.Name] = true
				roles = append(roles, role.Name)
			}
			if i == 0 || spec.Start < minStart {
				minStart = spec.Start
			}
			if spec.End > maxEnd {
				maxEnd = spec.End
			}
			fullName = user.FullName
		}

		return e.sink.Record(ctx, tx, &notify.EventChange{
			Action:   notify.ActionEventCreated,
			TeamID:   t.ID,
			Team:     t.Name,
			Owner:    p.Owner(),
			Roles:    roles,
			Affected: affected,
			Start:    minStart,
			End:      maxEnd,
			FullName: fullName,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EditLinked applies one update to every member of a linked group and
// dissolves the group. Team admin only; wholly-future groups only.
func (e *Engine) EditLinked(ctx context.Context, p *auth.Principal, linkID string, in EditInput) error {
	if in.empty() {
		return oncallerr.New(oncallerr.BadRequest, "No event fields to update")
	}
	now := timeNow().Unix()
	cutoff := e.pastCutoff(now)

	return e.store.InTx(ctx, func(tx storage.Tx) error {
		group, err := tx.EventsByLink(ctx, linkID)
		if err != nil {
			return err
		}
		if len(group) == 0 {
			return oncallerr.New(oncallerr.NotFound, "Linked events %q not found", linkID)
		}
		first := group[0]
		if err := e.auth.CheckTeamAuth(ctx, p, first.Team); err != nil {
			return err
		}
		if first.Start < cutoff {
			return oncallerr.New(oncallerr.BadRequest, "Editing events in the past not allowed")
		}

		upd := storage.EventUpdate{Start: in.Start, End: in.End, Note: in.Note}
		affected := []notify.Affected{{UserID: first.UserID, UserName: first.User}}
		roles := []string{first.Role}
		fullName := first.FullName

		if in.User != nil && *in.User != first.User {
			user, err := tx.UserByName(ctx, *in.User)
			if err != nil {
				return err
			}
			member, err := tx.IsTeamMember(ctx, first.TeamID, user.ID)
			if err != nil {
				return err
			}
			if !member {
				return oncallerr.New(oncallerr.BadRequest, "User %q must be part of team %q", user.Name, first.Team)
			}
			upd.UserID = &user.ID
			affected = append(affected, notify.Affected{UserID: user.ID, UserName: user.Name})
			fullName = user.FullName
		}
		if in.Role != nil && *in.Role != first.Role {
			role, err := tx.RoleByName(ctx, *in.Role)
			if err != nil {
				return err
			}
			upd.RoleID = &role.ID
			roles = append(roles, role.Name)
		}

		if err := tx.UpdateLinkedEvents(ctx, linkID, upd, true); err != nil {
			return err
		}

		return e.sink.Record(ctx, tx, &notify.EventChange{
			Action:   notify.ActionEventEdited,
			TeamID:   first.TeamID,
			Team:     first.Team,
			Owner:    p.Owner(),
			Roles:    roles,
			Affected: affected,
			Start:    first.Start,
			End:      group[len(group)-1].End,
			FullName: fullName,
		})
	})
}

// DeleteLinked removes every member of a linked group.
func (e *Engine) DeleteLinked(ctx context.Context, p *auth.Principal, linkID string) error {
	now := timeNow().Unix()
	return e.store.InTx(ctx, func(tx storage.Tx) error {
		group, err := tx.EventsByLink(ctx, linkID)
		if err != nil {
			return err
		}
		if len(group) == 0 {
			return oncallerr.New(oncallerr.NotFound, "Linked events %q not found", linkID)
		}
		first := group[0]
		if err := e.auth.CheckCalendarAuth(ctx, p, first.Team); err != nil {
			return err
		}
		if first.Start < e.pastCutoff(now) {
			return oncallerr.New(oncallerr.BadRequest, "Deleting events in the past not allowed")
		}
		if err := tx.DeleteEventsByLink(ctx, linkID); err != nil {
			return err
		}
		return e.sink.Record(ctx, tx, &notify.EventChange{
			Action:   notify.ActionEventDeleted,
			TeamID:   first.TeamID,
			Team:     first.Team,
			Owner:    p.Owner(),
			Roles:    []string{first.Role},
			Affected: []notify.Affected{{UserID: first.UserID, UserName: first.User}},
			Start:    first.Start,
			End:      group[len(group)-1].End,
			FullName: first.FullName,
		})
	})
}
