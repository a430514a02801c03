// Package events implements the calendar mutation engine: single and
// linked event CRUD, swaps, and overrides, under the temporal and
// membership policy. Every mutation runs in one transaction together with
// its audit row and notification enqueues.
package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/auth"
	"github.com/oncall-sre/oncall/internal/notify"
	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// Authorizer is the slice of the auth manager the engine consumes.
type Authorizer interface {
	CheckTeamAuth(ctx context.Context, p *auth.Principal, team string) error
	CheckCalendarAuth(ctx context.Context, p *auth.Principal, team string) error
}

type Engine struct {
	store  storage.Store
	sink   *notify.Sink
	auth   Authorizer
	grace  int64
	logger zerolog.Logger
}

func NewEngine(store storage.Store, sink *notify.Sink, authorizer Authorizer, gracePeriod int64, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		sink:   sink,
		auth:   authorizer,
		grace:  gracePeriod,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

func (e *Engine) pastCutoff(now int64) int64 { return now - e.grace }

// NewLinkID generates the 128-character token grouping linked events.
func NewLinkID() string {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// CreateInput is one event spec for create and linked-create.
type CreateInput struct {
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	User       string  `json:"user"`
	Team       string  `json:"team"`
	Role       string  `json:"role"`
	ScheduleID *int64  `json:"schedule_id,omitempty"`
	Note       *string `json:"note,omitempty"`
}

func (e *Engine) validateWindow(in *CreateInput, now int64) error {
	if in.Start >= in.End {
		return oncallerr.New(oncallerr.BadRequest, "Event must start before it ends")
	}
	if in.Start < e.pastCutoff(now) {
		return oncallerr.New(oncallerr.BadRequest, "Creating events in the past not allowed")
	}
	return nil
}

// Create inserts a single event.
func (e *Engine) Create(ctx context.Context, p *auth.Principal, in CreateInput) (int64, error) {
	now := timeNow().Unix()
	if err := e.validateWindow(&in, now); err != nil {
		return 0, err
	}
	if err := e.auth.CheckCalendarAuth(ctx, p, in.Team); err != nil {
		return 0, err
	}

	var id int64
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		team, user, role, err := resolveRefs(ctx, tx, in.Team, in.User, in.Role)
		if err != nil {
			return err
		}
		member, err := tx.IsTeamMember(ctx, team.ID, user.ID)
		if err != nil {
			return err
		}
		if !member {
			return oncallerr.New(oncallerr.BadRequest, "User %q must be part of team %q", in.User, in.Team)
		}

		id, err = tx.InsertEvent(ctx, &storage.Event{
			TeamID:     team.ID,
			RoleID:     role.ID,
			UserID:     user.ID,
			Start:      in.Start,
			End:        in.End,
			ScheduleID: in.ScheduleID,
			Note:       in.Note,
		})
		if err != nil {
			return err
		}

		return e.sink.Record(ctx, tx, &notify.EventChange{
			Action:   notify.ActionEventCreated,
			TeamID:   team.ID,
			Team:     team.Name,
			Owner:    p.Owner(),
			Roles:    []string{role.Name},
			Affected: []notify.Affected{{UserID: user.ID, UserName: user.Name}},
			Start:    in.Start,
			End:      in.End,
			FullName: user.FullName,
		})
	})
	return id, err
}

// EditInput is the optional field set of an event edit.
type EditInput struct {
	Start *int64  `json:"start,omitempty"`
	End   *int64  `json:"end,omitempty"`
	User  *string `json:"user,omitempty"`
	Role  *string `json:"role,omitempty"`
	Note  *string `json:"note,omitempty"`
}

func (in *EditInput) empty() bool {
	return in.Start == nil && in.End == nil && in.User == nil && in.Role == nil && in.Note == nil
}

// onlyEndExtension reports whether the edit touches nothing but the end
// time, moving it into the allowed window. This is the one past edit a
// non-admin may make.
func (in *EditInput) onlyEndExtension(cutoff int64) bool {
	return in.Start == nil && in.User == nil && in.Role == nil &&
		in.End != nil && *in.End > cutoff
}

// Edit updates a single event. Editing always breaks linkage.
func (e *Engine) Edit(ctx context.Context, p *auth.Principal, id int64, in EditInput) error {
	if in.empty() {
		return oncallerr.New(oncallerr.BadRequest, "No event fields to update")
	}
	now := timeNow().Unix()
	cutoff := e.pastCutoff(now)

	return e.store.InTx(ctx, func(tx storage.Tx) error {
		ev, err := tx.EventByID(ctx, id)
		if err != nil {
			return err
		}
		if err := e.auth.CheckCalendarAuth(ctx, p, ev.Team); err != nil {
			return err
		}

		newStart := ev.Start
		if in.Start != nil {
			newStart = *in.Start
		}
		newEnd := ev.End
		if in.End != nil {
			newEnd = *in.End
		}
		if newStart >= newEnd {
			return oncallerr.New(oncallerr.BadRequest, "Event must start before it ends")
		}

		if ev.Start < cutoff || newStart < cutoff {
			if !in.onlyEndExtension(cutoff) {
				// anything else in the past needs a team admin, and a
				// refusal is a policy violation rather than an auth failure
				if err := e.auth.CheckTeamAuth(ctx, p, ev.Team); err != nil {
					return oncallerr.New(oncallerr.BadRequest, "Editing events in the past not allowed")
				}
			}
		}

		upd := storage.EventUpdate{Start: in.Start, End: in.End, Note: in.Note}

		affected := []notify.Affected{{UserID: ev.UserID, UserName: ev.User}}
		roles := []string{ev.Role}
		fullName := ev.FullName

		if in.User != nil && *in.User != ev.User {
			user, err := tx.UserByName(ctx, *in.User)
			if err != nil {
				return err
			}
			member, err := tx.IsTeamMember(ctx, ev.TeamID, user.ID)
			if err != nil {
				return err
			}
			if !member {
				return oncallerr.New(oncallerr.BadRequest, "User %q must be part of team %q", user.Name, ev.Team)
			}
			upd.UserID = &user.ID
			affected = append(affected, notify.Affected{UserID: user.ID, UserName: user.Name})
			fullName = user.FullName
		}
		if in.Role != nil && *in.Role != ev.Role {
			role, err := tx.RoleByName(ctx, *in.Role)
			if err != nil {
				return err
			}
			upd.RoleID = &role.ID
			roles = append(roles, role.Name)
		}

		if err := tx.UpdateEvent(ctx, id, upd, true); err != nil {
			return err
		}

		return e.sink.Record(ctx, tx, &notify.EventChange{
			Action:   notify.ActionEventEdited,
			TeamID:   ev.TeamID,
			Team:     ev.Team,
			Owner:    p.Owner(),
			Roles:    roles,
			Affected: affected,
			Start:    newStart,
			End:      newEnd,
			FullName: fullName,
		})
	})
}

// Delete removes a single event; past events are immutable.
func (e *Engine) Delete(ctx context.Context, p *auth.Principal, id int64) error {
	now := timeNow().Unix()
	return e.store.InTx(ctx, func(tx storage.Tx) error {
		ev, err := tx.EventByID(ctx, id)
		if err != nil {
			return err
		}
		if err := e.auth.CheckCalendarAuth(ctx, p, ev.Team); err != nil {
			return err
		}
		if ev.Start < e.pastCutoff(now) {
			return oncallerr.New(oncallerr.BadRequest, "Deleting events in the past not allowed")
		}
		if err := tx.DeleteEvent(ctx, id); err != nil {
			return err
		}
		return e.sink.Record(ctx, tx, &notify.EventChange{
			Action:   notify.ActionEventDeleted,
			TeamID:   ev.TeamID,
			Team:     ev.Team,
			Owner:    p.Owner(),
			Roles:    []string{ev.Role},
			Affected: []notify.Affected{{UserID: ev.UserID, UserName: ev.User}},
			Start:    ev.Start,
			End:      ev.End,
			FullName: ev.FullName,
		})
	})
}

func resolveRefs(ctx context.Context, tx storage.Tx, team, user, role string) (*storage.Team, *storage.User, *storage.Role, error) {
	t, err := tx.TeamByName(ctx, team)
	if err != nil {
		return nil, nil, nil, err
	}
	u, err := tx.UserByName(ctx, user)
	if err != nil {
		return nil, nil, nil, err
	}
	r, err := tx.RoleByName(ctx, role)
	if err != nil {
		return nil, nil, nil, err
	}
	return t, u, r, nil
}
