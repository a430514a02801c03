// Package scheduler materializes schedule templates into calendar events.
// Each active team's schedules run once per cycle; the fair-use and
// round-robin pickers decide who takes each generated shift.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

const day = 86400

// Shift is one concrete interval waiting for a user.
type Shift struct {
	Start int64
	End   int64
}

// Picker chooses the user for one shift, or reports false to skip it.
// Pickers see the full roster plus the busy set so cursor-based strategies
// can track users that are currently ineligible.
type Picker interface {
	Pick(ctx context.Context, tx storage.Tx, sched *storage.Schedule, shift Shift, members []*storage.RosterMember, busy map[int64]bool) (int64, bool, error)
}

// pickers maps scheduler names from the scheduler table to constructors.
// Picker instances carry per-run state, so each populate gets a fresh one.
var pickers = map[string]func() Picker{
	"default":     func() Picker { return newFairUse() },
	"round-robin": func() Picker { return newRoundRobin() },
}

type Engine struct {
	store  storage.Store
	grace  int64
	logger zerolog.Logger
}

func New(store storage.Store, gracePeriod int64, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		grace:  gracePeriod,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// RunOnce schedules every active team. A failing team is logged and skipped
// so one bad schedule cannot starve the rest.
func (e *Engine) RunOnce(ctx context.Context) error {
	teams, err := e.store.ActiveTeams(ctx)
	if err != nil {
		return fmt.Errorf("listing active teams: %w", err)
	}
	for _, team := range teams {
		if err := e.runTeam(ctx, team); err != nil {
			e.logger.Error().Err(err).Str("team", team.Name).Msg("scheduling failed")
		}
	}
	return nil
}

func (e *Engine) runTeam(ctx context.Context, team *storage.Team) error {
	e.logger.Info().Str("team", team.Name).Msg("scheduling for team")
	schedules, err := e.store.SchedulesForTeam(ctx, team.ID)
	if err != nil {
		return err
	}
	now := timeNow().Unix()
	for _, sched := range schedules {
		members, err := e.store.RosterInRotation(ctx, sched.RosterID, sched.TeamID)
		if err != nil {
			return err
		}
		from := now
		if sched.LastEpochScheduled != nil {
			from = *sched.LastEpochScheduled + storage.Week
		}
		until := now + int64(sched.AutoPopulateThreshold)*day
		if from >= until {
			continue
		}
		err = e.store.InTx(ctx, func(tx storage.Tx) error {
			_, err := e.populate(ctx, tx, sched, members, "event", from, until, true)
			return err
		})
		if err != nil {
			e.logger.Error().Err(err).
				Str("team", team.Name).
				Int64("schedule", sched.ID).
				Msg("populate failed, retrying next cycle")
		}
	}
	return nil
}

// Populate is the manually triggered run: it clears the schedule's own
// future events from start onward and regenerates them.
func (e *Engine) Populate(ctx context.Context, scheduleID, start int64) error {
	now := timeNow().Unix()
	if start < now-e.grace {
		return oncallerr.New(oncallerr.BadRequest, "Populating events in the past not allowed")
	}
	sched, err := e.store.ScheduleByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	members, err := e.store.RosterInRotation(ctx, sched.RosterID, sched.TeamID)
	if err != nil {
		return err
	}
	until := now + int64(sched.AutoPopulateThreshold)*day
	return e.store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteScheduleEventsFrom(ctx, sched.ID, start); err != nil {
			return err
		}
		_, err := e.populate(ctx, tx, sched, members, "event", start, until, true)
		return err
	})
}

// Preview runs a populate against a session temp table seeded with the
// team's committed events and returns the projected calendar. Nothing is
// written to the event table and the cursor does not move.
func (e *Engine) Preview(ctx context.Context, scheduleID, start int64) ([]*storage.Event, error) {
	if start == 0 {
		start = timeNow().Unix()
	}
	sched, err := e.store.ScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	members, err := e.store.RosterInRotation(ctx, sched.RosterID, sched.TeamID)
	if err != nil {
		return nil, err
	}
	until := start + int64(sched.AutoPopulateThreshold)*day

	var preview []*storage.Event
	err = e.store.InTx(ctx, func(tx storage.Tx) error {
		table := fmt.Sprintf("temp_event_%d", sched.ID)
		if err := tx.CreateTempEventTable(ctx, table); err != nil {
			return err
		}
		if err := tx.CopyTeamEvents(ctx, table, sched.TeamID, start); err != nil {
			return err
		}
		if _, err := e.populate(ctx, tx, sched, members, table, start, until, false); err != nil {
			return err
		}
		preview, err = tx.EventsFromTable(ctx, table, sched.TeamID, start, until)
		return err
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// populate generates the schedule's shifts over [from, until) and fills
// them one by one. Shifts overlapping an existing event of the same team
// and role are skipped, as are shifts nobody can take. The cursor advances
// only past shifts that produced an event.
func (e *Engine) populate(ctx context.Context, tx storage.Tx, sched *storage.Schedule, members []*storage.RosterMember, table string, from, until int64, advanceCursor bool) ([]*storage.Event, error) {
	newPicker, ok := pickers[sched.Scheduler.Name]
	if !ok {
		return nil, fmt.Errorf("unknown scheduler %q", sched.Scheduler.Name)
	}
	picker := newPicker()

	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		e.logger.Warn().Str("timezone", sched.Timezone).Int64("schedule", sched.ID).
			Msg("unknown scheduling timezone, falling back to UTC")
		loc = time.UTC
	}
	shifts := generateShifts(sched.Events, loc, from, until)

	var emitted []*storage.Event
	var lastUser, lastEpoch int64
	for _, shift := range shifts {
		existing, err := tx.OverlappingEvents(ctx, table, sched.TeamID, sched.RoleID, shift.Start, shift.End)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			e.logger.Debug().Int64("schedule", sched.ID).Int64("start", shift.Start).
				Msg("shift overlaps existing events, skipping")
			continue
		}
		busy, err := tx.BusyUserIDs(ctx, table, sched.TeamID, shift.Start, shift.End)
		if err != nil {
			return nil, err
		}
		userID, found, err := picker.Pick(ctx, tx, sched, shift, members, busy)
		if err != nil {
			return nil, err
		}
		if !found {
			e.logger.Debug().Int64("schedule", sched.ID).Int64("start", shift.Start).
				Msg("no eligible user for shift, skipping")
			continue
		}
		scheduleID := sched.ID
		ev := &storage.Event{
			TeamID:     sched.TeamID,
			RoleID:     sched.RoleID,
			UserID:     userID,
			Start:      shift.Start,
			End:        shift.End,
			ScheduleID: &scheduleID,
		}
		id, err := tx.InsertEventInto(ctx, table, ev)
		if err != nil {
			return nil, err
		}
		ev.ID = id
		emitted = append(emitted, ev)
		lastUser = userID
		lastEpoch = weekStartEpoch(shift.Start, loc)
	}

	if advanceCursor && len(emitted) > 0 {
		if err := tx.UpdateScheduleCursor(ctx, sched.ID, lastEpoch, lastUser); err != nil {
			return nil, err
		}
	}
	return emitted, nil
}

// generateShifts expands the weekly template over [from, until). Offsets
// are seconds from Monday 00:00 in the scheduling timezone.
func generateShifts(events []storage.ScheduleEvent, loc *time.Location, from, until int64) []Shift {
	if len(events) == 0 || from >= until {
		return nil
	}
	var shifts []Shift
	anchor := weekStart(time.Unix(from, 0).In(loc))
	for anchor.Unix() < until {
		for _, ev := range events {
			start := anchor.Add(time.Duration(ev.Start) * time.Second).Unix()
			if start < from || start >= until {
				continue
			}
			shifts = append(shifts, Shift{Start: start, End: start + ev.Duration})
		}
		anchor = anchor.AddDate(0, 0, 7)
	}
	sort.Slice(shifts, func(i, j int) bool { return shifts[i].Start < shifts[j].Start })
	return shifts
}

// weekStart backs t up to Monday 00:00 local time.
func weekStart(t time.Time) time.Time {
	daysPastMonday := (int(t.Weekday()) + 6) % 7
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, -daysPastMonday)
}

func weekStartEpoch(epoch int64, loc *time.Location) int64 {
	return weekStart(time.Unix(epoch, 0).In(loc)).Unix()
}
