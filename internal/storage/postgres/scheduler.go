package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/oncall-sre/oncall/internal/storage"
)

// Scheduler-facing transactional queries. The table argument is either the
// canonical event table or a session temp table created for preview runs;
// names are validated before interpolation since table names cannot be
// bound parameters.

func safeEventTable(table string) (string, error) {
	if table == "event" || strings.HasPrefix(table, "temp_event_") {
		return table, nil
	}
	return "", fmt.Errorf("invalid event table %q", table)
}

func (t *Tx) OverlappingEvents(ctx context.Context, table string, teamID, roleID, start, end int64) ([]*storage.Event, error) {
	tbl, err := safeEventTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, fmt.Sprintf(`
        SELECT id, team_id, role_id, user_id, start, "end", schedule_id, link_id, note
        FROM %s
        WHERE team_id = $1 AND role_id = $2 AND start < $4 AND "end" > $3
        ORDER BY start ASC
    `, tbl), teamID, roleID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*storage.Event
	for rows.Next() {
		var e storage.Event
		if err := rows.Scan(&e.ID, &e.TeamID, &e.RoleID, &e.UserID, &e.Start, &e.End, &e.ScheduleID, &e.LinkID, &e.Note); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// BusyUserIDs returns the users holding any event on the team overlapping
// [start, end), regardless of role.
func (t *Tx) BusyUserIDs(ctx context.Context, table string, teamID, start, end int64) (map[int64]bool, error) {
	tbl, err := safeEventTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, fmt.Sprintf(`
        SELECT DISTINCT user_id FROM %s
        WHERE team_id = $1 AND start < $3 AND "end" > $2
    `, tbl), teamID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	busy := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		busy[id] = true
	}
	return busy, rows.Err()
}

// LastShiftEnds maps each user to the latest end of their past events for
// this team and role, feeding the fairness ranking.
func (t *Tx) LastShiftEnds(ctx context.Context, teamID, roleID int64, before int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `
        SELECT user_id, max("end") FROM event
        WHERE team_id = $1 AND role_id = $2 AND "end" <= $3
        GROUP BY user_id
    `, teamID, roleID, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ends := make(map[int64]int64)
	for rows.Next() {
		var id, end int64
		if err := rows.Scan(&id, &end); err != nil {
			return nil, err
		}
		ends[id] = end
	}
	return ends, rows.Err()
}

// NextShiftStarts maps each user to the earliest start of their upcoming
// events on this team, the fairness tie-break.
func (t *Tx) NextShiftStarts(ctx context.Context, teamID int64, after int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `
        SELECT user_id, min(start) FROM event
        WHERE team_id = $1 AND start >= $2
        GROUP BY user_id
    `, teamID, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	starts := make(map[int64]int64)
	for rows.Next() {
		var id, start int64
		if err := rows.Scan(&id, &start); err != nil {
			return nil, err
		}
		starts[id] = start
	}
	return starts, rows.Err()
}

func (t *Tx) UpdateScheduleCursor(ctx context.Context, scheduleID, epoch, userID int64) error {
	_, err := t.tx.Exec(ctx, `
        UPDATE schedule SET last_epoch_scheduled = $2, last_scheduled_user_id = $3
        WHERE id = $1
    `, scheduleID, epoch, userID)
	return err
}

func (t *Tx) CreateTempEventTable(ctx context.Context, name string) error {
	tbl, err := safeEventTable(name)
	if err != nil {
		return err
	}
	if tbl == "event" {
		return fmt.Errorf("preview table may not shadow the event table")
	}
	_, err = t.tx.Exec(ctx, fmt.Sprintf(`
        CREATE TEMPORARY TABLE %s (
            id bigserial PRIMARY KEY,
            team_id bigint NOT NULL,
            role_id bigint NOT NULL,
            user_id bigint NOT NULL,
            start bigint NOT NULL,
            "end" bigint NOT NULL,
            schedule_id bigint,
            link_id varchar(128),
            note text
        ) ON COMMIT DROP
    `, tbl))
	return err
}

// CopyTeamEvents seeds a preview table with the team's committed events so
// overlap checks against it see the real calendar.
func (t *Tx) CopyTeamEvents(ctx context.Context, table string, teamID, from int64) error {
	tbl, err := safeEventTable(table)
	if err != nil {
		return err
	}
	if tbl == "event" {
		return fmt.Errorf("refusing to copy the event table onto itself")
	}
	_, err = t.tx.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (team_id, role_id, user_id, start, "end", schedule_id, link_id, note)
        SELECT team_id, role_id, user_id, start, "end", schedule_id, link_id, note
        FROM event WHERE team_id = $1 AND "end" > $2
    `, tbl), teamID, from)
	return err
}

// DeleteScheduleEventsFrom clears a schedule's own future events ahead of a
// manual repopulate. Manually created events have no schedule_id and stay.
func (t *Tx) DeleteScheduleEventsFrom(ctx context.Context, scheduleID, from int64) error {
	_, err := t.tx.Exec(ctx, `
        DELETE FROM event WHERE schedule_id = $1 AND start >= $2
    `, scheduleID, from)
	return err
}

func (t *Tx) EventsFromTable(ctx context.Context, table string, teamID, start, end int64) ([]*storage.Event, error) {
	tbl, err := safeEventTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, fmt.Sprintf(`
        SELECT ev.id, ev.team_id, ev.role_id, role.name, ev.user_id, "user".name, "user".full_name,
               ev.start, ev."end", ev.schedule_id
        FROM %s ev
        JOIN role ON role.id = ev.role_id
        JOIN "user" ON "user".id = ev.user_id
        WHERE ev.team_id = $1 AND ev.start < $3 AND ev."end" >= $2
        ORDER BY ev.start ASC
    `, tbl), teamID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*storage.Event
	for rows.Next() {
		var e storage.Event
		err := rows.Scan(&e.ID, &e.TeamID, &e.RoleID, &e.Role, &e.UserID, &e.User, &e.FullName,
			&e.Start, &e.End, &e.ScheduleID)
		if err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
