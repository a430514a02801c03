package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

const eventSelect = `
    SELECT event.id, event.team_id, team.name, event.role_id, role.name,
           event.user_id, "user".name, "user".full_name,
           event.start, event."end", event.schedule_id, event.link_id, event.note
    FROM event
    JOIN team ON team.id = event.team_id
    JOIN role ON role.id = event.role_id
    JOIN "user" ON "user".id = event.user_id`

func scanEvent(row pgx.Row) (*storage.Event, error) {
	var e storage.Event
	err := row.Scan(&e.ID, &e.TeamID, &e.Team, &e.RoleID, &e.Role,
		&e.UserID, &e.User, &e.FullName,
		&e.Start, &e.End, &e.ScheduleID, &e.LinkID, &e.Note)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func queryEvents(ctx context.Context, q querier, sql string, args ...any) ([]*storage.Event, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*storage.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func eventByID(ctx context.Context, q querier, id int64) (*storage.Event, error) {
	e, err := scanEvent(q.QueryRow(ctx, eventSelect+` WHERE event.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oncallerr.New(oncallerr.NotFound, "event %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) EventByID(ctx context.Context, id int64) (*storage.Event, error) {
	return eventByID(ctx, s.pool, id)
}

func (s *Store) ListEvents(ctx context.Context, filter *storage.EventFilter, subs []storage.Subscription) ([]*storage.Event, error) {
	where, args := filter.Where(subs)
	return queryEvents(ctx, s.pool, eventSelect+` WHERE `+where+` ORDER BY event.start ASC`, args...)
}

func (s *Store) SubscriptionsOf(ctx context.Context, team string) ([]storage.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT sub.id, sub.name, role.id, role.name
        FROM team_subscription
        JOIN team ON team.id = team_subscription.team_id
        JOIN team sub ON sub.id = team_subscription.subscription_id
        JOIN role ON role.id = team_subscription.role_id
        WHERE team.name = $1
    `, team)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []storage.Subscription
	for rows.Next() {
		var sub storage.Subscription
		if err := rows.Scan(&sub.TeamID, &sub.Team, &sub.RoleID, &sub.Role); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) CurrentOncall(ctx context.Context, team, role string) ([]*storage.OncallShift, error) {
	now := time.Now().Unix()
	sql := eventSelect + `
        WHERE event.start <= $2 AND event."end" > $2
          AND (team.name = $1 OR (event.team_id, event.role_id) IN (
              SELECT ts.subscription_id, ts.role_id
              FROM team_subscription ts JOIN team t ON t.id = ts.team_id
              WHERE t.name = $1))`
	args := []any{team, now}
	if role != "" {
		sql += ` AND role.name = $3`
		args = append(args, role)
	}
	events, err := queryEvents(ctx, s.pool, sql, args...)
	if err != nil {
		return nil, err
	}
	return s.shiftsWithContacts(ctx, events)
}

func (s *Store) ServiceOncall(ctx context.Context, service, role string) ([]*storage.OncallShift, error) {
	now := time.Now().Unix()
	sql := eventSelect + `
        JOIN team_service ON team_service.team_id = event.team_id
        JOIN service ON service.id = team_service.service_id
        WHERE service.name = $1 AND event.start <= $2 AND event."end" > $2`
	args := []any{service, now}
	if role != "" {
		sql += ` AND role.name = $3`
		args = append(args, role)
	}
	events, err := queryEvents(ctx, s.pool, sql, args...)
	if err != nil {
		return nil, err
	}
	return s.shiftsWithContacts(ctx, events)
}

func (s *Store) shiftsWithContacts(ctx context.Context, events []*storage.Event) ([]*storage.OncallShift, error) {
	shifts := make([]*storage.OncallShift, 0, len(events))
	for _, e := range events {
		contacts, err := s.UserContacts(ctx, e.UserID)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, &storage.OncallShift{
			User:     e.User,
			FullName: e.FullName,
			Team:     e.Team,
			Role:     e.Role,
			Start:    e.Start,
			End:      e.End,
			Contacts: contacts,
		})
	}
	return shifts, nil
}

func (s *Store) EventsEndingAfter(ctx context.Context, principalType, principal string, cutoff int64, roles []string, includeSubscribed bool, excludedTeams []string) ([]*storage.Event, error) {
	args := []any{principal, cutoff}
	var where string
	switch principalType {
	case "user":
		where = `"user".name = $1 AND event."end" > $2`
	case "team":
		where = `team.name = $1 AND event."end" > $2`
		if includeSubscribed {
			where = `(team.name = $1 OR (event.team_id, event.role_id) IN (
                SELECT ts.subscription_id, ts.role_id
                FROM team_subscription ts JOIN team t ON t.id = ts.team_id
                WHERE t.name = $1)) AND event."end" > $2`
		}
	default:
		return nil, oncallerr.New(oncallerr.BadRequest, "invalid ical principal type: %s", principalType)
	}
	if len(roles) > 0 {
		where += fmt.Sprintf(` AND role.name = ANY($%d)`, len(args)+1)
		args = append(args, roles)
	}
	if len(excludedTeams) > 0 {
		where += fmt.Sprintf(` AND team.name != ALL($%d)`, len(args)+1)
		args = append(args, excludedTeams)
	}
	return queryEvents(ctx, s.pool, eventSelect+` WHERE `+where+` ORDER BY event.start ASC`, args...)
}

// --- storage.Tx event operations ---

// integrityLookup converts a NotFound from a name lookup into the Integrity
// kind mutations report when a referenced row does not exist.
func integrityLookup[T any](v *T, err error) (*T, error) {
	if err != nil && oncallerr.IsKind(err, oncallerr.NotFound) {
		var e *oncallerr.Error
		errors.As(err, &e)
		return nil, oncallerr.New(oncallerr.Integrity, "%s", e.Message)
	}
	return v, err
}

func (t *Tx) TeamByName(ctx context.Context, name string) (*storage.Team, error) {
	return integrityLookup(teamByName(ctx, t.tx, name))
}

func (t *Tx) RoleByName(ctx context.Context, name string) (*storage.Role, error) {
	return integrityLookup(roleByName(ctx, t.tx, name))
}

func (t *Tx) UserByName(ctx context.Context, name string) (*storage.User, error) {
	return integrityLookup(userByName(ctx, t.tx, name))
}

func (t *Tx) IsTeamMember(ctx context.Context, teamID, userID int64) (bool, error) {
	return isTeamMember(ctx, t.tx, teamID, userID)
}

func (t *Tx) EventByID(ctx context.Context, id int64) (*storage.Event, error) {
	return eventByID(ctx, t.tx, id)
}

func (t *Tx) EventsByLink(ctx context.Context, linkID string) ([]*storage.Event, error) {
	return queryEvents(ctx, t.tx, eventSelect+` WHERE event.link_id = $1 ORDER BY event.start ASC`, linkID)
}

func (t *Tx) EventsByIDs(ctx context.Context, ids []int64) ([]*storage.Event, error) {
	return queryEvents(ctx, t.tx, eventSelect+` WHERE event.id = ANY($1) ORDER BY event.start ASC`, ids)
}

func (t *Tx) InsertEvent(ctx context.Context, e *storage.Event) (int64, error) {
	return insertEventInto(ctx, t.tx, "event", e)
}

func (t *Tx) InsertEventInto(ctx context.Context, table string, e *storage.Event) (int64, error) {
	return insertEventInto(ctx, t.tx, table, e)
}

func insertEventInto(ctx context.Context, q querier, table string, e *storage.Event) (int64, error) {
	if table != "event" && !strings.HasPrefix(table, "temp_event_") {
		return 0, fmt.Errorf("refusing insert into table %q", table)
	}
	var id int64
	err := q.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (team_id, role_id, user_id, start, "end", schedule_id, link_id, note)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `, table), e.TeamID, e.RoleID, e.UserID, e.Start, e.End, e.ScheduleID, e.LinkID, e.Note).Scan(&id)
	return id, err
}

func buildEventUpdate(upd storage.EventUpdate, clearLink bool, nextArg int) (string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, nextArg))
		args = append(args, v)
		nextArg++
	}
	if upd.Start != nil {
		add("start", *upd.Start)
	}
	if upd.End != nil {
		add(`"end"`, *upd.End)
	}
	if upd.UserID != nil {
		add("user_id", *upd.UserID)
	}
	if upd.RoleID != nil {
		add("role_id", *upd.RoleID)
	}
	if upd.Note != nil {
		add("note", *upd.Note)
	}
	if clearLink {
		sets = append(sets, "link_id = NULL")
	}
	return strings.Join(sets, ", "), args
}

func (t *Tx) UpdateEvent(ctx context.Context, id int64, upd storage.EventUpdate, clearLink bool) error {
	sets, args := buildEventUpdate(upd, clearLink, 2)
	if sets == "" {
		return nil
	}
	tag, err := t.tx.Exec(ctx, `UPDATE event SET `+sets+` WHERE id = $1`, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return oncallerr.New(oncallerr.NotFound, "event %d not found", id)
	}
	return nil
}

func (t *Tx) UpdateLinkedEvents(ctx context.Context, linkID string, upd storage.EventUpdate, clearLink bool) error {
	sets, args := buildEventUpdate(upd, clearLink, 2)
	if sets == "" {
		return nil
	}
	_, err := t.tx.Exec(ctx, `UPDATE event SET `+sets+` WHERE link_id = $1`, append([]any{linkID}, args...)...)
	return err
}

func (t *Tx) SetEventUser(ctx context.Context, id, userID int64, clearLink bool) error {
	sql := `UPDATE event SET user_id = $2 WHERE id = $1`
	if clearLink {
		sql = `UPDATE event SET user_id = $2, link_id = NULL WHERE id = $1`
	}
	_, err := t.tx.Exec(ctx, sql, id, userID)
	return err
}

func (t *Tx) SetLinkUser(ctx context.Context, linkID string, userID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE event SET user_id = $2 WHERE link_id = $1`, linkID, userID)
	return err
}

func (t *Tx) SetEventBounds(ctx context.Context, id, start, end int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE event SET start = $2, "end" = $3 WHERE id = $1`, id, start, end)
	return err
}

func (t *Tx) DeleteEvent(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM event WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return oncallerr.New(oncallerr.NotFound, "event %d not found", id)
	}
	return nil
}

func (t *Tx) DeleteEventsByLink(ctx context.Context, linkID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM event WHERE link_id = $1`, linkID)
	return err
}
