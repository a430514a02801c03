package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

const scheduleSelect = `
    SELECT schedule.id, schedule.team_id, team.name, schedule.roster_id, roster.name,
           schedule.role_id, role.name, schedule.auto_populate_threshold,
           schedule.advanced_mode, team.scheduling_timezone, scheduler.name,
           schedule.last_epoch_scheduled, schedule.last_scheduled_user_id
    FROM schedule
    JOIN team ON team.id = schedule.team_id
    JOIN roster ON roster.id = schedule.roster_id
    JOIN role ON role.id = schedule.role_id
    JOIN scheduler ON scheduler.id = schedule.scheduler_id`

func (s *Store) scanSchedules(ctx context.Context, sql string, args ...any) ([]*storage.Schedule, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*storage.Schedule
	for rows.Next() {
		var sc storage.Schedule
		err := rows.Scan(&sc.ID, &sc.TeamID, &sc.Team, &sc.RosterID, &sc.Roster,
			&sc.RoleID, &sc.Role, &sc.AutoPopulateThreshold,
			&sc.AdvancedMode, &sc.Timezone, &sc.Scheduler.Name,
			&sc.LastEpochScheduled, &sc.LastScheduledUserID)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, &sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, sc := range schedules {
		if err := s.loadScheduleDetail(ctx, sc); err != nil {
			return nil, err
		}
	}
	return schedules, nil
}

func (s *Store) loadScheduleDetail(ctx context.Context, sc *storage.Schedule) error {
	rows, err := s.pool.Query(ctx, `
        SELECT start, duration FROM schedule_event
        WHERE schedule_id = $1 ORDER BY start ASC
    `, sc.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var ev storage.ScheduleEvent
		if err := rows.Scan(&ev.Start, &ev.Duration); err != nil {
			return err
		}
		sc.Events = append(sc.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	orderRows, err := s.pool.Query(ctx, `
        SELECT "user".name FROM schedule_order
        JOIN "user" ON "user".id = schedule_order.user_id
        WHERE schedule_order.schedule_id = $1
        ORDER BY schedule_order.priority ASC, schedule_order.user_id ASC
    `, sc.ID)
	if err != nil {
		return err
	}
	defer orderRows.Close()
	for orderRows.Next() {
		var name string
		if err := orderRows.Scan(&name); err != nil {
			return err
		}
		sc.Scheduler.Data = append(sc.Scheduler.Data, name)
	}
	return orderRows.Err()
}

func (s *Store) ListSchedules(ctx context.Context, team, roster string) ([]*storage.Schedule, error) {
	return s.scanSchedules(ctx, scheduleSelect+` WHERE team.name = $1 AND roster.name = $2 ORDER BY schedule.id ASC`, team, roster)
}

func (s *Store) ScheduleByID(ctx context.Context, id int64) (*storage.Schedule, error) {
	schedules, err := s.scanSchedules(ctx, scheduleSelect+` WHERE schedule.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, oncallerr.New(oncallerr.NotFound, "schedule %d not found", id)
	}
	return schedules[0], nil
}

func (s *Store) SchedulesForTeam(ctx context.Context, teamID int64) ([]*storage.Schedule, error) {
	return s.scanSchedules(ctx, scheduleSelect+` WHERE schedule.team_id = $1 ORDER BY schedule.id ASC`, teamID)
}

func (s *Store) ActiveTeams(ctx context.Context) ([]*storage.Team, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, name, active, scheduling_timezone, override_phone_number, description
        FROM team WHERE active ORDER BY id ASC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []*storage.Team
	for rows.Next() {
		var t storage.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Active, &t.SchedulingTimezone, &t.OverridePhone, &t.Description); err != nil {
			return nil, err
		}
		teams = append(teams, &t)
	}
	return teams, rows.Err()
}

func (s *Store) RosterInRotation(ctx context.Context, rosterID, teamID int64) ([]*storage.RosterMember, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT roster_user.user_id, "user".name, roster_user.in_rotation, roster_user.roster_priority
        FROM roster_user
        JOIN "user" ON "user".id = roster_user.user_id
        JOIN team_user ON team_user.user_id = roster_user.user_id AND team_user.team_id = $2
        WHERE roster_user.roster_id = $1 AND roster_user.in_rotation
        ORDER BY roster_user.roster_priority ASC, roster_user.user_id ASC
    `, rosterID, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*storage.RosterMember
	for rows.Next() {
		var m storage.RosterMember
		if err := rows.Scan(&m.UserID, &m.UserName, &m.InRotation, &m.Priority); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

func (s *Store) CreateSchedule(ctx context.Context, sc *storage.Schedule) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
        INSERT INTO schedule (team_id, roster_id, role_id, advanced_mode, auto_populate_threshold, scheduler_id)
        VALUES (
            (SELECT id FROM team WHERE name = $1),
            (SELECT roster.id FROM roster JOIN team ON team.id = roster.team_id
             WHERE roster.name = $2 AND team.name = $1),
            (SELECT id FROM role WHERE name = $3),
            $4, $5,
            (SELECT id FROM scheduler WHERE name = $6))
        RETURNING id
    `, sc.Team, sc.Roster, sc.Role, sc.AdvancedMode, sc.AutoPopulateThreshold, sc.Scheduler.Name).Scan(&id)
	if err != nil {
		return 0, scheduleInsertError(err, sc)
	}

	if err := replaceScheduleEvents(ctx, tx, id, sc.Events); err != nil {
		return 0, err
	}
	if sc.Scheduler.Name == "round-robin" {
		if err := replaceScheduleOrder(ctx, tx, id, sc.Scheduler.Data); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit(ctx)
}

func (s *Store) UpdateSchedule(ctx context.Context, id int64, sc *storage.Schedule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE schedule SET
            role_id = (SELECT id FROM role WHERE name = $2),
            advanced_mode = $3,
            auto_populate_threshold = $4,
            scheduler_id = (SELECT id FROM scheduler WHERE name = $5)
        WHERE id = $1
    `, id, sc.Role, sc.AdvancedMode, sc.AutoPopulateThreshold, sc.Scheduler.Name)
	if err != nil {
		return scheduleInsertError(err, sc)
	}
	if tag.RowsAffected() == 0 {
		return oncallerr.New(oncallerr.NotFound, "schedule %d not found", id)
	}

	if sc.Events != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM schedule_event WHERE schedule_id = $1`, id); err != nil {
			return err
		}
		if err := replaceScheduleEvents(ctx, tx, id, sc.Events); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM schedule_order WHERE schedule_id = $1`, id); err != nil {
		return err
	}
	if sc.Scheduler.Name == "round-robin" {
		if err := replaceScheduleOrder(ctx, tx, id, sc.Scheduler.Data); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) DeleteSchedule(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM schedule WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return oncallerr.New(oncallerr.NotFound, "schedule %d not found", id)
	}
	return nil
}

func replaceScheduleEvents(ctx context.Context, q querier, scheduleID int64, events []storage.ScheduleEvent) error {
	for _, ev := range storage.MergeScheduleEvents(events) {
		_, err := q.Exec(ctx, `
            INSERT INTO schedule_event (schedule_id, start, duration) VALUES ($1, $2, $3)
        `, scheduleID, ev.Start, ev.Duration)
		if err != nil {
			return err
		}
	}
	return nil
}

func replaceScheduleOrder(ctx context.Context, q querier, scheduleID int64, order []string) error {
	for i, name := range order {
		tag, err := q.Exec(ctx, `
            INSERT INTO schedule_order (schedule_id, user_id, priority)
            SELECT $1, id, $3 FROM "user" WHERE name = $2
        `, scheduleID, name, i)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return oncallerr.New(oncallerr.Integrity, "user %q not found", name)
		}
	}
	return nil
}

// scheduleInsertError maps null-subquery constraint failures to the name
// that failed to resolve.
func scheduleInsertError(err error, sc *storage.Schedule) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "team_id"):
		return oncallerr.New(oncallerr.Integrity, "team %q not found", sc.Team)
	case strings.Contains(msg, "roster_id"):
		return oncallerr.New(oncallerr.Integrity, "roster %q not found for team %q", sc.Roster, sc.Team)
	case strings.Contains(msg, "role_id"):
		return oncallerr.New(oncallerr.Integrity, "role %q not found", sc.Role)
	case strings.Contains(msg, "scheduler_id"):
		return oncallerr.New(oncallerr.Integrity, "scheduler %q not found", sc.Scheduler.Name)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return oncallerr.New(oncallerr.Integrity, "schedule references a missing row")
	}
	return err
}
