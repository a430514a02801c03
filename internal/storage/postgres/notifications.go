package postgres

import (
	"context"

	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

const settingSelect = `
    SELECT ns.id, ns.user_id, "user".name, ns.team_id, team.name,
           ns.mode_id, contact_mode.name, ns.type_id, notification_type.name,
           notification_type.is_reminder, ns.time_before, ns.only_if_involved
    FROM notification_setting ns
    JOIN "user" ON "user".id = ns.user_id
    JOIN team ON team.id = ns.team_id
    JOIN contact_mode ON contact_mode.id = ns.mode_id
    JOIN notification_type ON notification_type.id = ns.type_id`

func scanSettings(ctx context.Context, q querier, sql string, args ...any) ([]*storage.NotificationSetting, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []*storage.NotificationSetting
	for rows.Next() {
		var ns storage.NotificationSetting
		err := rows.Scan(&ns.ID, &ns.UserID, &ns.User, &ns.TeamID, &ns.Team,
			&ns.ModeID, &ns.Mode, &ns.TypeID, &ns.Type,
			&ns.IsReminder, &ns.TimeBefore, &ns.OnlyIfInvolved)
		if err != nil {
			return nil, err
		}
		settings = append(settings, &ns)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ns := range settings {
		roleRows, err := q.Query(ctx, `
            SELECT role.name FROM setting_role
            JOIN role ON role.id = setting_role.role_id
            WHERE setting_role.setting_id = $1
        `, ns.ID)
		if err != nil {
			return nil, err
		}
		for roleRows.Next() {
			var name string
			if err := roleRows.Scan(&name); err != nil {
				roleRows.Close()
				return nil, err
			}
			ns.Roles = append(ns.Roles, name)
		}
		roleRows.Close()
		if err := roleRows.Err(); err != nil {
			return nil, err
		}
	}
	return settings, nil
}

func (s *Store) SettingsForUser(ctx context.Context, user string) ([]*storage.NotificationSetting, error) {
	return scanSettings(ctx, s.pool, settingSelect+` WHERE "user".name = $1 ORDER BY ns.id ASC`, user)
}

// SettingsForTeam lists every matching setting on the team, not just the
// affected users': whether an uninvolved subscriber hears about a change
// is decided by their only_if_involved flag, in the sink.
func (t *Tx) SettingsForTeam(ctx context.Context, teamID int64, typeName string, roles []string) ([]*storage.NotificationSetting, error) {
	return scanSettings(ctx, t.tx, settingSelect+`
        WHERE ns.team_id = $1 AND notification_type.name = $2
          AND EXISTS (
              SELECT 1 FROM setting_role sr JOIN role r ON r.id = sr.role_id
              WHERE sr.setting_id = ns.id AND r.name = ANY($3))
        ORDER BY ns.id ASC`, teamID, typeName, roles)
}

func (s *Store) CreateSetting(ctx context.Context, ns *storage.NotificationSetting) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
        INSERT INTO notification_setting (user_id, team_id, mode_id, type_id, time_before, only_if_involved)
        VALUES (
            (SELECT id FROM "user" WHERE name = $1),
            (SELECT id FROM team WHERE name = $2),
            (SELECT id FROM contact_mode WHERE name = $3),
            (SELECT id FROM notification_type WHERE name = $4),
            $5, $6)
        RETURNING id
    `, ns.User, ns.Team, ns.Mode, ns.Type, ns.TimeBefore, ns.OnlyIfInvolved).Scan(&id)
	if err != nil {
		return 0, oncallerr.Wrap(oncallerr.Integrity, err, "notification setting insert failed")
	}

	for _, role := range ns.Roles {
		tag, err := tx.Exec(ctx, `
            INSERT INTO setting_role (setting_id, role_id)
            SELECT $1, id FROM role WHERE name = $2
        `, id, role)
		if err != nil {
			return 0, err
		}
		if tag.RowsAffected() == 0 {
			return 0, oncallerr.New(oncallerr.Integrity, "role %q not found", role)
		}
	}
	return id, tx.Commit(ctx)
}

func (s *Store) UpdateSetting(ctx context.Context, id int64, ns *storage.NotificationSetting) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE notification_setting SET
            mode_id = (SELECT id FROM contact_mode WHERE name = $2),
            type_id = (SELECT id FROM notification_type WHERE name = $3),
            time_before = $4,
            only_if_involved = $5
        WHERE id = $1
    `, id, ns.Mode, ns.Type, ns.TimeBefore, ns.OnlyIfInvolved)
	if err != nil {
		return oncallerr.Wrap(oncallerr.Integrity, err, "notification setting update failed")
	}
	if tag.RowsAffected() == 0 {
		return oncallerr.New(oncallerr.NotFound, "notification setting %d not found", id)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM setting_role WHERE setting_id = $1`, id); err != nil {
		return err
	}
	for _, role := range ns.Roles {
		tag, err := tx.Exec(ctx, `
            INSERT INTO setting_role (setting_id, role_id)
            SELECT $1, id FROM role WHERE name = $2
        `, id, role)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return oncallerr.New(oncallerr.Integrity, "role %q not found", role)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) DeleteSetting(ctx context.Context, user string, id int64) error {
	tag, err := s.pool.Exec(ctx, `
        DELETE FROM notification_setting
        WHERE id = $1 AND user_id = (SELECT id FROM "user" WHERE name = $2)
    `, id, user)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return oncallerr.New(oncallerr.NotFound, "notification setting %d not found", id)
	}
	return nil
}

const queueSelect = `
    SELECT nq.id, "user".name, contact_mode.name, nq.send_time, "user".time_zone,
           notification_type.subject, notification_type.body, nq.context
    FROM notification_queue nq
    JOIN "user" ON "user".id = nq.user_id
    JOIN contact_mode ON contact_mode.id = nq.mode_id
    JOIN notification_type ON notification_type.id = nq.type_id`

func (s *Store) scanQueue(ctx context.Context, sql string, args ...any) ([]*storage.QueuedMessage, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*storage.QueuedMessage
	for rows.Next() {
		var m storage.QueuedMessage
		err := rows.Scan(&m.ID, &m.User, &m.Mode, &m.SendTime, &m.TimeZone,
			&m.Subject, &m.Body, &m.Context)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (s *Store) SearchQueue(ctx context.Context, user string, from, until int64) ([]*storage.QueuedMessage, error) {
	sql := queueSelect + ` WHERE nq.send_time >= $1 AND nq.send_time <= $2`
	args := []any{from, until}
	if user != "" {
		sql += ` AND "user".name = $3`
		args = append(args, user)
	}
	return s.scanQueue(ctx, sql+` ORDER BY nq.send_time ASC`, args...)
}

func (s *Store) PollDue(ctx context.Context, now int64) ([]*storage.QueuedMessage, error) {
	return s.scanQueue(ctx, queueSelect+` WHERE nq.active AND nq.send_time <= $1`, now)
}

func (s *Store) MarkSent(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE notification_queue SET active = false, sent = true WHERE id = $1
    `, id)
	return err
}

func (s *Store) MarkUnsent(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE notification_queue SET active = false, sent = false WHERE id = $1
    `, id)
	return err
}

// UsersWithoutCallContact lists active users who hold future events but have
// no call destination on file.
func (s *Store) UsersWithoutCallContact(ctx context.Context, now int64) ([]*storage.User, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT DISTINCT "user".id, "user".name, "user".full_name, "user".time_zone,
                        "user".photo_url, "user".active, "user".god
        FROM "user"
        JOIN event ON event.user_id = "user".id AND event.start > $1
        WHERE "user".active AND NOT EXISTS (
            SELECT 1 FROM user_contact
            JOIN contact_mode ON contact_mode.id = user_contact.mode_id
            WHERE user_contact.user_id = "user".id AND contact_mode.name = 'call')
        ORDER BY "user".id ASC
    `, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*storage.User
	for rows.Next() {
		var u storage.User
		if err := rows.Scan(&u.ID, &u.Name, &u.FullName, &u.TimeZone, &u.PhotoURL, &u.Active, &u.God); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *Store) Enqueue(ctx context.Context, n *storage.QueuedNotification) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO notification_queue (user_id, mode_id, type_id, send_time, context, active, sent)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, n.UserID, n.ModeID, n.TypeID, n.SendTime, n.Context, n.Active, n.Sent)
	return err
}

// ReminderSettings lists a user's reminder-type settings matching the shift's
// team and role, for the sweeper.
func (s *Store) ReminderSettings(ctx context.Context, teamID, userID int64, role string) ([]*storage.NotificationSetting, error) {
	return scanSettings(ctx, s.pool, settingSelect+`
        WHERE ns.team_id = $1 AND ns.user_id = $2 AND notification_type.is_reminder
          AND EXISTS (
              SELECT 1 FROM setting_role sr JOIN role r ON r.id = sr.role_id
              WHERE sr.setting_id = ns.id AND r.name = $3)
        ORDER BY ns.id ASC`, teamID, userID, role)
}

// ReminderExists reports whether an identical reminder is already queued,
// making sweeper enqueues idempotent.
func (s *Store) ReminderExists(ctx context.Context, userID, typeID, sendTime int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM notification_queue
            WHERE user_id = $1 AND type_id = $2 AND send_time = $3)
    `, userID, typeID, sendTime).Scan(&exists)
	return exists, err
}

// UpcomingReminderShifts lists events starting within the horizon, used by
// the reminder sweeper. Duplicate enqueues are avoided by checking the
// existing queue rows for the same user, type and send time.
func (s *Store) UpcomingReminderShifts(ctx context.Context, now, horizon int64) ([]*storage.Event, error) {
	return queryEvents(ctx, s.pool, eventSelect+`
        WHERE event.start > $1 AND event.start <= $2
        ORDER BY event.start ASC`, now, now+horizon)
}

func (t *Tx) EnqueueNotification(ctx context.Context, n *storage.QueuedNotification) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO notification_queue (user_id, mode_id, type_id, send_time, context, active, sent)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, n.UserID, n.ModeID, n.TypeID, n.SendTime, n.Context, n.Active, n.Sent)
	return err
}

func (t *Tx) InsertAudit(ctx context.Context, a *storage.AuditEntry) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO audit_log (team_name, owner_name, action_name, "timestamp", context)
        VALUES ($1, $2, $3, $4, $5)
    `, a.TeamName, a.Owner, a.Action, a.Timestamp, a.Context)
	return err
}
