package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

func teamByName(ctx context.Context, q querier, name string) (*storage.Team, error) {
	var t storage.Team
	err := q.QueryRow(ctx, `
        SELECT id, name, active, scheduling_timezone, override_phone_number, description
        FROM team WHERE name = $1
    `, name).Scan(&t.ID, &t.Name, &t.Active, &t.SchedulingTimezone, &t.OverridePhone, &t.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oncallerr.New(oncallerr.NotFound, "team %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func userByName(ctx context.Context, q querier, name string) (*storage.User, error) {
	var u storage.User
	err := q.QueryRow(ctx, `
        SELECT id, name, full_name, time_zone, photo_url, active, god
        FROM "user" WHERE name = $1
    `, name).Scan(&u.ID, &u.Name, &u.FullName, &u.TimeZone, &u.PhotoURL, &u.Active, &u.God)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oncallerr.New(oncallerr.NotFound, "user %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func roleByName(ctx context.Context, q querier, name string) (*storage.Role, error) {
	var r storage.Role
	err := q.QueryRow(ctx, `SELECT id, name FROM role WHERE name = $1`, name).Scan(&r.ID, &r.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oncallerr.New(oncallerr.NotFound, "role %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func isTeamMember(ctx context.Context, q querier, teamID, userID int64) (bool, error) {
	var n int
	err := q.QueryRow(ctx, `
        SELECT count(*) FROM team_user WHERE team_id = $1 AND user_id = $2
    `, teamID, userID).Scan(&n)
	return n > 0, err
}

func (s *Store) TeamByName(ctx context.Context, name string) (*storage.Team, error) {
	return teamByName(ctx, s.pool, name)
}

func (s *Store) UserByName(ctx context.Context, name string) (*storage.User, error) {
	return userByName(ctx, s.pool, name)
}

func (s *Store) IsTeamAdmin(ctx context.Context, team, user string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
        SELECT count(*) FROM team_admin
        JOIN team ON team.id = team_admin.team_id
        JOIN "user" ON "user".id = team_admin.user_id
        WHERE team.name = $1 AND "user".name = $2
    `, team, user).Scan(&n)
	return n > 0, err
}

func (s *Store) IsTeamMemberByName(ctx context.Context, team, user string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
        SELECT count(*) FROM team_user
        JOIN team ON team.id = team_user.team_id
        JOIN "user" ON "user".id = team_user.user_id
        WHERE team.name = $1 AND "user".name = $2
    `, team, user).Scan(&n)
	return n > 0, err
}

func (s *Store) IsTeamMemberByTeamID(ctx context.Context, teamID int64, user string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
        SELECT count(*) FROM team_user
        JOIN "user" ON "user".id = team_user.user_id
        WHERE team_user.team_id = $1 AND "user".name = $2
    `, teamID, user).Scan(&n)
	return n > 0, err
}

// SharesAdminedTeam reports whether challenger admins any team that target
// belongs to.
func (s *Store) SharesAdminedTeam(ctx context.Context, challenger, target string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
        SELECT count(*) FROM team_admin
        JOIN "user" admin ON admin.id = team_admin.user_id
        JOIN team_user ON team_user.team_id = team_admin.team_id
        JOIN "user" member ON member.id = team_user.user_id
        WHERE admin.name = $1 AND member.name = $2
    `, challenger, target).Scan(&n)
	return n > 0, err
}

func (s *Store) ApplicationKey(ctx context.Context, name string) (string, error) {
	var key string
	err := s.pool.QueryRow(ctx, `SELECT key FROM application WHERE name = $1`, name).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oncallerr.New(oncallerr.NotFound, "application %q not found", name)
	}
	return key, err
}

func (s *Store) Session(ctx context.Context, id int64) (*storage.Session, error) {
	var sess storage.Session
	err := s.pool.QueryRow(ctx, `
        SELECT id, user_name, csrf_token FROM session WHERE id = $1
    `, id).Scan(&sess.ID, &sess.UserName, &sess.CSRFToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oncallerr.New(oncallerr.Unauthorized, "invalid session")
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) CreateSession(ctx context.Context, userName string) (*storage.Session, error) {
	csrf := randToken(32)
	var id int64
	err := s.pool.QueryRow(ctx, `
        INSERT INTO session (user_name, csrf_token) VALUES ($1, $2) RETURNING id
    `, userName, csrf).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &storage.Session{ID: id, UserName: userName, CSRFToken: csrf}, nil
}

func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM session WHERE id = $1`, id)
	return err
}

// ContactByUserName resolves one contact destination, used by messengers
// that need a per-platform handle rather than an email address.
func (s *Store) ContactByUserName(ctx context.Context, user, mode string) (string, error) {
	var dest string
	err := s.pool.QueryRow(ctx, `
        SELECT user_contact.destination FROM user_contact
        JOIN "user" ON "user".id = user_contact.user_id
        JOIN contact_mode ON contact_mode.id = user_contact.mode_id
        WHERE "user".name = $1 AND contact_mode.name = $2
    `, user, mode).Scan(&dest)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oncallerr.New(oncallerr.NotFound, "no %s contact for user %q", mode, user)
	}
	return dest, err
}

func (s *Store) UserContacts(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT contact_mode.name, user_contact.destination
        FROM user_contact JOIN contact_mode ON contact_mode.id = user_contact.mode_id
        WHERE user_contact.user_id = $1
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make(map[string]string)
	for rows.Next() {
		var mode, dest string
		if err := rows.Scan(&mode, &dest); err != nil {
			return nil, err
		}
		contacts[mode] = dest
	}
	return contacts, rows.Err()
}
