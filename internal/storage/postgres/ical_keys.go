package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/oncall-sre/oncall/internal/oncallerr"
	"github.com/oncall-sre/oncall/internal/storage"
)

func (s *Store) CreateIcalKey(ctx context.Context, k *storage.IcalKey) error {
	// one key per (requester, name, type); regenerating replaces it
	_, err := s.pool.Exec(ctx, `
        INSERT INTO ical_key (key, requester, name, type, time_created)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (requester, name, type) DO UPDATE SET
            key = EXCLUDED.key, time_created = EXCLUDED.time_created
    `, k.Key, k.Requester, k.Name, k.Type, k.TimeCreated)
	return err
}

func (s *Store) IcalKey(ctx context.Context, key string) (*storage.IcalKey, error) {
	var k storage.IcalKey
	err := s.pool.QueryRow(ctx, `
        SELECT key, requester, name, type, time_created FROM ical_key WHERE key = $1
    `, key).Scan(&k.Key, &k.Requester, &k.Name, &k.Type, &k.TimeCreated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oncallerr.New(oncallerr.NotFound, "ical key not found")
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Store) IcalKeysByRequester(ctx context.Context, requester string) ([]*storage.IcalKey, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT key, requester, name, type, time_created FROM ical_key
        WHERE requester = $1 ORDER BY time_created DESC
    `, requester)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*storage.IcalKey
	for rows.Next() {
		var k storage.IcalKey
		if err := rows.Scan(&k.Key, &k.Requester, &k.Name, &k.Type, &k.TimeCreated); err != nil {
			return nil, err
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *Store) DeleteIcalKey(ctx context.Context, requester, key string) error {
	tag, err := s.pool.Exec(ctx, `
        DELETE FROM ical_key WHERE requester = $1 AND key = $2
    `, requester, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return oncallerr.New(oncallerr.NotFound, "ical key not found")
	}
	return nil
}
