// README: Driver profile store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taybat/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `id, status, vehicle_type, accepts_food, accepts_parcel, accepts_ride, is_online, created_at`

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM driver_profiles
		WHERE id = $1`, string(id),
	)
	var p Profile
	err := row.Scan(
		&p.ID, &p.Status, &p.VehicleType,
		&p.AcceptsFood, &p.AcceptsParcel, &p.AcceptsRide,
		&p.Online, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) SetOnline(ctx context.Context, id types.ID, online bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_profiles SET is_online = $1 WHERE id = $2`,
		online, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListApprovedOnline returns every driver the selector may consider before
// location freshness is applied.
func (s *PostgresStore) ListApprovedOnline(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+profileColumns+`
		FROM driver_profiles
		WHERE status = 'approved' AND is_online`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(
			&p.ID, &p.Status, &p.VehicleType,
			&p.AcceptsFood, &p.AcceptsParcel, &p.AcceptsRide,
			&p.Online, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
