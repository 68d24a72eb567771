// README: Order store backed by PostgreSQL.
package order

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taybat/internal/types"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, o *Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (
			id, order_type, customer_id, driver_id, status,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			requested_vehicle_type, distance_km, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(o.ID),
		string(o.Type),
		string(o.CustomerID),
		idPtr(o.DriverID),
		string(o.Status),
		o.Pickup.Lat, o.Pickup.Lng,
		o.Dropoff.Lat, o.Dropoff.Lng,
		vehiclePtr(o.RequestedVehicle),
		o.DistanceKm,
		o.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+Columns+`
		FROM orders
		WHERE id = $1`, string(id),
	)
	return ScanRow(row)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, driverID *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    driver_id = COALESCE($2, driver_id)
		WHERE id = $3 AND status = $4`,
		string(to),
		idPtr(driverID),
		string(id),
		string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, h *StatusHistory) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, at)
		VALUES ($1, $2, $3)`,
		string(h.OrderID), string(h.Status), h.At,
	)
	return err
}

// Columns is the select list ScanRow expects. Stores that read orders inside
// their own transactions share it so the two never drift.
const Columns = `id, order_type, customer_id, driver_id, status,
       pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
       requested_vehicle_type, distance_km, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// ScanRow decodes one orders row selected with Columns.
func ScanRow(row rowScanner) (*Order, error) {
	var o Order
	var driverID, vehicle sql.NullString
	var distance sql.NullFloat64

	err := row.Scan(
		&o.ID, &o.Type, &o.CustomerID, &driverID, &o.Status,
		&o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng,
		&vehicle, &distance, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		d := types.ID(driverID.String)
		o.DriverID = &d
	}
	if vehicle.Valid {
		v := VehicleType(vehicle.String)
		o.RequestedVehicle = &v
	}
	if distance.Valid {
		d := distance.Float64
		o.DistanceKm = &d
	}
	return &o, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func vehiclePtr(v *VehicleType) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
