// README: Dispatch store backed by PostgreSQL. WithOrderLock maps to a
// transaction holding FOR UPDATE row locks on the order and its dispatch
// state, which is what serializes the loop, the expiry worker, and driver
// responses against each other.
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taybat/internal/modules/order"
	"taybat/internal/types"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithOrderLock(ctx context.Context, orderID types.ID, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT `+order.Columns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE`, string(orderID),
	)
	o, err := order.ScanRow(row)
	if errors.Is(err, order.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := fn(ctx, &pgTx{tx: tx, order: o}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListDispatchable(ctx context.Context) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id
		FROM orders
		WHERE driver_id IS NULL
		  AND status IN ($1, $2)
		ORDER BY created_at`,
		string(order.StatusSearching), string(order.StatusNotificationSent),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func (s *PostgresStore) ListOffers(ctx context.Context, driverID types.ID, now time.Time) ([]Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.distance_km, s.expires_at,
		       o.id, o.order_type, o.customer_id, o.driver_id, o.status,
		       o.pickup_lat, o.pickup_lng, o.dropoff_lat, o.dropoff_lng,
		       o.requested_vehicle_type, o.distance_km, o.created_at
		FROM order_driver_suggestions s
		JOIN orders o ON o.id = s.order_id
		WHERE s.driver_id = $1
		  AND s.status = $2
		  AND s.expires_at > $3
		  AND o.driver_id IS NULL
		  AND o.status IN ($4, $5)
		ORDER BY o.created_at DESC`,
		string(driverID), string(SuggestionSent), now,
		string(order.StatusSearching), string(order.StatusNotificationSent),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		var (
			of       Offer
			o        order.Order
			drv, veh sql.NullString
			dist     sql.NullFloat64
		)
		err := rows.Scan(
			&of.DistanceKm, &of.ExpiresAt,
			&o.ID, &o.Type, &o.CustomerID, &drv, &o.Status,
			&o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng,
			&veh, &dist, &o.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if veh.Valid {
			v := order.VehicleType(veh.String)
			o.RequestedVehicle = &v
		}
		if dist.Valid {
			d := dist.Float64
			o.DistanceKm = &d
		}
		of.Order = &o
		offers = append(offers, of)
	}
	return offers, rows.Err()
}

// pgTx carries the open transaction plus the order row locked at the start of
// the critical section. Status and driver mutations are mirrored onto the
// in-memory row so later reads inside the same section see them.
type pgTx struct {
	tx    pgx.Tx
	order *order.Order
}

func (t *pgTx) Order() *order.Order { return t.order }

func (t *pgTx) State(ctx context.Context) (*State, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_dispatch_states (order_id, cycle, is_active, updated_at)
		VALUES ($1, 0, TRUE, now())
		ON CONFLICT (order_id) DO NOTHING`,
		string(t.order.ID),
	)
	if err != nil {
		return nil, err
	}

	row := t.tx.QueryRow(ctx, `
		SELECT order_id, cycle, is_active, last_dispatched_at, next_retry_at, updated_at
		FROM order_dispatch_states
		WHERE order_id = $1
		FOR UPDATE`, string(t.order.ID),
	)

	var st State
	err = row.Scan(&st.OrderID, &st.Cycle, &st.IsActive, &st.LastDispatchedAt, &st.NextRetryAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (t *pgTx) SaveState(ctx context.Context, st *State) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE order_dispatch_states
		SET cycle = $2,
		    is_active = $3,
		    last_dispatched_at = $4,
		    next_retry_at = $5,
		    updated_at = now()
		WHERE order_id = $1`,
		string(st.OrderID), st.Cycle, st.IsActive, st.LastDispatchedAt, st.NextRetryAt,
	)
	return err
}

func (t *pgTx) SetOrderStatus(ctx context.Context, to order.Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`,
		string(t.order.ID), string(to),
	)
	if err != nil {
		return err
	}
	t.order.Status = to
	return t.appendHistory(ctx, to)
}

func (t *pgTx) AssignDriver(ctx context.Context, driverID types.ID) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE orders SET driver_id = $2, status = $3 WHERE id = $1`,
		string(t.order.ID), string(driverID), string(order.StatusAccepted),
	)
	if err != nil {
		return err
	}
	d := driverID
	t.order.DriverID = &d
	t.order.Status = order.StatusAccepted
	return t.appendHistory(ctx, order.StatusAccepted)
}

func (t *pgTx) appendHistory(ctx context.Context, status order.Status) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, at)
		VALUES ($1, $2, now())`,
		string(t.order.ID), string(status),
	)
	return err
}

func (t *pgTx) SuggestedDriverIDs(ctx context.Context) ([]types.ID, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT DISTINCT driver_id
		FROM order_driver_suggestions
		WHERE order_id = $1`, string(t.order.ID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func (t *pgTx) LiveSentExists(ctx context.Context, now time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM order_driver_suggestions
			WHERE order_id = $1 AND status = $2 AND expires_at > $3
		)`,
		string(t.order.ID), string(SuggestionSent), now,
	).Scan(&exists)
	return exists, err
}

func (t *pgTx) SentSuggestion(ctx context.Context, driverID types.ID) (*Suggestion, error) {
	return t.sentSuggestion(ctx, `
		SELECT id, order_id, driver_id, cycle, distance_km, status, notified_at, expires_at, responded_at
		FROM order_driver_suggestions
		WHERE order_id = $1 AND driver_id = $2 AND status = $3
		ORDER BY id DESC
		LIMIT 1`,
		string(t.order.ID), string(driverID), string(SuggestionSent),
	)
}

func (t *pgTx) LiveSentSuggestion(ctx context.Context, driverID types.ID, now time.Time) (*Suggestion, error) {
	return t.sentSuggestion(ctx, `
		SELECT id, order_id, driver_id, cycle, distance_km, status, notified_at, expires_at, responded_at
		FROM order_driver_suggestions
		WHERE order_id = $1 AND driver_id = $2 AND status = $3 AND expires_at > $4
		ORDER BY id DESC
		LIMIT 1`,
		string(t.order.ID), string(driverID), string(SuggestionSent), now,
	)
}

func (t *pgTx) sentSuggestion(ctx context.Context, query string, args ...any) (*Suggestion, error) {
	var sug Suggestion
	err := t.tx.QueryRow(ctx, query, args...).Scan(
		&sug.ID, &sug.OrderID, &sug.DriverID, &sug.Cycle, &sug.DistanceKm,
		&sug.Status, &sug.NotifiedAt, &sug.ExpiresAt, &sug.RespondedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sug, nil
}

func (t *pgTx) InsertSuggestions(ctx context.Context, suggestions []*Suggestion) error {
	for _, sug := range suggestions {
		err := t.tx.QueryRow(ctx, `
			INSERT INTO order_driver_suggestions
				(order_id, driver_id, cycle, distance_km, status, notified_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			string(sug.OrderID), string(sug.DriverID), sug.Cycle, sug.DistanceKm,
			string(sug.Status), sug.NotifiedAt, sug.ExpiresAt,
		).Scan(&sug.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) ResolveSuggestion(ctx context.Context, id int64, status SuggestionStatus, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE order_driver_suggestions
		SET status = $2, responded_at = $3
		WHERE id = $1 AND status = $4`,
		id, string(status), at, string(SuggestionSent),
	)
	return err
}

func (t *pgTx) ExpireCycleSent(ctx context.Context, cycle int, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE order_driver_suggestions
		SET status = $3, responded_at = $4
		WHERE order_id = $1 AND cycle = $2 AND status = $5`,
		string(t.order.ID), cycle, string(SuggestionExpired), at, string(SuggestionSent),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) ExpireOtherSent(ctx context.Context, keepID int64, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE order_driver_suggestions
		SET status = $3, responded_at = $4
		WHERE order_id = $1 AND id <> $2 AND status = $5`,
		string(t.order.ID), keepID, string(SuggestionExpired), at, string(SuggestionSent),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
