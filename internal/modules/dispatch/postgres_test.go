// README: DB-backed tests for the postgres dispatch store (run with -race).
package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"taybat/internal/modules/order"
	"taybat/internal/types"
)

func TestPostgresStore_LockSerializesAccepts(t *testing.T) {
	ctx := context.Background()
	store, db := setupTestStore(t)

	orderID := seedDBOrder(t, db, "cust_pg")
	seedDBSuggestions(t, db, orderID, 4)

	const attempts = 4
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		driverID := types.ID(fmt.Sprintf("pgd%d", i))
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			errs <- store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx) error {
				o := tx.Order()
				if o.DriverID != nil {
					return ErrConflict
				}
				sug, err := tx.LiveSentSuggestion(ctx, did, time.Now())
				if err != nil {
					return err
				}
				if sug == nil {
					return ErrForbidden
				}
				if err := tx.AssignDriver(ctx, did); err != nil {
					return err
				}
				if err := tx.ResolveSuggestion(ctx, sug.ID, SuggestionAccepted, time.Now()); err != nil {
					return err
				}
				_, err = tx.ExpireOtherSent(ctx, sug.ID, time.Now())
				return err
			})
		}(driverID)
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if err != ErrConflict {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful accept, got %d", success)
	}

	var status string
	var driverID *string
	err := db.QueryRow(ctx, `SELECT status, driver_id FROM orders WHERE id = $1`, string(orderID)).
		Scan(&status, &driverID)
	if err != nil {
		t.Fatalf("read order: %v", err)
	}
	if status != string(order.StatusAccepted) || driverID == nil {
		t.Fatalf("unexpected final order: status=%s driver=%v", status, driverID)
	}

	var accepted, expired int
	err = db.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'accepted'),
			count(*) FILTER (WHERE status = 'expired')
		FROM order_driver_suggestions WHERE order_id = $1`, string(orderID)).
		Scan(&accepted, &expired)
	if err != nil {
		t.Fatalf("read suggestions: %v", err)
	}
	if accepted != 1 || expired != 3 {
		t.Fatalf("suggestions: accepted=%d expired=%d, want 1/3", accepted, expired)
	}
}

func TestPostgresStore_StateGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store, db := setupTestStore(t)
	orderID := seedDBOrder(t, db, "cust_state")

	err := store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx) error {
		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		if st.Cycle != 0 || !st.IsActive {
			t.Errorf("fresh state: %+v", st)
		}
		st.Cycle = 2
		retry := time.Now().Add(time.Minute)
		st.NextRetryAt = &retry
		return tx.SaveState(ctx, st)
	})
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	err = store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx) error {
		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		if st.Cycle != 2 || st.NextRetryAt == nil {
			t.Errorf("state not persisted: %+v", st)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}

	if err := store.WithOrderLock(ctx, "missing_order", func(ctx context.Context, tx Tx) error { return nil }); err != ErrNotFound {
		t.Errorf("missing order: got %v, want ErrNotFound", err)
	}
}

func setupTestStore(t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TAYBAT_TEST_DSN")
	if dsn == "" {
		t.Skip("TAYBAT_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	_, err = db.Exec(ctx, "TRUNCATE TABLE order_status_history, order_driver_suggestions, order_dispatch_states, orders, driver_profiles")
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewPostgresStore(db), db
}

func seedDBOrder(t *testing.T, db *pgxpool.Pool, customer types.ID) types.ID {
	t.Helper()
	id := order.NewID()
	_, err := db.Exec(context.Background(), `
		INSERT INTO orders (id, order_type, customer_id, status, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng)
		VALUES ($1, 'food', $2, $3, 33.3152, 44.3661, 33.2625, 44.4219)`,
		string(id), string(customer), string(order.StatusNotificationSent),
	)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return id
}

func seedDBSuggestions(t *testing.T, db *pgxpool.Pool, orderID types.ID, n int) {
	t.Helper()
	now := time.Now()
	for i := 0; i < n; i++ {
		_, err := db.Exec(context.Background(), `
			INSERT INTO order_driver_suggestions (order_id, driver_id, cycle, distance_km, status, notified_at, expires_at)
			VALUES ($1, $2, 1, 1.5, 'sent', $3, $4)`,
			string(orderID), fmt.Sprintf("pgd%d", i), now, now.Add(time.Minute),
		)
		if err != nil {
			t.Fatalf("seed suggestion: %v", err)
		}
	}
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}

	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
