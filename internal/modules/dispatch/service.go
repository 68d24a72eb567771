// README: Dispatch service: the broadcast loop, offer expiry, and the
// driver accept/reject handlers. All of them serialize on the per-order lock.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"taybat/internal/config"
	"taybat/internal/modules/driver"
	"taybat/internal/modules/order"
	"taybat/internal/notify"
	"taybat/internal/observability"
	"taybat/internal/types"
)

// ProfileDirectory is the read side of the driver module needed to validate
// accept calls.
type ProfileDirectory interface {
	Get(ctx context.Context, id types.ID) (*driver.Profile, error)
}

type Service struct {
	store    Store
	selector *Selector
	profiles ProfileDirectory
	notifier notify.Sender
	sched    Scheduler
	cfg      config.DispatchConfig
	log      *slog.Logger
}

func NewService(
	store Store,
	selector *Selector,
	profiles ProfileDirectory,
	notifier notify.Sender,
	sched Scheduler,
	cfg config.DispatchConfig,
	log *slog.Logger,
) *Service {
	return &Service{
		store:    store,
		selector: selector,
		profiles: profiles,
		notifier: notifier,
		sched:    sched,
		cfg:      cfg,
		log:      log,
	}
}

// RunLoop drives the matching protocol until ctx is cancelled.
func (s *Service) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.log.Error("dispatch tick", "error", err)
			}
		}
	}
}

// Tick advances every unassigned, in-progress order one step through the
// protocol. Per-order failures are logged and do not stop the pass.
func (s *Service) Tick(ctx context.Context) error {
	ids, err := s.store.ListDispatchable(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.dispatchOrder(ctx, id); err != nil {
			s.log.Error("dispatch order", "order_id", id, "error", err)
		}
	}
	return nil
}

// dispatchOrder runs one protocol step for one order: skip, give up, defer,
// or broadcast a new cycle. Expiry scheduling and driver notification happen
// after the critical section commits.
func (s *Service) dispatchOrder(ctx context.Context, orderID types.ID) error {
	var (
		notified []types.ID
		cycle    int
	)

	err := s.store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx) error {
		now := time.Now()
		o := tx.Order()
		if o.DriverID != nil || !order.Dispatchable(o.Status) {
			return nil
		}

		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		if !st.IsActive {
			return nil
		}
		if st.NextRetryAt != nil && st.NextRetryAt.After(now) {
			return nil
		}

		// A cycle already in flight means nothing to do: no double-broadcast.
		live, err := tx.LiveSentExists(ctx, now)
		if err != nil {
			return err
		}
		if live {
			return nil
		}

		if st.Cycle >= s.cfg.MaxCycles {
			st.IsActive = false
			if err := tx.SaveState(ctx, st); err != nil {
				return err
			}
			observability.DispatchExhaustedTotal.Inc()
			s.log.Warn("dispatch gave up", "order_id", o.ID, "cycles", st.Cycle)
			return nil
		}

		offered, err := tx.SuggestedDriverIDs(ctx)
		if err != nil {
			return err
		}
		excluded := make(map[types.ID]bool, len(offered))
		for _, id := range offered {
			excluded[id] = true
		}

		candidates, err := s.selector.SelectCandidates(ctx, o, excluded)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			// Supply shortage: defer without burning a cycle.
			retry := now.Add(s.cfg.RetryDelay)
			st.NextRetryAt = &retry
			return tx.SaveState(ctx, st)
		}

		if len(candidates) > s.cfg.SuggestionLimit {
			candidates = candidates[:s.cfg.SuggestionLimit]
		}

		st.Cycle++
		expires := now.Add(s.cfg.AcceptanceWindow)
		batch := make([]*Suggestion, len(candidates))
		for i, c := range candidates {
			batch[i] = &Suggestion{
				OrderID:    o.ID,
				DriverID:   c.DriverID,
				Cycle:      st.Cycle,
				DistanceKm: c.DistanceKm,
				Status:     SuggestionSent,
				NotifiedAt: now,
				ExpiresAt:  expires,
			}
		}
		if err := tx.InsertSuggestions(ctx, batch); err != nil {
			return err
		}

		st.LastDispatchedAt = &now
		retry := now.Add(s.cfg.RetryDelay)
		st.NextRetryAt = &retry
		if err := tx.SaveState(ctx, st); err != nil {
			return err
		}

		if o.Status != order.StatusNotificationSent {
			if err := tx.SetOrderStatus(ctx, order.StatusNotificationSent); err != nil {
				return err
			}
		}

		cycle = st.Cycle
		for _, c := range candidates {
			notified = append(notified, c.DriverID)
		}
		return nil
	})
	if err != nil || len(notified) == 0 {
		return err
	}

	s.scheduleExpiry(orderID, cycle)
	if _, err := s.notifier.DispatchOffer(ctx, orderID, notified); err != nil {
		// Fire-and-forget: the broadcast stands even if the push fails.
		s.log.Error("notify drivers", "order_id", orderID, "error", err)
	}

	observability.BroadcastCyclesTotal.Inc()
	observability.SuggestionsSentTotal.Add(float64(len(notified)))
	s.log.Info("broadcast cycle", "order_id", orderID, "cycle", cycle, "drivers", len(notified))
	return nil
}

func (s *Service) scheduleExpiry(orderID types.ID, cycle int) {
	s.sched.After(s.cfg.AcceptanceWindow, func() {
		if err := s.ExpireCycle(context.Background(), orderID, cycle); err != nil {
			s.log.Error("expire cycle", "order_id", orderID, "cycle", cycle, "error", err)
		}
	})
}

// ExpireCycle closes out one broadcast cycle after its acceptance window.
// Late or duplicate firings no-op via the cycle check; an already-matched
// order is left alone.
func (s *Service) ExpireCycle(ctx context.Context, orderID types.ID, cycle int) error {
	var expired int64

	err := s.store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx) error {
		now := time.Now()
		o := tx.Order()
		if o.DriverID != nil {
			return nil
		}

		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		if st.Cycle != cycle {
			// A newer cycle superseded this timer.
			return nil
		}

		n, err := tx.ExpireCycleSent(ctx, cycle, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		expired = n

		if o.Status == order.StatusNotificationSent {
			if err := tx.SetOrderStatus(ctx, order.StatusSearching); err != nil {
				return err
			}
		}

		// Retry immediately on the loop's next pass.
		st.NextRetryAt = &now
		return tx.SaveState(ctx, st)
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if expired > 0 {
		observability.OffersExpiredTotal.Add(float64(expired))
		s.log.Info("cycle expired", "order_id", orderID, "cycle", cycle, "offers", expired)
	}
	return nil
}

type AcceptCommand struct {
	OrderID  types.ID
	DriverID types.ID
}

type RejectCommand struct {
	OrderID  types.ID
	DriverID types.ID
}

// Accept claims an order for a driver. Races against the loop, the expiry
// worker, and other drivers are settled by the order lock: exactly one
// accept can win.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) error {
	err := s.store.WithOrderLock(ctx, cmd.OrderID, func(ctx context.Context, tx Tx) error {
		now := time.Now()
		o := tx.Order()

		if o.DriverID != nil && *o.DriverID != cmd.DriverID {
			return ErrConflict
		}
		if !order.Dispatchable(o.Status) {
			return ErrNotFound
		}
		if o.CustomerID == cmd.DriverID {
			return ErrForbidden
		}

		p, err := s.profiles.Get(ctx, cmd.DriverID)
		if err != nil {
			if errors.Is(err, driver.ErrNotFound) {
				return ErrForbidden
			}
			return err
		}
		if !p.Approved() {
			return ErrForbidden
		}
		if !IsEligible(*p, o) {
			return ErrForbidden
		}

		sug, err := tx.LiveSentSuggestion(ctx, cmd.DriverID, now)
		if err != nil {
			return err
		}
		if sug == nil {
			// No live offer: the driver was never asked, or asked too long ago.
			return ErrForbidden
		}

		if err := tx.AssignDriver(ctx, cmd.DriverID); err != nil {
			return err
		}
		if err := tx.ResolveSuggestion(ctx, sug.ID, SuggestionAccepted, now); err != nil {
			return err
		}
		if _, err := tx.ExpireOtherSent(ctx, sug.ID, now); err != nil {
			return err
		}

		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		st.IsActive = false
		return tx.SaveState(ctx, st)
	})
	if err != nil {
		return err
	}

	observability.OffersAcceptedTotal.Inc()
	s.log.Info("order accepted", "order_id", cmd.OrderID, "driver_id", cmd.DriverID)
	return nil
}

// Reject records a driver turning an offer down. When it was the last live
// offer of the cycle, the order goes back to searching and the loop retries
// without waiting out the normal delay.
func (s *Service) Reject(ctx context.Context, cmd RejectCommand) error {
	err := s.store.WithOrderLock(ctx, cmd.OrderID, func(ctx context.Context, tx Tx) error {
		now := time.Now()
		o := tx.Order()

		sug, err := tx.SentSuggestion(ctx, cmd.DriverID)
		if err != nil {
			return err
		}
		if sug == nil {
			return ErrNotFound
		}
		if !order.Dispatchable(o.Status) {
			return ErrInvalidState
		}

		if err := tx.ResolveSuggestion(ctx, sug.ID, SuggestionRejected, now); err != nil {
			return err
		}

		live, err := tx.LiveSentExists(ctx, now)
		if err != nil {
			return err
		}
		if !live && o.Status == order.StatusNotificationSent {
			if err := tx.SetOrderStatus(ctx, order.StatusSearching); err != nil {
				return err
			}
			st, err := tx.State(ctx)
			if err != nil {
				return err
			}
			st.NextRetryAt = &now
			if err := tx.SaveState(ctx, st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	observability.OffersRejectedTotal.Inc()
	s.log.Info("order rejected", "order_id", cmd.OrderID, "driver_id", cmd.DriverID)
	return nil
}

// ListSuggested returns a driver's live offers, filtered to the verticals the
// driver actually serves. Unknown or unapproved drivers see an empty list.
func (s *Service) ListSuggested(ctx context.Context, driverID types.ID) ([]Offer, error) {
	p, err := s.profiles.Get(ctx, driverID)
	if err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !p.Approved() {
		return nil, nil
	}

	offers, err := s.store.ListOffers(ctx, driverID, time.Now())
	if err != nil {
		return nil, err
	}

	out := make([]Offer, 0, len(offers))
	for _, o := range offers {
		if IsEligible(*p, o.Order) {
			out = append(out, o)
		}
	}
	return out, nil
}
