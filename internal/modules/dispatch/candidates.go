// README: Candidate selection: pool query, eligibility filter, distance ranking.
package dispatch

import (
	"context"
	"time"

	"taybat/internal/modules/driver"
	"taybat/internal/modules/order"
	"taybat/internal/types"
)

// Pool supplies drivers that are approved, online, and recently located.
type Pool interface {
	Available(ctx context.Context, staleCutoff time.Time) ([]driver.Available, error)
}

type Selector struct {
	pool      Pool
	staleness time.Duration
}

func NewSelector(pool Pool, staleness time.Duration) *Selector {
	return &Selector{pool: pool, staleness: staleness}
}

// SelectCandidates ranks eligible drivers by distance to the order's pickup
// point, nearest first. Drivers in excluded (already offered this order) and
// the order's own customer never appear. The full ranked list is returned;
// the loop truncates to the broadcast limit.
func (s *Selector) SelectCandidates(ctx context.Context, o *order.Order, excluded map[types.ID]bool) ([]Candidate, error) {
	available, err := s.pool.Available(ctx, time.Now().Add(-s.staleness))
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(available))
	for _, a := range available {
		if a.Profile.ID == o.CustomerID || excluded[a.Profile.ID] {
			continue
		}
		if !IsEligible(a.Profile, o) {
			continue
		}
		candidates = append(candidates, Candidate{
			DriverID:   a.Profile.ID,
			DistanceKm: RoundKm(HaversineKm(a.Location.Position, o.Pickup)),
		})
	}

	sortByDistance(candidates, func(c Candidate) float64 { return c.DistanceKm })
	return candidates, nil
}

// sortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func sortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
