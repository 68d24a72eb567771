// README: Driver service: availability toggle, location updates, candidate pool reads.
package driver

import (
	"context"
	"time"

	"taybat/internal/types"
)

type ProfileStore interface {
	Get(ctx context.Context, id types.ID) (*Profile, error)
	SetOnline(ctx context.Context, id types.ID, online bool) error
	ListApprovedOnline(ctx context.Context) ([]Profile, error)
}

type LocationStore interface {
	Update(ctx context.Context, driverID types.ID, p types.Point) error
	Locations(ctx context.Context, ids []types.ID) (map[types.ID]Location, error)
}

type Service struct {
	profiles  ProfileStore
	locations LocationStore
}

func NewService(profiles ProfileStore, locations LocationStore) *Service {
	return &Service{profiles: profiles, locations: locations}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Profile, error) {
	return s.profiles.Get(ctx, id)
}

func (s *Service) SetOnline(ctx context.Context, id types.ID, online bool) error {
	return s.profiles.SetOnline(ctx, id, online)
}

func (s *Service) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	if _, err := s.profiles.Get(ctx, id); err != nil {
		return err
	}
	return s.locations.Update(ctx, id, p)
}

// Available returns approved, online drivers whose last reported location is
// not older than the cutoff. Drivers with stale or missing locations are
// silently dropped.
func (s *Service) Available(ctx context.Context, staleCutoff time.Time) ([]Available, error) {
	profiles, err := s.profiles.ListApprovedOnline(ctx)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}

	ids := make([]types.ID, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	locs, err := s.locations.Locations(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Available, 0, len(profiles))
	for _, p := range profiles {
		loc, ok := locs[p.ID]
		if !ok || loc.UpdatedAt.Before(staleCutoff) {
			continue
		}
		out = append(out, Available{Profile: p, Location: loc})
	}
	return out, nil
}
