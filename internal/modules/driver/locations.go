// README: Driver location index backed by Redis GEO plus per-driver metadata.
package driver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"taybat/internal/types"
)

const driverGeoKey = "dispatch:drivers:geo"

// Location entries outlive an offline driver for a while; staleness filtering
// happens at read time, the TTL only bounds Redis growth.
const locationTTL = 24 * time.Hour

type RedisLocationStore struct {
	redis *redis.Client
}

func NewRedisLocationStore(client *redis.Client) *RedisLocationStore {
	return &RedisLocationStore{redis: client}
}

func (s *RedisLocationStore) Update(ctx context.Context, driverID types.ID, p types.Point) error {
	now := time.Now().UTC()
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	})
	key := locationMetaKey(driverID)
	pipe.HSet(ctx, key, map[string]interface{}{
		"lat":        strconv.FormatFloat(p.Lat, 'f', -1, 64),
		"lng":        strconv.FormatFloat(p.Lng, 'f', -1, 64),
		"updated_at": now.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, locationTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Locations fetches last known positions for the given drivers. Drivers with
// no recorded location are simply absent from the result.
func (s *RedisLocationStore) Locations(ctx context.Context, ids []types.ID) (map[types.ID]Location, error) {
	if len(ids) == 0 {
		return map[types.ID]Location{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, locationMetaKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make(map[types.ID]Location, len(ids))
	for i, id := range ids {
		m, err := cmds[i].Result()
		if err != nil || len(m) == 0 {
			continue
		}
		lat, errLat := strconv.ParseFloat(m["lat"], 64)
		lng, errLng := strconv.ParseFloat(m["lng"], 64)
		updated, errAt := time.Parse(time.RFC3339Nano, m["updated_at"])
		if errLat != nil || errLng != nil || errAt != nil {
			continue
		}
		out[id] = Location{
			DriverID:  id,
			Position:  types.Point{Lat: lat, Lng: lng},
			UpdatedAt: updated,
		}
	}
	return out, nil
}

func locationMetaKey(id types.ID) string {
	return fmt.Sprintf("dispatch:driver:%s:location", string(id))
}
