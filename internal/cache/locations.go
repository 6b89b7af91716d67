// Package cache keeps the latest shipment location in redis and fans
// location updates out over redis pub/sub.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/models"
)

// lwwScript stores the point only when it is at least as new as the one
// already cached.
//
// KEYS[1]: shipment:{id}:location
// ARGV[1]: recorded-at, unix millis
// ARGV[2]: JSON payload
// ARGV[3]: TTL seconds
var lwwScript = redis.NewScript(`
	local current = redis.call('HGET', KEYS[1], 'ts')
	if current and tonumber(current) > tonumber(ARGV[1]) then
		return 0
	end
	redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'payload', ARGV[2])
	redis.call('EXPIRE', KEYS[1], ARGV[3])
	return 1
`)

func locationKey(shipmentID string) string {
	return fmt.Sprintf("shipment:%s:location", shipmentID)
}

// Channel is the pub/sub channel carrying a shipment's location updates.
func Channel(shipmentID string) string {
	return fmt.Sprintf("shipment_locations:%s", shipmentID)
}

// Locations is the redis-backed latest-location cache.
type Locations struct {
	rdb *redis.Client
	ttl time.Duration
	log logrus.FieldLogger
}

// Dial connects to redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache.Dial: %w", err)
	}
	return rdb, nil
}

func NewLocations(rdb *redis.Client, ttl time.Duration, log logrus.FieldLogger) *Locations {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Locations{rdb: rdb, ttl: ttl, log: log}
}

// Put caches the ping as the shipment's latest location and publishes it.
// Older pings are ignored and reported as not applied.
func (l *Locations) Put(ctx context.Context, p models.LocationPing) (bool, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("cache.Put: marshal: %w", err)
	}

	res, err := lwwScript.Run(ctx, l.rdb, []string{locationKey(p.ShipmentID)},
		p.RecordedAt.UnixMilli(), payload, int(l.ttl.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("cache.Put: script: %w", err)
	}
	if res == 0 {
		return false, nil
	}

	if err := l.rdb.Publish(ctx, Channel(p.ShipmentID), payload).Err(); err != nil {
		return true, fmt.Errorf("cache.Put: publish: %w", err)
	}
	return true, nil
}

// Latest returns the cached location, or nil when nothing is cached.
func (l *Locations) Latest(ctx context.Context, shipmentID string) (*models.LocationPing, error) {
	raw, err := l.rdb.HGet(ctx, locationKey(shipmentID), "payload").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache.Latest: %w", err)
	}

	var p models.LocationPing
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("cache.Latest: decode: %w", err)
	}
	return &p, nil
}

// Subscribe streams the shipment's location updates until ctx is done or
// the returned stop function is called.
func (l *Locations) Subscribe(ctx context.Context, shipmentID string) (<-chan models.LocationPing, func() error) {
	pubsub := l.rdb.Subscribe(ctx, Channel(shipmentID))
	out := make(chan models.LocationPing, 16)

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p models.LocationPing
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					l.log.WithError(err).WithField("channel", msg.Channel).Warn("dropping undecodable location")
					continue
				}
				select {
				case out <- p:
				default:
					// slow reader, skip; a newer point follows
				}
			}
		}
	}()

	return out, pubsub.Close
}
