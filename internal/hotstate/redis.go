package hotstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
)

// preloadedScript is a Lua script cached by SHA so steady-state calls use
// EVALSHA and only fall back to EVAL (re-registering the script) on a
// NOSCRIPT reply, the pattern this lineage uses throughout its Redis layer.
type preloadedScript struct {
	src *redis.Script
}

func newScript(src string) *preloadedScript {
	return &preloadedScript{src: redis.NewScript(src)}
}

func (p *preloadedScript) run(ctx context.Context, rdb redis.Scripter, keys []string, args ...interface{}) (interface{}, error) {
	res, err := p.src.Run(ctx, rdb, keys, args...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

// setAvailabilityScript atomically writes the availability blob and updates
// online-set membership, satisfying §4.1's "applied atomically" requirement
// without a client-side MULTI/EXEC round trip.
var setAvailabilityScript = newScript(`
local stateKey = KEYS[1]
local onlineSetKey = KEYS[2]
local payload = ARGV[1]
local ttl = tonumber(ARGV[2])
local online = ARGV[3]
local porterID = ARGV[4]

redis.call('SET', stateKey, payload, 'EX', ttl)
if online == '1' then
	redis.call('SADD', onlineSetKey, porterID)
else
	redis.call('SREM', onlineSetKey, porterID)
end
return 1
`)

// rateLimitScript implements a fixed-window counter: increment and set
// expiry on first write in the window, matching §5's "fixed-window
// counters in the Hot-State Store" requirement.
var rateLimitScript = newScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local windowSeconds = tonumber(ARGV[2])

local count = redis.call('INCR', key)
if count == 1 then
	redis.call('EXPIRE', key, windowSeconds)
end
if count > limit then
	return 0
end
return 1
`)

// acquireLockScript is a SETNX-with-TTL lock, released only by its owner.
var acquireLockScript = newScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'EX', ARGV[2]) then
	return 1
end
return 0
`)

var renewLockScript = newScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0
`)

var releaseLockScript = newScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore is the production Hot-State Store, backed by go-redis/v9.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(addr string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func unavailable(err error) error {
	return dispatcherr.Wrap(dispatcherr.ServiceUnavailable, "hot-state store unavailable", err)
}

func (s *RedisStore) SetAvailability(ctx context.Context, state AvailabilityState, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return dispatcherr.Wrap(dispatcherr.BadRequest, "marshal availability state", err)
	}
	online := "0"
	if state.Online {
		online = "1"
	}
	_, err = setAvailabilityScript.run(ctx, s.rdb,
		[]string{AvailabilityKey(state.PorterID), OnlineSetKey()},
		payload, int64(ttl.Seconds()), online, state.PorterID)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) GetAvailability(ctx context.Context, porterID string) (*AvailabilityState, error) {
	raw, err := s.rdb.Get(ctx, AvailabilityKey(porterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	var state AvailabilityState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, unavailable(err)
	}
	return &state, nil
}

func (s *RedisStore) OnlinePorterIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, OnlineSetKey()).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

func (s *RedisStore) OnlinePorterCount(ctx context.Context) (int64, error) {
	n, err := s.rdb.SCard(ctx, OnlineSetKey()).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *RedisStore) Heartbeat(ctx context.Context, porterID string, ttl time.Duration) error {
	state, err := s.GetAvailability(ctx, porterID)
	if err != nil {
		return err
	}
	if state == nil {
		// No prior availability write: heartbeat alone does not fabricate
		// online status, it only refreshes an existing record's TTL.
		return dispatcherr.New(dispatcherr.NotFound, "no availability record to refresh")
	}
	state.LastSeen = time.Now().UTC()
	return s.SetAvailability(ctx, *state, ttl)
}

func (s *RedisStore) SetLastLocation(ctx context.Context, loc LastLocation, ttl time.Duration) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return dispatcherr.Wrap(dispatcherr.BadRequest, "marshal location", err)
	}
	if err := s.rdb.Set(ctx, LocationKey(loc.PorterID), payload, ttl).Err(); err != nil {
		return unavailable(err)
	}
	if err := s.rdb.GeoAdd(ctx, LocationGeoKey(), &redis.GeoLocation{
		Name: loc.PorterID, Longitude: loc.Lng, Latitude: loc.Lat,
	}).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) GetLastLocation(ctx context.Context, porterID string) (*LastLocation, error) {
	raw, err := s.rdb.Get(ctx, LocationKey(porterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	var loc LastLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, unavailable(err)
	}
	return &loc, nil
}

func (s *RedisStore) BatchLastLocations(ctx context.Context, porterIDs []string) (map[string]LastLocation, error) {
	out := make(map[string]LastLocation, len(porterIDs))
	if len(porterIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(porterIDs))
	for i, id := range porterIDs {
		keys[i] = LocationKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var loc LastLocation
		if err := json.Unmarshal([]byte(s), &loc); err != nil {
			continue
		}
		out[loc.PorterID] = loc
	}
	return out, nil
}

// AllLastLocations scans every location key. This is the O(N) path the
// spec calls out as acceptable at small scale (Design Notes §9);
// findNearbyPorters always uses it and does not call GetNearbyGeo.
func (s *RedisStore) AllLastLocations(ctx context.Context) (map[string]LastLocation, error) {
	out := make(map[string]LastLocation)
	var cursor uint64
	pattern := LocationKey("*")
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		if len(keys) > 0 {
			vals, err := s.rdb.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, unavailable(err)
			}
			for _, v := range vals {
				s, ok := v.(string)
				if !ok {
					continue
				}
				var loc LastLocation
				if err := json.Unmarshal([]byte(s), &loc); err != nil {
					continue
				}
				out[loc.PorterID] = loc
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// GetNearbyGeo uses the Redis GEO commands (GEOADD/GEOSEARCH) as the
// preferred spatial index named in Design Notes §9, avoiding the O(N) scan
// at fleet scale.
func (s *RedisStore) GetNearbyGeo(ctx context.Context, lat, lng, radiusMeters float64) ([]string, error) {
	res, err := s.rdb.GeoSearch(ctx, LocationGeoKey(), &redis.GeoSearchQuery{
		Longitude: lng, Latitude: lat,
		Radius: radiusMeters, RadiusUnit: "m",
		Sort: "ASC",
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return res, nil
}

func (s *RedisStore) UpsertDeviceSession(ctx context.Context, porterID, deviceID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, SessionKey(porterID, deviceID), time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) RateLimitAllow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	windowStart := time.Now().Unix() / int64(window.Seconds())
	fullKey := RateLimitKey("generic", key, windowStart)
	res, err := rateLimitScript.run(ctx, s.rdb, []string{fullKey}, limit, int64(window.Seconds()))
	if err != nil {
		return false, unavailable(err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (s *RedisStore) AcquireLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	res, err := acquireLockScript.run(ctx, s.rdb, []string{LockKey(key)}, ownerID, int64(ttl.Seconds()))
	if err != nil {
		return false, unavailable(err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (s *RedisStore) RenewLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	res, err := renewLockScript.run(ctx, s.rdb, []string{LockKey(key)}, ownerID, int64(ttl.Seconds()))
	if err != nil {
		return false, unavailable(err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key, ownerID string) error {
	_, err := releaseLockScript.run(ctx, s.rdb, []string{LockKey(key)}, ownerID)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) GetLockOwner(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, LockKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", unavailable(err)
	}
	return v, nil
}

// Leases reuse the lock primitives: a lease is a lock whose value encodes
// holder metadata instead of a bare owner id.
func (s *RedisStore) AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.AcquireLock(ctx, key, value, ttl)
}

func (s *RedisStore) RenewLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.RenewLock(ctx, key, value, ttl)
}

func (s *RedisStore) ReleaseLease(ctx context.Context, key, value string) error {
	return s.ReleaseLock(ctx, key, value)
}

func (s *RedisStore) IsLeaseOwner(ctx context.Context, key, value string) (bool, error) {
	owner, err := s.GetLockOwner(ctx, key)
	if err != nil {
		return false, err
	}
	return owner == value, nil
}

func (s *RedisStore) ScanLocks(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}
