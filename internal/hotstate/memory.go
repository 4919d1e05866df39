package hotstate

import (
	"context"
	"sync"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
)

type expiring struct {
	value   interface{}
	expires time.Time
}

// MemoryStore is an in-process Hot-State Store used by unit tests, mirroring
// the semantics of RedisStore (TTL expiry checked lazily on read, online-set
// membership, fixed-window rate-limit counters, SETNX-style locks).
type MemoryStore struct {
	mu sync.Mutex

	availability map[string]expiring
	online       map[string]bool
	locations    map[string]expiring
	sessions     map[string]expiring
	rateWindows  map[string]int64
	locks        map[string]expiring
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		availability: make(map[string]expiring),
		online:       make(map[string]bool),
		locations:    make(map[string]expiring),
		sessions:     make(map[string]expiring),
		rateWindows:  make(map[string]int64),
		locks:        make(map[string]expiring),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(e expiring, now time.Time) bool {
	return !e.expires.IsZero() && e.expires.Before(now)
}

func (s *MemoryStore) SetAvailability(_ context.Context, state AvailabilityState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability[state.PorterID] = expiring{value: state, expires: time.Now().Add(ttl)}
	if state.Online {
		s.online[state.PorterID] = true
	} else {
		delete(s.online, state.PorterID)
	}
	return nil
}

func (s *MemoryStore) GetAvailability(_ context.Context, porterID string) (*AvailabilityState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.availability[porterID]
	if !ok || s.expired(e, time.Now()) {
		return nil, nil
	}
	st := e.value.(AvailabilityState)
	return &st, nil
}

func (s *MemoryStore) OnlinePorterIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []string
	for id := range s.online {
		e, ok := s.availability[id]
		if ok && !s.expired(e, now) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemoryStore) OnlinePorterCount(ctx context.Context) (int64, error) {
	ids, err := s.OnlinePorterIDs(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (s *MemoryStore) Heartbeat(_ context.Context, porterID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.availability[porterID]
	if !ok || s.expired(e, time.Now()) {
		return dispatcherr.New(dispatcherr.NotFound, "no availability record to refresh")
	}
	st := e.value.(AvailabilityState)
	st.LastSeen = time.Now().UTC()
	s.availability[porterID] = expiring{value: st, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) SetLastLocation(_ context.Context, loc LastLocation, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[loc.PorterID] = expiring{value: loc, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) GetLastLocation(_ context.Context, porterID string) (*LastLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.locations[porterID]
	if !ok || s.expired(e, time.Now()) {
		return nil, nil
	}
	loc := e.value.(LastLocation)
	return &loc, nil
}

func (s *MemoryStore) BatchLastLocations(_ context.Context, porterIDs []string) (map[string]LastLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]LastLocation)
	now := time.Now()
	for _, id := range porterIDs {
		e, ok := s.locations[id]
		if ok && !s.expired(e, now) {
			out[id] = e.value.(LastLocation)
		}
	}
	return out, nil
}

func (s *MemoryStore) AllLastLocations(_ context.Context) (map[string]LastLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]LastLocation)
	now := time.Now()
	for id, e := range s.locations {
		if !s.expired(e, now) {
			out[id] = e.value.(LastLocation)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertDeviceSession(_ context.Context, porterID, deviceID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[porterID+"|"+deviceID] = expiring{value: time.Now(), expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) RateLimitAllow(_ context.Context, key string, limit int64, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	windowStart := time.Now().Unix() / int64(window.Seconds())
	wk := key + ":" + time.Unix(windowStart*int64(window.Seconds()), 0).String()
	s.rateWindows[wk]++
	return s.rateWindows[wk] <= limit, nil
}

func (s *MemoryStore) AcquireLock(_ context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if e, ok := s.locks[key]; ok && !s.expired(e, now) {
		return false, nil
	}
	s.locks[key] = expiring{value: ownerID, expires: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) RenewLock(_ context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.locks[key]
	if !ok || e.value.(string) != ownerID {
		return false, nil
	}
	s.locks[key] = expiring{value: ownerID, expires: time.Now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) ReleaseLock(_ context.Context, key, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.locks[key]; ok && e.value.(string) == ownerID {
		delete(s.locks, key)
	}
	return nil
}

func (s *MemoryStore) GetLockOwner(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.locks[key]
	if !ok || s.expired(e, time.Now()) {
		return "", nil
	}
	return e.value.(string), nil
}

func (s *MemoryStore) AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.AcquireLock(ctx, key, value, ttl)
}

func (s *MemoryStore) RenewLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.RenewLock(ctx, key, value, ttl)
}

func (s *MemoryStore) ReleaseLease(ctx context.Context, key, value string) error {
	return s.ReleaseLock(ctx, key, value)
}

func (s *MemoryStore) IsLeaseOwner(ctx context.Context, key, value string) (bool, error) {
	owner, err := s.GetLockOwner(ctx, key)
	if err != nil {
		return false, err
	}
	return owner == value, nil
}

func (s *MemoryStore) ScanLocks(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k, e := range s.locks {
		if !s.expired(e, time.Now()) {
			out = append(out, k)
		}
	}
	_ = pattern
	return out, nil
}
