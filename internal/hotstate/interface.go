package hotstate

import (
	"context"
	"time"
)

// Store is the full Hot-State Store surface used by the Availability and
// Location services.
type Store interface {
	// SetAvailability atomically writes the availability record and
	// mutates online-set membership in one multi-op transaction (§4.1:
	// "must be applied atomically").
	SetAvailability(ctx context.Context, state AvailabilityState, ttl time.Duration) error
	GetAvailability(ctx context.Context, porterID string) (*AvailabilityState, error)
	OnlinePorterIDs(ctx context.Context) ([]string, error)
	OnlinePorterCount(ctx context.Context) (int64, error)
	// Heartbeat refreshes TTL and lastSeen without altering Online.
	Heartbeat(ctx context.Context, porterID string, ttl time.Duration) error

	SetLastLocation(ctx context.Context, loc LastLocation, ttl time.Duration) error
	GetLastLocation(ctx context.Context, porterID string) (*LastLocation, error)
	BatchLastLocations(ctx context.Context, porterIDs []string) (map[string]LastLocation, error)
	// AllLastLocations supports the O(N) scan+filter findNearbyPorters
	// fallback named as acceptable at small scale in Design Notes §9.
	AllLastLocations(ctx context.Context) (map[string]LastLocation, error)

	UpsertDeviceSession(ctx context.Context, porterID, deviceID string, ttl time.Duration) error

	// RateLimitAllow increments the fixed-window counter for key and
	// reports whether the caller is within limit for the current window.
	RateLimitAllow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)

	// Coordinator is embedded: leader-election locks/leases are a
	// Hot-State Store concern, sharing the same Redis handle.
	Coordinator

	Close() error
}

// Coordinator is the distributed-lock/lease surface used by leader
// election and the scheduler, mirroring the teacher's store.Coordinator.
type Coordinator interface {
	AcquireLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error)
	RenewLock(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, ownerID string) error
	GetLockOwner(ctx context.Context, key string) (string, error)

	AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	RenewLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, value string) error
	IsLeaseOwner(ctx context.Context, key, value string) (bool, error)

	ScanLocks(ctx context.Context, pattern string) ([]string, error)
}
