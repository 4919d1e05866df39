package hotstate

import "fmt"

// Partition namespaces the three logical hot-state partitions named in
// Design Notes §9: sessions, availability, location.
type Partition string

const (
	PartitionSessions     Partition = "sessions"
	PartitionAvailability Partition = "availability"
	PartitionLocation     Partition = "location"
)

const keyPrefix = "dispatch"

func partitionKey(part Partition, id string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, part, id)
}

// OnlineSetKey is the Redis set holding currently-online porter ids.
func OnlineSetKey() string {
	return fmt.Sprintf("%s:%s:online", keyPrefix, PartitionAvailability)
}

func AvailabilityKey(porterID string) string {
	return partitionKey(PartitionAvailability, porterID)
}

func LocationKey(porterID string) string {
	return partitionKey(PartitionLocation, porterID)
}

func LocationGeoKey() string {
	return fmt.Sprintf("%s:%s:geo", keyPrefix, PartitionLocation)
}

func SessionKey(porterID, deviceID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, PartitionSessions, porterID, deviceID)
}

// RateLimitKey namespaces the fixed-window counter backing the Hot-State
// Store rate limiter (§5: "Rate limiters maintain per-key counters in the
// Hot-State Store").
func RateLimitKey(scope, id string, windowStartUnix int64) string {
	return fmt.Sprintf("%s:ratelimit:%s:%s:%d", keyPrefix, scope, id, windowStartUnix)
}

func LockKey(name string) string {
	return fmt.Sprintf("%s:lock:%s", keyPrefix, name)
}
