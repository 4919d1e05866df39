// Package hotstate is the Hot-State Store: an in-memory key-value layer
// with per-key expiry, set membership, and atomic multi-op transactions,
// holding availability, last-known location, and device-session maps
// (Design Notes §9's three logical partitions).
package hotstate

import "time"

// AvailabilityState is the hot-path online/offline record for one porter.
type AvailabilityState struct {
	PorterID string    `json:"porter_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
	Lat      float64   `json:"lat,omitempty"`
	Lng      float64   `json:"lng,omitempty"`
	HasCoord bool       `json:"has_coord,omitempty"`
}

// LastLocation is the hot-path last-known-location record for one porter.
type LastLocation struct {
	PorterID string    `json:"porter_id"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Accuracy float64   `json:"accuracy,omitempty"`
	OrderID  string    `json:"order_id,omitempty"`
	Time     time.Time `json:"timestamp"`
}
