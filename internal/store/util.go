package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

// newID generates an opaque identifier for rows this package creates
// in-line (withdrawal adjustment rows, and MemoryStore's verification-history
// entries). Callers that create user-facing
// entities (offers, porters) supply their own id from the service layer.
func newID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
