// Package idempotency is the Idempotency Layer: request-keyed, user-scoped,
// operation-scoped caching of mutation results (§4.3, P4). It wraps an
// operation so that a first execution stores its result and a replay with
// the same (key, userId, operation) returns the cached result without
// re-executing; reuse across a different user or operation fails
// explicitly.
package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/observability"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

// Backend persists idempotency records. store.Store (the Durable Store)
// is the production Backend; callers needing only best-effort dedup across
// a single process may supply a lighter implementation.
type Backend interface {
	GetIdempotencyRecord(ctx context.Context, key string) (*store.IdempotencyRecord, error)
	PutIdempotencyRecord(ctx context.Context, r *store.IdempotencyRecord) error
}

// Layer wraps mutating operations with the cache-or-execute pattern.
type Layer struct {
	backend Backend
	ttl     time.Duration
}

func NewLayer(backend Backend, ttl time.Duration) *Layer {
	return &Layer{backend: backend, ttl: ttl}
}

// Execute runs fn unless a prior (key, userID, operation) execution was
// already recorded, in which case the cached response is decoded into out.
// fn's return value is marshaled and cached on first success. A key reused
// with a different userID or operation name fails with CONFLICT rather than
// silently executing twice or silently returning the wrong cached payload.
func Execute[T any](ctx context.Context, l *Layer, key, userID, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if key == "" {
		return fn(ctx)
	}

	existing, err := l.backend.GetIdempotencyRecord(ctx, key)
	if err != nil {
		return zero, err
	}
	if existing != nil {
		if existing.UserID != userID || existing.Operation != operation {
			observability.IdempotencyConflicts.Inc()
			return zero, dispatcherr.Newf(dispatcherr.Conflict,
				"idempotency key %q already used for a different user or operation", key)
		}
		var cached T
		if err := json.Unmarshal(existing.ResponsePayload, &cached); err != nil {
			return zero, dispatcherr.Wrap(dispatcherr.ServiceUnavailable, "decode cached idempotency response", err)
		}
		observability.IdempotencyHits.Inc()
		return cached, nil
	}

	result, err := fn(ctx)
	if err != nil {
		// Failures are not cached: a client retrying after a failed attempt
		// should be allowed to actually retry the operation.
		return zero, err
	}

	payload, merr := json.Marshal(result)
	if merr != nil {
		return result, nil
	}
	record := &store.IdempotencyRecord{
		Key:             key,
		UserID:          userID,
		Operation:       operation,
		ResponsePayload: payload,
		ExpiresAt:       time.Now().Add(l.ttl),
	}
	if err := l.backend.PutIdempotencyRecord(ctx, record); err != nil {
		// The primary result already succeeded; failing to cache it is a
		// durability concern for the *next* retry, not this call.
		return result, nil
	}
	return result, nil
}

func (l *Layer) PurgeExpired(ctx context.Context, purge func(ctx context.Context, now time.Time) (int64, error)) (int64, error) {
	return purge(ctx, time.Now())
}
