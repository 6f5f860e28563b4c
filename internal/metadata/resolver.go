// Package metadata resolves the auxiliary tags attached to a sensor point.
//
// Lookups fail open: a missing key, an unreachable store or an unreadable item
// all resolve to "no metadata" so the reading is still written.
package metadata

import (
	"context"

	"github.com/go-logr/logr"
)

// Record maps tag names to tag values for one metadata key.
type Record map[string]string

// Store performs a single point lookup. found=false with a nil error means the
// key does not exist.
type Store interface {
	Get(ctx context.Context, key string) (rec Record, found bool, err error)
}

type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not_found"
	OutcomeDegraded Outcome = "degraded"
	OutcomeSkipped  Outcome = "skipped"
)

type Resolver struct {
	store  Store
	logger logr.Logger
}

func NewResolver(store Store, logger logr.Logger) *Resolver {
	return &Resolver{store: store, logger: logger.WithName("metadata")}
}

// Resolve never returns an error. The Outcome tells the caller which branch
// was taken.
func (r *Resolver) Resolve(ctx context.Context, key string) (Record, Outcome) {
	if key == "" {
		r.logger.V(1).Info("no metadata key on event, skipping lookup")
		return nil, OutcomeSkipped
	}
	if r.store == nil {
		return nil, OutcomeSkipped
	}

	rec, found, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Error(err, "metadata lookup failed, continuing without metadata", "metaKey", key)
		return nil, OutcomeDegraded
	}
	if !found || len(rec) == 0 {
		r.logger.V(1).Info("metadata not found", "metaKey", key)
		return nil, OutcomeNotFound
	}

	r.logger.V(1).Info("metadata resolved", "metaKey", key, "tags", len(rec))
	return rec, OutcomeFound
}
