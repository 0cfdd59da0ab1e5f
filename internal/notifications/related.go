package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Kind names the type of entity a notification refers to.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
	KindUser    Kind = "user"
	KindRide    Kind = "ride"
	KindEvent   Kind = "event"
	KindGroup   Kind = "group"
)

var ErrUnknownKind = errors.New("unknown related object kind")

// RelatedObjectRef points at the entity a notification concerns. IDs are
// opaque strings since posts live in MongoDB.
type RelatedObjectRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// RefFromRecord rebuilds a reference from the stored columns, or nil.
func RefFromRecord(kind, id *string) *RelatedObjectRef {
	if kind == nil || id == nil {
		return nil
	}
	return &RelatedObjectRef{Kind: Kind(*kind), ID: *id}
}

// LookupFunc loads the entity with the given id.
type LookupFunc func(ctx context.Context, id string) (any, error)

// RelatedObjectRegistry maps each kind to the lookup that loads it.
type RelatedObjectRegistry struct {
	mu      sync.RWMutex
	lookups map[Kind]LookupFunc
}

func NewRelatedObjectRegistry() *RelatedObjectRegistry {
	return &RelatedObjectRegistry{lookups: make(map[Kind]LookupFunc)}
}

// Register installs fn for kind, replacing any earlier lookup.
func (r *RelatedObjectRegistry) Register(kind Kind, fn LookupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[kind] = fn
}

// Resolve loads the referenced entity.
func (r *RelatedObjectRegistry) Resolve(ctx context.Context, ref RelatedObjectRef) (any, error) {
	r.mu.RLock()
	fn, ok := r.lookups[ref.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, ref.Kind)
	}
	return fn(ctx, ref.ID)
}
