package resourcecache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/faults"
)

// Callbacks receive the outcome of one Mutate call. They fire once, possibly
// after a reconnect when the write was queued.
type Callbacks[R any] struct {
	OnSuccess func(R)
	OnError   func(error)
}

// UpdateInput is the input of an update: the record id and a partial body.
type UpdateInput struct {
	ID   string
	Data any
}

// Mutation is a write handle. Each handle tracks the calls made through it.
type Mutation[I, R any] struct {
	cache    *cache.Client
	resource string
	typ      cache.MutationType
	build    func(I) (cache.MutationRequest, error)
	paused   func(ctx context.Context, id string)

	inflight atomic.Int32
	mu       sync.Mutex
	lastID   string
}

// Mutate issues the write. A paused result means it was queued and will
// run when the network comes back.
func (m *Mutation[I, R]) Mutate(ctx context.Context, input I, cb Callbacks[R]) (cache.MutationResult, error) {
	req, err := m.build(input)
	if err != nil {
		return cache.MutationResult{}, err
	}
	req.Type = m.typ
	req.Resource = m.resource
	req.Tags = cacheTagsFromContext(ctx)
	req.OnSuccess = func(data json.RawMessage) {
		if cb.OnSuccess == nil {
			return
		}
		var out R
		if len(data) > 0 {
			if err := json.Unmarshal(data, &out); err != nil {
				if cb.OnError != nil {
					cb.OnError(faults.Serialization(err, "decode mutation response"))
				}
				return
			}
		}
		cb.OnSuccess(out)
	}
	req.OnError = cb.OnError

	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	res, err := m.cache.Mutate(ctx, req)
	if res.ID != "" {
		m.mu.Lock()
		m.lastID = res.ID
		m.mu.Unlock()
	}
	if err == nil && res.State == cache.MutationPaused {
		m.paused(ctx, res.ID)
	}
	return res, err
}

// IsPending reports whether a Mutate call through this handle is running.
func (m *Mutation[I, R]) IsPending() bool { return m.inflight.Load() > 0 }

// IsPaused reports whether the last write issued through this handle is
// still waiting in the queue.
func (m *Mutation[I, R]) IsPaused() bool {
	id := m.LastID()
	return id != "" && m.cache.IsPaused(id)
}

// LastID returns the id of the last write issued through this handle.
func (m *Mutation[I, R]) LastID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastID
}

// Create returns a handle that posts a partial record. New records are
// stamped with the current time when the payload has no createdAt.
func (h *Hooks[T]) Create() *Mutation[any, T] {
	return &Mutation[any, T]{
		cache:    h.cache,
		resource: h.resource,
		typ:      cache.MutationCreate,
		paused:   h.notifyPaused,
		build: func(partial any) (cache.MutationRequest, error) {
			payload, err := h.stamp(partial)
			if err != nil {
				return cache.MutationRequest{}, err
			}
			return cache.MutationRequest{Payload: payload, TargetKey: cache.NewKey(h.resource)}, nil
		},
	}
}

// Update returns a handle that puts a partial record.
func (h *Hooks[T]) Update() *Mutation[UpdateInput, T] {
	return &Mutation[UpdateInput, T]{
		cache:    h.cache,
		resource: h.resource,
		typ:      cache.MutationUpdate,
		paused:   h.notifyPaused,
		build: func(in UpdateInput) (cache.MutationRequest, error) {
			if err := requireID(in.ID); err != nil {
				return cache.MutationRequest{}, err
			}
			return cache.MutationRequest{EntityID: in.ID, Payload: in.Data, TargetKey: h.ItemKey(in.ID)}, nil
		},
	}
}

// Delete returns a handle that deletes by id. The result is the deleted id.
func (h *Hooks[T]) Delete() *Mutation[string, string] {
	return &Mutation[string, string]{
		cache:    h.cache,
		resource: h.resource,
		typ:      cache.MutationDelete,
		paused:   h.notifyPaused,
		build: func(id string) (cache.MutationRequest, error) {
			if err := requireID(id); err != nil {
				return cache.MutationRequest{}, err
			}
			return cache.MutationRequest{EntityID: id, TargetKey: h.ItemKey(id)}, nil
		},
	}
}

// stamp encodes partial and adds createdAt when it is an object without one.
func (h *Hooks[T]) stamp(partial any) (json.RawMessage, error) {
	raw, err := json.Marshal(partial)
	if err != nil {
		return nil, faults.Serialization(err, "encode create payload")
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil || fields == nil {
		return raw, nil
	}
	if _, ok := fields["createdAt"]; ok {
		return raw, nil
	}
	ts, _ := json.Marshal(h.now().Unix())
	fields["createdAt"] = ts
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, faults.Serialization(err, "encode create payload")
	}
	return out, nil
}

func requireID(id string) error {
	if id == "" {
		return goerrors.New("record id is required", goerrors.CategoryBadInput).
			WithTextCode("MISSING_ID")
	}
	return nil
}
