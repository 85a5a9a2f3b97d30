package resourcecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/faults"
	"github.com/goliatone/go-query-cache/logging"
	"github.com/goliatone/go-query-cache/resource"
)

// DefaultPageLimit is the list page size when none is configured.
const DefaultPageLimit = 10

// Messages are the notices published by writes of one resource.
type Messages struct {
	Created string
	Updated string
	Deleted string
	Paused  string
}

// DefaultMessages builds the notices for a resource: "Expense added
// successfully" and so on.
func DefaultMessages(resource string) Messages {
	label := entityLabel(resource)
	return Messages{
		Created: label + " added successfully",
		Updated: label + " updated successfully",
		Deleted: label + " has been deleted",
		Paused:  fmt.Sprintf("Offline mode: %s data will sync when you're online", label),
	}
}

func (m Messages) forType(t cache.MutationType) string {
	switch t {
	case cache.MutationCreate:
		return m.Created
	case cache.MutationUpdate:
		return m.Updated
	case cache.MutationDelete:
		return m.Deleted
	}
	return ""
}

// Hooks is the cached surface of one resource.
type Hooks[T any] struct {
	cache    *cache.Client
	client   *resource.Client[T]
	resource string
	limit    int
	query    cache.QueryOptions
	messages Messages
	logger   logging.Logger
	now      func() time.Time
}

// Option configures Hooks.
type Option func(*settings)

type settings struct {
	resource string
	limit    int
	query    cache.QueryOptions
	messages *Messages
	logger   logging.Logger
	now      func() time.Time
}

// WithResource sets the resource name used as the cache key prefix and the
// mutation handler name.
func WithResource(name string) Option {
	return func(s *settings) { s.resource = name }
}

// WithPageLimit sets the list page size.
func WithPageLimit(n int) Option {
	return func(s *settings) { s.limit = n }
}

// WithQueryOptions sets the options of every read. Zero fields take the
// cache client defaults.
func WithQueryOptions(o cache.QueryOptions) Option {
	return func(s *settings) { s.query = o }
}

func WithMessages(m Messages) Option {
	return func(s *settings) { s.messages = &m }
}

func WithLogger(l logging.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock sets the clock used to stamp new records.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// New builds the hooks and registers the resource's mutation handler with
// cc. The resource name defaults to the client path, then to ResourceName[T].
func New[T any](cc *cache.Client, rc *resource.Client[T], opts ...Option) (*Hooks[T], error) {
	if cc == nil || rc == nil {
		return nil, goerrors.New("cache client and resource client are required", goerrors.CategoryBadInput)
	}

	s := settings{limit: DefaultPageLimit, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.resource == "" {
		s.resource = rc.Path()
	}
	if s.resource == "" {
		s.resource = ResourceName[T]()
	}
	if s.resource == "" {
		return nil, goerrors.New("resource name could not be derived", goerrors.CategoryBadInput)
	}
	if s.limit <= 0 {
		return nil, goerrors.New(fmt.Sprintf("page limit must be positive, got %d", s.limit), goerrors.CategoryValidation)
	}

	h := &Hooks[T]{
		cache:    cc,
		client:   rc,
		resource: s.resource,
		limit:    s.limit,
		query:    s.query,
		messages: DefaultMessages(s.resource),
		logger:   logging.OrNop(s.logger),
		now:      s.now,
	}
	if s.messages != nil {
		h.messages = *s.messages
	}
	if err := h.RegisterHandlers(); err != nil {
		return nil, err
	}
	return h, nil
}

// Resource returns the resource name.
func (h *Hooks[T]) Resource() string { return h.resource }

// PageLimit returns the list page size.
func (h *Hooks[T]) PageLimit() int { return h.limit }

// Messages returns the notices this resource publishes.
func (h *Hooks[T]) Messages() Messages { return h.messages }

// Invalidate marks every cached list and record of the resource stale.
func (h *Hooks[T]) Invalidate(ctx context.Context) int {
	return h.cache.Invalidate(ctx, cache.NewKey(h.resource))
}

// RegisterHandlers registers the handler that executes this resource's
// mutations, replacing any previous one.
func (h *Hooks[T]) RegisterHandlers() error {
	return h.cache.RegisterMutationHandler(h.resource, cache.MutationHandler{
		Execute:    h.execute,
		Invalidate: h.invalidationKeys,
		OnSuccess:  h.onSuccess,
	})
}

func (h *Hooks[T]) execute(ctx context.Context, m cache.PendingMutation) (json.RawMessage, error) {
	idem := resource.WithIdempotencyKey(m.ID)

	var (
		out any
		err error
	)
	switch m.Type {
	case cache.MutationCreate:
		out, err = h.client.Create(ctx, m.Payload, idem)
	case cache.MutationUpdate:
		out, err = h.client.Update(ctx, m.EntityID, m.Payload, idem)
	case cache.MutationDelete:
		out, err = h.client.Delete(ctx, m.EntityID, idem)
	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported mutation type %q", m.Type), goerrors.CategoryBadInput)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, faults.Serialization(err, "encode mutation response")
	}
	return data, nil
}

func (h *Hooks[T]) invalidationKeys(m cache.PendingMutation) []cache.Key {
	keys := []cache.Key{cache.NewKey(h.resource)}
	for _, tag := range m.Tags {
		if tag != h.resource {
			keys = append(keys, cache.NewKey(tag))
		}
	}
	return keys
}

func (h *Hooks[T]) onSuccess(ctx context.Context, m cache.PendingMutation, _ json.RawMessage) {
	msg := h.messages.forType(m.Type)
	if msg == "" {
		return
	}
	h.cache.Notify(ctx, cache.Notice{
		Level:      cache.LevelSuccess,
		Message:    msg,
		Resource:   h.resource,
		MutationID: m.ID,
	})
}

func (h *Hooks[T]) notifyPaused(ctx context.Context, id string) {
	h.logger.Info("mutation paused until online", logging.Fields{"resource": h.resource, "mutation_id": id})
	if h.messages.Paused == "" {
		return
	}
	h.cache.Notify(ctx, cache.Notice{
		Level:      cache.LevelInfo,
		Message:    h.messages.Paused,
		Resource:   h.resource,
		MutationID: id,
	})
}
