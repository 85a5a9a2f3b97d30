package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/oklog/ulid/v2"

	"github.com/goliatone/go-query-cache/faults"
	"github.com/goliatone/go-query-cache/logging"
)

var (
	// ErrOffline stops a queue drain while the network is down.
	ErrOffline = goerrors.New("network is offline", goerrors.CategoryOperation).
			WithTextCode("OFFLINE")
	// ErrMutationCancelled is reported to a waiting caller whose mutation
	// was removed with CancelMutation.
	ErrMutationCancelled = goerrors.New("mutation cancelled", goerrors.CategoryOperation).
				WithTextCode("MUTATION_CANCELLED")
)

// MutationType is the kind of write a mutation performs.
type MutationType string

const (
	MutationCreate MutationType = "create"
	MutationUpdate MutationType = "update"
	MutationDelete MutationType = "delete"
)

func (t MutationType) valid() bool {
	switch t {
	case MutationCreate, MutationUpdate, MutationDelete:
		return true
	}
	return false
}

// PendingMutation is the serializable description of a write. Queued
// mutations are persisted with the snapshot and replayed after a restart.
type PendingMutation struct {
	ID        string          `json:"id"`
	Type      MutationType    `json:"type"`
	Resource  string          `json:"resource"`
	EntityID  string          `json:"entity_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	TargetKey Key             `json:"target_key,omitempty"`
	// Tags are extra key prefixes the handler may invalidate on success.
	Tags      []string        `json:"tags,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}

// MutationHandler executes the mutations of one resource. Handlers are
// registered at startup so mutations restored from a snapshot can run.
type MutationHandler struct {
	// Execute performs the write and returns the server response.
	Execute func(ctx context.Context, m PendingMutation) (json.RawMessage, error)
	// Invalidate lists the key prefixes to invalidate after a success.
	// When nil, the resource prefix [m.Resource] is used.
	Invalidate func(m PendingMutation) []Key
	OnSuccess  func(ctx context.Context, m PendingMutation, data json.RawMessage)
	OnError    func(ctx context.Context, m PendingMutation, err error)
}

// RegisterMutationHandler sets the handler for resource, replacing any
// previous one.
func (c *Client) RegisterMutationHandler(resource string, h MutationHandler) error {
	if resource == "" {
		return goerrors.New("resource name is required", goerrors.CategoryBadInput)
	}
	if h.Execute == nil {
		return goerrors.New("mutation handler requires Execute", goerrors.CategoryBadInput)
	}
	c.handlers.Store(resource, h)
	return nil
}

// MutationRequest describes a write issued by a caller. Payload is encoded
// as JSON. The callbacks fire once, when the mutation completes in this
// process, which may be after a reconnect.
type MutationRequest struct {
	Type      MutationType
	Resource  string
	EntityID  string
	Payload   any
	TargetKey Key
	Tags      []string
	OnSuccess func(data json.RawMessage)
	OnError   func(err error)
}

// MutationState is the outcome of Mutate.
type MutationState int

const (
	MutationIdle MutationState = iota
	MutationSuccess
	// MutationPaused means the mutation was queued and will run when the
	// network comes back.
	MutationPaused
	MutationError
)

func (s MutationState) String() string {
	switch s {
	case MutationSuccess:
		return "success"
	case MutationPaused:
		return "paused"
	case MutationError:
		return "error"
	default:
		return "idle"
	}
}

// MutationResult reports what Mutate did.
type MutationResult struct {
	ID    string
	State MutationState
	Data  json.RawMessage
	Err   error
}

// waiter holds the per call callbacks of a mutation until it completes.
type waiter struct {
	onSuccess func(json.RawMessage)
	onError   func(error)
	result    MutationResult
	done      chan struct{}
}

func (w *waiter) resolve(res MutationResult) {
	w.result = res
	close(w.done)
	switch {
	case res.Err == nil && w.onSuccess != nil:
		w.onSuccess(res.Data)
	case res.Err != nil && w.onError != nil:
		w.onError(res.Err)
	}
}

func (w *waiter) finished() (MutationResult, bool) {
	select {
	case <-w.done:
		return w.result, true
	default:
		return MutationResult{}, false
	}
}

// Mutate performs a write.
//
// Offline, the mutation is queued, persisted and reported as paused. Online
// with mutations already queued, it is queued behind them and the queue is
// drained so writes reach the server in order. Otherwise it runs at once:
// a success invalidates the handler's keys, a rejection is reported through
// OnError, a notice and the returned error, and a network error queues it
// when QueueOnNetworkError is set.
func (c *Client) Mutate(ctx context.Context, req MutationRequest) (MutationResult, error) {
	if err := c.alive(); err != nil {
		return MutationResult{}, err
	}
	if !req.Type.valid() {
		return MutationResult{}, goerrors.New(fmt.Sprintf("unknown mutation type %q", req.Type), goerrors.CategoryBadInput)
	}
	h, ok := c.handlers.Load(req.Resource)
	if !ok {
		return MutationResult{}, missingHandler(req.Resource)
	}

	payload, err := marshalPayload(req.Payload)
	if err != nil {
		return MutationResult{}, err
	}

	m := PendingMutation{
		ID:        ulid.Make().String(),
		Type:      req.Type,
		Resource:  req.Resource,
		EntityID:  req.EntityID,
		Payload:   payload,
		TargetKey: NewKey(req.TargetKey...),
		Tags:      append([]string(nil), req.Tags...),
		CreatedAt: c.now().UTC(),
	}
	w := &waiter{onSuccess: req.OnSuccess, onError: req.OnError, done: make(chan struct{})}
	c.waiters.Store(m.ID, w)

	c.execMu.Lock()
	online := c.IsOnline()
	if !online || c.queue.len() > 0 {
		c.enqueue(ctx, m)
		c.execMu.Unlock()
		if online {
			_, _ = c.ResumePausedMutations(ctx)
			if res, ok := w.finished(); ok {
				return res, res.Err
			}
		}
		return MutationResult{ID: m.ID, State: MutationPaused}, nil
	}

	data, err := h.Execute(ctx, m)
	if err != nil && faults.IsNetwork(err) && c.cfg.QueueOnNetworkError {
		m.Attempts = 1
		m.LastError = err.Error()
		c.enqueue(ctx, m)
		c.execMu.Unlock()
		c.logger.Warn("mutation queued after network error", logging.Fields{
			"mutation_id": m.ID,
			"resource":    m.Resource,
			"error":       err.Error(),
		})
		return MutationResult{ID: m.ID, State: MutationPaused}, nil
	}
	c.execMu.Unlock()

	if err != nil {
		res := c.fail(ctx, h, m, err)
		return res, err
	}
	return c.complete(ctx, h, m, data), nil
}

// IsPaused reports whether the mutation with id is still queued.
func (c *Client) IsPaused(id string) bool {
	return c.queue.contains(id)
}

// PendingMutations returns a copy of the queue in replay order.
func (c *Client) PendingMutations() []PendingMutation {
	return c.queue.snapshot()
}

// CancelMutation removes a queued mutation. A caller still waiting on it
// gets ErrMutationCancelled through its OnError callback.
func (c *Client) CancelMutation(ctx context.Context, id string) error {
	c.execMu.Lock()
	m, ok := c.queue.remove(id)
	if ok {
		c.persistQueue(ctx)
	}
	c.execMu.Unlock()

	if !ok {
		return goerrors.New(fmt.Sprintf("no queued mutation with id %q", id), goerrors.CategoryNotFound).
			WithTextCode("MUTATION_NOT_FOUND")
	}
	c.logger.Info("mutation cancelled", logging.Fields{"mutation_id": id, "resource": m.Resource})
	if w, ok := c.waiters.LoadAndDelete(id); ok {
		w.resolve(MutationResult{ID: id, State: MutationError, Err: ErrMutationCancelled})
	}
	return nil
}

// RejectedMutation is a queued mutation the server refused.
type RejectedMutation struct {
	Mutation PendingMutation
	Err      error
}

// ResumeReport summarizes one drain of the queue.
type ResumeReport struct {
	Applied   int
	Rejected  []RejectedMutation
	Remaining int
	// Err is why the drain stopped early, if it did.
	Err error
}

// ResumePausedMutations replays queued mutations in insertion order. Only
// one drain runs at a time.
//
// A success removes the mutation. A rejection removes it, reports it and
// moves on. Any other failure records the attempt and stops the drain with
// the mutation still at the head of the queue. The drain also stops when
// the network goes down, when ctx is done or when a mutation's resource has
// no registered handler.
func (c *Client) ResumePausedMutations(ctx context.Context) (ResumeReport, error) {
	if err := c.alive(); err != nil {
		return ResumeReport{Remaining: c.queue.len(), Err: err}, err
	}

	var (
		report ResumeReport
		after  []func()
	)

	c.execMu.Lock()
	for {
		m, ok := c.queue.head()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			report.Err = err
			break
		}
		if !c.IsOnline() {
			report.Err = ErrOffline
			break
		}
		h, ok := c.handlers.Load(m.Resource)
		if !ok {
			report.Err = missingHandler(m.Resource)
			break
		}

		data, err := h.Execute(ctx, m)
		if err == nil {
			c.queue.remove(m.ID)
			c.persistQueue(ctx)
			report.Applied++
			after = append(after, func() { c.complete(ctx, h, m, data) })
			continue
		}
		if faults.IsRejection(err) {
			c.queue.remove(m.ID)
			c.persistQueue(ctx)
			report.Rejected = append(report.Rejected, RejectedMutation{Mutation: m, Err: err})
			after = append(after, func() { c.fail(ctx, h, m, err) })
			continue
		}

		m.Attempts++
		m.LastError = err.Error()
		c.queue.update(m)
		c.persistQueue(ctx)
		report.Err = err
		break
	}
	report.Remaining = c.queue.len()
	c.execMu.Unlock()

	for _, fn := range after {
		fn()
	}

	fields := logging.Fields{
		"applied":   report.Applied,
		"rejected":  len(report.Rejected),
		"remaining": report.Remaining,
	}
	if report.Err != nil {
		fields["error"] = report.Err.Error()
		c.logger.Warn("mutation queue drain stopped", fields)
	} else if report.Applied > 0 || len(report.Rejected) > 0 {
		c.logger.Info("mutation queue drained", fields)
	}
	return report, report.Err
}

// enqueue adds m to the queue and writes the snapshot synchronously.
func (c *Client) enqueue(ctx context.Context, m PendingMutation) {
	if c.queue.add(m) {
		c.persistQueue(ctx)
	}
	c.logger.Info("mutation queued", logging.Fields{
		"mutation_id": m.ID,
		"resource":    m.Resource,
		"type":        string(m.Type),
		"pending":     c.queue.len(),
	})
}

func (c *Client) complete(ctx context.Context, h MutationHandler, m PendingMutation, data json.RawMessage) MutationResult {
	keys := []Key{{m.Resource}}
	if h.Invalidate != nil {
		keys = h.Invalidate(m)
	}
	for _, k := range keys {
		c.Invalidate(ctx, k)
	}
	if h.OnSuccess != nil {
		h.OnSuccess(ctx, m, data)
	}

	res := MutationResult{ID: m.ID, State: MutationSuccess, Data: data}
	if w, ok := c.waiters.LoadAndDelete(m.ID); ok {
		w.resolve(res)
	}
	c.logger.Debug("mutation applied", logging.Fields{"mutation_id": m.ID, "resource": m.Resource})
	return res
}

func (c *Client) fail(ctx context.Context, h MutationHandler, m PendingMutation, err error) MutationResult {
	c.logger.Error("mutation failed", logging.Fields{
		"mutation_id": m.ID,
		"resource":    m.Resource,
		"error":       err.Error(),
		"status":      faults.StatusCode(err),
	})
	c.notifier.Notify(ctx, Notice{
		Level:      LevelError,
		Message:    faults.Message(err),
		Err:        err,
		Resource:   m.Resource,
		MutationID: m.ID,
	})
	if h.OnError != nil {
		h.OnError(ctx, m, err)
	}

	res := MutationResult{ID: m.ID, State: MutationError, Err: err}
	if w, ok := c.waiters.LoadAndDelete(m.ID); ok {
		w.resolve(res)
	}
	return res
}

func marshalPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return append(json.RawMessage(nil), p...), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, faults.Serialization(err, "encode mutation payload")
	}
	return b, nil
}

func missingHandler(resource string) error {
	return goerrors.New(fmt.Sprintf("no mutation handler registered for resource %q", resource), goerrors.CategoryInternal).
		WithTextCode("MISSING_HANDLER")
}
