package cache

import (
	"sort"
	"sync"
	"time"
)

// EventType names an entry state transition.
type EventType int

const (
	EventFetching EventType = iota
	EventSuccess
	EventError
	EventInvalidated
)

func (t EventType) String() string {
	switch t {
	case EventFetching:
		return "fetching"
	case EventSuccess:
		return "success"
	case EventError:
		return "error"
	case EventInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Event is delivered to observers once per transition of their key.
type Event struct {
	Key       Key
	Type      EventType
	Status    Status
	Err       error
	FetchedAt time.Time
}

type observerSet struct {
	subs map[uint64]func(Event)
}

// Subscribe registers fn for transitions of key. The returned func removes
// the registration and may be called any number of times. Removing the last
// observer does not cancel a running fetch; it completes and updates the
// cache for later readers.
func (c *Client) Subscribe(key Key, fn func(Event)) (unsubscribe func()) {
	skey := c.encode(key)

	c.mu.Lock()
	c.nextObsID++
	id := c.nextObsID
	set := c.observers[skey]
	if set == nil {
		set = &observerSet{subs: make(map[uint64]func(Event))}
		c.observers[skey] = set
	}
	set.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if set := c.observers[skey]; set != nil {
				delete(set.subs, id)
				if len(set.subs) == 0 {
					delete(c.observers, skey)
				}
			}
		})
	}
}

// Observers returns how many observers key currently has.
func (c *Client) Observers(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set := c.observers[c.encode(key)]; set != nil {
		return len(set.subs)
	}
	return 0
}

// notification is collected under c.mu and delivered after it is released.
type notification struct {
	fns   []func(Event)
	event Event
}

// notifyLocked snapshots the observers of skey. Callers must hold c.mu.
func (c *Client) notifyLocked(skey string, e *entry, t EventType) notification {
	n := notification{event: Event{
		Key:       NewKey(e.key...),
		Type:      t,
		Status:    e.status,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
	}}
	set := c.observers[skey]
	if set == nil || len(set.subs) == 0 {
		return n
	}
	ids := make([]uint64, 0, len(set.subs))
	for id := range set.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	n.fns = make([]func(Event), len(ids))
	for i, id := range ids {
		n.fns[i] = set.subs[id]
	}
	return n
}

func (n notification) deliver() {
	for _, fn := range n.fns {
		fn(n.event)
	}
}

func (c *Client) hasObserversLocked(skey string) bool {
	set := c.observers[skey]
	return set != nil && len(set.subs) > 0
}
