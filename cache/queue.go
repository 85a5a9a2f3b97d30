package cache

import (
	"encoding/json"
	"sync"
)

// mutationQueue is the ordered list of paused mutations. Insertion order is
// replay order.
type mutationQueue struct {
	mu    sync.Mutex
	items []PendingMutation
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{}
}

func (q *mutationQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *mutationQueue) head() (PendingMutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return PendingMutation{}, false
	}
	return q.items[0].clone(), true
}

// add appends m unless a mutation with the same id is already queued.
func (q *mutationQueue) add(m PendingMutation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexLocked(m.ID) >= 0 {
		return false
	}
	q.items = append(q.items, m.clone())
	return true
}

func (q *mutationQueue) remove(id string) (PendingMutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(id)
	if i < 0 {
		return PendingMutation{}, false
	}
	m := q.items[i]
	q.items = append(q.items[:i:i], q.items[i+1:]...)
	return m, true
}

// update replaces the queued mutation with m's id, keeping its position.
func (q *mutationQueue) update(m PendingMutation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(m.ID)
	if i < 0 {
		return false
	}
	q.items[i] = m.clone()
	return true
}

func (q *mutationQueue) contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(id) >= 0
}

func (q *mutationQueue) snapshot() []PendingMutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingMutation, len(q.items))
	for i, m := range q.items {
		out[i] = m.clone()
	}
	return out
}

// merge appends restored mutations that are not queued yet.
func (q *mutationQueue) merge(items []PendingMutation) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	added := 0
	for _, m := range items {
		if m.ID == "" || q.indexLocked(m.ID) >= 0 {
			continue
		}
		q.items = append(q.items, m.clone())
		added++
	}
	return added
}

func (q *mutationQueue) indexLocked(id string) int {
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (m PendingMutation) clone() PendingMutation {
	if m.Payload != nil {
		m.Payload = append(json.RawMessage(nil), m.Payload...)
	}
	if m.TargetKey != nil {
		m.TargetKey = NewKey(m.TargetKey...)
	}
	if m.Tags != nil {
		m.Tags = append([]string(nil), m.Tags...)
	}
	return m
}
