// Package live provides the reactive query layer: a table-scoped change bus
// over the local store plus auto-refreshing queries for UI code.
//
// Delivery is synchronous: a publish happens in the writer's call path,
// after the row is committed, so subscribers always observe the write they
// are being notified about.
package live

import "sync"

// Op describes what happened to a row.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// Change is one committed write against a local store table.
type Change struct {
	Table string
	Op    Op
	ID    string
}

// Handler receives committed changes for subscribed tables.
type Handler func(Change)

type subscriber struct {
	id      int
	tables  map[string]bool // empty means all tables
	handler Handler
}

// Bus fans committed store changes out to subscribers.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

// NewBus creates a new change bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscription is a handle for cancelling a subscription.
type Subscription struct {
	bus *Bus
	id  int
}

// Close stops delivery to this subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
}

// Subscribe registers a handler for changes on the given tables. With no
// tables, the handler receives every change.
func (b *Bus) Subscribe(handler Handler, tables ...string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{id: b.nextID, handler: handler}
	if len(tables) > 0 {
		sub.tables = make(map[string]bool, len(tables))
		for _, t := range tables {
			sub.tables[t] = true
		}
	}
	b.subs[sub.id] = sub
	return &Subscription{bus: b, id: sub.id}
}

// Publish delivers a change to every matching subscriber before returning.
// Handlers run on the publisher's goroutine; a handler may publish further
// changes without deadlocking.
func (b *Bus) Publish(c Change) {
	b.mu.Lock()
	matched := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.tables == nil || sub.tables[c.Table] {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range matched {
		sub.handler(c)
	}
}

// Query is a live, auto-refreshing view over the local store. It re-runs
// its query function whenever a change touches one of its tables and hands
// the fresh result to the OnResult callback.
type Query[T any] struct {
	mu       sync.Mutex
	run      func() (T, error)
	onResult func(T)
	onError  func(error)
	sub      *Subscription
	current  T
	err      error
}

// Watch runs the query once, delivers the initial result, and keeps it
// fresh against writes to the given tables. onError may be nil; query
// failures are then held on the Query for Current to report.
func Watch[T any](bus *Bus, run func() (T, error), onResult func(T), onError func(error), tables ...string) *Query[T] {
	q := &Query[T]{run: run, onResult: onResult, onError: onError}
	q.sub = bus.Subscribe(func(Change) { q.refresh() }, tables...)
	q.refresh()
	return q
}

func (q *Query[T]) refresh() {
	result, err := q.run()

	q.mu.Lock()
	q.current, q.err = result, err
	q.mu.Unlock()

	if err != nil {
		if q.onError != nil {
			q.onError(err)
		}
		return
	}
	if q.onResult != nil {
		q.onResult(result)
	}
}

// Current returns the most recent result of the query.
func (q *Query[T]) Current() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current, q.err
}

// Close detaches the query from the bus.
func (q *Query[T]) Close() {
	q.sub.Close()
}
