package events

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/julianstephens/chime/internal/models"
)

// Listener receives the full reminder collection after every change.
type Listener func(snapshot []models.Reminder)

// Bus fans a collection snapshot out to its listeners.
//
// Contract:
//   - Publish calls every listener synchronously, in subscription order.
//   - Each listener gets its own copy of the snapshot.
//   - A listener may be called again with an unchanged collection.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]Listener
	seq  atomic.Uint64
}

func New() *Bus {
	return &Bus{subs: map[uint64]Listener{}}
}

// Subscribe registers l and returns a function that removes it. The returned
// function is safe to call more than once.
func (b *Bus) Subscribe(l Listener) func() {
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = l
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(snapshot []models.Reminder) {
	// Snapshot listeners so a listener may unsubscribe while being called.
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		b.mu.RLock()
		l, ok := b.subs[id]
		b.mu.RUnlock()
		if !ok {
			continue
		}
		l(copySnapshot(snapshot))
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func copySnapshot(snapshot []models.Reminder) []models.Reminder {
	out := make([]models.Reminder, len(snapshot))
	copy(out, snapshot)
	return out
}
