// Package visibility tracks whether the client UI is in the foreground.
package visibility

import "sync"

// Source is what pollers consume.
type Source interface {
	Hidden() bool
	// Subscribe returns a channel that receives the new hidden flag after each
	// change, and a func that releases the subscription.
	Subscribe() (<-chan bool, func())
}

// Tracker is a Source fed by the UI shell.
type Tracker struct {
	mu     sync.Mutex
	hidden bool
	next   int
	subs   map[int]chan bool
}

var _ Source = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{subs: map[int]chan bool{}}
}

func (t *Tracker) Hidden() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hidden
}

// SetHidden records the new state and notifies subscribers when it changed.
// Slow subscribers only ever see the latest value.
func (t *Tracker) SetHidden(hidden bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hidden == hidden {
		return
	}
	t.hidden = hidden
	for _, ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		ch <- hidden
	}
}

func (t *Tracker) Subscribe() (<-chan bool, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	ch := make(chan bool, 1)
	t.subs[id] = ch
	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// AlwaysVisible is a Source for headless use.
type AlwaysVisible struct{}

func (AlwaysVisible) Hidden() bool { return false }

func (AlwaysVisible) Subscribe() (<-chan bool, func()) {
	return nil, func() {}
}
