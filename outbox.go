package mailing

import (
	"context"
	"slices"
	"sync"
)

// DispatchFunc observes every message the facade has handed to its transport.
// It runs synchronously on the sending goroutine.
type DispatchFunc func(ctx context.Context, msg *MIMEMessage)

type subscriber struct {
	id int
	fn DispatchFunc
}

// dispatcher is the per-instance observer list.
type dispatcher struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

func (d *dispatcher) subscribe(fn DispatchFunc) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.subs = slices.DeleteFunc(d.subs, func(s subscriber) bool { return s.id == id })
		})
	}
}

// dispatch calls observers in subscription order. The list is copied first so
// an observer may unsubscribe itself.
func (d *dispatcher) dispatch(ctx context.Context, msg *MIMEMessage) {
	d.mu.RLock()
	subs := slices.Clone(d.subs)
	d.mu.RUnlock()

	for _, s := range subs {
		s.fn(ctx, msg)
	}
}

// Outbox collects messages dispatched while recording.
type Outbox struct {
	mu       sync.Mutex
	messages []*MIMEMessage
}

func (o *Outbox) record(_ context.Context, msg *MIMEMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
}

// Messages returns the recorded messages in dispatch order.
func (o *Outbox) Messages() []*MIMEMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.messages)
}

// Len returns the number of recorded messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}

// Last returns the most recent message, or nil.
func (o *Outbox) Last() *MIMEMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.messages) == 0 {
		return nil
	}
	return o.messages[len(o.messages)-1]
}
