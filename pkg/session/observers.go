package session

import "sync"

// Subscription is a registered observer. Cancel removes it; calling Cancel
// more than once is harmless.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel unregisters the observer.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Subscriptions is a set of subscriptions released together.
type Subscriptions []*Subscription

// Cancel unregisters every observer in the set.
func (s Subscriptions) Cancel() {
	for _, sub := range s {
		sub.Cancel()
	}
}

type observer[T any] struct {
	id uint64
	fn func(T)
}

// observers is an ordered list of callbacks for one event type.
type observers[T any] struct {
	mu     sync.Mutex
	nextID uint64
	list   []observer[T]
}

func (o *observers[T]) add(fn func(T)) *Subscription {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.list = append(o.list, observer[T]{id: id, fn: fn})
	o.mu.Unlock()

	return &Subscription{cancel: func() { o.remove(id) }}
}

func (o *observers[T]) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, obs := range o.list {
		if obs.id == id {
			o.list = append(o.list[:i:i], o.list[i+1:]...)
			return
		}
	}
}

// emit calls every observer in registration order, outside the lock.
func (o *observers[T]) emit(v T) {
	o.mu.Lock()
	list := make([]observer[T], len(o.list))
	copy(list, o.list)
	o.mu.Unlock()

	for _, obs := range list {
		obs.fn(v)
	}
}

func (o *observers[T]) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.list)
}
