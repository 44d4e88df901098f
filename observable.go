package playkit

import (
	"sync"

	"github.com/google/uuid"
)

// PurchaseFeed is a read-only observable holding the most recent purchase list.
// Subscribers always converge on the latest value: if a subscriber has not
// drained the previous value yet, it is replaced rather than queued.
type PurchaseFeed struct {
	mu          sync.RWMutex
	latest      []Purchase
	hasValue    bool
	subscribers map[string]chan []Purchase
}

func newPurchaseFeed() *PurchaseFeed {
	return &PurchaseFeed{
		subscribers: make(map[string]chan []Purchase),
	}
}

// Latest returns the current value and whether anything has been published yet.
func (f *PurchaseFeed) Latest() ([]Purchase, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return clonePurchases(f.latest), f.hasValue
}

// Subscribe registers an observer. It returns the subscription id, the update
// channel and a snapshot of the current value.
func (f *PurchaseFeed) Subscribe() (string, <-chan []Purchase, []Purchase) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan []Purchase, 1)
	f.subscribers[id] = ch
	return id, ch, clonePurchases(f.latest)
}

// Unsubscribe removes an observer and closes its channel.
func (f *PurchaseFeed) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

func (f *PurchaseFeed) publish(purchases []Purchase) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest = clonePurchases(purchases)
	f.hasValue = true

	for _, ch := range f.subscribers {
		value := clonePurchases(purchases)
		select {
		case ch <- value:
		default:
			// Drop the stale value the subscriber has not read yet.
			select {
			case <-ch:
			default:
			}
			ch <- value
		}
	}
}

func clonePurchases(in []Purchase) []Purchase {
	if in == nil {
		return nil
	}
	out := make([]Purchase, len(in))
	for i, p := range in {
		p.Products = append([]string(nil), p.Products...)
		out[i] = p
	}
	return out
}
