// Package feed fans inserted messages out to live watchers.
package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

// ErrClosed is returned by a broker that has been closed.
var ErrClosed = errors.New("feed closed")

// Broker publishes stored messages to subscribers of their direction.
type Broker interface {
	// Publish delivers msg to every subscription whose filter matches it.
	Publish(ctx context.Context, msg schema.Message) error

	// Subscribe starts receiving messages matching filter.
	Subscribe(filter schema.Filter) (*Subscription, error)

	// Close stops all subscriptions and releases resources.
	Close() error
}

// Subscription is a live, buffered view of one topic.
//
// A subscription that cannot keep up is marked lagged and stopped; the
// consumer is expected to resume from its last seen Seq.
type Subscription struct {
	Filter schema.Filter

	ch        chan schema.Message
	done      chan struct{}
	stopOnce  sync.Once
	unsubOnce sync.Once
	unsub     func()
	lagged    atomic.Bool
}

// NewSubscription builds a subscription with the given buffer.
// unsub is invoked once when the subscription is closed.
func NewSubscription(filter schema.Filter, buffer int, unsub func()) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	return &Subscription{
		Filter: filter,
		ch:     make(chan schema.Message, buffer),
		done:   make(chan struct{}),
		unsub:  unsub,
	}
}

// C returns the channel of delivered messages.
func (s *Subscription) C() <-chan schema.Message {
	return s.ch
}

// Done is closed once the subscription stops, either closed or lagged.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Lagged reports whether the subscription was stopped for falling behind.
func (s *Subscription) Lagged() bool {
	return s.lagged.Load()
}

// Deliver hands msg to the subscriber without blocking.
// Returns false if the subscription is stopped or just lagged.
func (s *Subscription) Deliver(msg schema.Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.ch <- msg:
		return true
	default:
		s.lagged.Store(true)
		s.stop()
		return false
	}
}

// Close stops the subscription and detaches it from its broker.
func (s *Subscription) Close() {
	s.stop()
	s.unsubOnce.Do(func() {
		if s.unsub != nil {
			s.unsub()
		}
	})
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
