package feed

import (
	"context"
	"sync"

	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

// Local is an in-process broker keyed by message direction.
type Local struct {
	mu     sync.RWMutex
	topics map[schema.Filter]map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewLocal creates a broker whose subscriptions buffer up to buffer messages.
func NewLocal(buffer int) *Local {
	return &Local{
		topics: make(map[schema.Filter]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Publish delivers msg to every subscriber of its direction.
func (l *Local) Publish(_ context.Context, msg schema.Message) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	for sub := range l.topics[schema.FilterOf(msg)] {
		// Slow subscribers are stopped rather than blocking the publisher.
		sub.Deliver(msg)
	}
	return nil
}

// Subscribe registers a subscription for filter.
func (l *Local) Subscribe(filter schema.Filter) (*Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	var sub *Subscription
	sub = NewSubscription(filter, l.buffer, func() { l.remove(sub) })

	subs, ok := l.topics[filter]
	if !ok {
		subs = make(map[*Subscription]struct{})
		l.topics[filter] = subs
	}
	subs[sub] = struct{}{}
	return sub, nil
}

func (l *Local) remove(sub *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs, ok := l.topics[sub.Filter]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(l.topics, sub.Filter)
	}
}

// Subscribers returns the number of live subscriptions for filter.
func (l *Local) Subscribers(filter schema.Filter) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.topics[filter])
}

// Close stops every subscription.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, subs := range l.topics {
		for sub := range subs {
			sub.stop()
		}
	}
	l.topics = make(map[schema.Filter]map[*Subscription]struct{})
	return nil
}
