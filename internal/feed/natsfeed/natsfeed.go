// Package natsfeed implements feed.Broker on top of core NATS subjects, so
// several server instances sharing one database can notify each other's watchers.
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/feed"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

// Broker publishes each message on <prefix>.<sender>.<receiver>.
type Broker struct {
	nc     *nats.Conn
	prefix string
	buffer int
	owned  bool
	log    *zerolog.Logger
}

// New connects to the NATS server at url.
func New(url, prefix string, buffer int, logger *zerolog.Logger) (*Broker, error) {
	nc, err := nats.Connect(url, nats.Name("wirechat-dm"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	b := NewWithConn(nc, prefix, buffer, logger)
	b.owned = true
	return b, nil
}

// NewWithConn wraps an existing connection. The caller keeps ownership of nc.
func NewWithConn(nc *nats.Conn, prefix string, buffer int, logger *zerolog.Logger) *Broker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broker{nc: nc, prefix: prefix, buffer: buffer, log: logger}
}

// Subject returns the subject for messages travelling in filter's direction.
func Subject(prefix string, filter schema.Filter) (string, error) {
	if err := filter.Validate(); err != nil {
		return "", err
	}
	for _, token := range []string{filter.SenderID, filter.ReceiverID} {
		if strings.ContainsAny(token, ".*> \t\r\n") {
			return "", fmt.Errorf("%w: id %q is not a valid subject token", schema.ErrInvalidFilter, token)
		}
	}
	return prefix + "." + filter.SenderID + "." + filter.ReceiverID, nil
}

// Publish sends msg to its direction's subject.
func (b *Broker) Publish(_ context.Context, msg schema.Message) error {
	subject, err := Subject(b.prefix, schema.FilterOf(msg))
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe listens on filter's subject.
func (b *Broker) Subscribe(filter schema.Filter) (*feed.Subscription, error) {
	subject, err := Subject(b.prefix, filter)
	if err != nil {
		return nil, err
	}

	var ns *nats.Subscription
	sub := feed.NewSubscription(filter, b.buffer, func() {
		if ns != nil {
			_ = ns.Unsubscribe()
		}
	})

	ns, err = b.nc.Subscribe(subject, func(m *nats.Msg) {
		var msg schema.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.log.Warn().Err(err).Str("subject", m.Subject).Msg("drop undecodable feed message")
			return
		}
		sub.Deliver(msg)
	})
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	b.log.Debug().Str("subject", subject).Msg("feed subscription started")
	return sub, nil
}

// Close drains the connection if the broker opened it.
func (b *Broker) Close() error {
	if !b.owned {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
