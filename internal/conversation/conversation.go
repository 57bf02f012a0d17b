package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

var (
	// ErrInvalidParticipant is returned when a participant id is empty.
	ErrInvalidParticipant = errors.New("conversation: participant id is empty")
	// ErrSelfConversation is returned when both participants are the same user.
	ErrSelfConversation = errors.New("conversation: cannot open a conversation with yourself")
)

// Update is delivered after a batch changed the view.
// Updates coalesce when the reader falls behind: Messages is always the
// latest view, Added counts every record appended since the last delivered
// update, and Kind stays UpdateReset if any merged update was one.
type Update struct {
	Kind     UpdateKind
	Messages []schema.Message
	Added    int
}

func (u Update) merge(next Update) Update {
	kind := next.Kind
	if u.Kind == UpdateReset {
		kind = UpdateReset
	}
	return Update{Kind: kind, Messages: next.Messages, Added: u.Added + next.Added}
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithLogger sets the logger used for suppressed failures.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Conversation) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithClock overrides the clock used to stamp outgoing messages.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) {
		if now != nil {
			c.now = now
		}
	}
}

// Conversation is a live, ordered view of the messages between two users.
type Conversation struct {
	local  string
	remote string
	store  Store
	log    *zerolog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	view *View

	updates chan Update
	done    chan struct{}

	sendMu sync.Mutex
	closed bool
	sends  sync.WaitGroup

	closeOnce sync.Once
}

// Open subscribes to both directions between local and remote and starts
// materializing the view. The conversation ends when Close is called or
// ctx is done.
func Open(ctx context.Context, st Store, local, remote string, opts ...Option) (*Conversation, error) {
	if local == "" || remote == "" {
		return nil, ErrInvalidParticipant
	}
	if local == remote {
		return nil, ErrSelfConversation
	}

	nop := zerolog.Nop()
	c := &Conversation{
		local:   local,
		remote:  remote,
		store:   st,
		log:     &nop,
		now:     time.Now,
		view:    NewView(),
		updates: make(chan Update, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	batches, err := Subscribe(c.ctx, st, local, remote)
	if err != nil {
		c.cancel()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	go c.run(batches)
	return c, nil
}

// Local returns the id of the user this view belongs to.
func (c *Conversation) Local() string { return c.local }

// Remote returns the id of the other party.
func (c *Conversation) Remote() string { return c.remote }

// Messages returns a copy of the current ordered view.
func (c *Conversation) Messages() []schema.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Messages()
}

// State reports whether the view has been populated yet.
func (c *Conversation) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.State()
}

// Updates delivers view changes. It is closed once the conversation ends.
func (c *Conversation) Updates() <-chan Update {
	return c.updates
}

// Done is closed once the conversation stopped processing batches.
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

// Send appends a message from the local user to the remote log and returns
// immediately. The view is not touched: the message shows up once it comes
// back through the subscription. Failures are dropped. Blank bodies are
// ignored.
func (c *Conversation) Send(body string) {
	if strings.TrimSpace(body) == "" {
		return
	}

	msg := schema.Message{
		SenderID:   c.local,
		ReceiverID: c.remote,
		Body:       body,
		SentAt:     c.now(),
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}

	c.sends.Add(1)
	go func() {
		defer c.sends.Done()
		if err := c.store.Insert(c.ctx, msg); err != nil {
			c.log.Debug().Err(err).Str("receiver_id", msg.ReceiverID).Msg("send dropped")
		}
	}()
}

// Close cancels the subscription and any in-flight sends and waits for
// them to finish. It is safe to call more than once.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed = true
		c.sendMu.Unlock()

		c.cancel()
		c.sends.Wait()
		<-c.done
	})
}

func (c *Conversation) run(batches <-chan schema.Batch) {
	defer close(c.done)
	defer close(c.updates)

	for b := range batches {
		if b.Err != nil {
			c.log.Debug().Err(b.Err).Msg("dropping failed batch")
			continue
		}

		c.mu.Lock()
		kind, added, changed := c.view.Apply(b)
		var snapshot []schema.Message
		if changed {
			snapshot = c.view.Messages()
		}
		c.mu.Unlock()

		if changed {
			c.publish(Update{Kind: kind, Messages: snapshot, Added: added})
		}
	}
}

// publish never blocks. run is the only sender, so after draining a pending
// update the buffer has room.
func (c *Conversation) publish(u Update) {
	select {
	case c.updates <- u:
		return
	default:
	}

	select {
	case pending := <-c.updates:
		u = pending.merge(u)
	default:
	}
	c.updates <- u
}
