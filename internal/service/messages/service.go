package messages

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/feed"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Common errors for message operations.
var (
	ErrEmptyBody       = errors.New("message body is empty")
	ErrBodyTooLong     = errors.New("message body is too long")
	ErrSelfMessage     = errors.New("cannot send a message to yourself")
	ErrUnknownReceiver = errors.New("receiver not found")
	ErrMissingSentAt   = errors.New("message timestamp is required")
	ErrForbidden       = errors.New("not a party of this conversation")
)

// Service appends messages to the log and fans them out to watchers.
type Service struct {
	// appendMu keeps feed publish order equal to log order.
	appendMu sync.Mutex

	store   store.Store
	broker  feed.Broker
	maxBody int
	log     *zerolog.Logger
}

// New creates a message service. maxBody <= 0 disables the length check.
func New(st store.Store, broker feed.Broker, maxBody int, logger *zerolog.Logger) *Service {
	return &Service{
		store:   st,
		broker:  broker,
		maxBody: maxBody,
		log:     logger,
	}
}

// Post stores a message from senderID and publishes it.
// SentAt is the writer's clock and is kept as given.
func (s *Service) Post(ctx context.Context, senderID, receiverID, body string, sentAt time.Time) (*schema.Message, error) {
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	if body == "" {
		return nil, ErrEmptyBody
	}
	if s.maxBody > 0 && len(body) > s.maxBody {
		return nil, ErrBodyTooLong
	}
	if sentAt.IsZero() {
		return nil, ErrMissingSentAt
	}

	if _, err := s.store.GetUserByID(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownReceiver
		}
		return nil, fmt.Errorf("get receiver: %w", err)
	}

	msg := &schema.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		SentAt:     sentAt.UTC(),
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// The record is durable at this point; watchers that miss the publish
	// pick it up on their next resume.
	if err := s.broker.Publish(ctx, *msg); err != nil {
		s.log.Warn().Err(err).Int64("seq", msg.Seq).Msg("failed to publish message to feed")
	}

	return msg, nil
}

// List returns the whole history of one direction. The caller must be a party.
func (s *Service) List(ctx context.Context, callerID string, filter schema.Filter, afterSeq int64) ([]schema.Message, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if !filter.Involves(callerID) {
		return nil, ErrForbidden
	}

	msgs, err := s.store.ListMessages(ctx, filter, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Watch subscribes to filter on behalf of callerID.
func (s *Service) Watch(callerID string, filter schema.Filter) (*feed.Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if !filter.Involves(callerID) {
		return nil, ErrForbidden
	}
	return s.broker.Subscribe(filter)
}
