package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
	"github.com/vovakirdan/wirechat-dm/internal/service/messages"
)

// MessageHandlers exposes the message log over REST.
type MessageHandlers struct {
	messages *messages.Service
	limiter  *rateLimiter
	log      *zerolog.Logger
}

// NewMessageHandlers creates message handlers. ratePerMinute <= 0 disables throttling.
func NewMessageHandlers(svc *messages.Service, ratePerMinute int, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		messages: svc,
		limiter:  newRateLimiter(ratePerMinute),
		log:      logger,
	}
}

// PostMessage appends a message from the caller.
// POST /api/messages
func (h *MessageHandlers) PostMessage(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, proto.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req proto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid message request")
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: "invalid request body"})
		return
	}

	if !h.limiter.allow(uid) {
		c.JSON(http.StatusTooManyRequests, proto.ErrorResponse{Error: "rate limit exceeded"})
		return
	}

	msg, err := h.messages.Post(c.Request.Context(), uid, req.ReceiverID, req.Body, req.SentAt)
	if err != nil {
		h.writeError(c, err, uid)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// ListMessages returns one direction of a conversation in log order.
// GET /api/messages?senderId=...&receiverId=...&after=...
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, proto.ErrorResponse{Error: "unauthorized"})
		return
	}

	filter := filterFromQuery(c)
	after, err := parseAfter(c.Query(proto.QueryAfter))
	if err != nil {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: err.Error()})
		return
	}

	msgs, err := h.messages.List(c.Request.Context(), uid, filter, after)
	if err != nil {
		h.writeError(c, err, uid)
		return
	}
	if msgs == nil {
		msgs = []schema.Message{}
	}

	c.JSON(http.StatusOK, msgs)
}

func (h *MessageHandlers) writeError(c *gin.Context, err error, uid string) {
	status := statusForMessageError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("user_id", uid).Msg("message operation failed")
		c.JSON(status, proto.ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, proto.ErrorResponse{Error: err.Error()})
}

func statusForMessageError(err error) int {
	switch {
	case errors.Is(err, messages.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, messages.ErrUnknownReceiver):
		return http.StatusNotFound
	case errors.Is(err, messages.ErrEmptyBody),
		errors.Is(err, messages.ErrBodyTooLong),
		errors.Is(err, messages.ErrSelfMessage),
		errors.Is(err, messages.ErrMissingSentAt),
		errors.Is(err, schema.ErrInvalidFilter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
