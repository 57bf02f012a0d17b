package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/feed"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
	"github.com/vovakirdan/wirechat-dm/internal/service/messages"
)

const (
	writeTimeout = 10 * time.Second
	// maxBatch caps how many records go into one frame.
	maxBatch = 256
	// frameBudget caps the body bytes of one snapshot frame, well under
	// the client's read limit.
	frameBudget = 4 << 20
)

// WatchHandler streams one direction of a conversation over a websocket.
// The first frame is the snapshot after the requested cursor; every later
// frame carries records appended since.
type WatchHandler struct {
	messages *messages.Service
	log      *zerolog.Logger
}

// NewWatchHandler builds a new watch handler.
func NewWatchHandler(svc *messages.Service, logger *zerolog.Logger) *WatchHandler {
	return &WatchHandler{messages: svc, log: logger}
}

// Watch handles GET /ws/watch?senderId=...&receiverId=...&after=...
func (h *WatchHandler) Watch(c *gin.Context) {
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

	// Subscribe before reading the snapshot so nothing appended in between is lost.
	sub, err := h.messages.Watch(uid, filter)
	if err != nil {
		status := statusForMessageError(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("filter", filter.String()).Msg("subscribe failed")
			c.JSON(status, proto.ErrorResponse{Error: "internal server error"})
			return
		}
		c.JSON(status, proto.ErrorResponse{Error: err.Error()})
		return
	}
	defer sub.Close()

	conn, err := accept(c)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	// Watchers never send; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(c.Request.Context())

	logger := h.log.With().Str("user_id", uid).Str("filter", filter.String()).Logger()
	logger.Debug().Int64("after", after).Msg("watch started")

	status, reason := h.stream(ctx, conn, sub, filter, uid, after, &logger)
	conn.Close(status, reason)
}

func (h *WatchHandler) stream(
	ctx context.Context,
	conn *websocket.Conn,
	sub *feed.Subscription,
	filter schema.Filter,
	uid string,
	after int64,
	logger *zerolog.Logger,
) (websocket.StatusCode, string) {
	snapshot, err := h.messages.List(ctx, uid, filter, after)
	if err != nil {
		if ctx.Err() != nil {
			return websocket.StatusNormalClosure, "closing"
		}
		logger.Error().Err(err).Msg("snapshot failed")
		_ = write(ctx, conn, errorFrame(proto.ErrCodeInternal, "snapshot failed"))
		return websocket.StatusInternalError, "snapshot failed"
	}

	// The first frame is sent even when empty; it marks the initial load.
	for _, page := range pages(snapshot) {
		if err := write(ctx, conn, batchFrame(page)); err != nil {
			return closeStatusFor(err, logger)
		}
	}
	last := after
	if n := len(snapshot); n > 0 {
		last = snapshot[n-1].Seq
	}

	for {
		select {
		case <-ctx.Done():
			return websocket.StatusNormalClosure, "closing"
		case <-sub.Done():
			if sub.Lagged() {
				logger.Warn().Int64("last_seq", last).Msg("watcher lagged behind feed")
				return websocket.StatusTryAgainLater, "lagged"
			}
			return websocket.StatusGoingAway, "feed closed"
		case msg := <-sub.C():
			batch := collect(sub, msg, last)
			if len(batch) == 0 {
				continue
			}
			if err := write(ctx, conn, batchFrame(batch)); err != nil {
				return closeStatusFor(err, logger)
			}
			last = batch[len(batch)-1].Seq
		}
	}
}

// pages splits a snapshot into frames of at most maxBatch records and
// roughly frameBudget body bytes. It always returns at least one page.
func pages(msgs []schema.Message) [][]schema.Message {
	out := [][]schema.Message{}
	start, size := 0, 0
	for i, m := range msgs {
		if i > start && (i-start == maxBatch || size+len(m.Body) > frameBudget) {
			out = append(out, msgs[start:i])
			start, size = i, 0
		}
		size += len(m.Body)
	}
	return append(out, msgs[start:])
}

// collect folds first and whatever else is already queued into one batch,
// dropping records the watcher has already seen.
func collect(sub *feed.Subscription, first schema.Message, last int64) []schema.Message {
	var batch []schema.Message
	add := func(m schema.Message) {
		if m.Seq > last {
			batch = append(batch, m)
			last = m.Seq
		}
	}

	add(first)
	for len(batch) < maxBatch {
		select {
		case m := <-sub.C():
			add(m)
		default:
			return batch
		}
	}
	return batch
}

// accept upgrades the request. The handshake goes to the server's own
// writer while the hijack goes through gin, so gin treats the response as
// written and leaves the hijacked connection alone afterwards.
func accept(c *gin.Context) (*websocket.Conn, error) {
	w := http.ResponseWriter(c.Writer)
	if u, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = u.Unwrap()
	}
	conn, err := websocket.Accept(upgradeWriter{ResponseWriter: w, gin: c.Writer}, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, err
	}
	c.Set(ContextKeyUpgraded, true)
	return conn, nil
}

type upgradeWriter struct {
	http.ResponseWriter
	gin gin.ResponseWriter
}

func (w upgradeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.gin.Hijack()
}

func write(ctx context.Context, conn *websocket.Conn, frame proto.Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}

func closeStatusFor(err error, logger *zerolog.Logger) (websocket.StatusCode, string) {
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
		return websocket.StatusNormalClosure, "closing"
	}
	logger.Warn().Err(err).Msg("ws write failed")
	return websocket.StatusInternalError, "write failed"
}
