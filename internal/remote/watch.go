package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

// watchReadLimit caps one frame; a snapshot of a long history can be large.
const watchReadLimit = 16 << 20

// Watch streams the records of one direction, starting with the whole
// history. The first connection is made before Watch returns so that
// authorization failures surface to the caller. Later disconnects are
// reported as a batch carrying Err, then the stream reconnects with
// backoff and resumes after the last record it delivered. The channel is
// closed once ctx is done.
func (c *Client) Watch(ctx context.Context, filter schema.Filter) (<-chan schema.Batch, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if c.Token() == "" {
		return nil, ErrNotSignedIn
	}

	conn, err := c.dial(ctx, filter, 0)
	if err != nil {
		return nil, err
	}

	out := make(chan schema.Batch)
	go c.watchLoop(ctx, filter, conn, out)
	return out, nil
}

func (c *Client) watchLoop(ctx context.Context, filter schema.Filter, conn *websocket.Conn, out chan<- schema.Batch) {
	defer close(out)

	logger := c.log.With().Str("filter", filter.String()).Logger()
	var after int64
	delay := c.reconnectDelay

	for {
		if conn != nil {
			delivered, err := c.pump(ctx, conn, &after, out)
			conn.CloseNow()
			conn = nil
			if ctx.Err() != nil {
				return
			}
			if delivered {
				delay = c.reconnectDelay
			}
			logger.Debug().Err(err).Int64("after", after).Msg("watch interrupted")
			if !emit(ctx, out, schema.Batch{Err: err}) {
				return
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = min(delay*2, c.maxReconnectDelay)

		next, err := c.dial(ctx, filter, after)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Debug().Err(err).Dur("retry_in", delay).Msg("watch reconnect failed")
			if !emit(ctx, out, schema.Batch{Err: err}) {
				return
			}
			continue
		}
		conn = next
	}
}

// pump forwards frames from conn until it fails. after tracks the highest
// delivered seq so a reconnect resumes where this connection stopped.
func (c *Client) pump(ctx context.Context, conn *websocket.Conn, after *int64, out chan<- schema.Batch) (bool, error) {
	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	go c.keepalive(ctx, conn, stop)

	delivered := false
	for {
		var frame proto.Inbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return delivered, cause
			}
			return delivered, err
		}

		switch frame.Type {
		case proto.FrameTypeBatch:
			var data proto.BatchData
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				return delivered, fmt.Errorf("decode batch: %w", err)
			}
			batch := schema.Batch{Changes: data.Changes}
			if !emit(ctx, out, batch) {
				return delivered, ctx.Err()
			}
			delivered = true
			if last := batch.LastSeq(); last > *after {
				*after = last
			}
		case proto.FrameTypeError:
			if frame.Error != nil {
				return delivered, frame.Error
			}
			return delivered, errors.New("watch: unspecified server error")
		default:
			c.log.Debug().Str("type", frame.Type).Msg("ignoring unknown watch frame")
		}
	}
}

// keepalive pings conn until ctx ends. A ping without a pong in time
// stops the stream through stop so the watch reconnects.
func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn, stop context.CancelCauseFunc) {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
		err := conn.Ping(pingCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				stop(fmt.Errorf("watch keepalive: %w", err))
			}
			return
		}
	}
}

func (c *Client) dial(ctx context.Context, filter schema.Filter, after int64) (*websocket.Conn, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws/watch"
	u.RawQuery = filterQuery(filter, after).Encode()

	// The REST timeout would cut the stream; the dial is bounded by ctx.
	hc := *c.http
	hc.Timeout = 0

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: &hc,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.Token()}},
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("dial watch: %w", &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)})
		}
		return nil, fmt.Errorf("dial watch: %w", err)
	}
	conn.SetReadLimit(watchReadLimit)
	return conn, nil
}

func emit(ctx context.Context, out chan<- schema.Batch, b schema.Batch) bool {
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}
