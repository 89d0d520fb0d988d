package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/pickboard/internal/ir"
)

// Handler receives decoded transitions in delivery order.
type Handler func(ir.TransitionEvent)

// Client decodes a subscription's messages and forwards them to handlers.
type Client struct {
	mu        sync.Mutex
	handlers  []Handler
	onFailure func(error)

	decodeErrors int
	delivered    int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithFailureHandler sets the callback run when the transport fails. The
// viewer wires it to the engine's full-reload fallback, since messages
// missed while disconnected cannot be recovered.
func WithFailureHandler(f func(error)) ClientOption {
	return func(c *Client) {
		c.onFailure = f
	}
}

// NewClient creates a client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnTransition registers a handler. Handlers run on the Run goroutine and
// must not block; the engine's HandleTransition only enqueues.
func (c *Client) OnTransition(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Run reads sub until ctx is done or the subscription ends. Malformed
// messages are logged and skipped. A transport failure is reported to the
// failure handler and returned; a clean close or cancellation returns nil.
func (c *Client) Run(ctx context.Context, sub Subscription) error {
	defer sub.Close()

	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				slog.Debug("push subscription ended", "reason", err)
				return nil
			}
			err = fmt.Errorf("push transport: %w", err)
			slog.Error("push subscription failed", "error", err)
			if c.onFailure != nil {
				c.onFailure(err)
			}
			return err
		}

		ev, err := Decode(raw)
		if err != nil {
			c.mu.Lock()
			c.decodeErrors++
			c.mu.Unlock()
			slog.Warn("ignoring undecodable push message", "error", err)
			continue
		}

		c.mu.Lock()
		handlers := make([]Handler, len(c.handlers))
		copy(handlers, c.handlers)
		c.delivered++
		c.mu.Unlock()

		slog.Debug("push transition received", "item_id", ev.ItemID, "list_id", ev.ListID, "state", ev.State)
		for _, h := range handlers {
			h(ev)
		}
	}
}

// DecodeErrors returns how many messages were skipped as malformed.
func (c *Client) DecodeErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decodeErrors
}

// Delivered returns how many transitions were forwarded.
func (c *Client) Delivered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered
}
