package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/pickboard/internal/classify"
	"github.com/roach88/pickboard/internal/ir"
	"github.com/roach88/pickboard/internal/push"
)

// pump copies sub to conn until either side ends. A reader goroutine
// consumes control frames so a viewer's close is noticed.
func pump(ctx context.Context, conn *websocket.Conn, sub push.Subscription, writeTimeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, push.ErrClosed) {
				deadline := time.Now().Add(writeTimeout)
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("push subscription: %w", err)
		}

		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}
}

func stateOf(it ir.Item) ir.StateTag {
	return classify.Classify(it.Flags)
}
